package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tenvisio/pulse/internal/auth"
	"github.com/tenvisio/pulse/internal/broker"
	"github.com/tenvisio/pulse/internal/protocol"
)

// fakeConn is an in-memory transport.Connection used to drive a Session
// without a real socket.
type fakeConn struct {
	id   string
	in   chan *protocol.Frame
	out  chan protocol.Frame
	open chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		id:   "raw_test",
		in:   make(chan *protocol.Frame, 16),
		out:  make(chan protocol.Frame, 16),
		open: make(chan struct{}),
	}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Recv(ctx context.Context) (*protocol.Frame, error) {
	select {
	case f, ok := <-c.in:
		if !ok {
			return nil, nil
		}
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.open:
		return nil, nil
	}
}

func (c *fakeConn) Send(ctx context.Context, f protocol.Frame) error {
	select {
	case c.out <- f:
		return nil
	default:
		return errors.New("fakeConn: out buffer full")
	}
}

func (c *fakeConn) SendRaw(ctx context.Context, data []byte) error { return nil }

func (c *fakeConn) Close() error {
	select {
	case <-c.open:
	default:
		close(c.open)
	}
	return nil
}

func (c *fakeConn) RemoteAddr() (string, bool) { return "127.0.0.1:0", true }

func (c *fakeConn) IsOpen() bool {
	select {
	case <-c.open:
		return false
	default:
		return true
	}
}

func (c *fakeConn) sendFrame(f protocol.Frame) { c.in <- &f }

func (c *fakeConn) recvFrame(t *testing.T) protocol.Frame {
	t.Helper()
	select {
	case f := <-c.out:
		return f
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for outbound frame")
		return protocol.Frame{}
	}
}

func newTestSession(conn *fakeConn) (*Session, *broker.Router) {
	router := broker.NewRouter()
	cfg := DefaultConfig()
	cfg.HeartbeatIntervalMS = 60_000
	return New(conn, router, auth.AllowAll{}, nil, nil, cfg), router
}

func TestSessionOpenSendsConnectedImmediately(t *testing.T) {
	conn := newFakeConn()
	sess, _ := newTestSession(conn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	connected := conn.recvFrame(t)
	if connected.Type != protocol.FrameTypeConnected {
		t.Fatalf("expected connected frame, got %s", connected.Type)
	}
	if connected.ConnectionID == "" {
		t.Fatal("expected a non-empty connection id")
	}
	if sess.State() != StateOpen {
		t.Fatalf("expected state open, got %s", sess.State())
	}

	conn.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("session did not exit after connection close")
	}
	if sess.State() != StateClosed {
		t.Fatalf("expected state closed, got %s", sess.State())
	}
}

// TestSessionSubscribeFirstNeverDisconnects pins down the handshake fix: a
// client that speaks Subscribe as its very first frame, without ever
// sending Connect, must be served normally rather than disconnected.
func TestSessionSubscribeFirstNeverDisconnects(t *testing.T) {
	conn := newFakeConn()
	sess, _ := newTestSession(conn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	conn.recvFrame(t) // connected, unprompted

	conn.sendFrame(protocol.Subscribe(1, "room:1"))
	ack := conn.recvFrame(t)
	if ack.Type != protocol.FrameTypeAck || ack.AckID != 1 {
		t.Fatalf("expected ack for subscribe, got %+v", ack)
	}

	conn.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("session did not exit after connection close")
	}
}

// TestSessionConnectIsOptionalAndInformational mirrors the spec's
// "stray Connect is silently ignored" behavior: a Connect frame sent after
// OPEN (carrying a token that would fail validation) neither produces a
// second Connected nor disconnects the session.
func TestSessionConnectIsOptionalAndInformational(t *testing.T) {
	conn := newFakeConn()
	sess, _ := newTestSession(conn)
	sess.validator = auth.NewJWTValidator("test-secret")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	conn.recvFrame(t) // connected

	badToken := "not-a-jwt"
	conn.sendFrame(protocol.Connect(1, &badToken))

	conn.sendFrame(protocol.Subscribe(1, "room:1"))
	ack := conn.recvFrame(t)
	if ack.Type != protocol.FrameTypeAck || ack.AckID != 1 {
		t.Fatalf("expected ack for subscribe after a stray connect, got %+v", ack)
	}

	conn.Close()
	<-done
}

func TestSessionSubscribeAndPublishRoundTrip(t *testing.T) {
	conn := newFakeConn()
	sess, router := newTestSession(conn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	conn.recvFrame(t) // connected

	conn.sendFrame(protocol.Subscribe(1, "room:1"))
	ack := conn.recvFrame(t)
	if ack.Type != protocol.FrameTypeAck || ack.AckID != 1 {
		t.Fatalf("expected ack for subscribe, got %+v", ack)
	}

	router.PublishTo("room:1", []byte("hello"))

	delivered := conn.recvFrame(t)
	if delivered.Type != protocol.FrameTypePublish || string(delivered.Payload) != "hello" {
		t.Fatalf("expected forwarded publish frame, got %+v", delivered)
	}

	conn.Close()
	<-done
}

func TestSessionSubscribeInvalidChannelReturnsErrorFrame(t *testing.T) {
	conn := newFakeConn()
	sess, _ := newTestSession(conn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	conn.recvFrame(t) // connected

	conn.sendFrame(protocol.Subscribe(1, ""))
	errFrame := conn.recvFrame(t)
	if errFrame.Type != protocol.FrameTypeError || errFrame.ErrorCode != ErrCodeSubscribeFailed {
		t.Fatalf("expected subscribe error frame, got %+v", errFrame)
	}

	conn.Close()
	<-done
}

func TestSessionUnsubscribeNotSubscribedReturnsErrorFrame(t *testing.T) {
	conn := newFakeConn()
	sess, _ := newTestSession(conn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	conn.recvFrame(t) // connected

	conn.sendFrame(protocol.Unsubscribe(1, "room:1"))
	errFrame := conn.recvFrame(t)
	if errFrame.Type != protocol.FrameTypeError || errFrame.ErrorCode != ErrCodeUnsubscribeFailed {
		t.Fatalf("expected unsubscribe error frame, got %+v", errFrame)
	}

	conn.Close()
	<-done
}

func TestSessionPresenceSyncRepliesWithSnapshot(t *testing.T) {
	conn := newFakeConn()
	sess, router := newTestSession(conn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	conn.recvFrame(t) // connected

	conn.sendFrame(protocol.Subscribe(1, "room:1"))
	conn.recvFrame(t) // ack

	router.PresenceJoin(sess.ID(), "room:1", map[string]string{"name": "ada"})

	conn.sendFrame(protocol.Frame{Type: protocol.FrameTypePresence, Channel: "room:1", PresenceAction: protocol.PresenceSync})
	reply := conn.recvFrame(t)
	if reply.Type != protocol.FrameTypePresence || reply.PresenceAction != protocol.PresenceSync {
		t.Fatalf("expected presence sync reply, got %+v", reply)
	}
	snapshot, ok := reply.PresenceData.([]broker.PresenceState)
	if !ok || len(snapshot) != 1 {
		t.Fatalf("expected one presence member in snapshot, got %+v", reply.PresenceData)
	}

	conn.Close()
	<-done
}

func TestSessionTeardownClearsSubscriptionsAndPresence(t *testing.T) {
	conn := newFakeConn()
	sess, router := newTestSession(conn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	conn.recvFrame(t) // connected

	conn.sendFrame(protocol.Subscribe(1, "room:1"))
	conn.recvFrame(t) // ack

	router.PresenceJoin(sess.ID(), "room:1", nil)

	conn.Close()
	<-done

	if router.ChannelExists("room:1") {
		t.Fatal("expected channel to be auto-deleted once its only subscriber disconnected")
	}
}
