package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/rs/zerolog/log"

	"github.com/tenvisio/pulse/internal/protocol"
)

// WebSocketConfig configures the reference WebSocket transport.
type WebSocketConfig struct {
	BindAddr       string
	MaxMessageSize int
}

// WebSocketTransport accepts raw TCP connections and upgrades them to
// WebSocket using gobwas/ws, the same low-level (no net/http) upgrade path
// the teacher's go-server-3/internal/transport/server.go uses, adapted
// here to hand back a transport-agnostic Connection rather than push
// bytes straight into a hub.
type WebSocketTransport struct {
	config   WebSocketConfig
	listener net.Listener
	nextID   atomic.Uint64
}

// NewWebSocketTransport binds a TCP listener at config.BindAddr.
func NewWebSocketTransport(config WebSocketConfig) (*WebSocketTransport, error) {
	ln, err := net.Listen("tcp", config.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	return &WebSocketTransport{config: config, listener: ln}, nil
}

func (t *WebSocketTransport) Name() string { return "websocket" }

func (t *WebSocketTransport) IsHealthy() bool { return t.listener != nil }

// Addr returns the bound listener address.
func (t *WebSocketTransport) Addr() net.Addr { return t.listener.Addr() }

// Close stops accepting new connections.
func (t *WebSocketTransport) Close() error { return t.listener.Close() }

// Accept blocks for the next inbound TCP connection, performs the
// WebSocket upgrade, and wraps it as a Connection. ctx cancellation does
// not interrupt an in-flight Accept() call (net.Listener has no native
// context support); callers relying on shutdown should close the listener
// via Close() to unblock it.
func (t *WebSocketTransport) Accept(ctx context.Context) (Connection, error) {
	conn, err := t.listener.Accept()
	if err != nil {
		return nil, &Error{Kind: "accept", Err: err}
	}

	if err := conn.SetDeadline(time.Now().Add(10 * time.Second)); err != nil {
		log.Debug().Err(err).Msg("set upgrade deadline")
	}

	if _, err := ws.Upgrade(conn); err != nil {
		conn.Close()
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, &Error{Kind: "upgrade", Err: ErrTimeout}
		}
		return nil, &Error{Kind: "upgrade", Err: err}
	}
	_ = conn.SetDeadline(time.Time{})

	maxSize := t.config.MaxMessageSize
	if maxSize <= 0 {
		maxSize = 64 * 1024
	}

	id := fmt.Sprintf("raw_%d", t.nextID.Add(1))
	wc := &wsConnection{
		id:       id,
		conn:     conn,
		reader:   wsutil.NewReader(conn, ws.StateServerSide),
		maxSize:  maxSize,
	}
	wc.open.Store(true)
	return wc, nil
}

// wsConnection implements Connection over a raw TCP socket upgraded to
// WebSocket, decoding Pulse frames from the stream of WebSocket binary
// messages it receives.
type wsConnection struct {
	id   string
	conn net.Conn

	reader  *wsutil.Reader
	readBuf []byte
	maxSize int

	writeMu sync.Mutex
	open    atomic.Bool
}

func (c *wsConnection) ID() string { return c.id }

func (c *wsConnection) RemoteAddr() (string, bool) {
	addr := c.conn.RemoteAddr()
	if addr == nil {
		return "", false
	}
	return addr.String(), true
}

func (c *wsConnection) IsOpen() bool { return c.open.Load() }

// Recv decodes the next Pulse frame, pulling additional WebSocket messages
// off the wire as needed until a full frame is available. Non-data
// WebSocket control frames (ping/pong/close) are handled transparently and
// never surfaced as a Frame.
func (c *wsConnection) Recv(ctx context.Context) (*protocol.Frame, error) {
	for {
		frame, err := protocol.DecodeFrom(&c.readBuf)
		if err != nil {
			return nil, &Error{Kind: "protocol", Err: err}
		}
		if frame != nil {
			return frame, nil
		}

		head, err := c.reader.NextFrame()
		if err != nil {
			c.open.Store(false)
			if err == io.EOF {
				return nil, nil
			}
			return nil, &Error{Kind: "recv", Err: err}
		}

		switch head.OpCode {
		case ws.OpClose:
			c.open.Store(false)
			_ = wsutil.WriteServerMessage(c.conn, ws.OpClose, nil)
			return nil, nil
		case ws.OpPing:
			if err := wsutil.WriteServerMessage(c.conn, ws.OpPong, nil); err != nil {
				c.open.Store(false)
				return nil, &Error{Kind: "send", Err: err}
			}
		case ws.OpText, ws.OpBinary:
			if int(head.Length) > c.maxSize {
				c.open.Store(false)
				return nil, &Error{Kind: "message too large", Err: nil}
			}
			payload := make([]byte, head.Length)
			if _, err := io.ReadFull(c.reader, payload); err != nil {
				c.open.Store(false)
				return nil, &Error{Kind: "recv", Err: err}
			}
			c.readBuf = append(c.readBuf, payload...)
		default:
			if _, err := io.CopyN(io.Discard, c.reader, int64(head.Length)); err != nil {
				c.open.Store(false)
				return nil, &Error{Kind: "recv", Err: err}
			}
		}
	}
}

func (c *wsConnection) Send(ctx context.Context, frame protocol.Frame) error {
	data, err := protocol.Encode(frame)
	if err != nil {
		return &Error{Kind: "encode", Err: err}
	}
	return c.SendRaw(ctx, data)
}

func (c *wsConnection) SendRaw(ctx context.Context, data []byte) error {
	if !c.IsOpen() {
		return &Error{Kind: "send", Err: ErrConnectionClosed}
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := wsutil.WriteServerMessage(c.conn, ws.OpBinary, data); err != nil {
		c.open.Store(false)
		return &Error{Kind: "send", Err: err}
	}
	return nil
}

func (c *wsConnection) Close() error {
	c.writeMu.Lock()
	_ = wsutil.WriteServerMessage(c.conn, ws.OpClose, nil)
	c.writeMu.Unlock()
	c.open.Store(false)
	return c.conn.Close()
}
