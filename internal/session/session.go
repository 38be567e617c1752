// Package session drives a single connection's lifecycle: minting an ID
// and sending Connected on open, frame dispatch against the router, and
// teardown. It is the transport-agnostic glue between internal/transport
// and internal/broker.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/tenvisio/pulse/internal/auth"
	"github.com/tenvisio/pulse/internal/broker"
	"github.com/tenvisio/pulse/internal/metrics"
	"github.com/tenvisio/pulse/internal/protocol"
	"github.com/tenvisio/pulse/internal/transport"
)

// State is a session's position in its OPEN -> CLOSING -> CLOSED lifecycle.
// OPEN is the initial state: a session is addressable the instant it is
// created, not after some later client handshake completes.
type State int32

const (
	StateOpen State = iota
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Wire error codes sent in Error frames. Subscribe failures of any kind
// collapse to the same code; Unsubscribe's only failure mode
// (ErrNotSubscribed in practice) gets its own, matching the original
// handler's mapping.
const (
	ErrCodeSubscribeFailed    uint16 = 1002
	ErrCodeUnsubscribeFailed  uint16 = 1008
	ErrCodeUnknownFrame       uint16 = 1099
	ErrCodePublishRateLimited uint16 = 1010
)

// EventSink receives presence and lifecycle events as they happen, for an
// optional out-of-band observer (see internal/relay). Implementations
// must not block the session loop; a relay should log and drop rather
// than apply backpressure.
type EventSink interface {
	PresenceEvent(channel, action, connectionID string, data interface{})
	LifecycleEvent(event, connectionID string)
}

// Config governs a session's open handshake, heartbeat, and
// publish-admission behavior.
type Config struct {
	ProtocolVersion     uint8
	HeartbeatIntervalMS uint32

	// PublishRatePerSec and PublishBurst bound how many Publish frames a
	// single connection may send, generalizing the teacher's
	// connection-admission rate limiter (golang.org/x/time/rate token
	// bucket) to per-connection publish admission instead of per-IP
	// connection admission.
	PublishRatePerSec float64
	PublishBurst      int
}

// DefaultConfig mirrors the original server's handshake defaults.
func DefaultConfig() Config {
	return Config{
		ProtocolVersion:     1,
		HeartbeatIntervalMS: 30_000,
		PublishRatePerSec:   500,
		PublishBurst:        1000,
	}
}

// Session owns one connection's lifecycle from open through teardown.
type Session struct {
	conn      transport.Connection
	router    *broker.Router
	validator auth.Validator
	metrics   *metrics.Registry
	sink      EventSink
	config    Config

	id        string
	state     atomic.Int32
	claims    auth.Claims
	connGuard *metrics.ConnectionGuard

	outbound chan protocol.Frame

	publishLimiter *rate.Limiter

	forwardersMu sync.Mutex
	forwarders   map[string]context.CancelFunc
}

// New builds a Session. metricsRegistry and sink may both be nil, in
// which case instrumentation/relay publishing is skipped.
func New(conn transport.Connection, router *broker.Router, validator auth.Validator, metricsRegistry *metrics.Registry, sink EventSink, config Config) *Session {
	return &Session{
		conn:           conn,
		router:         router,
		validator:      validator,
		metrics:        metricsRegistry,
		sink:           sink,
		config:         config,
		outbound:       make(chan protocol.Frame, 64),
		publishLimiter: rate.NewLimiter(rate.Limit(config.PublishRatePerSec), config.PublishBurst),
		forwarders:     make(map[string]context.CancelFunc),
	}
}

// ID returns the session's connection identifier, assigned on open and
// stable for the session's lifetime.
func (s *Session) ID() string { return s.id }

// State returns the session's current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Run drives the session to completion: open, then serve until the
// connection closes, errors, or ctx is cancelled. Always tears down
// router subscriptions and closes the underlying connection before
// returning.
func (s *Session) Run(ctx context.Context) error {
	defer s.teardown()

	if err := s.open(ctx); err != nil {
		return err
	}
	return s.serve(ctx)
}

// open mints the connection's ID and replies with Connected immediately,
// without waiting for anything from the client. The session's ID is
// authoritative here: the transport's own Connection.ID() is never used
// as the router or presence key, since a connection only becomes
// addressable to the rest of the system
// once it has a session. A client's Connect frame, if one ever arrives, is
// handled later as an optional, informational frame (see handleFrame) —
// it is not part of reaching OPEN.
func (s *Session) open(ctx context.Context) error {
	s.id = fmt.Sprintf("conn_%d", time.Now().UnixNano())
	s.state.Store(int32(StateOpen))
	if s.metrics != nil {
		s.connGuard = metrics.NewConnectionGuard(s.metrics)
	}

	log.Info().Str("connection", s.id).Msg("session open")
	if s.sink != nil {
		s.sink.LifecycleEvent("connected", s.id)
	}

	return s.conn.Send(ctx, protocol.Connected(s.id, s.config.ProtocolVersion, s.config.HeartbeatIntervalMS))
}

// serve runs the session's main loop once OPEN: a reader goroutine decodes
// inbound frames while this loop biases outbound delivery over inbound
// dispatch, so a backlog of fan-out traffic to a slow client never starves
// behind new inbound work.
func (s *Session) serve(ctx context.Context) error {
	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()

	inbound := make(chan protocol.Frame)
	inboundErr := make(chan error, 1)
	go s.readLoop(readCtx, inbound, inboundErr)

	heartbeat := time.NewTicker(time.Duration(s.config.HeartbeatIntervalMS) * time.Millisecond)
	defer heartbeat.Stop()

	for {
		select {
		case frame := <-s.outbound:
			if err := s.send(ctx, frame); err != nil {
				return err
			}
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame := <-s.outbound:
			if err := s.send(ctx, frame); err != nil {
				return err
			}
		case err := <-inboundErr:
			return err
		case frame, ok := <-inbound:
			if !ok {
				return nil
			}
			if err := s.handleFrame(ctx, frame); err != nil {
				return err
			}
		case <-heartbeat.C:
			if err := s.send(ctx, protocol.PingWithTimestamp(uint64(time.Now().UnixMilli()))); err != nil {
				return err
			}
		}
	}
}

func (s *Session) readLoop(ctx context.Context, out chan<- protocol.Frame, errs chan<- error) {
	for {
		frame, err := s.conn.Recv(ctx)
		if err != nil {
			errs <- err
			return
		}
		if frame == nil {
			close(out)
			return
		}
		select {
		case out <- *frame:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) send(ctx context.Context, frame protocol.Frame) error {
	if err := s.conn.Send(ctx, frame); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordMessage(len(frame.Payload), "outbound")
	}
	return nil
}

// handleFrame dispatches a single inbound frame against the router.
func (s *Session) handleFrame(ctx context.Context, frame protocol.Frame) error {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordLatency(time.Since(start).Seconds())
		}
	}()

	if s.metrics != nil {
		s.metrics.RecordMessage(len(frame.Payload), "inbound")
	}

	switch frame.Type {
	case protocol.FrameTypeSubscribe:
		return s.handleSubscribe(ctx, frame)
	case protocol.FrameTypeUnsubscribe:
		return s.handleUnsubscribe(ctx, frame)
	case protocol.FrameTypePublish:
		return s.handlePublish(ctx, frame)
	case protocol.FrameTypePresence:
		return s.handlePresence(ctx, frame)
	case protocol.FrameTypePing:
		return s.send(ctx, protocol.Pong(frame.Timestamp))
	case protocol.FrameTypePong:
		return nil
	case protocol.FrameTypeConnect:
		return s.handleConnect(frame)
	default:
		if s.metrics != nil {
			s.metrics.RecordError("unknown_frame")
		}
		return s.send(ctx, protocol.ErrorFrame(0, ErrCodeUnknownFrame, fmt.Sprintf("unsupported frame type %s", frame.Type)))
	}
}

// handleConnect treats Connect as the optional, informational frame it is:
// the session is already OPEN and Connected has already been sent by the
// time any Connect (first frame or otherwise) is seen. A carried token is
// validated best-effort and recorded as claims; validation failure is
// logged, not a reason to drop the connection, since token enforcement is
// left to an auth layer outside the core.
func (s *Session) handleConnect(frame protocol.Frame) error {
	if frame.Token == nil {
		return nil
	}
	claims, err := s.validator.Validate(*frame.Token)
	if err != nil {
		log.Warn().Err(err).Str("connection", s.id).Msg("connect token validation failed")
		return nil
	}
	s.claims = claims
	return nil
}

func (s *Session) handleSubscribe(ctx context.Context, frame protocol.Frame) error {
	receiver, rerr := s.router.Subscribe(s.id, frame.Channel)
	if rerr != nil {
		if s.metrics != nil {
			s.metrics.RecordError("subscribe_failed")
		}
		return s.send(ctx, protocol.ErrorFrame(frame.ID, ErrCodeSubscribeFailed, rerr.Error()))
	}
	s.startForwarder(frame.Channel, receiver)
	if s.metrics != nil {
		s.metrics.RecordSubscription()
		s.metrics.SetActiveChannels(s.router.Stats().ChannelCount)
	}
	return s.send(ctx, protocol.Ack(frame.ID))
}

func (s *Session) handleUnsubscribe(ctx context.Context, frame protocol.Frame) error {
	if rerr := s.router.Unsubscribe(s.id, frame.Channel); rerr != nil {
		if s.metrics != nil {
			s.metrics.RecordError("unsubscribe_failed")
		}
		return s.send(ctx, protocol.ErrorFrame(frame.ID, ErrCodeUnsubscribeFailed, rerr.Error()))
	}
	s.stopForwarder(frame.Channel)
	if s.metrics != nil {
		s.metrics.SetActiveChannels(s.router.Stats().ChannelCount)
	}
	return s.send(ctx, protocol.Ack(frame.ID))
}

func (s *Session) handlePublish(ctx context.Context, frame protocol.Frame) error {
	if !s.publishLimiter.Allow() {
		if s.metrics != nil {
			s.metrics.RecordError("publish_rate_limited")
		}
		id := uint64(0)
		if frame.PublishID != nil {
			id = *frame.PublishID
		}
		return s.send(ctx, protocol.ErrorFrame(id, ErrCodePublishRateLimited, "publish rate limit exceeded"))
	}

	msg := broker.NewMessage(frame.Channel, frame.Payload).WithSource(s.id)
	if frame.Event != nil {
		msg = msg.WithEvent(*frame.Event)
	}
	s.router.Publish(msg)
	if frame.PublishID != nil {
		return s.send(ctx, protocol.Ack(*frame.PublishID))
	}
	return nil
}

func (s *Session) handlePresence(ctx context.Context, frame protocol.Frame) error {
	switch frame.PresenceAction {
	case protocol.PresenceJoin:
		s.router.PresenceJoin(s.id, frame.Channel, frame.PresenceData)
		if s.sink != nil {
			s.sink.PresenceEvent(frame.Channel, "join", s.id, frame.PresenceData)
		}
		return nil
	case protocol.PresenceLeave:
		s.router.PresenceLeave(s.id, frame.Channel)
		if s.sink != nil {
			s.sink.PresenceEvent(frame.Channel, "leave", s.id, nil)
		}
		return nil
	case protocol.PresenceUpdate:
		s.router.PresenceUpdate(s.id, frame.Channel, frame.PresenceData)
		if s.sink != nil {
			s.sink.PresenceEvent(frame.Channel, "update", s.id, frame.PresenceData)
		}
		return nil
	case protocol.PresenceSync:
		snapshot := s.router.PresenceSnapshot(frame.Channel)
		return s.send(ctx, protocol.Frame{
			Type:           protocol.FrameTypePresence,
			Channel:        frame.Channel,
			PresenceAction: protocol.PresenceSync,
			PresenceData:   snapshot,
		})
	default:
		return s.send(ctx, protocol.ErrorFrame(0, ErrCodeUnknownFrame, "unknown presence action"))
	}
}

// teardown cancels every forwarder, drops all router subscriptions (which
// also clears this connection's presence in every channel it belonged
// to), and closes the underlying connection.
func (s *Session) teardown() {
	s.state.Store(int32(StateClosing))
	s.stopAllForwarders()
	if s.id != "" {
		s.router.UnsubscribeAll(s.id)
		if s.metrics != nil {
			s.metrics.SetActiveChannels(s.router.Stats().ChannelCount)
		}
	}
	if err := s.conn.Close(); err != nil {
		log.Debug().Err(err).Str("connection", s.id).Msg("closing connection")
	}
	if s.connGuard != nil {
		s.connGuard.Release()
	}
	s.state.Store(int32(StateClosed))
	if s.sink != nil && s.id != "" {
		s.sink.LifecycleEvent("disconnected", s.id)
	}
	log.Info().Str("connection", s.id).Msg("session closed")
}
