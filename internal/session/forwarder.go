package session

import (
	"context"

	"github.com/tenvisio/pulse/internal/broker"
	"github.com/tenvisio/pulse/internal/protocol"
)

// startForwarder launches a goroutine that drains receiver (a channel's
// per-subscriber queue) and converts each Message into an outbound Publish
// frame, merged into the session's single outbound channel alongside
// Acks, Pongs, and Error replies. A prior forwarder for the same channel
// name, if any, is cancelled first — Subscribe never hands out two live
// receivers for the same (connection, channel) pair, but this guards
// against a stale entry surviving a cancel race.
func (s *Session) startForwarder(channel string, receiver <-chan *broker.Message) {
	ctx, cancel := context.WithCancel(context.Background())

	s.forwardersMu.Lock()
	if old, ok := s.forwarders[channel]; ok {
		old()
	}
	s.forwarders[channel] = cancel
	s.forwardersMu.Unlock()

	go s.forward(ctx, receiver)
}

func (s *Session) forward(ctx context.Context, receiver <-chan *broker.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-receiver:
			if !ok {
				return
			}
			frame := protocol.Frame{
				Type:    protocol.FrameTypePublish,
				Channel: msg.Channel,
				Payload: msg.Payload,
			}
			if msg.Event != "" {
				event := msg.Event
				frame.Event = &event
			}
			select {
			case s.outbound <- frame:
			case <-ctx.Done():
				return
			}
		}
	}
}

// stopForwarder cancels and removes channel's forwarder, if any.
func (s *Session) stopForwarder(channel string) {
	s.forwardersMu.Lock()
	defer s.forwardersMu.Unlock()
	if cancel, ok := s.forwarders[channel]; ok {
		cancel()
		delete(s.forwarders, channel)
	}
}

// stopAllForwarders cancels every live forwarder, used on teardown.
func (s *Session) stopAllForwarders() {
	s.forwardersMu.Lock()
	defer s.forwardersMu.Unlock()
	for channel, cancel := range s.forwarders {
		cancel()
		delete(s.forwarders, channel)
	}
}
