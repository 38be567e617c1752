// Package relay bridges Pulse's presence and connection lifecycle events
// out to NATS, for deployments that want another service to observe join/
// leave/connect/disconnect activity without talking to Pulse's own wire
// protocol. It is strictly an egress side-channel: it never feeds
// messages back into the router, so it plays no part in core fan-out or
// cross-process replication.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/tenvisio/pulse/internal/metrics"
)

// Config configures the NATS connection, grounded on the teacher's
// pkg/nats.Config field set.
type Config struct {
	URL             string
	SubjectPrefix   string
	MaxReconnects   int
	ReconnectWait   time.Duration
	ReconnectJitter time.Duration
}

// DefaultConfig mirrors a conservative reconnect policy suitable for a
// best-effort side-channel.
func DefaultConfig() Config {
	return Config{
		URL:             nats.DefaultURL,
		SubjectPrefix:   "pulse",
		MaxReconnects:   -1,
		ReconnectWait:   2 * time.Second,
		ReconnectJitter: 500 * time.Millisecond,
	}
}

// Subjects builds the NATS subject names Bridge publishes to.
type Subjects struct{ prefix string }

func (s Subjects) Presence(channel string) string {
	return fmt.Sprintf("%s.presence.%s", s.prefix, channel)
}

func (s Subjects) Lifecycle() string {
	return fmt.Sprintf("%s.lifecycle", s.prefix)
}

// PresenceEvent is the payload published on a channel's presence subject.
type PresenceEvent struct {
	Channel      string      `json:"channel"`
	Action       string      `json:"action"`
	ConnectionID string      `json:"connection_id"`
	Data         interface{} `json:"data,omitempty"`
	At           int64       `json:"at"`
}

// LifecycleEvent is the payload published on the lifecycle subject.
type LifecycleEvent struct {
	Event        string `json:"event"`
	ConnectionID string `json:"connection_id"`
	At           int64  `json:"at"`
}

// Bridge publishes presence and lifecycle events to NATS. It implements
// session.EventSink.
type Bridge struct {
	conn     *nats.Conn
	subjects Subjects
	metrics  *metrics.Registry
}

// NewBridge connects to NATS and returns a ready Bridge. metricsRegistry
// may be nil.
func NewBridge(config Config, metricsRegistry *metrics.Registry) (*Bridge, error) {
	b := &Bridge{
		subjects: Subjects{prefix: config.SubjectPrefix},
		metrics:  metricsRegistry,
	}

	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.ReconnectJitter(config.ReconnectJitter, config.ReconnectJitter),
		nats.ConnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("relay connected to nats")
		}),
		nats.DisconnectErrHandler(func(c *nats.Conn, err error) {
			log.Warn().Err(err).Msg("relay disconnected from nats")
			if b.metrics != nil {
				b.metrics.RecordError("nats_disconnect")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("relay reconnected to nats")
		}),
		nats.ErrorHandler(func(c *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("nats error")
			if b.metrics != nil {
				b.metrics.RecordError("nats_error")
			}
		}),
	}

	conn, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	b.conn = conn
	return b, nil
}

// PresenceEvent publishes a presence change for channel. Failures are
// logged, not returned: a dropped relay event never affects a live
// session.
func (b *Bridge) PresenceEvent(channel, action, connectionID string, data interface{}) {
	evt := PresenceEvent{Channel: channel, Action: action, ConnectionID: connectionID, Data: data, At: time.Now().UnixMilli()}
	b.publish(b.subjects.Presence(channel), evt)
}

// LifecycleEvent publishes a connection lifecycle transition ("connected"
// or "disconnected").
func (b *Bridge) LifecycleEvent(event, connectionID string) {
	evt := LifecycleEvent{Event: event, ConnectionID: connectionID, At: time.Now().UnixMilli()}
	b.publish(b.subjects.Lifecycle(), evt)
}

func (b *Bridge) publish(subject string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("marshaling relay event")
		return
	}
	if err := b.conn.Publish(subject, data); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("publishing relay event")
		if b.metrics != nil {
			b.metrics.RecordError("nats_publish")
		}
	}
}

// IsConnected reports the underlying NATS connection's health.
func (b *Bridge) IsConnected() bool { return b.conn != nil && b.conn.IsConnected() }

// WaitForConnection blocks until the NATS connection is established or
// ctx is cancelled.
func (b *Bridge) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if b.IsConnected() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close closes the NATS connection without draining it first.
func (b *Bridge) Close() error {
	if b.conn != nil {
		b.conn.Close()
	}
	return nil
}
