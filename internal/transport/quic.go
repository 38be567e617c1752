package transport

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/tenvisio/pulse/internal/protocol"
)

// errNotImplemented is returned by every QUICTransport/quicConnection
// operation. QUIC/WebTransport support is a stub, mirroring the original
// implementation's WebTransportTransport: present to keep the Transport
// boundary visibly pluggable, never functional.
var errNotImplemented = errors.New("quic transport not implemented")

// QUICConfig configures the (stub) QUIC transport.
type QUICConfig struct {
	BindAddr string
	CertPath string
	KeyPath  string
}

// QUICTransport is a non-functional placeholder for a future QUIC-based
// transport. Every operation fails; IsHealthy reports false.
type QUICTransport struct {
	config QUICConfig
}

// NewQUICTransport logs that QUIC is experimental and returns a stub
// transport; it performs no actual binding.
func NewQUICTransport(config QUICConfig) *QUICTransport {
	log.Warn().Msg("QUIC/WebTransport support is experimental and not implemented")
	return &QUICTransport{config: config}
}

func (t *QUICTransport) Accept(ctx context.Context) (Connection, error) {
	return nil, errNotImplemented
}

func (t *QUICTransport) Name() string { return "quic" }

func (t *QUICTransport) IsHealthy() bool { return false }

// quicConnection is the stub Connection a QUICTransport would hand back,
// kept only so callers that type-switch on Connection have something to
// match against.
type quicConnection struct {
	id string
}

func (c *quicConnection) ID() string { return c.id }

func (c *quicConnection) Recv(ctx context.Context) (*protocol.Frame, error) {
	return nil, errNotImplemented
}

func (c *quicConnection) Send(ctx context.Context, frame protocol.Frame) error {
	return errNotImplemented
}

func (c *quicConnection) SendRaw(ctx context.Context, data []byte) error {
	return errNotImplemented
}

func (c *quicConnection) Close() error { return nil }

func (c *quicConnection) RemoteAddr() (string, bool) { return "", false }

func (c *quicConnection) IsOpen() bool { return false }
