// Package transport defines Pulse's transport-agnostic connection
// boundary and its reference WebSocket binding, plus a QUIC stub.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/tenvisio/pulse/internal/protocol"
)

// Error wraps transport-level failures distinct from protocol decode
// errors, mirroring the original's TransportError taxonomy.
type Error struct {
	Kind string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind
}
func (e *Error) Unwrap() error { return e.Err }

// ErrConnectionClosed reports a connection that is no longer usable.
var ErrConnectionClosed = errors.New("connection closed")

// ErrTimeout reports an operation that exceeded its deadline.
var ErrTimeout = errors.New("connection timed out")

// Connection handles the bidirectional flow of frames between the server
// and a single client, independent of the underlying wire transport.
type Connection interface {
	// ID returns the connection's unique identifier.
	ID() string

	// Recv returns the next frame, or (nil, nil) on a clean close.
	Recv(ctx context.Context) (*protocol.Frame, error)

	// Send encodes and writes a frame.
	Send(ctx context.Context, frame protocol.Frame) error

	// SendRaw writes pre-encoded frame bytes, skipping re-encoding.
	SendRaw(ctx context.Context, data []byte) error

	// Close closes the connection gracefully.
	Close() error

	// RemoteAddr returns the peer's address, if known.
	RemoteAddr() (string, bool)

	// IsOpen reports whether the connection is still usable.
	IsOpen() bool
}

// Transport accepts new Connections over some concrete wire protocol.
type Transport interface {
	// Accept blocks until a new connection is available or an error
	// occurs.
	Accept(ctx context.Context) (Connection, error)

	// Name identifies the transport (e.g. "websocket", "quic").
	Name() string

	// IsHealthy reports whether the transport can currently accept new
	// connections.
	IsHealthy() bool
}
