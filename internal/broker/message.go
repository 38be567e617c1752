// Package broker implements Pulse's in-process pub/sub core: messages,
// channels, presence tracking, and the router that ties them together.
package broker

import (
	"sync/atomic"
	"time"
)

// MessageID uniquely (with overwhelming probability) identifies a Message.
type MessageID = uint64

var idCounter uint64

// generateMessageID combines the current nanosecond timestamp with an
// atomic counter via wrapping addition, guaranteeing uniqueness even for
// messages minted within the same nanosecond.
func generateMessageID() MessageID {
	timestamp := uint64(time.Now().UnixNano())
	counter := atomic.AddUint64(&idCounter, 1)
	return timestamp + counter
}

// Message is a single unit of pub/sub traffic routed through a Channel.
// Payload is shared (never copied) across every subscriber a message fans
// out to; callers must treat it as immutable once constructed.
type Message struct {
	ID        MessageID
	Source    string
	Channel   string
	Event     string
	Payload   []byte
	Timestamp uint64
}

// NewMessage builds a Message bound for channel with the given payload.
// Source and Event are left empty; use WithSource/WithEvent to set them.
func NewMessage(channel string, payload []byte) Message {
	return Message{
		ID:        generateMessageID(),
		Channel:   channel,
		Payload:   payload,
		Timestamp: uint64(time.Now().UnixMilli()),
	}
}

// WithSource returns a copy of m with Source set.
func (m Message) WithSource(source string) Message {
	m.Source = source
	return m
}

// WithEvent returns a copy of m with Event set.
func (m Message) WithEvent(event string) Message {
	m.Event = event
	return m
}

// PayloadSize returns the payload's length in bytes.
func (m Message) PayloadSize() int {
	return len(m.Payload)
}
