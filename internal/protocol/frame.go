// Package protocol defines the Pulse wire frame model and its MessagePack
// length-prefixed codec.
package protocol

// FrameType identifies the kind of a Frame. It is never itself serialized on
// the wire — the MessagePack body is tagged by the "type" string field — but
// it is useful for dispatch and logging inside the session.
type FrameType uint8

const (
	FrameTypeSubscribe FrameType = 0x01
	FrameTypeUnsubscribe FrameType = 0x02
	FrameTypePublish FrameType = 0x03
	FrameTypePresence FrameType = 0x04
	FrameTypeAck FrameType = 0x05
	FrameTypeError FrameType = 0x06
	FrameTypePing FrameType = 0x07
	FrameTypePong FrameType = 0x08
	FrameTypeConnect FrameType = 0x09
	FrameTypeConnected FrameType = 0x0A
)

func (t FrameType) String() string {
	switch t {
	case FrameTypeSubscribe:
		return "subscribe"
	case FrameTypeUnsubscribe:
		return "unsubscribe"
	case FrameTypePublish:
		return "publish"
	case FrameTypePresence:
		return "presence"
	case FrameTypeAck:
		return "ack"
	case FrameTypeError:
		return "error"
	case FrameTypePing:
		return "ping"
	case FrameTypePong:
		return "pong"
	case FrameTypeConnect:
		return "connect"
	case FrameTypeConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// PresenceAction identifies the kind of presence update carried by a
// Presence frame.
type PresenceAction uint8

const (
	PresenceJoin PresenceAction = iota
	PresenceLeave
	PresenceUpdate
	PresenceSync
)

func (a PresenceAction) Valid() bool {
	return a <= PresenceSync
}

// Frame is the tagged union of every message exchanged between a Pulse
// client and server. Exactly one of the typed fields is meaningful per
// Type; the rest are left at their zero value. MessagePack encodes this as
// a single map keyed by field name with "type" selecting the variant, so
// field presence (not a Go discriminated union) is what travels on the
// wire — see codec.go's frameWire shadow type.
type Frame struct {
	Type FrameType

	// Subscribe / Unsubscribe
	ID      uint64
	Channel string

	// Publish
	PublishID *uint64
	Event     *string
	Payload   []byte

	// Presence
	PresenceAction PresenceAction
	PresenceData   interface{}

	// Ack
	AckID uint64

	// Error
	ErrorID      uint64
	ErrorCode    uint16
	ErrorMessage string

	// Ping / Pong
	Timestamp *uint64

	// Connect
	Version uint8
	Token   *string

	// Connected
	ConnectionID string
	Heartbeat    uint32
}

func u64ptr(v uint64) *uint64 { return &v }
func strptr(v string) *string { return &v }

// Subscribe builds a Subscribe frame.
func Subscribe(id uint64, channel string) Frame {
	return Frame{Type: FrameTypeSubscribe, ID: id, Channel: channel}
}

// Unsubscribe builds an Unsubscribe frame.
func Unsubscribe(id uint64, channel string) Frame {
	return Frame{Type: FrameTypeUnsubscribe, ID: id, Channel: channel}
}

// Publish builds a Publish frame with no request ID and no event name.
func Publish(channel string, payload []byte) Frame {
	return Frame{Type: FrameTypePublish, Channel: channel, Payload: payload}
}

// PublishWithAck builds a Publish frame that requests an Ack.
func PublishWithAck(id uint64, channel string, payload []byte) Frame {
	return Frame{Type: FrameTypePublish, PublishID: u64ptr(id), Channel: channel, Payload: payload}
}

// Ack builds an Ack frame.
func Ack(id uint64) Frame {
	return Frame{Type: FrameTypeAck, AckID: id}
}

// ErrorFrame builds an Error frame.
func ErrorFrame(id uint64, code uint16, message string) Frame {
	return Frame{Type: FrameTypeError, ErrorID: id, ErrorCode: code, ErrorMessage: message}
}

// Ping builds a Ping frame with no timestamp.
func Ping() Frame {
	return Frame{Type: FrameTypePing}
}

// PingWithTimestamp builds a Ping frame carrying a timestamp.
func PingWithTimestamp(ts uint64) Frame {
	return Frame{Type: FrameTypePing, Timestamp: u64ptr(ts)}
}

// Pong builds a Pong frame, echoing the given timestamp (if any).
func Pong(ts *uint64) Frame {
	return Frame{Type: FrameTypePong, Timestamp: ts}
}

// Connect builds a Connect frame.
func Connect(version uint8, token *string) Frame {
	return Frame{Type: FrameTypeConnect, Version: version, Token: token}
}

// Connected builds a Connected frame.
func Connected(connectionID string, version uint8, heartbeat uint32) Frame {
	return Frame{Type: FrameTypeConnected, ConnectionID: connectionID, Version: version, Heartbeat: heartbeat}
}

// FrameTypeOf returns the frame's type tag.
func FrameTypeOf(f Frame) FrameType {
	return f.Type
}
