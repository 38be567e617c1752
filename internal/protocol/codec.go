package protocol

import (
	"encoding/binary"

	"github.com/vmihailenco/msgpack/v5"
)

// frameWire is the MessagePack map shape actually placed on the wire: one
// map tagged by a "type" string key with the variant's fields flattened
// alongside it, mirroring the original implementation's internally-tagged
// enum (`#[serde(tag = "type")]`). Apart from "payload" (see below),
// unused fields are omitted rather than sent as msgpack nil so payloads
// stay compact.
type frameWire struct {
	Type string `msgpack:"type"`

	ID      *uint64 `msgpack:"id,omitempty"`
	Channel string  `msgpack:"channel,omitempty"`
	Event   *string `msgpack:"event,omitempty"`

	// Payload carries Publish's message body. Unlike every other field
	// here it is never omitted: the original codec serializes it with
	// serde_bytes and no skip_serializing_if, so "payload" is always on
	// the wire for a publish frame, even when the body is empty. Frames of
	// every other type carry the key too, as msgpack nil.
	Payload []byte `msgpack:"payload"`

	Action *uint8      `msgpack:"action,omitempty"`
	Data   interface{} `msgpack:"data,omitempty"`

	Code    *uint16 `msgpack:"code,omitempty"`
	Message string  `msgpack:"message,omitempty"`

	Timestamp *uint64 `msgpack:"timestamp,omitempty"`

	Version *uint8  `msgpack:"version,omitempty"`
	Token   *string `msgpack:"token,omitempty"`

	ConnectionID string  `msgpack:"connection_id,omitempty"`
	Heartbeat    *uint32 `msgpack:"heartbeat,omitempty"`
}

func u8ptr(v uint8) *uint8   { return &v }
func u16ptr(v uint16) *uint16 { return &v }
func u32ptr(v uint32) *uint32 { return &v }

func toWire(f Frame) (frameWire, error) {
	w := frameWire{Type: f.Type.String()}
	switch f.Type {
	case FrameTypeSubscribe, FrameTypeUnsubscribe:
		w.ID = u64ptr(f.ID)
		w.Channel = f.Channel
	case FrameTypePublish:
		w.ID = f.PublishID
		w.Channel = f.Channel
		w.Event = f.Event
		w.Payload = f.Payload
		if w.Payload == nil {
			w.Payload = []byte{}
		}
	case FrameTypePresence:
		w.ID = u64ptr(f.ID)
		w.Channel = f.Channel
		w.Action = u8ptr(uint8(f.PresenceAction))
		w.Data = f.PresenceData
	case FrameTypeAck:
		w.ID = u64ptr(f.AckID)
	case FrameTypeError:
		w.ID = u64ptr(f.ErrorID)
		w.Code = u16ptr(f.ErrorCode)
		w.Message = f.ErrorMessage
	case FrameTypePing, FrameTypePong:
		w.Timestamp = f.Timestamp
	case FrameTypeConnect:
		w.Version = u8ptr(f.Version)
		w.Token = f.Token
	case FrameTypeConnected:
		w.ConnectionID = f.ConnectionID
		w.Version = u8ptr(f.Version)
		w.Heartbeat = u32ptr(f.Heartbeat)
	default:
		return frameWire{}, &ErrInvalid{Reason: "unknown frame type"}
	}
	return w, nil
}

func fromWire(w frameWire) (Frame, error) {
	switch w.Type {
	case "subscribe":
		if w.ID == nil {
			return Frame{}, &ErrInvalid{Reason: "subscribe frame missing id"}
		}
		return Subscribe(*w.ID, w.Channel), nil
	case "unsubscribe":
		if w.ID == nil {
			return Frame{}, &ErrInvalid{Reason: "unsubscribe frame missing id"}
		}
		return Unsubscribe(*w.ID, w.Channel), nil
	case "publish":
		if w.Payload == nil {
			return Frame{}, &ErrInvalid{Reason: "publish frame missing payload"}
		}
		return Frame{Type: FrameTypePublish, PublishID: w.ID, Channel: w.Channel, Event: w.Event, Payload: w.Payload}, nil
	case "presence":
		if w.ID == nil || w.Action == nil {
			return Frame{}, &ErrInvalid{Reason: "presence frame missing id or action"}
		}
		action := PresenceAction(*w.Action)
		if !action.Valid() {
			return Frame{}, &ErrInvalid{Reason: "invalid presence action"}
		}
		return Frame{Type: FrameTypePresence, ID: *w.ID, Channel: w.Channel, PresenceAction: action, PresenceData: w.Data}, nil
	case "ack":
		if w.ID == nil {
			return Frame{}, &ErrInvalid{Reason: "ack frame missing id"}
		}
		return Ack(*w.ID), nil
	case "error":
		if w.ID == nil || w.Code == nil {
			return Frame{}, &ErrInvalid{Reason: "error frame missing id or code"}
		}
		return ErrorFrame(*w.ID, *w.Code, w.Message), nil
	case "ping":
		return Frame{Type: FrameTypePing, Timestamp: w.Timestamp}, nil
	case "pong":
		return Frame{Type: FrameTypePong, Timestamp: w.Timestamp}, nil
	case "connect":
		version := uint8(0)
		if w.Version != nil {
			version = *w.Version
		}
		return Connect(version, w.Token), nil
	case "connected":
		version := uint8(0)
		if w.Version != nil {
			version = *w.Version
		}
		heartbeat := uint32(0)
		if w.Heartbeat != nil {
			heartbeat = *w.Heartbeat
		}
		return Connected(w.ConnectionID, version, heartbeat), nil
	default:
		return Frame{}, &ErrInvalid{Reason: "unrecognized frame type: " + w.Type}
	}
}

// Encode serializes a frame to its length-prefixed, MessagePack-encoded
// wire form: a 4-byte big-endian length prefix followed by the body.
func Encode(f Frame) ([]byte, error) {
	wire, err := toWire(f)
	if err != nil {
		return nil, err
	}
	body, err := msgpack.Marshal(&wire)
	if err != nil {
		return nil, &ErrEncode{Cause: err}
	}
	if len(body) > MaxFrameSize {
		return nil, &ErrFrameTooLarge{Size: len(body)}
	}
	out := make([]byte, LengthPrefixSize+len(body))
	binary.BigEndian.PutUint32(out, uint32(len(body)))
	copy(out[LengthPrefixSize:], body)
	return out, nil
}

// EncodeInto appends a frame's length-prefixed wire form onto buf, returning
// the extended slice.
func EncodeInto(f Frame, buf []byte) ([]byte, error) {
	encoded, err := Encode(f)
	if err != nil {
		return buf, err
	}
	return append(buf, encoded...), nil
}

// Decode decodes exactly one length-prefixed frame from data. Unlike
// DecodeFrom, an incomplete buffer is reported as an error since callers of
// Decode are asserting the buffer holds a whole frame.
func Decode(data []byte) (Frame, error) {
	if len(data) < LengthPrefixSize {
		return Frame{}, &ErrIncomplete{Need: LengthPrefixSize - len(data)}
	}
	length := int(binary.BigEndian.Uint32(data))
	if length > MaxFrameSize {
		return Frame{}, &ErrFrameTooLarge{Size: length}
	}
	total := LengthPrefixSize + length
	if len(data) < total {
		return Frame{}, &ErrIncomplete{Need: total - len(data)}
	}
	var wire frameWire
	if err := msgpack.Unmarshal(data[LengthPrefixSize:total], &wire); err != nil {
		return Frame{}, &ErrDecode{Cause: err}
	}
	return fromWire(wire)
}

// DecodeFrom attempts to decode one frame from the front of buf, which is
// mutated in place: on success, the consumed bytes are removed from the
// front of buf (by reslicing buf's backing array) and the frame is
// returned; on "not enough bytes yet" buf is left untouched and (Frame{},
// nil) is returned — the caller tells "no frame" from "protocol error" by
// checking err, not by comparing the zero Frame. Oversize claims and
// malformed bodies are reported as errors.
func DecodeFrom(buf *[]byte) (*Frame, error) {
	data := *buf
	if len(data) < LengthPrefixSize {
		return nil, nil
	}
	length := int(binary.BigEndian.Uint32(data))
	if length > MaxFrameSize {
		return nil, &ErrFrameTooLarge{Size: length}
	}
	total := LengthPrefixSize + length
	if len(data) < total {
		return nil, nil
	}

	var wire frameWire
	if err := msgpack.Unmarshal(data[LengthPrefixSize:total], &wire); err != nil {
		return nil, &ErrDecode{Cause: err}
	}
	frame, err := fromWire(wire)
	if err != nil {
		return nil, err
	}

	*buf = data[total:]
	return &frame, nil
}
