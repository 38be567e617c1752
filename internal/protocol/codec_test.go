package protocol

import (
	"bytes"
	"testing"
)

func strp(s string) *string { return &s }

func TestEncodeDecodeRoundtrip(t *testing.T) {
	frames := []Frame{
		Subscribe(1, "test-channel"),
		Publish("chat:room", []byte("Hello, world!")),
		Ack(42),
		ErrorFrame(1, 1001, "Invalid frame"),
		Ping(),
		Connect(1, strp("token123")),
		Connected("conn-123", 1, 30000),
	}

	for _, frame := range frames {
		encoded, err := Encode(frame)
		if err != nil {
			t.Fatalf("encode(%+v): %v", frame, err)
		}
		decoded, err := Decode(encoded)
		if err != nil {
			t.Fatalf("decode(%+v): %v", frame, err)
		}
		assertFrameEqual(t, frame, decoded)
	}
}

func assertFrameEqual(t *testing.T, want, got Frame) {
	t.Helper()
	if want.Type != got.Type {
		t.Fatalf("type mismatch: want %v got %v", want.Type, got.Type)
	}
	if want.Channel != got.Channel || !bytes.Equal(want.Payload, got.Payload) {
		t.Fatalf("frame mismatch: want %+v got %+v", want, got)
	}
}

func TestDecodeIncomplete(t *testing.T) {
	frame := Subscribe(1, "test")
	encoded, err := Encode(frame)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	partial := encoded[:5]
	_, err = Decode(partial)
	if _, ok := err.(*ErrIncomplete); !ok {
		t.Fatalf("expected ErrIncomplete, got %v (%T)", err, err)
	}
}

func TestFrameTooLarge(t *testing.T) {
	largePayload := make([]byte, MaxFrameSize+1)
	frame := Publish("test", largePayload)

	_, err := Encode(frame)
	if _, ok := err.(*ErrFrameTooLarge); !ok {
		t.Fatalf("expected ErrFrameTooLarge, got %v (%T)", err, err)
	}
}

func TestStreamingDecode(t *testing.T) {
	frame1 := Subscribe(1, "test1")
	frame2 := Subscribe(2, "test2")

	var buf []byte
	buf, err := EncodeInto(frame1, buf)
	if err != nil {
		t.Fatalf("encode frame1: %v", err)
	}
	buf, err = EncodeInto(frame2, buf)
	if err != nil {
		t.Fatalf("encode frame2: %v", err)
	}

	decoded1, err := DecodeFrom(&buf)
	if err != nil || decoded1 == nil {
		t.Fatalf("decode frame1: frame=%v err=%v", decoded1, err)
	}
	decoded2, err := DecodeFrom(&buf)
	if err != nil || decoded2 == nil {
		t.Fatalf("decode frame2: frame=%v err=%v", decoded2, err)
	}

	assertFrameEqual(t, frame1, *decoded1)
	assertFrameEqual(t, frame2, *decoded2)

	if len(buf) != 0 {
		t.Fatalf("expected buffer drained, got %d bytes left", len(buf))
	}
}

func TestDecodeFromNeedsMoreBytes(t *testing.T) {
	frame := Subscribe(1, "test")
	encoded, err := Encode(frame)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	buf := append([]byte{}, encoded[:len(encoded)-1]...)
	orig := append([]byte{}, buf...)

	decoded, err := DecodeFrom(&buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded != nil {
		t.Fatalf("expected nil frame for incomplete buffer, got %+v", decoded)
	}
	if !bytes.Equal(buf, orig) {
		t.Fatalf("expected buffer untouched on incomplete decode")
	}
}
