package broker

import "testing"

func TestMessageCreation(t *testing.T) {
	msg := NewMessage("test-channel", []byte("hello"))
	if msg.Channel != "test-channel" {
		t.Fatalf("unexpected channel %q", msg.Channel)
	}
	if string(msg.Payload) != "hello" {
		t.Fatalf("unexpected payload %q", msg.Payload)
	}
	if msg.Source != "" {
		t.Fatalf("expected no source")
	}
}

func TestMessageWithSource(t *testing.T) {
	msg := NewMessage("test", []byte("data")).WithSource("conn-123").WithEvent("user:message")

	if msg.Source != "conn-123" {
		t.Fatalf("unexpected source %q", msg.Source)
	}
	if msg.Event != "user:message" {
		t.Fatalf("unexpected event %q", msg.Event)
	}
}

func TestUniqueMessageIDs(t *testing.T) {
	id1 := generateMessageID()
	id2 := generateMessageID()
	if id1 == id2 {
		t.Fatalf("expected distinct message ids")
	}
}
