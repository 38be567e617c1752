package broker

import "testing"

func TestChannelCreation(t *testing.T) {
	ch := NewChannel("test:room")
	if ch.Name() != "test:room" {
		t.Fatalf("unexpected name %q", ch.Name())
	}
	if ch.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers")
	}
	if !ch.IsEmpty() {
		t.Fatalf("expected channel to be empty")
	}
}

func TestChannelSubscribeUnsubscribe(t *testing.T) {
	ch := NewChannel("test")

	ch.Subscribe("conn-1")
	if ch.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber")
	}
	if !ch.IsSubscribed("conn-1") {
		t.Fatalf("expected conn-1 subscribed")
	}

	ch.Subscribe("conn-2")
	if ch.SubscriberCount() != 2 {
		t.Fatalf("expected 2 subscribers")
	}

	if !ch.Unsubscribe("conn-1") {
		t.Fatalf("expected unsubscribe to report true")
	}
	if ch.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber left")
	}
	if ch.IsSubscribed("conn-1") {
		t.Fatalf("expected conn-1 no longer subscribed")
	}

	if ch.Unsubscribe("conn-1") {
		t.Fatalf("expected unsubscribing an absent connection to report false")
	}
}

func TestChannelNameValidation(t *testing.T) {
	if err := ValidateChannelName("valid:channel"); err != nil {
		t.Fatalf("expected valid name, got %v", err)
	}
	if err := ValidateChannelName(""); err == nil {
		t.Fatalf("expected error for empty name")
	}
	if err := ValidateChannelName("$system"); err == nil {
		t.Fatalf("expected error for reserved name")
	}

	long := make([]byte, MaxChannelNameLength+1)
	for i := range long {
		long[i] = 'a'
	}
	if err := ValidateChannelName(string(long)); err == nil {
		t.Fatalf("expected error for overlong name")
	}
}

func TestChannelPublish(t *testing.T) {
	ch := NewChannel("test")
	rx := ch.Subscribe("conn-1")

	count := ch.PublishPayload([]byte("hello"))
	if count != 1 {
		t.Fatalf("expected 1 recipient, got %d", count)
	}

	msg := <-rx
	if string(msg.Payload) != "hello" {
		t.Fatalf("unexpected payload %q", msg.Payload)
	}
}

func TestChannelPublishDropsOldestWhenFull(t *testing.T) {
	ch := NewChannelWithCapacity("test", 2)
	rx := ch.Subscribe("conn-1")

	ch.PublishPayload([]byte("1"))
	ch.PublishPayload([]byte("2"))
	ch.PublishPayload([]byte("3"))

	first := <-rx
	second := <-rx
	if string(first.Payload) != "2" || string(second.Payload) != "3" {
		t.Fatalf("expected oldest message dropped, got %q then %q", first.Payload, second.Payload)
	}
}
