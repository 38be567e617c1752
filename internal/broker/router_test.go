package broker

import "testing"

func TestRouterSubscribeUnsubscribe(t *testing.T) {
	router := NewRouter()

	rx, err := router.Subscribe("conn-1", "test:channel")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if !router.ChannelExists("test:channel") {
		t.Fatalf("expected channel to exist")
	}
	if router.SubscriberCount("test:channel") != 1 {
		t.Fatalf("expected 1 subscriber")
	}
	_ = rx

	if err := router.Unsubscribe("conn-1", "test:channel"); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if router.ChannelExists("test:channel") {
		t.Fatalf("expected channel to be auto-deleted")
	}
}

func TestRouterPublish(t *testing.T) {
	router := NewRouter()

	rx1, err := router.Subscribe("conn-1", "test")
	if err != nil {
		t.Fatalf("subscribe conn-1: %v", err)
	}
	rx2, err := router.Subscribe("conn-2", "test")
	if err != nil {
		t.Fatalf("subscribe conn-2: %v", err)
	}

	count := router.PublishTo("test", []byte("hello"))
	if count != 2 {
		t.Fatalf("expected 2 recipients, got %d", count)
	}

	select {
	case <-rx1:
	default:
		t.Fatalf("expected conn-1 to receive message")
	}
	select {
	case <-rx2:
	default:
		t.Fatalf("expected conn-2 to receive message")
	}
}

func TestRouterInvalidChannel(t *testing.T) {
	router := NewRouter()

	if _, err := router.Subscribe("conn-1", ""); err == nil {
		t.Fatalf("expected error for empty channel name")
	}
	if _, err := router.Subscribe("conn-1", "$system"); err == nil {
		t.Fatalf("expected error for reserved channel name")
	}
}

func TestRouterAlreadySubscribed(t *testing.T) {
	router := NewRouter()

	if _, err := router.Subscribe("conn-1", "test"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	_, err := router.Subscribe("conn-1", "test")
	if _, ok := err.(*ErrAlreadySubscribed); !ok {
		t.Fatalf("expected ErrAlreadySubscribed, got %v (%T)", err, err)
	}
}

func TestRouterUnsubscribeAll(t *testing.T) {
	router := NewRouter()

	if _, err := router.Subscribe("conn-1", "channel-1"); err != nil {
		t.Fatalf("subscribe channel-1: %v", err)
	}
	if _, err := router.Subscribe("conn-1", "channel-2"); err != nil {
		t.Fatalf("subscribe channel-2: %v", err)
	}

	router.UnsubscribeAll("conn-1")

	if router.ChannelExists("channel-1") || router.ChannelExists("channel-2") {
		t.Fatalf("expected both channels auto-deleted")
	}
}

func TestRouterStats(t *testing.T) {
	router := NewRouter()

	if _, err := router.Subscribe("conn-1", "channel-1"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := router.Subscribe("conn-1", "channel-2"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := router.Subscribe("conn-2", "channel-1"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	stats := router.Stats()
	if stats.ChannelCount != 2 {
		t.Errorf("expected 2 channels, got %d", stats.ChannelCount)
	}
	if stats.ConnectionCount != 2 {
		t.Errorf("expected 2 connections, got %d", stats.ConnectionCount)
	}
	if stats.TotalSubscriptions != 3 {
		t.Errorf("expected 3 total subscriptions, got %d", stats.TotalSubscriptions)
	}
}

func TestRouterMaxSubscriptionsReached(t *testing.T) {
	cfg := DefaultRouterConfig()
	cfg.MaxSubscriptionsPerConn = 1
	router := NewRouterWithConfig(cfg)

	if _, err := router.Subscribe("conn-1", "channel-1"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	_, err := router.Subscribe("conn-1", "channel-2")
	if _, ok := err.(*ErrMaxSubscriptionsReached); !ok {
		t.Fatalf("expected ErrMaxSubscriptionsReached, got %v (%T)", err, err)
	}
}

func TestRouterNotSubscribed(t *testing.T) {
	router := NewRouter()
	err := router.Unsubscribe("conn-1", "nope")
	if _, ok := err.(*ErrNotSubscribed); !ok {
		t.Fatalf("expected ErrNotSubscribed, got %v (%T)", err, err)
	}
}
