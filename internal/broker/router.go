package broker

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// RouterError is the error family returned by Router operations. Session
// dispatch maps these to wire error codes (see internal/session).
type RouterError interface {
	error
	routerError()
}

// ErrInvalidChannel reports a channel name that failed ValidateChannelName.
type ErrInvalidChannel struct{ Reason string }

func (e *ErrInvalidChannel) Error() string { return fmt.Sprintf("invalid channel name: %s", e.Reason) }
func (*ErrInvalidChannel) routerError()     {}

// ErrChannelNotFound reports an operation against a channel that does not
// exist.
type ErrChannelNotFound struct{ Channel string }

func (e *ErrChannelNotFound) Error() string { return fmt.Sprintf("channel not found: %s", e.Channel) }
func (*ErrChannelNotFound) routerError()     {}

// ErrNotSubscribed reports an unsubscribe for a channel the connection was
// never subscribed to.
type ErrNotSubscribed struct{ Channel string }

func (e *ErrNotSubscribed) Error() string { return fmt.Sprintf("not subscribed to channel: %s", e.Channel) }
func (*ErrNotSubscribed) routerError()     {}

// ErrAlreadySubscribed reports a duplicate subscribe to the same channel.
type ErrAlreadySubscribed struct{ Channel string }

func (e *ErrAlreadySubscribed) Error() string {
	return fmt.Sprintf("already subscribed to channel: %s", e.Channel)
}
func (*ErrAlreadySubscribed) routerError() {}

// ErrMaxSubscriptionsReached reports that a connection is already at its
// subscription limit.
type ErrMaxSubscriptionsReached struct{}

func (*ErrMaxSubscriptionsReached) Error() string { return "maximum subscriptions reached" }
func (*ErrMaxSubscriptionsReached) routerError()  {}

// RouterConfig bounds and governs router behavior.
type RouterConfig struct {
	MaxChannels                  int
	MaxSubscriptionsPerConn      int
	ChannelCapacity               int
	AutoCreateChannels            bool
	AutoDeleteEmptyChannels        bool
}

// DefaultRouterConfig mirrors the original core's library defaults. The
// shipped server overrides ChannelCapacity to 131072 (see
// internal/config), matching the original server's AppState::new.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		MaxChannels:             10_000,
		MaxSubscriptionsPerConn: 100,
		ChannelCapacity:         DefaultChannelCapacity,
		AutoCreateChannels:      true,
		AutoDeleteEmptyChannels: true,
	}
}

type channelEntry struct {
	channel  *Channel
	presence *Presence
}

func newChannelEntry(name string, capacity int) *channelEntry {
	return &channelEntry{channel: NewChannelWithCapacity(name, capacity), presence: NewPresence()}
}

// Router is the process-wide channel registry plus a dual index of
// per-connection subscriptions. Each index has its own RWMutex, one for
// the whole channel registry and one for the whole subscription index.
// Subscribe holds the subscription lock while it takes the registry write
// lock; Publish takes only the registry read lock, for the channel lookup.
type Router struct {
	config RouterConfig

	channelsMu sync.RWMutex
	channels   map[ChannelID]*channelEntry

	subsMu sync.RWMutex
	subs   map[string]map[ChannelID]struct{}
}

// NewRouter creates a router with DefaultRouterConfig.
func NewRouter() *Router {
	return NewRouterWithConfig(DefaultRouterConfig())
}

// NewRouterWithConfig creates a router with explicit configuration.
func NewRouterWithConfig(config RouterConfig) *Router {
	log.Debug().Interface("config", config).Msg("creating router")
	return &Router{
		config:   config,
		channels: make(map[ChannelID]*channelEntry),
		subs:     make(map[string]map[ChannelID]struct{}),
	}
}

// RouterStats summarizes router occupancy.
type RouterStats struct {
	ChannelCount        int
	ConnectionCount     int
	TotalSubscriptions  int
}

// Stats samples the router's current size. Samples are taken from two
// independently-locked maps and are therefore a best-effort snapshot, not
// a linearizable point-in-time count.
func (r *Router) Stats() RouterStats {
	r.channelsMu.RLock()
	channelCount := len(r.channels)
	r.channelsMu.RUnlock()

	r.subsMu.RLock()
	defer r.subsMu.RUnlock()
	total := 0
	for _, set := range r.subs {
		total += len(set)
	}
	return RouterStats{ChannelCount: channelCount, ConnectionCount: len(r.subs), TotalSubscriptions: total}
}

// Subscribe admits connectionID to channelName, creating the channel if
// AutoCreateChannels allows it. Returns the subscriber's delivery queue.
func (r *Router) Subscribe(connectionID, channelName string) (<-chan *Message, RouterError) {
	if err := ValidateChannelName(channelName); err != nil {
		return nil, err.(RouterError)
	}

	r.subsMu.Lock()
	connSubs, ok := r.subs[connectionID]
	if !ok {
		connSubs = make(map[ChannelID]struct{})
		r.subs[connectionID] = connSubs
	}
	if len(connSubs) >= r.config.MaxSubscriptionsPerConn {
		r.subsMu.Unlock()
		return nil, &ErrMaxSubscriptionsReached{}
	}
	if _, already := connSubs[channelName]; already {
		r.subsMu.Unlock()
		return nil, &ErrAlreadySubscribed{Channel: channelName}
	}

	r.channelsMu.Lock()
	entry, ok := r.channels[channelName]
	if !ok {
		if !r.config.AutoCreateChannels {
			r.channelsMu.Unlock()
			r.subsMu.Unlock()
			return nil, &ErrChannelNotFound{Channel: channelName}
		}
		log.Debug().Str("channel", channelName).Msg("creating new channel")
		entry = newChannelEntry(channelName, r.config.ChannelCapacity)
		r.channels[channelName] = entry
	}
	receiver := entry.channel.Subscribe(connectionID)
	r.channelsMu.Unlock()

	connSubs[channelName] = struct{}{}
	r.subsMu.Unlock()

	log.Debug().
		Str("channel", channelName).
		Str("connection", connectionID).
		Int("subscribers", entry.channel.SubscriberCount()).
		Msg("subscribed")

	return receiver, nil
}

// Unsubscribe removes connectionID's subscription to channelName. Errors
// if the connection was not subscribed — checked before any channel state
// is touched, matching the original's ordering.
func (r *Router) Unsubscribe(connectionID, channelName string) RouterError {
	r.subsMu.Lock()
	connSubs, ok := r.subs[connectionID]
	if !ok {
		r.subsMu.Unlock()
		return &ErrNotSubscribed{Channel: channelName}
	}
	if _, subscribed := connSubs[channelName]; !subscribed {
		r.subsMu.Unlock()
		return &ErrNotSubscribed{Channel: channelName}
	}
	delete(connSubs, channelName)
	r.subsMu.Unlock()

	r.unsubscribeFromChannel(connectionID, channelName)
	return nil
}

// unsubscribeFromChannel removes connectionID from channelName's channel
// and presence, auto-deleting the channel if it is now empty. The
// emptiness check and the delete happen under the same channel-registry
// write lock, so no subscribe can join the channel between them; a
// subscribe that arrives after the delete creates a fresh channel (see
// DESIGN.md's Open Question on this).
func (r *Router) unsubscribeFromChannel(connectionID, channelName string) {
	r.channelsMu.Lock()
	entry, ok := r.channels[channelName]
	if !ok {
		r.channelsMu.Unlock()
		return
	}
	entry.channel.Unsubscribe(connectionID)
	entry.presence.Leave(connectionID)
	empty := entry.channel.IsEmpty()
	if r.config.AutoDeleteEmptyChannels && empty {
		delete(r.channels, channelName)
	}
	r.channelsMu.Unlock()

	log.Debug().
		Str("channel", channelName).
		Str("connection", connectionID).
		Bool("deleted", r.config.AutoDeleteEmptyChannels && empty).
		Msg("unsubscribed")
}

// UnsubscribeAll tears down every subscription held by connectionID, used
// on session teardown.
func (r *Router) UnsubscribeAll(connectionID string) {
	r.subsMu.Lock()
	connSubs, ok := r.subs[connectionID]
	delete(r.subs, connectionID)
	r.subsMu.Unlock()
	if !ok {
		return
	}

	for channelName := range connSubs {
		r.unsubscribeFromChannel(connectionID, channelName)
	}
	log.Debug().Str("connection", connectionID).Msg("unsubscribed from all channels")
}

// Publish routes message to its target channel, returning the number of
// subscribers it was delivered to (0, with a warning logged, if the
// channel does not exist).
func (r *Router) Publish(message Message) int {
	r.channelsMu.RLock()
	entry, ok := r.channels[message.Channel]
	r.channelsMu.RUnlock()
	if !ok {
		log.Warn().Str("channel", message.Channel).Msg("publish to non-existent channel")
		return 0
	}
	count := entry.channel.Publish(message)
	log.Trace().Str("channel", message.Channel).Int("recipients", count).Msg("published message")
	return count
}

// PublishTo is a convenience wrapper that builds a Message from a raw
// payload before publishing it.
func (r *Router) PublishTo(channelName string, payload []byte) int {
	return r.Publish(NewMessage(channelName, payload))
}

// ChannelExists reports whether channelName currently has a live entry.
func (r *Router) ChannelExists(channelName string) bool {
	r.channelsMu.RLock()
	defer r.channelsMu.RUnlock()
	_, ok := r.channels[channelName]
	return ok
}

// SubscriberCount returns channelName's subscriber count, or 0 if it does
// not exist.
func (r *Router) SubscriberCount(channelName string) int {
	r.channelsMu.RLock()
	defer r.channelsMu.RUnlock()
	entry, ok := r.channels[channelName]
	if !ok {
		return 0
	}
	return entry.channel.SubscriberCount()
}

// ChannelNames returns every currently-registered channel name.
func (r *Router) ChannelNames() []string {
	r.channelsMu.RLock()
	defer r.channelsMu.RUnlock()
	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	return names
}

// PresenceJoin records connectionID as present in channelName. Returns
// false if the channel does not exist.
func (r *Router) PresenceJoin(connectionID, channelName string, data interface{}) bool {
	r.channelsMu.Lock()
	defer r.channelsMu.Unlock()
	entry, ok := r.channels[channelName]
	if !ok {
		return false
	}
	return entry.presence.Join(connectionID, data)
}

// PresenceLeave removes connectionID's presence in channelName, returning
// its final state if present.
func (r *Router) PresenceLeave(connectionID, channelName string) (PresenceState, bool) {
	r.channelsMu.Lock()
	defer r.channelsMu.Unlock()
	entry, ok := r.channels[channelName]
	if !ok {
		return PresenceState{}, false
	}
	return entry.presence.Leave(connectionID)
}

// PresenceUpdate replaces connectionID's presence data in channelName.
func (r *Router) PresenceUpdate(connectionID, channelName string, data interface{}) bool {
	r.channelsMu.Lock()
	defer r.channelsMu.Unlock()
	entry, ok := r.channels[channelName]
	if !ok {
		return false
	}
	return entry.presence.Update(connectionID, data)
}

// PresenceSnapshot returns channelName's current presence members.
func (r *Router) PresenceSnapshot(channelName string) []PresenceState {
	r.channelsMu.RLock()
	defer r.channelsMu.RUnlock()
	entry, ok := r.channels[channelName]
	if !ok {
		return nil
	}
	return entry.presence.Snapshot()
}

// ConnectionChannels returns the channels connectionID is subscribed to.
func (r *Router) ConnectionChannels(connectionID string) []string {
	r.subsMu.RLock()
	defer r.subsMu.RUnlock()
	connSubs, ok := r.subs[connectionID]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(connSubs))
	for name := range connSubs {
		names = append(names, name)
	}
	return names
}
