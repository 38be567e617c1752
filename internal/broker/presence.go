package broker

import "time"

// PresenceState tracks one connection's membership in a channel: when it
// joined, when it was last seen, and whatever opaque metadata it last
// published about itself.
type PresenceState struct {
	ConnectionID string
	Data         interface{}
	JoinedAt     uint64
	LastSeen     uint64
}

// NewPresenceState creates presence state for connectionID stamped with
// the current time.
func NewPresenceState(connectionID string) PresenceState {
	now := nowMillis()
	return PresenceState{ConnectionID: connectionID, JoinedAt: now, LastSeen: now}
}

// WithData returns a copy of s with Data set.
func (s PresenceState) WithData(data interface{}) PresenceState {
	s.Data = data
	return s
}

// Touch refreshes LastSeen to the current time.
func (s *PresenceState) Touch() {
	s.LastSeen = nowMillis()
}

// UpdateData replaces Data (not merges it) and refreshes LastSeen.
func (s *PresenceState) UpdateData(data interface{}) {
	s.Data = data
	s.Touch()
}

// IsStale reports whether the state has had no activity for longer than
// timeout.
func (s PresenceState) IsStale(timeout time.Duration) bool {
	return nowMillis()-s.LastSeen > uint64(timeout.Milliseconds())
}

func nowMillis() uint64 {
	return uint64(time.Now().UnixMilli())
}

// Presence tracks the members of a single channel. It is not safe for
// concurrent use directly — Router guards every Presence it owns behind
// its channel-registry lock.
type Presence struct {
	members map[string]PresenceState
}

// NewPresence creates an empty presence tracker.
func NewPresence() *Presence {
	return &Presence{members: make(map[string]PresenceState)}
}

// Count returns the number of present members.
func (p *Presence) Count() int { return len(p.members) }

// IsPresent reports whether connectionID is currently present.
func (p *Presence) IsPresent(connectionID string) bool {
	_, ok := p.members[connectionID]
	return ok
}

// Get returns connectionID's presence state, if present.
func (p *Presence) Get(connectionID string) (PresenceState, bool) {
	s, ok := p.members[connectionID]
	return s, ok
}

// Join adds or replaces connectionID's presence state. Returns true if
// this is a new member, false if it was already present (in which case
// its data is replaced, not merged).
func (p *Presence) Join(connectionID string, data interface{}) bool {
	_, existed := p.members[connectionID]
	state := NewPresenceState(connectionID)
	if data != nil {
		state = state.WithData(data)
	}
	p.members[connectionID] = state
	return !existed
}

// Leave removes connectionID, returning its final state if it was
// present. Idempotent: leaving an absent connection returns (zero, false).
func (p *Presence) Leave(connectionID string) (PresenceState, bool) {
	state, ok := p.members[connectionID]
	if ok {
		delete(p.members, connectionID)
	}
	return state, ok
}

// Update replaces connectionID's data, returning true if it existed.
func (p *Presence) Update(connectionID string, data interface{}) bool {
	state, ok := p.members[connectionID]
	if !ok {
		return false
	}
	state.UpdateData(data)
	p.members[connectionID] = state
	return true
}

// Touch refreshes connectionID's LastSeen if it is present.
func (p *Presence) Touch(connectionID string) {
	state, ok := p.members[connectionID]
	if !ok {
		return
	}
	state.Touch()
	p.members[connectionID] = state
}

// Members returns every current presence state.
func (p *Presence) Members() []PresenceState {
	out := make([]PresenceState, 0, len(p.members))
	for _, s := range p.members {
		out = append(out, s)
	}
	return out
}

// ConnectionIDs returns the connection IDs of every current member.
func (p *Presence) ConnectionIDs() []string {
	out := make([]string, 0, len(p.members))
	for id := range p.members {
		out = append(out, id)
	}
	return out
}

// PruneStale removes members that have been inactive for longer than
// timeout, returning the connection IDs removed.
func (p *Presence) PruneStale(timeout time.Duration) []string {
	var stale []string
	for id, state := range p.members {
		if state.IsStale(timeout) {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		delete(p.members, id)
	}
	return stale
}

// Snapshot returns a copy of every current presence state, suitable for a
// Presence{action: Sync} response.
func (p *Presence) Snapshot() []PresenceState {
	return p.Members()
}

// IsEmpty reports whether no members are present.
func (p *Presence) IsEmpty() bool { return len(p.members) == 0 }
