// Package rooms tracks the set of logical rooms the session believes
// it is joined to, so membership can be re-announced after reconnects.
package rooms

import "sync"

// Kind partitions room identifiers by room type.
type Kind string

const (
	KindConversation Kind = "conversation"
	KindAuction      Kind = "auction"
)

// Membership identifies one tracked room.
type Membership struct {
	Kind Kind
	ID   string
}

// Tracker is an idempotent membership set preserving insertion order,
// the order rooms are re-announced in after a reconnect.
type Tracker struct {
	mu    sync.Mutex
	set   map[Membership]struct{}
	order []Membership
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{set: make(map[Membership]struct{})}
}

// Add records a membership. It reports whether the room was newly
// added; joining an already-joined room is a no-op.
func (t *Tracker) Add(kind Kind, id string) bool {
	m := Membership{Kind: kind, ID: id}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.set[m]; ok {
		return false
	}
	t.set[m] = struct{}{}
	t.order = append(t.order, m)
	return true
}

// Remove drops a membership, reporting whether it was tracked.
func (t *Tracker) Remove(kind Kind, id string) bool {
	m := Membership{Kind: kind, ID: id}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.set[m]; !ok {
		return false
	}
	delete(t.set, m)
	for i, existing := range t.order {
		if existing == m {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

// Contains reports whether the room is tracked.
func (t *Tracker) Contains(kind Kind, id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.set[Membership{Kind: kind, ID: id}]
	return ok
}

// Snapshot returns the tracked memberships in insertion order.
func (t *Tracker) Snapshot() []Membership {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Membership, len(t.order))
	copy(out, t.order)
	return out
}

// Clear empties the tracker. Only an explicit disconnect does this; a
// transient drop must keep membership for replay.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.set = make(map[Membership]struct{})
	t.order = nil
}

// Len reports the number of tracked rooms.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}
