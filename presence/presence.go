// Package presence maintains the online roster from presence frames.
package presence

import (
	"sort"
	"sync"

	"github.com/motorlot/realtime-go/internal/bus"
	"github.com/motorlot/realtime-go/schema"
)

// Presence is the presence consumer adapter.
type Presence struct {
	mu       sync.Mutex
	online   map[string]schema.PresenceUpdate
	watchers map[uint64]func(schema.PresenceUpdate)
	nextID   uint64
}

// New creates the adapter and subscribes it to the bus.
func New(b *bus.Bus) *Presence {
	p := &Presence{
		online:   make(map[string]schema.PresenceUpdate),
		watchers: make(map[uint64]func(schema.PresenceUpdate)),
	}
	b.Subscribe(schema.EventPresenceUpdate, p.onUpdate)
	b.Subscribe(schema.EventPresenceList, p.onList)
	return p
}

// Online reports whether the user is currently online.
func (p *Presence) Online(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.online[userID]
	return ok && entry.Online
}

// OnlineUsers lists online user ids in stable order.
func (p *Presence) OnlineUsers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.online))
	for id, entry := range p.online {
		if entry.Online {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// LastSeen returns the user's last-seen timestamp if known.
func (p *Presence) LastSeen(userID string) (schema.PresenceUpdate, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.online[userID]
	return entry, ok
}

// OnChange registers a callback for presence transitions and returns
// its unsubscribe func.
func (p *Presence) OnChange(fn func(schema.PresenceUpdate)) func() {
	if fn == nil {
		return func() {}
	}
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.watchers[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.watchers, id)
		p.mu.Unlock()
	}
}

func (p *Presence) onUpdate(evt schema.Event) {
	update, ok := evt.Payload.(*schema.PresenceUpdate)
	if !ok {
		return
	}
	p.mu.Lock()
	p.online[update.UserID] = *update
	watchers := p.snapshotWatchers()
	p.mu.Unlock()
	for _, fn := range watchers {
		fn(*update)
	}
}

func (p *Presence) onList(evt schema.Event) {
	list, ok := evt.Payload.(*schema.PresenceList)
	if !ok {
		return
	}
	p.mu.Lock()
	p.online = make(map[string]schema.PresenceUpdate, len(list.Users))
	for _, user := range list.Users {
		p.online[user.UserID] = user
	}
	p.mu.Unlock()
}

// snapshotWatchers is called with p.mu held.
func (p *Presence) snapshotWatchers() []func(schema.PresenceUpdate) {
	out := make([]func(schema.PresenceUpdate), 0, len(p.watchers))
	for _, fn := range p.watchers {
		out = append(out, fn)
	}
	return out
}
