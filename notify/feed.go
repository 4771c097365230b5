package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/motorlot/realtime-go/internal/bus"
	"github.com/motorlot/realtime-go/schema"
)

// Feed is the notification consumer adapter: the local view of the
// user's records and unread count, derived from bus events and mutated
// through the store.
type Feed struct {
	store Store
	clock func() time.Time
	log   *zap.Logger

	mu      sync.Mutex
	records []Record
	unread  int
}

// NewFeed creates the adapter and subscribes it to the bus. The store
// may be nil; mutations then apply locally only.
func NewFeed(b *bus.Bus, store Store, log *zap.Logger) *Feed {
	if log == nil {
		log = zap.NewNop()
	}
	f := &Feed{store: store, clock: time.Now, log: log}
	b.Subscribe(schema.EventNotificationNew, f.onNew)
	b.Subscribe(schema.EventNotificationRead, f.onRead)
	b.Subscribe(schema.EventNotificationUnreadCount, f.onUnreadCount)
	return f
}

// Records returns a copy of the feed, newest first.
func (f *Feed) Records() []Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Record, len(f.records))
	copy(out, f.records)
	return out
}

// UnreadCount returns the unread total.
func (f *Feed) UnreadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread
}

// MarkAsRead marks one record read, in the store and locally.
func (f *Feed) MarkAsRead(ctx context.Context, id string) error {
	readAt := f.clock().UTC()
	if f.store != nil {
		if err := f.store.MarkRead(ctx, id, readAt); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.records {
		if f.records[i].ID == id && !f.records[i].IsRead {
			f.records[i].IsRead = true
			f.records[i].ReadAt = &readAt
			if f.unread > 0 {
				f.unread--
			}
			break
		}
	}
	return nil
}

// MarkAllAsRead marks every record for the user read.
func (f *Feed) MarkAllAsRead(ctx context.Context, userID string) error {
	readAt := f.clock().UTC()
	if f.store != nil {
		if err := f.store.MarkAllRead(ctx, userID, readAt); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.records {
		if !f.records[i].IsRead {
			f.records[i].IsRead = true
			f.records[i].ReadAt = &readAt
		}
	}
	f.unread = 0
	return nil
}

// Delete removes one record, in the store and locally.
func (f *Feed) Delete(ctx context.Context, id string) error {
	if f.store != nil {
		if err := f.store.Delete(ctx, id); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.records {
		if f.records[i].ID == id {
			if !f.records[i].IsRead && f.unread > 0 {
				f.unread--
			}
			f.records = append(f.records[:i], f.records[i+1:]...)
			break
		}
	}
	return nil
}

func (f *Feed) onNew(evt schema.Event) {
	rec, ok := evt.Payload.(*Record)
	if !ok {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append([]Record{*rec}, f.records...)
	if !rec.IsRead {
		f.unread++
	}
}

func (f *Feed) onRead(evt schema.Event) {
	read, ok := evt.Payload.(*schema.NotificationRead)
	if !ok {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.records {
		if f.records[i].ID == read.NotificationID && !f.records[i].IsRead {
			readAt := read.ReadAt
			f.records[i].IsRead = true
			f.records[i].ReadAt = &readAt
			if f.unread > 0 {
				f.unread--
			}
			break
		}
	}
}

func (f *Feed) onUnreadCount(evt schema.Event) {
	count, ok := evt.Payload.(*schema.NotificationUnreadCount)
	if !ok {
		return
	}
	f.mu.Lock()
	f.unread = count.Count
	f.mu.Unlock()
}
