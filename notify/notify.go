// Package notify fans logical notifications out across delivery
// channels and tracks the user's notification feed.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/motorlot/realtime-go/internal/bus"
	"github.com/motorlot/realtime-go/schema"
)

// Record is one notification record.
type Record = schema.Notification

// Notification types understood by the priority classifier.
const (
	TypeMessage        = "message"
	TypeNewBid         = "new-bid"
	TypeOutbid         = "outbid"
	TypeAuctionWon     = "auction-won"
	TypeAuctionEnding  = "auction-ending"
	TypeAuctionStarted = "auction-started"
	TypeSystem         = "system"
)

// Priorities, lowest to highest.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// DefaultPriority infers a priority from the notification type.
func DefaultPriority(notificationType string) string {
	switch notificationType {
	case TypeAuctionWon:
		return PriorityUrgent
	case TypeNewBid, TypeOutbid, TypeAuctionEnding:
		return PriorityHigh
	case TypeSystem:
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// Channel names a delivery channel.
type Channel string

const (
	ChannelToast    Channel = "toast"
	ChannelDatabase Channel = "database"
	ChannelPush     Channel = "push"
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
)

// Store persists notification records through the external
// notification service.
type Store interface {
	Create(ctx context.Context, rec Record) error
	MarkRead(ctx context.Context, id string, readAt time.Time) error
	MarkAllRead(ctx context.Context, userID string, readAt time.Time) error
	Delete(ctx context.Context, id string) error
}

// Pusher delivers device-level push notifications.
type Pusher interface {
	// Permitted reports whether push permission was previously granted.
	Permitted(userID string) bool
	Push(ctx context.Context, rec Record) error
}

// EmailSender delivers the email side channel.
type EmailSender interface {
	SendEmail(ctx context.Context, rec Record) error
}

// SMSSender delivers the SMS side channel.
type SMSSender interface {
	SendSMS(ctx context.Context, rec Record) error
}

// SendOptions describes one logical notification.
type SendOptions struct {
	UserID   string
	Type     string
	Title    string
	Message  string
	Priority string // empty infers from Type
	Metadata map[string]any
	Channels []Channel // nil means toast + database
}

// SendResult reports per-channel outcomes. Channel failures are
// independent; Success means at least one channel delivered.
type SendResult struct {
	Success   bool
	Record    Record
	Delivered []Channel
	Failed    map[Channel]error
}

// Dispatcher fans notifications out. It is not connection-bound.
type Dispatcher struct {
	bus    *bus.Bus
	store  Store
	pusher Pusher
	email  EmailSender
	sms    SMSSender
	clock  func() time.Time
	log    *zap.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithStore wires the persisted-record channel.
func WithStore(store Store) DispatcherOption {
	return func(d *Dispatcher) { d.store = store }
}

// WithPusher wires the device push channel.
func WithPusher(pusher Pusher) DispatcherOption {
	return func(d *Dispatcher) { d.pusher = pusher }
}

// WithEmailSender wires the email side channel.
func WithEmailSender(sender EmailSender) DispatcherOption {
	return func(d *Dispatcher) { d.email = sender }
}

// WithSMSSender wires the SMS side channel.
func WithSMSSender(sender SMSSender) DispatcherOption {
	return func(d *Dispatcher) { d.sms = sender }
}

// WithClock overrides the record timestamp source, for tests.
func WithClock(clock func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// NewDispatcher creates a dispatcher publishing toasts on the bus.
func NewDispatcher(b *bus.Bus, log *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{bus: b, clock: time.Now, log: log}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var defaultChannels = []Channel{ChannelToast, ChannelDatabase}

// Send fans one notification across the requested channels in
// parallel. It never panics; channel failures land in the result.
func (d *Dispatcher) Send(ctx context.Context, opts SendOptions) SendResult {
	priority := opts.Priority
	if priority == "" {
		priority = DefaultPriority(opts.Type)
	}
	rec := Record{
		ID:        uuid.NewString(),
		UserID:    opts.UserID,
		Type:      opts.Type,
		Title:     opts.Title,
		Message:   opts.Message,
		Priority:  priority,
		Metadata:  opts.Metadata,
		CreatedAt: d.clock().UTC(),
	}

	channels := opts.Channels
	if len(channels) == 0 {
		channels = defaultChannels
	}

	result := SendResult{Record: rec, Failed: make(map[Channel]error)}
	var mu sync.Mutex

	p := pool.New().WithContext(ctx)
	for _, ch := range channels {
		channel := ch
		p.Go(func(ctx context.Context) error {
			err := d.deliver(ctx, channel, rec)
			mu.Lock()
			if err != nil {
				result.Failed[channel] = err
				d.log.Debug("notification channel failed",
					zap.String("channel", string(channel)),
					zap.Error(err))
			} else {
				result.Delivered = append(result.Delivered, channel)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = p.Wait()

	result.Success = len(result.Delivered) > 0
	return result
}

func (d *Dispatcher) deliver(ctx context.Context, channel Channel, rec Record) error {
	switch channel {
	case ChannelToast:
		d.bus.Publish(schema.Event{Type: schema.EventNotificationNew, Payload: &rec})
		return nil
	case ChannelDatabase:
		if d.store == nil {
			return errors.New("no notification store configured")
		}
		return d.store.Create(ctx, rec)
	case ChannelPush:
		if d.pusher == nil {
			return errors.New("no pusher configured")
		}
		if !d.pusher.Permitted(rec.UserID) {
			return errors.New("push permission not granted")
		}
		return d.pusher.Push(ctx, rec)
	case ChannelEmail:
		if d.email == nil {
			return errors.New("no email sender configured")
		}
		return d.email.SendEmail(ctx, rec)
	case ChannelSMS:
		if d.sms == nil {
			return errors.New("no sms sender configured")
		}
		return d.sms.SendSMS(ctx, rec)
	default:
		return errors.New("unknown channel " + string(channel))
	}
}
