// Package realtime is the single entry point to the marketplace's
// realtime synchronization client. A Client owns one persistent
// connection, multiplexes it into conversation and auction rooms,
// guarantees eventual delivery of deferred operations across drops,
// and fans inbound frames out to the typed consumer adapters.
package realtime

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/motorlot/realtime-go/auction"
	"github.com/motorlot/realtime-go/chat"
	"github.com/motorlot/realtime-go/config"
	"github.com/motorlot/realtime-go/internal/bus"
	"github.com/motorlot/realtime-go/internal/conn"
	"github.com/motorlot/realtime-go/internal/telemetry"
	"github.com/motorlot/realtime-go/notify"
	"github.com/motorlot/realtime-go/presence"
	"github.com/motorlot/realtime-go/schema"
	"github.com/motorlot/realtime-go/transport"
)

// Status re-exports the connection lifecycle states.
type Status = conn.Status

const (
	StatusDisconnected = conn.StatusDisconnected
	StatusConnecting   = conn.StatusConnecting
	StatusConnected    = conn.StatusConnected
	StatusReconnecting = conn.StatusReconnecting
	StatusError        = conn.StatusError
)

// Client composes the connection state machine, the event bus, and the
// consumer adapters. Construct one per process and inject it into the
// subsystems that need realtime state; Connect and Disconnect are the
// only mutators of its lifecycle.
type Client struct {
	cfg config.Settings
	mgr *conn.Manager
	bus *bus.Bus

	chat     *chat.Chat
	auctions *auction.Auctions
	notifier *notify.Dispatcher
	feed     *notify.Feed
	presence *presence.Presence
}

// New builds a client from settings. The zero options run against the
// production websocket transport with no-op logging and metrics.
func New(cfg config.Settings, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	metrics, err := telemetry.New(o.meterProvider)
	if err != nil {
		return nil, err
	}

	dialer := o.dialer
	if dialer == nil {
		dialer = transport.NewWebsocketDialer(cfg.Endpoint,
			transport.WithEmitRate(cfg.EmitRate, cfg.EmitBurst),
			transport.WithLogger(o.log))
	}

	b := bus.New(o.log)
	mgr := conn.New(dialer, b, conn.Config{
		HandshakeTimeout:  cfg.HandshakeTimeout,
		HeartbeatInterval: cfg.HeartbeatInterval,
		ReconnectBase:     cfg.ReconnectBase,
		ReconnectMax:      cfg.ReconnectMax,
		ReconnectAttempts: cfg.ReconnectAttempts,
		OutboxCapacity:    cfg.OutboxCapacity,
	}, conn.WithLogger(o.log), conn.WithMetrics(metrics))

	dispatcherOpts := []notify.DispatcherOption{}
	if o.store != nil {
		dispatcherOpts = append(dispatcherOpts, notify.WithStore(o.store))
	}
	if o.pusher != nil {
		dispatcherOpts = append(dispatcherOpts, notify.WithPusher(o.pusher))
	}
	if o.email != nil {
		dispatcherOpts = append(dispatcherOpts, notify.WithEmailSender(o.email))
	}
	if o.sms != nil {
		dispatcherOpts = append(dispatcherOpts, notify.WithSMSSender(o.sms))
	}

	return &Client{
		cfg: cfg,
		mgr: mgr,
		bus: b,
		chat: chat.New(mgr, b, chat.Config{
			MessageTimeout: cfg.MessageTimeout,
			TypingWindow:   cfg.TypingWindow,
		}, o.log),
		auctions: auction.New(mgr, b, auction.Config{
			JoinTimeout: cfg.AuctionJoinTimeout,
			BidTimeout:  cfg.BidTimeout,
		}, o.log),
		notifier: notify.NewDispatcher(b, o.log, dispatcherOpts...),
		feed:     notify.NewFeed(b, o.store, o.log),
		presence: presence.New(b),
	}, nil
}

// Connect opens the connection as the given user. The token may be
// empty for guest sessions. Reconnection after drops is automatic; a
// client that reached the error status needs a fresh Connect.
func (c *Client) Connect(ctx context.Context, userID, token string) error {
	return c.mgr.Connect(ctx, conn.Identity{UserID: userID, Token: token})
}

// Disconnect tears the connection down and clears connection-scoped
// state: room membership, the outbox, and in-flight requests.
func (c *Client) Disconnect() {
	c.mgr.Disconnect()
}

// IsConnected reports whether the connection is live.
func (c *Client) IsConnected() bool {
	return c.mgr.IsConnected()
}

// Status returns the current connection status.
func (c *Client) Status() Status {
	return c.mgr.Status()
}

// OnStatusChange registers a transition listener.
func (c *Client) OnStatusChange(fn func(old, new Status)) func() {
	return c.mgr.OnStatusChange(conn.StatusListener(fn))
}

// On subscribes to one inbound event type; the returned func
// unsubscribes.
func (c *Client) On(typ schema.EventType, fn func(schema.Event)) func() {
	return c.bus.Subscribe(typ, fn)
}

// JoinConversation announces membership in a conversation room.
func (c *Client) JoinConversation(id string) { c.chat.JoinConversation(id) }

// LeaveConversation drops a conversation membership.
func (c *Client) LeaveConversation(id string) { c.chat.LeaveConversation(id) }

// SendMessage submits a conversation message and waits for its
// definite outcome.
func (c *Client) SendMessage(ctx context.Context, in chat.SendMessageInput) (chat.MessageResponse, error) {
	return c.chat.SendMessage(ctx, in)
}

// StartTyping emits a typing indicator with automatic expiry.
func (c *Client) StartTyping(conversationID string) { c.chat.StartTyping(conversationID) }

// StopTyping stops the typing indicator.
func (c *Client) StopTyping(conversationID string) { c.chat.StopTyping(conversationID) }

// MarkMessagesRead reports messages as read; no ids marks the whole
// conversation.
func (c *Client) MarkMessagesRead(conversationID string, messageIDs ...string) {
	c.chat.MarkMessagesRead(conversationID, messageIDs...)
}

// JoinAuction enters a live auction.
func (c *Client) JoinAuction(ctx context.Context, auctionID string) (auction.JoinResponse, error) {
	return c.auctions.Join(ctx, auctionID)
}

// LeaveAuction exits a live auction.
func (c *Client) LeaveAuction(auctionID string) { c.auctions.Leave(auctionID) }

// PlaceBid submits a bid on a joined auction.
func (c *Client) PlaceBid(ctx context.Context, auctionID string, amount decimal.Decimal) (auction.BidResponse, error) {
	return c.auctions.PlaceBid(ctx, auctionID, amount)
}

// Chat returns the chat adapter for derived conversation state.
func (c *Client) Chat() *chat.Chat { return c.chat }

// Auctions returns the auction adapter for derived live state.
func (c *Client) Auctions() *auction.Auctions { return c.auctions }

// Notifier returns the multi-channel notification dispatcher.
func (c *Client) Notifier() *notify.Dispatcher { return c.notifier }

// Notifications returns the notification feed adapter.
func (c *Client) Notifications() *notify.Feed { return c.feed }

// Presence returns the presence adapter.
func (c *Client) Presence() *presence.Presence { return c.presence }
