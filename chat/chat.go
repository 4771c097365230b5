// Package chat exposes conversation state derived from realtime
// events: message lists, unread counts, typing peers, and the
// operations that mutate them.
package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/motorlot/realtime-go/internal/bus"
	"github.com/motorlot/realtime-go/internal/conn"
	"github.com/motorlot/realtime-go/internal/correlator"
	"github.com/motorlot/realtime-go/internal/rooms"
	"github.com/motorlot/realtime-go/schema"
)

// Session is the slice of the connection layer the adapter needs.
type Session interface {
	Emit(event string, payload any) error
	Request(ctx context.Context, event string, payload any, timeout time.Duration) ([]byte, error)
	JoinRoom(kind rooms.Kind, id string)
	LeaveRoom(kind rooms.Kind, id string)
	UserID() string
}

// Config tunes the adapter.
type Config struct {
	// MessageTimeout bounds a correlated message send.
	MessageTimeout time.Duration
	// TypingWindow is the silence period after which a typing
	// indicator stops automatically, re-armed on every StartTyping.
	TypingWindow time.Duration
}

func (c Config) normalize() Config {
	if c.MessageTimeout <= 0 {
		c.MessageTimeout = 10 * time.Second
	}
	if c.TypingWindow <= 0 {
		c.TypingWindow = 3 * time.Second
	}
	return c
}

// SendMessageInput describes an outbound message.
type SendMessageInput struct {
	ConversationID string
	Type           string
	Content        string
}

// MessageResponse is the definite outcome of a message send.
type MessageResponse struct {
	Success   bool
	MessageID string
	TempID    string
	Error     string
}

type conversation struct {
	messages []schema.ChatMessage
	unread   int
	typing   map[string]struct{}
}

// Chat is the chat consumer adapter.
type Chat struct {
	sess Session
	cfg  Config
	log  *zap.Logger

	mu     sync.Mutex
	convos map[string]*conversation
	timers map[string]*time.Timer
}

// New creates the adapter and subscribes it to the bus.
func New(sess Session, b *bus.Bus, cfg Config, log *zap.Logger) *Chat {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Chat{
		sess:   sess,
		cfg:    cfg.normalize(),
		log:    log,
		convos: make(map[string]*conversation),
		timers: make(map[string]*time.Timer),
	}
	b.Subscribe(schema.EventMessageNew, c.onMessageNew)
	b.Subscribe(schema.EventMessageRead, c.onMessageRead)
	b.Subscribe(schema.EventMessageDelivered, c.onMessageDelivered)
	b.Subscribe(schema.EventMessageTyping, c.onTyping)
	b.Subscribe(schema.EventMessageUnreadCount, c.onUnreadCount)
	return c
}

// JoinConversation announces membership in a conversation room. The
// join is fire-and-forget, idempotent, and replayed after reconnects.
func (c *Chat) JoinConversation(id string) {
	c.sess.JoinRoom(rooms.KindConversation, id)
}

// LeaveConversation drops the conversation membership and local state.
func (c *Chat) LeaveConversation(id string) {
	c.sess.LeaveRoom(rooms.KindConversation, id)
	c.StopTyping(id)
	c.mu.Lock()
	delete(c.convos, id)
	c.mu.Unlock()
}

// SendMessage submits a message and waits for its definite outcome.
// Failures come back as a structured response, never a panic.
func (c *Chat) SendMessage(ctx context.Context, in SendMessageInput) (MessageResponse, error) {
	payload := schema.MessageSendPayload{
		ConversationID: in.ConversationID,
		Type:           in.Type,
		Content:        in.Content,
		TempID:         uuid.NewString(),
	}
	resp := MessageResponse{TempID: payload.TempID}

	data, err := c.sess.Request(ctx, schema.FrameMessageSend, payload, c.cfg.MessageTimeout)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return resp, err
		}
		resp.Error = failureReason(err)
		return resp, nil
	}

	var ack schema.MessageAck
	if err := json.Unmarshal(data, &ack); err != nil {
		resp.Error = "Malformed acknowledgement"
		return resp, nil
	}
	resp.Success = ack.Success
	resp.MessageID = ack.MessageID
	resp.Error = ack.Error
	return resp, nil
}

// StartTyping emits a typing indicator immediately and arms the
// auto-stop timer. Repeated calls re-arm it, capping how long a peer
// can be shown as typing if this client dies mid-interaction.
func (c *Chat) StartTyping(conversationID string) {
	if err := c.sess.Emit(schema.FrameTypingStart, schema.TypingPayload{ConversationID: conversationID}); err != nil {
		c.log.Debug("typing start emit failed", zap.Error(err))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.timers[conversationID]; ok {
		t.Reset(c.cfg.TypingWindow)
		return
	}
	c.timers[conversationID] = time.AfterFunc(c.cfg.TypingWindow, func() {
		c.StopTyping(conversationID)
	})
}

// StopTyping cancels the auto-stop timer and emits the stop frame.
func (c *Chat) StopTyping(conversationID string) {
	c.mu.Lock()
	t, armed := c.timers[conversationID]
	if armed {
		t.Stop()
		delete(c.timers, conversationID)
	}
	c.mu.Unlock()
	if !armed {
		return
	}
	if err := c.sess.Emit(schema.FrameTypingStop, schema.TypingPayload{ConversationID: conversationID}); err != nil {
		c.log.Debug("typing stop emit failed", zap.Error(err))
	}
}

// MarkMessagesRead reports messages as read; an empty id list marks
// the whole conversation. The local unread count resets immediately.
func (c *Chat) MarkMessagesRead(conversationID string, messageIDs ...string) {
	if err := c.sess.Emit(schema.FrameMessageRead, schema.MessageReadPayload{
		ConversationID: conversationID,
		MessageIDs:     messageIDs,
	}); err != nil {
		c.log.Debug("message read emit failed", zap.Error(err))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	convo, ok := c.convos[conversationID]
	if !ok {
		return
	}
	convo.unread = 0
	for i := range convo.messages {
		if len(messageIDs) == 0 || contains(messageIDs, convo.messages[i].ID) {
			convo.messages[i].Read = true
		}
	}
}

// Messages returns a copy of the conversation's message list.
func (c *Chat) Messages(conversationID string) []schema.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	convo, ok := c.convos[conversationID]
	if !ok {
		return nil
	}
	out := make([]schema.ChatMessage, len(convo.messages))
	copy(out, convo.messages)
	return out
}

// UnreadCount returns the conversation's unread total.
func (c *Chat) UnreadCount(conversationID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if convo, ok := c.convos[conversationID]; ok {
		return convo.unread
	}
	return 0
}

// TotalUnread sums unread counts across conversations.
func (c *Chat) TotalUnread() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, convo := range c.convos {
		total += convo.unread
	}
	return total
}

// TypingUsers lists peers currently typing in the conversation.
func (c *Chat) TypingUsers(conversationID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	convo, ok := c.convos[conversationID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(convo.typing))
	for user := range convo.typing {
		out = append(out, user)
	}
	return out
}

func (c *Chat) onMessageNew(evt schema.Event) {
	msg, ok := evt.Payload.(*schema.ChatMessage)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	convo := c.convo(msg.ConversationID)
	convo.messages = append(convo.messages, *msg)
	if msg.SenderID != c.sess.UserID() {
		convo.unread++
	}
}

func (c *Chat) onMessageRead(evt schema.Event) {
	read, ok := evt.Payload.(*schema.MessageRead)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	convo, tracked := c.convos[read.ConversationID]
	if !tracked {
		return
	}
	for i := range convo.messages {
		if len(read.MessageIDs) == 0 || contains(read.MessageIDs, convo.messages[i].ID) {
			convo.messages[i].Read = true
		}
	}
	if read.ReaderID == c.sess.UserID() {
		convo.unread = 0
	}
}

func (c *Chat) onMessageDelivered(evt schema.Event) {
	delivered, ok := evt.Payload.(*schema.MessageDelivered)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	convo, tracked := c.convos[delivered.ConversationID]
	if !tracked {
		return
	}
	for i := range convo.messages {
		if convo.messages[i].ID == delivered.MessageID {
			convo.messages[i].Delivered = true
			return
		}
	}
}

func (c *Chat) onTyping(evt schema.Event) {
	typing, ok := evt.Payload.(*schema.MessageTyping)
	if !ok || typing.UserID == c.sess.UserID() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	convo := c.convo(typing.ConversationID)
	if typing.Typing {
		convo.typing[typing.UserID] = struct{}{}
	} else {
		delete(convo.typing, typing.UserID)
	}
}

func (c *Chat) onUnreadCount(evt schema.Event) {
	count, ok := evt.Payload.(*schema.MessageUnreadCount)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.convo(count.ConversationID).unread = count.Count
}

func (c *Chat) convo(id string) *conversation {
	convo, ok := c.convos[id]
	if !ok {
		convo = &conversation{typing: make(map[string]struct{})}
		c.convos[id] = convo
	}
	return convo
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, correlator.ErrTimeout):
		return "Timeout"
	case errors.Is(err, conn.ErrNotConnected):
		return "Not connected"
	case errors.Is(err, conn.ErrClosed):
		return "Connection closed"
	default:
		return err.Error()
	}
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
