package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/motorlot/realtime-go/internal/bus"
	"github.com/motorlot/realtime-go/internal/conn"
	"github.com/motorlot/realtime-go/internal/correlator"
	"github.com/motorlot/realtime-go/internal/rooms"
	"github.com/motorlot/realtime-go/schema"
)

// fakeSession records frames and answers correlated requests from a
// scripted queue.
type fakeSession struct {
	mu       sync.Mutex
	userID   string
	emitted  []string
	joined   []string
	left     []string
	ackData  []byte
	ackErr   error
	requests int
}

func (s *fakeSession) Emit(event string, _ any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitted = append(s.emitted, event)
	return nil
}

func (s *fakeSession) Request(context.Context, string, any, time.Duration) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	return s.ackData, s.ackErr
}

func (s *fakeSession) JoinRoom(_ rooms.Kind, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joined = append(s.joined, id)
}

func (s *fakeSession) LeaveRoom(_ rooms.Kind, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.left = append(s.left, id)
}

func (s *fakeSession) UserID() string { return s.userID }

func (s *fakeSession) count(event string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.emitted {
		if e == event {
			n++
		}
	}
	return n
}

func newTestChat(sess *fakeSession, cfg Config) (*Chat, *bus.Bus) {
	b := bus.New(nil)
	return New(sess, b, cfg, nil), b
}

func publish(t *testing.T, b *bus.Bus, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	evt, err := schema.Decode(event, data)
	if err != nil {
		t.Fatalf("decode %s: %v", event, err)
	}
	b.Publish(evt)
}

func TestSendMessageSuccess(t *testing.T) {
	sess := &fakeSession{userID: "u1", ackData: []byte(`{"success":true,"messageId":"m-1"}`)}
	c, _ := newTestChat(sess, Config{})

	resp, err := c.SendMessage(context.Background(), SendMessageInput{
		ConversationID: "conv-1",
		Type:           "text",
		Content:        "is the car still available?",
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if !resp.Success || resp.MessageID != "m-1" {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.TempID == "" {
		t.Fatal("temp id missing")
	}
}

func TestSendMessageTimeoutIsStructured(t *testing.T) {
	sess := &fakeSession{userID: "u1", ackErr: correlator.ErrTimeout}
	c, _ := newTestChat(sess, Config{})

	resp, err := c.SendMessage(context.Background(), SendMessageInput{ConversationID: "conv-1", Content: "hi"})
	if err != nil {
		t.Fatalf("SendMessage returned error %v, want structured response", err)
	}
	if resp.Success || resp.Error != "Timeout" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestSendMessageOffline(t *testing.T) {
	sess := &fakeSession{userID: "u1", ackErr: conn.ErrNotConnected}
	c, _ := newTestChat(sess, Config{})

	resp, err := c.SendMessage(context.Background(), SendMessageInput{ConversationID: "conv-1", Content: "hi"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if resp.Error != "Not connected" {
		t.Fatalf("error = %q", resp.Error)
	}
}

func TestSendMessageMalformedAck(t *testing.T) {
	sess := &fakeSession{userID: "u1", ackData: []byte(`{`)}
	c, _ := newTestChat(sess, Config{})

	resp, err := c.SendMessage(context.Background(), SendMessageInput{ConversationID: "conv-1", Content: "hi"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if resp.Error != "Malformed acknowledgement" {
		t.Fatalf("error = %q", resp.Error)
	}
}

func TestSendMessageContextCancelled(t *testing.T) {
	sess := &fakeSession{userID: "u1", ackErr: context.Canceled}
	c, _ := newTestChat(sess, Config{})

	_, err := c.SendMessage(context.Background(), SendMessageInput{ConversationID: "conv-1", Content: "hi"})
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestIncomingMessagesCountUnread(t *testing.T) {
	sess := &fakeSession{userID: "u1"}
	c, b := newTestChat(sess, Config{})

	publish(t, b, "message:new", schema.ChatMessage{ID: "m-1", ConversationID: "conv-1", SenderID: "u2", Content: "hello"})
	publish(t, b, "message:new", schema.ChatMessage{ID: "m-2", ConversationID: "conv-1", SenderID: "u1", Content: "hi back"})

	if got := len(c.Messages("conv-1")); got != 2 {
		t.Fatalf("messages = %d, want 2", got)
	}
	// Own messages never count as unread.
	if got := c.UnreadCount("conv-1"); got != 1 {
		t.Fatalf("unread = %d, want 1", got)
	}
	if got := c.TotalUnread(); got != 1 {
		t.Fatalf("total unread = %d, want 1", got)
	}
}

func TestMarkMessagesReadResetsUnread(t *testing.T) {
	sess := &fakeSession{userID: "u1"}
	c, b := newTestChat(sess, Config{})

	publish(t, b, "message:new", schema.ChatMessage{ID: "m-1", ConversationID: "conv-1", SenderID: "u2"})
	c.MarkMessagesRead("conv-1")

	if got := c.UnreadCount("conv-1"); got != 0 {
		t.Fatalf("unread = %d after mark read", got)
	}
	if got := sess.count(schema.FrameMessageRead); got != 1 {
		t.Fatalf("read frames = %d", got)
	}
	msgs := c.Messages("conv-1")
	if len(msgs) != 1 || !msgs[0].Read {
		t.Fatalf("messages = %+v", msgs)
	}
}

func TestDeliveryReceipt(t *testing.T) {
	sess := &fakeSession{userID: "u1"}
	c, b := newTestChat(sess, Config{})

	publish(t, b, "message:new", schema.ChatMessage{ID: "m-1", ConversationID: "conv-1", SenderID: "u1"})
	publish(t, b, "message:delivered", schema.MessageDelivered{ConversationID: "conv-1", MessageID: "m-1"})

	msgs := c.Messages("conv-1")
	if len(msgs) != 1 || !msgs[0].Delivered {
		t.Fatalf("messages = %+v", msgs)
	}
}

func TestTypingAutoStops(t *testing.T) {
	sess := &fakeSession{userID: "u1"}
	c, _ := newTestChat(sess, Config{TypingWindow: 30 * time.Millisecond})

	c.StartTyping("conv-1")
	if got := sess.count(schema.FrameTypingStart); got != 1 {
		t.Fatalf("typing start frames = %d", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for sess.count(schema.FrameTypingStop) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := sess.count(schema.FrameTypingStop); got != 1 {
		t.Fatalf("typing stop frames = %d, want auto-stop", got)
	}
}

func TestStartTypingReArmsWindow(t *testing.T) {
	sess := &fakeSession{userID: "u1"}
	c, _ := newTestChat(sess, Config{TypingWindow: 60 * time.Millisecond})

	c.StartTyping("conv-1")
	time.Sleep(35 * time.Millisecond)
	c.StartTyping("conv-1")
	time.Sleep(35 * time.Millisecond)

	// The second call re-armed the window, so no auto-stop yet.
	if got := sess.count(schema.FrameTypingStop); got != 0 {
		t.Fatalf("typing stop frames = %d before window elapsed", got)
	}
	c.StopTyping("conv-1")
	if got := sess.count(schema.FrameTypingStop); got != 1 {
		t.Fatalf("typing stop frames = %d", got)
	}
}

func TestStopTypingWithoutStartIsNoop(t *testing.T) {
	sess := &fakeSession{userID: "u1"}
	c, _ := newTestChat(sess, Config{})

	c.StopTyping("conv-1")
	if got := sess.count(schema.FrameTypingStop); got != 0 {
		t.Fatalf("typing stop frames = %d, want none", got)
	}
}

func TestPeerTypingRoster(t *testing.T) {
	sess := &fakeSession{userID: "u1"}
	c, b := newTestChat(sess, Config{})

	publish(t, b, "message:typing", schema.MessageTyping{ConversationID: "conv-1", UserID: "u2", Typing: true})
	publish(t, b, "message:typing", schema.MessageTyping{ConversationID: "conv-1", UserID: "u1", Typing: true})

	users := c.TypingUsers("conv-1")
	if len(users) != 1 || users[0] != "u2" {
		t.Fatalf("typing users = %v, own indicator must be ignored", users)
	}

	publish(t, b, "message:typing", schema.MessageTyping{ConversationID: "conv-1", UserID: "u2", Typing: false})
	if got := c.TypingUsers("conv-1"); len(got) != 0 {
		t.Fatalf("typing users = %v after stop", got)
	}
}

func TestLeaveConversationDropsState(t *testing.T) {
	sess := &fakeSession{userID: "u1"}
	c, b := newTestChat(sess, Config{})

	c.JoinConversation("conv-1")
	publish(t, b, "message:new", schema.ChatMessage{ID: "m-1", ConversationID: "conv-1", SenderID: "u2"})
	c.LeaveConversation("conv-1")

	if got := c.Messages("conv-1"); got != nil {
		t.Fatalf("messages = %v after leave", got)
	}
	if len(sess.joined) != 1 || len(sess.left) != 1 {
		t.Fatalf("joined = %v, left = %v", sess.joined, sess.left)
	}
}

func TestServerUnreadCountWins(t *testing.T) {
	sess := &fakeSession{userID: "u1"}
	c, b := newTestChat(sess, Config{})

	publish(t, b, "message:new", schema.ChatMessage{ID: "m-1", ConversationID: "conv-1", SenderID: "u2"})
	publish(t, b, "message:unread-count", schema.MessageUnreadCount{ConversationID: "conv-1", Count: 7})

	if got := c.UnreadCount("conv-1"); got != 7 {
		t.Fatalf("unread = %d, want server total", got)
	}
}
