package conn

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/motorlot/realtime-go/internal/bus"
	"github.com/motorlot/realtime-go/internal/correlator"
	"github.com/motorlot/realtime-go/internal/rooms"
	"github.com/motorlot/realtime-go/schema"
)

func testConfig() Config {
	return Config{
		HandshakeTimeout:  time.Second,
		HeartbeatInterval: time.Hour,
		ReconnectBase:     5 * time.Millisecond,
		ReconnectMax:      20 * time.Millisecond,
		ReconnectAttempts: 5,
	}
}

func newTestManager(t *testing.T, cfg Config) (*Manager, *fakeDialer) {
	t.Helper()
	dialer := &fakeDialer{}
	m := New(dialer, bus.New(nil), cfg)
	t.Cleanup(m.Disconnect)
	return m, dialer
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting: %s", msg)
}

func TestConnectAuthenticatesAndAnnouncesPresence(t *testing.T) {
	m, dialer := newTestManager(t, testConfig())

	if err := m.Connect(context.Background(), Identity{UserID: "u1", Token: "tok"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := m.Status(); got != StatusConnected {
		t.Fatalf("status = %v, want connected", got)
	}
	if got := m.UserID(); got != "u1" {
		t.Fatalf("UserID() = %q, want u1", got)
	}

	events := dialer.conn(0).sentEvents()
	if len(events) < 2 {
		t.Fatalf("sent %v, want authenticate and presence announce first", events)
	}
	if events[0] != schema.FrameAuthenticate || events[1] != schema.FramePresenceAnnounce {
		t.Fatalf("handshake order = %v", events[:2])
	}
}

func TestConnectWhileConnectedIsNoop(t *testing.T) {
	m, dialer := newTestManager(t, testConfig())

	if err := m.Connect(context.Background(), Identity{UserID: "u1"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := m.Connect(context.Background(), Identity{UserID: "u2"}); err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	if got := dialer.dialCount(); got != 1 {
		t.Fatalf("dials = %d, want 1", got)
	}
	if got := m.UserID(); got != "u1" {
		t.Fatalf("UserID() = %q, identity must not change while live", got)
	}
}

func TestJoinRoomIsIdempotent(t *testing.T) {
	m, dialer := newTestManager(t, testConfig())
	if err := m.Connect(context.Background(), Identity{UserID: "u1"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	m.JoinRoom(rooms.KindConversation, "conv-1")
	m.JoinRoom(rooms.KindConversation, "conv-1")

	if got := dialer.conn(0).countSent(schema.FrameRoomJoin); got != 1 {
		t.Fatalf("room join frames = %d, want 1", got)
	}
	if !m.InRoom(rooms.KindConversation, "conv-1") {
		t.Fatal("membership not tracked")
	}
}

func TestOfflineEmitsReplayInOrderAfterConnect(t *testing.T) {
	m, dialer := newTestManager(t, testConfig())

	for _, ev := range []string{"op:a", "op:b", "op:c"} {
		if err := m.Emit(ev, nil); err != nil {
			t.Fatalf("Emit(%s): %v", ev, err)
		}
	}
	if err := m.Connect(context.Background(), Identity{UserID: "u1"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	events := dialer.conn(0).sentEvents()
	want := []string{schema.FrameAuthenticate, schema.FramePresenceAnnounce, "op:a", "op:b", "op:c"}
	if len(events) != len(want) {
		t.Fatalf("sent %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("frame %d = %q, want %q", i, events[i], want[i])
		}
	}
}

func TestReconnectRejoinsRoomsBeforeFlushingQueue(t *testing.T) {
	m, dialer := newTestManager(t, testConfig())

	statuses := make(chan Status, 16)
	m.OnStatusChange(func(_, next Status) { statuses <- next })

	if err := m.Connect(context.Background(), Identity{UserID: "u1"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	drainStatuses(statuses)

	m.JoinRoom(rooms.KindConversation, "conv-1")
	dialer.conn(0).drop(errors.New("server closed"))

	waitStatus(t, statuses, StatusReconnecting)
	if err := m.Emit("op:x", nil); err != nil {
		t.Fatalf("Emit while reconnecting: %v", err)
	}
	waitStatus(t, statuses, StatusConnected)

	events := dialer.conn(1).sentEvents()
	join, op := -1, -1
	for i, ev := range events {
		switch ev {
		case schema.FrameRoomJoin:
			join = i
		case "op:x":
			op = i
		}
	}
	if join < 0 || op < 0 {
		t.Fatalf("sent %v, want rejoin and queued op", events)
	}
	if join > op {
		t.Fatalf("rejoin at %d after queued op at %d: %v", join, op, events)
	}
}

func TestReconnectKeepsMembership(t *testing.T) {
	m, dialer := newTestManager(t, testConfig())
	if err := m.Connect(context.Background(), Identity{UserID: "u1"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	m.JoinRoom(rooms.KindAuction, "auc-1")

	dialer.conn(0).drop(errors.New("server closed"))
	waitFor(t, func() bool { return m.Status() == StatusConnected && dialer.dialCount() == 2 }, "reconnect")

	if !m.InRoom(rooms.KindAuction, "auc-1") {
		t.Fatal("membership lost across transient drop")
	}
	if got := dialer.conn(1).countSent(schema.FrameRoomJoin); got != 1 {
		t.Fatalf("rejoin frames = %d, want 1", got)
	}
}

func TestConnectExhaustsAttempts(t *testing.T) {
	cfg := testConfig()
	cfg.ReconnectAttempts = 3
	dialer := &fakeDialer{failures: 100}
	m := New(dialer, bus.New(nil), cfg)
	t.Cleanup(m.Disconnect)

	err := m.Connect(context.Background(), Identity{UserID: "u1"})
	if err == nil {
		t.Fatal("Connect succeeded, want attempts exhausted error")
	}
	if got := m.Status(); got != StatusError {
		t.Fatalf("status = %v, want error", got)
	}
	if got := dialer.dialCount(); got != 3 {
		t.Fatalf("dials = %d, want 3", got)
	}
}

func TestRequestFailsFastWhenOffline(t *testing.T) {
	m, _ := newTestManager(t, testConfig())

	_, err := m.Request(context.Background(), "message:send", nil, time.Second)
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestRequestResolvedByAcknowledgement(t *testing.T) {
	m, dialer := newTestManager(t, testConfig())
	if err := m.Connect(context.Background(), Identity{UserID: "u1"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := m.Request(context.Background(), "message:send", nil, time.Second)
		done <- result{data, err}
	}()

	fc := dialer.conn(0)
	waitFor(t, func() bool { return fc.lastAck() != nil }, "correlated frame sent")
	fc.lastAck()([]byte(`{"success":true,"messageId":"m-1"}`))

	res := <-done
	if res.err != nil {
		t.Fatalf("Request: %v", res.err)
	}
	var ack schema.MessageAck
	if err := json.Unmarshal(res.data, &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if !ack.Success || ack.MessageID != "m-1" {
		t.Fatalf("ack = %+v", ack)
	}
}

func TestRequestTimesOut(t *testing.T) {
	m, dialer := newTestManager(t, testConfig())
	if err := m.Connect(context.Background(), Identity{UserID: "u1"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	_, err := m.Request(context.Background(), "message:send", nil, 20*time.Millisecond)
	if !errors.Is(err, correlator.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}

	// A late acknowledgement after the timeout must be inert.
	if ack := dialer.conn(0).lastAck(); ack != nil {
		ack([]byte(`{"success":true}`))
	}
}

func TestDisconnectClearsSessionState(t *testing.T) {
	m, dialer := newTestManager(t, testConfig())
	if err := m.Connect(context.Background(), Identity{UserID: "u1"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	m.JoinRoom(rooms.KindConversation, "conv-1")

	errs := make(chan error, 1)
	go func() {
		_, err := m.Request(context.Background(), "message:send", nil, time.Minute)
		errs <- err
	}()
	waitFor(t, func() bool { return dialer.conn(0).lastAck() != nil }, "in-flight request")

	m.Disconnect()

	if err := <-errs; !errors.Is(err, ErrClosed) {
		t.Fatalf("in-flight request err = %v, want ErrClosed", err)
	}
	if got := m.Status(); got != StatusDisconnected {
		t.Fatalf("status = %v, want disconnected", got)
	}
	if m.InRoom(rooms.KindConversation, "conv-1") {
		t.Fatal("membership survived explicit disconnect")
	}
	if got := m.UserID(); got != "" {
		t.Fatalf("UserID() = %q, want cleared", got)
	}
}

func TestInboundFramesReachBus(t *testing.T) {
	b := bus.New(nil)
	dialer := &fakeDialer{}
	m := New(dialer, b, testConfig())
	t.Cleanup(m.Disconnect)

	got := make(chan schema.Event, 1)
	b.Subscribe(schema.EventNotificationNew, func(evt schema.Event) { got <- evt })

	if err := m.Connect(context.Background(), Identity{UserID: "u1"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	dialer.conn(0).push(string(schema.EventNotificationNew), schema.Notification{ID: "n-1", Title: "New bid"})

	select {
	case evt := <-got:
		n, ok := evt.Payload.(*schema.Notification)
		if !ok {
			t.Fatalf("payload type %T", evt.Payload)
		}
		if n.ID != "n-1" {
			t.Fatalf("notification id = %q", n.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("frame never published")
	}
}

func TestHeartbeatFrames(t *testing.T) {
	cfg := testConfig()
	cfg.HeartbeatInterval = 10 * time.Millisecond
	m, dialer := newTestManager(t, cfg)
	if err := m.Connect(context.Background(), Identity{UserID: "u1"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	fc := dialer.conn(0)
	waitFor(t, func() bool { return fc.countSent(schema.FrameHeartbeat) >= 2 }, "heartbeats")
}

func TestBackoffDelaysDoubleUpToCap(t *testing.T) {
	bo := newBackoff(100*time.Millisecond, time.Second)
	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for i, w := range want {
		if got := bo.NextBackOff(); got != w {
			t.Fatalf("delay %d = %v, want %v", i+1, got, w)
		}
	}
}

func waitStatus(t *testing.T, ch <-chan Status, want Status) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-ch:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("never reached status %v", want)
		}
	}
}

func drainStatuses(ch <-chan Status) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
