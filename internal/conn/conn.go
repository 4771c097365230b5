// Package conn owns the transport handle and its lifecycle: status
// transitions, heartbeats, reconnection backoff, correlated requests,
// room re-announcement, and replay of operations deferred while
// offline.
package conn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/motorlot/realtime-go/internal/bus"
	"github.com/motorlot/realtime-go/internal/correlator"
	"github.com/motorlot/realtime-go/internal/outbox"
	"github.com/motorlot/realtime-go/internal/rooms"
	"github.com/motorlot/realtime-go/internal/telemetry"
	"github.com/motorlot/realtime-go/schema"
	"github.com/motorlot/realtime-go/transport"
)

// Status is the connection lifecycle state. The manager is its sole
// writer.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusError        Status = "error"
)

var (
	// ErrNotConnected fails correlated calls fast while offline;
	// user-initiated actions expect immediate feedback, not queueing.
	ErrNotConnected = errors.New("not connected")
	// ErrClosed fails in-flight requests on explicit disconnect.
	ErrClosed = errors.New("connection closed")
)

const emitTimeout = 5 * time.Second

// Identity is the session identity retained for re-authentication
// after every reconnect.
type Identity struct {
	UserID string
	Token  string
}

// StatusListener observes status transitions.
type StatusListener func(old, new Status)

// Config tunes the manager.
type Config struct {
	HandshakeTimeout  time.Duration
	HeartbeatInterval time.Duration
	ReconnectBase     time.Duration
	ReconnectMax      time.Duration
	ReconnectAttempts int
	OutboxCapacity    int
}

func (c Config) normalize() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = time.Second
	}
	if c.ReconnectMax < c.ReconnectBase {
		c.ReconnectMax = 30 * time.Second
	}
	if c.ReconnectAttempts <= 0 {
		c.ReconnectAttempts = 10
	}
	return c
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithMetrics sets the telemetry instruments.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// Manager is the connection state machine. All mutation of the shared
// transport handle, room set, and outbox happens through its methods.
type Manager struct {
	dialer  transport.Dialer
	bus     *bus.Bus
	cfg     Config
	log     *zap.Logger
	metrics *telemetry.Metrics

	rooms   *rooms.Tracker
	outbox  *outbox.Queue
	pending *correlator.Table

	// sendMu serialises every outbound write so the reconnect
	// reconciliation (rejoin rooms, then flush the outbox) completes
	// before newly issued operations reach the wire.
	sendMu sync.Mutex

	mu           sync.Mutex
	status       Status
	identity     Identity
	conn         transport.Conn
	localClose   bool
	runCancel    context.CancelFunc
	runDone      chan struct{}
	listeners    map[uint64]StatusListener
	nextListener uint64
}

// New creates a manager over the given dialer and event bus.
func New(dialer transport.Dialer, b *bus.Bus, cfg Config, opts ...Option) *Manager {
	cfg = cfg.normalize()
	m := &Manager{
		dialer:    dialer,
		bus:       b,
		cfg:       cfg,
		log:       zap.NewNop(),
		rooms:     rooms.NewTracker(),
		outbox:    outbox.New(cfg.OutboxCapacity),
		pending:   correlator.NewTable(),
		status:    StatusDisconnected,
		listeners: make(map[uint64]StatusListener),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect opens the connection with the given identity, blocking until
// the first attempt succeeds, the attempt limit is exhausted, or ctx
// is done. It is a no-op when a connection is already live or being
// established. The background loop keeps reconnecting after drops.
func (m *Manager) Connect(ctx context.Context, id Identity) error {
	m.mu.Lock()
	switch m.status {
	case StatusConnected, StatusConnecting, StatusReconnecting:
		m.mu.Unlock()
		return nil
	}
	m.identity = id
	m.localClose = false
	runCtx, cancel := context.WithCancel(context.Background())
	m.runCancel = cancel
	runDone := make(chan struct{})
	m.runDone = runDone
	m.mu.Unlock()

	m.setStatus(StatusConnecting)

	ready := make(chan error, 1)
	go m.run(runCtx, id, ready, runDone)

	select {
	case err := <-ready:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect tears the connection down, clears room membership and the
// outbox, and fails every in-flight correlated request. This is the
// only path that clears membership; a transient drop keeps it so the
// reconnect can replay it.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.localClose = true
	m.identity = Identity{}
	cancel := m.runCancel
	m.runCancel = nil
	tc := m.conn
	done := m.runDone
	m.runDone = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if tc != nil {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), emitTimeout)
		_ = tc.Close(closeCtx)
		closeCancel()
	}
	if done != nil {
		<-done
	}

	m.rooms.Clear()
	m.outbox.Clear()
	m.pending.FailAll(ErrClosed)
	m.setStatus(StatusDisconnected)
}

// Status returns the current connection status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// IsConnected reports whether the connection is live.
func (m *Manager) IsConnected() bool {
	return m.Status() == StatusConnected
}

// UserID returns the authenticated user, or empty before Connect and
// after Disconnect.
func (m *Manager) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity.UserID
}

// OnStatusChange registers a transition listener and returns its
// unsubscribe func.
func (m *Manager) OnStatusChange(fn StatusListener) func() {
	if fn == nil {
		return func() {}
	}
	m.mu.Lock()
	m.nextListener++
	id := m.nextListener
	m.listeners[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// JoinRoom tracks a room membership and announces it, deferring the
// announcement while offline. Joining an already-joined room is a
// no-op.
func (m *Manager) JoinRoom(kind rooms.Kind, id string) {
	if !m.rooms.Add(kind, id) {
		return
	}
	if err := m.Emit(schema.FrameRoomJoin, schema.RoomPayload{RoomID: id, RoomType: string(kind)}); err != nil {
		m.log.Debug("room join emit failed", zap.String("room", id), zap.Error(err))
	}
}

// LeaveRoom drops a membership and announces the leave.
func (m *Manager) LeaveRoom(kind rooms.Kind, id string) {
	if !m.rooms.Remove(kind, id) {
		return
	}
	if err := m.Emit(schema.FrameRoomLeave, schema.RoomPayload{RoomID: id, RoomType: string(kind)}); err != nil {
		m.log.Debug("room leave emit failed", zap.String("room", id), zap.Error(err))
	}
}

// Track records a membership without announcing it, for rooms entered
// through their own correlated join.
func (m *Manager) Track(kind rooms.Kind, id string) {
	m.rooms.Add(kind, id)
}

// Untrack forgets a membership without announcing anything.
func (m *Manager) Untrack(kind rooms.Kind, id string) {
	m.rooms.Remove(kind, id)
}

// InRoom reports whether the membership is tracked.
func (m *Manager) InRoom(kind rooms.Kind, id string) bool {
	return m.rooms.Contains(kind, id)
}

// Emit sends a fire-and-forget frame, queueing it for replay when the
// connection is down.
func (m *Manager) Emit(event string, payload any) error {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	m.mu.Lock()
	tc := m.conn
	live := m.status == StatusConnected
	m.mu.Unlock()

	if tc == nil || !live {
		if m.outbox.Enqueue(outbox.Entry{Frame: event, Payload: payload}) {
			m.metrics.OutboxDrop(context.Background())
			m.log.Debug("outbox full, dropped oldest entry", zap.String("frame", event))
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
	defer cancel()
	if err := tc.Emit(ctx, event, payload); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	m.metrics.FrameOut(ctx)
	return nil
}

// Request sends a correlated frame and waits for its single
// resolution: the acknowledgement, a timeout, or teardown. While
// offline it fails fast with ErrNotConnected instead of queueing.
func (m *Manager) Request(ctx context.Context, event string, payload any, timeout time.Duration) ([]byte, error) {
	m.sendMu.Lock()
	m.mu.Lock()
	tc := m.conn
	live := m.status == StatusConnected
	m.mu.Unlock()
	if tc == nil || !live {
		m.sendMu.Unlock()
		return nil, ErrNotConnected
	}

	p := m.pending.Track(timeout)
	err := tc.EmitWithAck(ctx, event, payload, p.Resolve)
	m.sendMu.Unlock()
	if err != nil {
		p.Fail(err)
		<-p.Done()
		return nil, fmt.Errorf("emit %s: %w", event, err)
	}
	m.metrics.FrameOut(ctx)

	select {
	case res := <-p.Done():
		if errors.Is(res.Err, correlator.ErrTimeout) {
			m.metrics.RPCTimeout(context.Background())
		}
		return res.Data, res.Err
	case <-ctx.Done():
		p.Fail(ctx.Err())
		return nil, ctx.Err()
	}
}

func (m *Manager) run(ctx context.Context, id Identity, ready chan<- error, done chan<- struct{}) {
	defer close(done)

	bo := newBackoff(m.cfg.ReconnectBase, m.cfg.ReconnectMax)
	attempts := 0
	first := true

	for {
		dialCtx, cancel := context.WithTimeout(ctx, m.cfg.HandshakeTimeout)
		tc, err := m.dialer.Dial(dialCtx, transport.Handshake{UserID: id.UserID, Token: id.Token})
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				m.setStatus(StatusDisconnected)
				return
			}
			attempts++
			m.log.Info("dial failed",
				zap.Int("attempt", attempts),
				zap.Error(err))
			if attempts >= m.cfg.ReconnectAttempts {
				m.setStatus(StatusError)
				if first {
					ready <- fmt.Errorf("connect: attempts exhausted: %w", err)
				}
				return
			}
			m.setStatus(StatusReconnecting)
			if !m.sleep(ctx, bo.NextBackOff()) {
				m.setStatus(StatusDisconnected)
				return
			}
			continue
		}

		attempts = 0
		bo.Reset()

		m.sendMu.Lock()
		m.mu.Lock()
		m.conn = tc
		m.mu.Unlock()
		m.reconcile(ctx, tc, id)
		m.sendMu.Unlock()

		m.setStatus(StatusConnected)
		if first {
			ready <- nil
			first = false
		} else {
			m.metrics.Reconnect(ctx)
		}

		hbStop := make(chan struct{})
		go m.heartbeat(ctx, tc, hbStop)
		m.pump(ctx, tc)
		close(hbStop)

		m.mu.Lock()
		m.conn = nil
		local := m.localClose
		m.mu.Unlock()

		if local || ctx.Err() != nil {
			m.setStatus(StatusDisconnected)
			return
		}

		m.log.Info("connection dropped, reconnecting", zap.Error(tc.Err()))
		m.setStatus(StatusReconnecting)
		if !m.sleep(ctx, bo.NextBackOff()) {
			m.setStatus(StatusDisconnected)
			return
		}
	}
}

// reconcile re-establishes session state on a fresh connection:
// authenticate, announce presence, re-announce every tracked room,
// then flush the outbox in insertion order. Rejoin must precede the
// flush because queued room-scoped operations assume the room is
// already announced. Caller holds sendMu.
func (m *Manager) reconcile(ctx context.Context, tc transport.Conn, id Identity) {
	emit := func(event string, payload any) {
		emitCtx, cancel := context.WithTimeout(ctx, emitTimeout)
		defer cancel()
		if err := tc.Emit(emitCtx, event, payload); err != nil {
			m.log.Debug("reconcile emit failed", zap.String("frame", event), zap.Error(err))
			return
		}
		m.metrics.FrameOut(emitCtx)
	}

	emit(schema.FrameAuthenticate, schema.AuthenticatePayload{UserID: id.UserID, Token: id.Token})
	emit(schema.FramePresenceAnnounce, schema.PresenceAnnouncePayload{UserID: id.UserID})

	for _, room := range m.rooms.Snapshot() {
		emit(schema.FrameRoomJoin, schema.RoomPayload{RoomID: room.ID, RoomType: string(room.Kind)})
	}

	for _, entry := range m.outbox.Drain() {
		emit(entry.Frame, entry.Payload)
	}
}

func (m *Manager) pump(ctx context.Context, tc transport.Conn) {
	frames := tc.Frames()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tc.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			m.metrics.FrameIn(ctx)
			evt, err := schema.Decode(f.Event, f.Data)
			if err != nil {
				m.log.Debug("dropping frame", zap.String("event", f.Event), zap.Error(err))
				continue
			}
			m.bus.Publish(evt)
		}
	}
}

func (m *Manager) heartbeat(ctx context.Context, tc transport.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			emitCtx, cancel := context.WithTimeout(ctx, emitTimeout)
			if err := tc.Emit(emitCtx, schema.FrameHeartbeat, nil); err != nil {
				m.log.Debug("heartbeat emit failed", zap.Error(err))
			} else {
				m.metrics.FrameOut(emitCtx)
			}
			cancel()
		}
	}
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (m *Manager) setStatus(next Status) {
	m.mu.Lock()
	prev := m.status
	if prev == next {
		m.mu.Unlock()
		return
	}
	m.status = next
	listeners := make([]StatusListener, 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	m.log.Info("connection status changed",
		zap.String("from", string(prev)),
		zap.String("to", string(next)))
	for _, fn := range listeners {
		fn(prev, next)
	}
}
