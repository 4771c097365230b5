package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// ackEvent marks an inbound envelope as an acknowledgement reply.
	ackEvent = "ack"

	defaultWriteTimeout = 5 * time.Second
	defaultFrameBuffer  = 64
	defaultEmitRate     = 20
	defaultEmitBurst    = 40
)

// envelope is the wire framing: a named event, its payload, and an
// optional correlation id for acknowledged sends.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	AckID string          `json:"ackId,omitempty"`
}

// WebsocketDialer dials the realtime endpoint over websocket. Outbound
// frames are paced with a token bucket so bursts of control traffic
// cannot trip server-side rate limits.
type WebsocketDialer struct {
	endpoint string
	limit    rate.Limit
	burst    int
	log      *zap.Logger
}

// WebsocketOption configures a WebsocketDialer.
type WebsocketOption func(*WebsocketDialer)

// WithEmitRate overrides the outbound frame pacing.
func WithEmitRate(perSecond float64, burst int) WebsocketOption {
	return func(d *WebsocketDialer) {
		if perSecond > 0 {
			d.limit = rate.Limit(perSecond)
		}
		if burst > 0 {
			d.burst = burst
		}
	}
}

// WithLogger sets the dialer logger.
func WithLogger(log *zap.Logger) WebsocketOption {
	return func(d *WebsocketDialer) {
		if log != nil {
			d.log = log
		}
	}
}

// NewWebsocketDialer creates a dialer for the given ws:// or wss:// endpoint.
func NewWebsocketDialer(endpoint string, opts ...WebsocketOption) *WebsocketDialer {
	d := &WebsocketDialer{
		endpoint: endpoint,
		limit:    rate.Limit(defaultEmitRate),
		burst:    defaultEmitBurst,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dial opens a websocket connection with the identity embedded in the
// handshake query and starts the read loop.
func (d *WebsocketDialer) Dial(ctx context.Context, hs Handshake) (Conn, error) {
	target, err := handshakeURL(d.endpoint, hs)
	if err != nil {
		return nil, err
	}

	ws, _, err := websocket.Dial(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.endpoint, err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	c := &wsConn{
		ws:      ws,
		cancel:  cancel,
		frames:  make(chan Frame, defaultFrameBuffer),
		done:    make(chan struct{}),
		acks:    make(map[string]func([]byte)),
		limiter: rate.NewLimiter(d.limit, d.burst),
		log:     d.log,
	}
	go c.readLoop(readCtx)
	return c, nil
}

func handshakeURL(endpoint string, hs Handshake) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}
	q := u.Query()
	q.Set("userId", hs.UserID)
	if hs.Token != "" {
		q.Set("token", hs.Token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type wsConn struct {
	ws      *websocket.Conn
	cancel  context.CancelFunc
	frames  chan Frame
	limiter *rate.Limiter
	log     *zap.Logger

	done     chan struct{}
	doneOnce sync.Once
	errMu    sync.Mutex
	err      error

	ackMu sync.Mutex
	acks  map[string]func([]byte)

	writeMu sync.Mutex
}

func (c *wsConn) Emit(ctx context.Context, event string, payload any) error {
	return c.write(ctx, envelopeFor(event, payload, ""))
}

func (c *wsConn) EmitWithAck(ctx context.Context, event string, payload any, ack func([]byte)) error {
	id := uuid.NewString()
	if ack != nil {
		c.ackMu.Lock()
		c.acks[id] = ack
		c.ackMu.Unlock()
	}
	if err := c.write(ctx, envelopeFor(event, payload, id)); err != nil {
		c.ackMu.Lock()
		delete(c.acks, id)
		c.ackMu.Unlock()
		return err
	}
	return nil
}

func envelopeFor(event string, payload any, ackID string) envelope {
	env := envelope{Event: event, AckID: ackID}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			env.Data = data
		}
	}
	return env
}

func (c *wsConn) write(ctx context.Context, env envelope) error {
	select {
	case <-c.done:
		return errors.New("websocket closed")
	default:
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pace %s: %w", env.Event, err)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", env.Event, err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.Write(writeCtx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write %s: %w", env.Event, err)
	}
	return nil
}

func (c *wsConn) Frames() <-chan Frame { return c.frames }

func (c *wsConn) Done() <-chan struct{} { return c.done }

func (c *wsConn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *wsConn) Close(ctx context.Context) error {
	_ = ctx
	c.finish(nil)
	c.cancel()
	return c.ws.Close(websocket.StatusNormalClosure, "client disconnect")
}

func (c *wsConn) finish(err error) {
	c.doneOnce.Do(func() {
		c.errMu.Lock()
		c.err = err
		c.errMu.Unlock()
		close(c.done)
	})
}

func (c *wsConn) readLoop(ctx context.Context) {
	defer close(c.frames)
	for {
		msgType, data, err := c.ws.Read(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				c.finish(nil)
			} else {
				c.finish(fmt.Errorf("read: %w", err))
			}
			return
		}
		if msgType != websocket.MessageText {
			continue
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Debug("discarding malformed frame", zap.Error(err))
			continue
		}

		if env.Event == ackEvent && env.AckID != "" {
			c.ackMu.Lock()
			ack := c.acks[env.AckID]
			delete(c.acks, env.AckID)
			c.ackMu.Unlock()
			if ack != nil {
				ack(env.Data)
			}
			continue
		}

		select {
		case <-ctx.Done():
			c.finish(nil)
			return
		case c.frames <- Frame{Event: env.Event, Data: env.Data}:
		}
	}
}
