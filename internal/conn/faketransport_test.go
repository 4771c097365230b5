package conn

import (
	"context"
	"errors"
	"sync"

	"github.com/goccy/go-json"

	"github.com/motorlot/realtime-go/transport"
)

// fakeConn records outbound frames and lets tests push inbound frames
// and drop the connection.
type fakeConn struct {
	mu       sync.Mutex
	sent     []sentFrame
	acks     []func([]byte)
	frames   chan transport.Frame
	done     chan struct{}
	dropOnce sync.Once
	err      error
}

type sentFrame struct {
	Event   string
	Payload any
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan transport.Frame, 32),
		done:   make(chan struct{}),
	}
}

func (c *fakeConn) Emit(_ context.Context, event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return errors.New("fake conn closed")
	default:
	}
	c.sent = append(c.sent, sentFrame{Event: event, Payload: payload})
	return nil
}

func (c *fakeConn) EmitWithAck(ctx context.Context, event string, payload any, ack func([]byte)) error {
	if err := c.Emit(ctx, event, payload); err != nil {
		return err
	}
	c.mu.Lock()
	c.acks = append(c.acks, ack)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Frames() <-chan transport.Frame { return c.frames }

func (c *fakeConn) Done() <-chan struct{} { return c.done }

func (c *fakeConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *fakeConn) Close(context.Context) error {
	c.drop(nil)
	return nil
}

// drop simulates the connection dying, server-initiated when err is
// non-nil.
func (c *fakeConn) drop(err error) {
	c.dropOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.done)
	})
}

// push delivers an inbound frame with a JSON-encoded payload.
func (c *fakeConn) push(event string, payload any) {
	data, _ := json.Marshal(payload)
	c.frames <- transport.Frame{Event: event, Data: data}
}

func (c *fakeConn) sentEvents() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	for i, f := range c.sent {
		out[i] = f.Event
	}
	return out
}

func (c *fakeConn) countSent(event string) int {
	count := 0
	for _, e := range c.sentEvents() {
		if e == event {
			count++
		}
	}
	return count
}

func (c *fakeConn) lastAck() func([]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.acks) == 0 {
		return nil
	}
	return c.acks[len(c.acks)-1]
}

// fakeDialer hands out fake connections, optionally refusing the
// first failures dials.
type fakeDialer struct {
	mu       sync.Mutex
	failures int
	dials    int
	conns    []*fakeConn
}

func (d *fakeDialer) Dial(context.Context, transport.Handshake) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.dials <= d.failures {
		return nil, errors.New("dial refused")
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 {
		i += len(d.conns)
	}
	if i < 0 || i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}
