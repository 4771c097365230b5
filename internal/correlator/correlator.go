// Package correlator matches acknowledged sends with their one-shot
// outcome: the server reply, a server rejection, or a timeout,
// whichever happens first. The other paths are inert afterwards.
package correlator

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrTimeout resolves a request whose acknowledgement never arrived.
var ErrTimeout = errors.New("request timed out")

// Result is the single resolution of a tracked request.
type Result struct {
	Data []byte
	Err  error
}

// Pending is one in-flight request.
type Pending struct {
	id    string
	table *Table
	ch    chan Result
	timer *time.Timer
	once  sync.Once
}

// Table tracks every in-flight request so an explicit teardown can
// fail them all promptly.
type Table struct {
	mu      sync.Mutex
	pending map[string]*Pending
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{pending: make(map[string]*Pending)}
}

// Track registers a request that must resolve within timeout.
func (t *Table) Track(timeout time.Duration) *Pending {
	p := &Pending{
		id:    uuid.NewString(),
		table: t,
		ch:    make(chan Result, 1),
	}
	t.mu.Lock()
	t.pending[p.id] = p
	p.timer = time.AfterFunc(timeout, func() { p.Fail(ErrTimeout) })
	t.mu.Unlock()
	return p
}

// Resolve completes the request successfully with the raw reply. A
// late call after timeout or failure is ignored.
func (p *Pending) Resolve(data []byte) {
	p.settle(Result{Data: data})
}

// Fail completes the request with an error.
func (p *Pending) Fail(err error) {
	p.settle(Result{Err: err})
}

// Done yields the single resolution.
func (p *Pending) Done() <-chan Result {
	return p.ch
}

func (p *Pending) settle(res Result) {
	p.once.Do(func() {
		p.table.detach(p)
		p.ch <- res
	})
}

// detach stops the timeout timer and forgets the request. Timer access
// stays under the table lock so settling cannot race Track's arming.
func (t *Table) detach(p *Pending) {
	t.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
	}
	delete(t.pending, p.id)
	t.mu.Unlock()
}

// FailAll resolves every in-flight request with err.
func (t *Table) FailAll(err error) {
	t.mu.Lock()
	pending := make([]*Pending, 0, len(t.pending))
	for _, p := range t.pending {
		pending = append(pending, p)
	}
	t.mu.Unlock()
	for _, p := range pending {
		p.Fail(err)
	}
}

// Len reports the number of in-flight requests.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
