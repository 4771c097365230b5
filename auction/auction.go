// Package auction exposes live-auction state derived from realtime
// events and the join/bid operations that require definite outcomes.
package auction

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/motorlot/realtime-go/internal/bus"
	"github.com/motorlot/realtime-go/internal/conn"
	"github.com/motorlot/realtime-go/internal/correlator"
	"github.com/motorlot/realtime-go/internal/rooms"
	"github.com/motorlot/realtime-go/schema"
)

// Phase is the local membership state for one auction.
type Phase int

const (
	PhaseNotJoined Phase = iota
	PhaseJoining
	PhaseJoined
)

// String returns the lowercase phase name.
func (p Phase) String() string {
	switch p {
	case PhaseJoining:
		return "joining"
	case PhaseJoined:
		return "joined"
	default:
		return "not-joined"
	}
}

// Session is the slice of the connection layer the adapter needs.
type Session interface {
	Emit(event string, payload any) error
	Request(ctx context.Context, event string, payload any, timeout time.Duration) ([]byte, error)
	Track(kind rooms.Kind, id string)
	Untrack(kind rooms.Kind, id string)
	OnStatusChange(fn conn.StatusListener) func()
}

// Config tunes the adapter.
type Config struct {
	// JoinTimeout bounds the correlated auction join.
	JoinTimeout time.Duration
	// BidTimeout bounds a bid; shorter because a stale bid is useless.
	BidTimeout time.Duration
}

func (c Config) normalize() Config {
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = 10 * time.Second
	}
	if c.BidTimeout <= 0 {
		c.BidTimeout = 5 * time.Second
	}
	return c
}

// JoinResponse is the definite outcome of an auction join.
type JoinResponse struct {
	Success bool
	State   *schema.AuctionState
	Error   string
}

// BidResponse is the definite outcome of a bid.
type BidResponse struct {
	Success bool
	BidID   string
	Error   string
}

type liveAuction struct {
	phase Phase
	state schema.AuctionState
	bids  []schema.AuctionBidPlaced
}

// Auctions is the auction consumer adapter.
type Auctions struct {
	sess Session
	cfg  Config
	log  *zap.Logger

	mu   sync.Mutex
	live map[string]*liveAuction
}

// New creates the adapter, subscribes it to the bus, and registers the
// disconnect cleanup that resets every auction to not-joined.
func New(sess Session, b *bus.Bus, cfg Config, log *zap.Logger) *Auctions {
	if log == nil {
		log = zap.NewNop()
	}
	a := &Auctions{
		sess: sess,
		cfg:  cfg.normalize(),
		log:  log,
		live: make(map[string]*liveAuction),
	}
	b.Subscribe(schema.EventAuctionState, a.onState)
	b.Subscribe(schema.EventAuctionBidPlaced, a.onBidPlaced)
	b.Subscribe(schema.EventAuctionParticipants, a.onParticipants)
	b.Subscribe(schema.EventAuctionStarted, a.onStarted)
	b.Subscribe(schema.EventAuctionEnded, a.onEnded)
	b.Subscribe(schema.EventAuctionEndingSoon, a.onEndingSoon)
	sess.OnStatusChange(a.onStatusChange)
	return a
}

// Join enters a live auction through a correlated request and seeds
// local state from the acknowledgement. Joining an auction already
// joined returns the current state.
func (a *Auctions) Join(ctx context.Context, auctionID string) (JoinResponse, error) {
	a.mu.Lock()
	if existing, ok := a.live[auctionID]; ok && existing.phase == PhaseJoined {
		state := existing.state
		a.mu.Unlock()
		return JoinResponse{Success: true, State: &state}, nil
	}
	a.live[auctionID] = &liveAuction{phase: PhaseJoining}
	a.mu.Unlock()

	data, err := a.sess.Request(ctx, schema.FrameAuctionJoin, schema.AuctionJoinPayload{AuctionID: auctionID}, a.cfg.JoinTimeout)
	if err != nil {
		a.abandonJoin(auctionID)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return JoinResponse{}, err
		}
		return JoinResponse{Error: failureReason(err)}, nil
	}

	var ack schema.AuctionJoinAck
	if err := json.Unmarshal(data, &ack); err != nil {
		a.abandonJoin(auctionID)
		return JoinResponse{Error: "Malformed acknowledgement"}, nil
	}
	if !ack.Success {
		a.abandonJoin(auctionID)
		return JoinResponse{Error: ack.Error}, nil
	}

	a.mu.Lock()
	entry := a.live[auctionID]
	if entry == nil {
		entry = &liveAuction{}
		a.live[auctionID] = entry
	}
	entry.phase = PhaseJoined
	if ack.State != nil {
		entry.state = *ack.State
	}
	entry.state.AuctionID = auctionID
	state := entry.state
	a.mu.Unlock()

	a.sess.Track(rooms.KindAuction, auctionID)
	return JoinResponse{Success: true, State: &state}, nil
}

// Leave exits the auction and discards its local state.
func (a *Auctions) Leave(auctionID string) {
	a.mu.Lock()
	delete(a.live, auctionID)
	a.mu.Unlock()
	a.sess.Untrack(rooms.KindAuction, auctionID)
	if err := a.sess.Emit(schema.FrameAuctionLeave, schema.AuctionLeavePayload{AuctionID: auctionID}); err != nil {
		a.log.Debug("auction leave emit failed", zap.Error(err))
	}
}

// PlaceBid submits a bid. It requires a confirmed join and fails fast
// without touching the network otherwise, so bids cannot race ahead of
// room confirmation.
func (a *Auctions) PlaceBid(ctx context.Context, auctionID string, amount decimal.Decimal) (BidResponse, error) {
	a.mu.Lock()
	entry, ok := a.live[auctionID]
	joined := ok && entry.phase == PhaseJoined
	a.mu.Unlock()
	if !joined {
		return BidResponse{Error: "Not in auction room"}, nil
	}

	data, err := a.sess.Request(ctx, schema.FrameAuctionBid, schema.BidPayload{AuctionID: auctionID, Amount: amount}, a.cfg.BidTimeout)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return BidResponse{}, err
		}
		return BidResponse{Error: failureReason(err)}, nil
	}

	var ack schema.BidAck
	if err := json.Unmarshal(data, &ack); err != nil {
		return BidResponse{Error: "Malformed acknowledgement"}, nil
	}
	return BidResponse{Success: ack.Success, BidID: ack.BidID, Error: ack.Error}, nil
}

// Phase returns the local membership phase for the auction.
func (a *Auctions) Phase(auctionID string) Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	if entry, ok := a.live[auctionID]; ok {
		return entry.phase
	}
	return PhaseNotJoined
}

// State returns a copy of the auction's live state.
func (a *Auctions) State(auctionID string) (schema.AuctionState, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.live[auctionID]
	if !ok {
		return schema.AuctionState{}, false
	}
	return entry.state, true
}

// CurrentPrice returns the auction's highest observed price.
func (a *Auctions) CurrentPrice(auctionID string) decimal.Decimal {
	state, _ := a.State(auctionID)
	return state.CurrentPrice
}

// Bids returns a copy of the locally observed bid history.
func (a *Auctions) Bids(auctionID string) []schema.AuctionBidPlaced {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.live[auctionID]
	if !ok {
		return nil
	}
	out := make([]schema.AuctionBidPlaced, len(entry.bids))
	copy(out, entry.bids)
	return out
}

// onState replaces the live state wholesale, except that price and bid
// totals never regress below the locally observed maximum: state and
// incremental bid frames carry no version stamp, so a stale full-state
// frame arriving after a newer bid must not rewind the price.
func (a *Auctions) onState(evt schema.Event) {
	state, ok := evt.Payload.(*schema.AuctionState)
	if !ok {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, tracked := a.live[state.AuctionID]
	if !tracked {
		return
	}
	prevPrice := entry.state.CurrentPrice
	prevBids := entry.state.TotalBids
	prevBidder := entry.state.LastBidderID
	entry.state = *state
	if state.CurrentPrice.LessThan(prevPrice) {
		entry.state.CurrentPrice = prevPrice
		entry.state.LastBidderID = prevBidder
	}
	if state.TotalBids < prevBids {
		entry.state.TotalBids = prevBids
	}
}

func (a *Auctions) onBidPlaced(evt schema.Event) {
	bid, ok := evt.Payload.(*schema.AuctionBidPlaced)
	if !ok {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, tracked := a.live[bid.AuctionID]
	if !tracked {
		return
	}
	entry.bids = append(entry.bids, *bid)
	if bid.Amount.GreaterThan(entry.state.CurrentPrice) {
		entry.state.CurrentPrice = bid.Amount
		entry.state.LastBidderID = bid.BidderID
	}
	if bid.TotalBids > entry.state.TotalBids {
		entry.state.TotalBids = bid.TotalBids
	} else {
		entry.state.TotalBids++
	}
}

func (a *Auctions) onParticipants(evt schema.Event) {
	participants, ok := evt.Payload.(*schema.AuctionParticipants)
	if !ok {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if entry, tracked := a.live[participants.AuctionID]; tracked {
		entry.state.ParticipantCount = participants.Count
	}
}

func (a *Auctions) onStarted(evt schema.Event) {
	started, ok := evt.Payload.(*schema.AuctionStarted)
	if !ok {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if entry, tracked := a.live[started.AuctionID]; tracked {
		entry.state.Status = "active"
		entry.state.EndTime = started.EndTime
	}
}

func (a *Auctions) onEnded(evt schema.Event) {
	ended, ok := evt.Payload.(*schema.AuctionEnded)
	if !ok {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, tracked := a.live[ended.AuctionID]
	if !tracked {
		return
	}
	entry.state.Status = "ended"
	if ended.FinalPrice.GreaterThan(entry.state.CurrentPrice) {
		entry.state.CurrentPrice = ended.FinalPrice
	}
	if ended.WinnerID != "" {
		entry.state.LastBidderID = ended.WinnerID
	}
}

func (a *Auctions) onEndingSoon(evt schema.Event) {
	ending, ok := evt.Payload.(*schema.AuctionEndingSoon)
	if !ok {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if entry, tracked := a.live[ending.AuctionID]; tracked {
		entry.state.Status = "ending"
		entry.state.EndTime = ending.EndTime
	}
}

// onStatusChange resets every auction to not-joined when the
// connection is gone for good. Transient reconnects keep membership;
// the server refreshes state after the rejoin.
func (a *Auctions) onStatusChange(_, next conn.Status) {
	if next != conn.StatusDisconnected && next != conn.StatusError {
		return
	}
	a.mu.Lock()
	a.live = make(map[string]*liveAuction)
	a.mu.Unlock()
}

func (a *Auctions) abandonJoin(auctionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if entry, ok := a.live[auctionID]; ok && entry.phase == PhaseJoining {
		delete(a.live, auctionID)
	}
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
