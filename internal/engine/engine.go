// Package engine implements the order-matching and risk/fee core of the
// lending exchange: order admission, the continuous double auction over
// the book, fee debits, and the insurance fund.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/axonfi/axon/internal/models"
	"github.com/axonfi/axon/internal/policy"
)

// ESGPointsPerOrder is granted to a borrower for each admitted green order.
const ESGPointsPerOrder = 100

var two = decimal.NewFromInt(2)

// AccountStore is the engine's view of the external account collaborator.
// Debit must refuse to drive a balance negative and return
// ErrInsufficientFunds instead.
type AccountStore interface {
	GetAccount(ctx context.Context, id int) (*models.Account, error)
	Debit(ctx context.Context, id int, amount decimal.Decimal) error
	Credit(ctx context.Context, id int, amount decimal.Decimal) error
	AddESGPoints(ctx context.Context, id, points int) error
}

// Option configures an Engine
type Option func(*Engine)

// WithRateSource replaces the default random band draw
func WithRateSource(rs RateSource) Option {
	return func(e *Engine) { e.rates = rs }
}

// WithExhaustiveMatching makes each admission repeat matching passes
// until no further trade is possible, instead of the default single
// pass over the bid snapshot.
func WithExhaustiveMatching() Option {
	return func(e *Engine) { e.exhaustive = true }
}

// Engine owns the order book, the insurance fund counter, and a
// reference to the account store. One mutex serializes every
// admission-plus-match cycle; reads return copies.
type Engine struct {
	mu       sync.Mutex
	book     *Book
	accounts AccountStore
	rates    RateSource

	exhaustive  bool
	lastOrderID int
	lastTradeID int
	fund        decimal.Decimal
}

// New creates an engine over the given account store
func New(accounts AccountStore, opts ...Option) *Engine {
	e := &Engine{
		book:     NewBook(),
		accounts: accounts,
		rates:    BandRateSource{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Restore loads resting orders and counters, typically from the
// database at startup. Replaces any current book state.
func (e *Engine) Restore(orders []models.Order, lastOrderID, lastTradeID int, fund decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.book = NewBook()
	for _, o := range orders {
		if o.Status == "open" && o.Amount.IsPositive() {
			e.book.Add(o)
		}
	}
	e.lastOrderID = lastOrderID
	e.lastTradeID = lastTradeID
	e.fund = fund
}

// PlaceRequest describes a new order before admission
type PlaceRequest struct {
	UserID int
	Side   models.Side
	Band   models.RateBand
	Amount decimal.Decimal
	ESG    bool // borrower presents a green-use proof
}

// SkippedBid records a bid the matching pass could not execute against,
// typically because a fee debit would have overdrawn an account.
type SkippedBid struct {
	BidOrderID int    `json:"bid_order_id"`
	Reason     string `json:"reason"`
}

// Placement is the result of one admission-plus-match cycle
type Placement struct {
	Admitted []models.Order `json:"admitted"` // as entered into the book
	Trades   []models.Trade `json:"trades"`
	Skipped  []SkippedBid   `json:"skipped,omitempty"`

	// Updated holds the post-match state of every order the pass
	// touched, for the caller to persist.
	Updated []models.Order `json:"-"`

	FundDelta decimal.Decimal `json:"-"`
	ESGPoints int             `json:"esg_points,omitempty"`
}

// Matched reports whether the admission produced at least one trade
func (p *Placement) Matched() bool {
	return len(p.Trades) > 0
}

// PlaceOrder validates and admits a new order, runs a matching pass
// over the full book, and reports what happened. Rejections are
// returned before the book is touched.
func (e *Engine) PlaceOrder(ctx context.Context, req PlaceRequest) (*Placement, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if req.Side != models.SideAsk && req.Side != models.SideBid {
		return nil, ErrUnknownSide
	}
	if !req.Amount.IsPositive() {
		return nil, ErrAmountNotPositive
	}
	if _, _, ok := req.Band.Bounds(); !ok {
		return nil, ErrUnknownBand
	}

	acct, err := e.accounts.GetAccount(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("account lookup: %w", err)
	}

	rate := e.rates.Draw(req.Band)
	if req.Side == models.SideBid && req.ESG {
		rate -= policy.ESGDiscount
		if rate < policy.MinRate {
			rate = policy.MinRate
		}
	}
	if rate < policy.MinRate || rate > policy.MaxRate {
		return nil, ErrRateOutOfRange
	}
	if policy.SubPrime(acct.CreditScore) && req.Amount.Cmp(policy.SubPrimeSizeCap) > 0 {
		return nil, ErrSubPrimeSizeCap
	}

	placement := &Placement{FundDelta: decimal.Zero}
	for _, child := range e.admit(req, rate) {
		e.book.Add(child)
		placement.Admitted = append(placement.Admitted, child)
	}

	if req.Side == models.SideBid && req.ESG {
		if err := e.accounts.AddESGPoints(ctx, req.UserID, ESGPointsPerOrder); err == nil {
			placement.ESGPoints = ESGPointsPerOrder
		}
	}

	e.match(ctx, placement)
	return placement, nil
}

// admit builds the order(s) for a request: large lender asks are split
// into equal child orders sharing the drawn rate.
func (e *Engine) admit(req PlaceRequest, rate float64) []models.Order {
	now := time.Now()

	n := 1
	if req.Side == models.SideAsk {
		n = policy.SplitCount(req.Amount)
	}

	child := req.Amount
	if n > 1 {
		child = req.Amount.DivRound(decimal.NewFromInt(int64(n)), 2)
	}

	orders := make([]models.Order, 0, n)
	remaining := req.Amount
	for i := 0; i < n; i++ {
		amt := child
		if i == n-1 {
			amt = remaining // last child absorbs any rounding residue
		}
		remaining = remaining.Sub(amt)

		e.lastOrderID++
		orders = append(orders, models.Order{
			ID:        e.lastOrderID,
			UserID:    req.UserID,
			Side:      req.Side,
			Band:      req.Band,
			Rate:      rate,
			Amount:    amt,
			Status:    "open",
			CreatedAt: now,
		})
	}
	return orders
}

// match runs matching passes per the configured policy and collects
// touched-order state into the placement.
func (e *Engine) match(ctx context.Context, placement *Placement) {
	touched := make(map[int]models.Order)
	for {
		n := e.matchPass(ctx, placement, touched)
		if !e.exhaustive || n == 0 {
			break
		}
	}
	for _, o := range touched {
		placement.Updated = append(placement.Updated, o)
	}
}

// matchPass performs one scan over the bid snapshot: each bid takes at
// most one ask. Each trade commits its three mutations (trade record,
// two order decrements) together with the fee debits, or not at all.
func (e *Engine) matchPass(ctx context.Context, placement *Placement, touched map[int]models.Order) int {
	bidIDs := make([]int, 0, len(e.book.bids))
	for _, b := range e.book.bids {
		bidIDs = append(bidIDs, b.ID)
	}

	made := 0
	for _, bidID := range bidIDs {
		bid := e.book.find(bidID)
		if bid == nil || bid.Status != "open" || !bid.Amount.IsPositive() {
			continue
		}

		ask := e.bestAsk(bid.Rate)
		if ask == nil {
			continue
		}

		amt := decimal.Min(bid.Amount, ask.Amount)
		interest := policy.Interest(amt, ask.Rate)
		fee := interest.Mul(policy.FeeTier(ask.Band))

		borrower, err := e.accounts.GetAccount(ctx, bid.UserID)
		if err != nil {
			placement.Skipped = append(placement.Skipped, SkippedBid{BidOrderID: bid.ID, Reason: err.Error()})
			continue
		}
		premium := policy.InsurancePremium(borrower.CreditScore, interest)
		total := fee.Add(premium)
		half := total.Div(two)

		// Debit both parties before committing anything; roll the
		// first debit back if the second fails.
		if err := e.accounts.Debit(ctx, bid.UserID, half); err != nil {
			placement.Skipped = append(placement.Skipped, SkippedBid{BidOrderID: bid.ID, Reason: "borrower: " + err.Error()})
			continue
		}
		if err := e.accounts.Debit(ctx, ask.UserID, half); err != nil {
			if cerr := e.accounts.Credit(ctx, bid.UserID, half); cerr != nil {
				err = fmt.Errorf("%w (refund failed: %v)", err, cerr)
			}
			placement.Skipped = append(placement.Skipped, SkippedBid{BidOrderID: bid.ID, Reason: "lender: " + err.Error()})
			continue
		}

		e.lastTradeID++
		trade := models.Trade{
			ID:         e.lastTradeID,
			BidOrderID: bid.ID,
			AskOrderID: ask.ID,
			LenderID:   ask.UserID,
			BorrowerID: bid.UserID,
			Rate:       ask.Rate,
			Amount:     amt,
			Interest:   interest,
			Fee:        total,
			Premium:    premium,
			ExecutedAt: time.Now(),
		}

		e.fund = e.fund.Add(premium)
		placement.FundDelta = placement.FundDelta.Add(premium)

		bid.Amount = bid.Amount.Sub(amt)
		ask.Amount = ask.Amount.Sub(amt)
		if !bid.Amount.IsPositive() {
			bid.Status = "filled"
		}
		if !ask.Amount.IsPositive() {
			ask.Status = "filled"
		}
		touched[bid.ID] = *bid
		touched[ask.ID] = *ask

		// Remove fully-filled orders together with the trade record
		if bid.Status == "filled" {
			e.book.Remove(bid.ID)
		}
		if ask.Status == "filled" {
			e.book.Remove(ask.ID)
		}

		e.book.recordTrade(trade)
		placement.Trades = append(placement.Trades, trade)
		made++
	}

	e.book.prune()
	return made
}

// bestAsk returns the lowest-rate open ask at or below maxRate.
// Asks are kept sorted, so the first qualifying one wins.
func (e *Engine) bestAsk(maxRate float64) *models.Order {
	for i := range e.book.asks {
		a := &e.book.asks[i]
		if a.Status == "open" && a.Amount.IsPositive() && a.Rate <= maxRate {
			return a
		}
	}
	return nil
}

// Cancel removes a resting order owned by userID from the book.
// Past trades are unaffected.
func (e *Engine) Cancel(orderID, userID int) (models.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o := e.book.find(orderID)
	if o == nil {
		return models.Order{}, ErrOrderNotFound
	}
	if o.UserID != userID {
		return models.Order{}, ErrNotOrderOwner
	}
	canceled, _ := e.book.Remove(orderID)
	canceled.Status = "canceled"
	return canceled, nil
}

// BookSnapshot returns consistent copies of the resting asks
// (ascending rate) and bids (descending rate).
func (e *Engine) BookSnapshot() (asks, bids []models.Order) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.Asks(), e.book.Bids()
}

// RecentTrades returns up to limit completed trades, newest first
func (e *Engine) RecentTrades(limit int) []models.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.RecentTrades(limit)
}

// InsuranceFund returns the current pooled premium level
func (e *Engine) InsuranceFund() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fund
}
