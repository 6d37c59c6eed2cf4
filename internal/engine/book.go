package engine

import (
	"sort"

	"github.com/axonfi/axon/internal/models"
)

// Book holds the resting orders and completed-trade history.
// It is not safe for concurrent use; the Engine serializes access.
type Book struct {
	asks   []models.Order // ascending rate, then earliest first
	bids   []models.Order // descending rate, then earliest first
	trades []models.Trade // completed trades, oldest first
}

// NewBook creates an empty order book
func NewBook() *Book {
	return &Book{
		asks: []models.Order{},
		bids: []models.Order{},
	}
}

// Add inserts an order and re-establishes price-time priority.
// Asks sort lowest rate first, bids highest rate first; equal rates are
// broken by arrival time so the matching scan is deterministic.
func (b *Book) Add(order models.Order) {
	if order.Side == models.SideAsk {
		b.asks = append(b.asks, order)
		sort.Slice(b.asks, func(i, j int) bool {
			if b.asks[i].Rate == b.asks[j].Rate {
				return b.asks[i].CreatedAt.Before(b.asks[j].CreatedAt)
			}
			return b.asks[i].Rate < b.asks[j].Rate
		})
	} else {
		b.bids = append(b.bids, order)
		sort.Slice(b.bids, func(i, j int) bool {
			if b.bids[i].Rate == b.bids[j].Rate {
				return b.bids[i].CreatedAt.Before(b.bids[j].CreatedAt)
			}
			return b.bids[i].Rate > b.bids[j].Rate
		})
	}
}

// Remove takes an order out of the book by ID
func (b *Book) Remove(orderID int) (models.Order, bool) {
	for i, o := range b.asks {
		if o.ID == orderID {
			b.asks = append(b.asks[:i], b.asks[i+1:]...)
			return o, true
		}
	}
	for i, o := range b.bids {
		if o.ID == orderID {
			b.bids = append(b.bids[:i], b.bids[i+1:]...)
			return o, true
		}
	}
	return models.Order{}, false
}

// find returns a pointer into the live book, or nil
func (b *Book) find(orderID int) *models.Order {
	for i := range b.asks {
		if b.asks[i].ID == orderID {
			return &b.asks[i]
		}
	}
	for i := range b.bids {
		if b.bids[i].ID == orderID {
			return &b.bids[i]
		}
	}
	return nil
}

// prune removes filled and zero-amount orders
func (b *Book) prune() {
	var asks []models.Order
	for _, o := range b.asks {
		if o.Status == "open" && o.Amount.IsPositive() {
			asks = append(asks, o)
		}
	}
	b.asks = asks

	var bids []models.Order
	for _, o := range b.bids {
		if o.Status == "open" && o.Amount.IsPositive() {
			bids = append(bids, o)
		}
	}
	b.bids = bids
}

// Asks returns a copy of the resting asks in ascending-rate order
func (b *Book) Asks() []models.Order {
	out := make([]models.Order, len(b.asks))
	copy(out, b.asks)
	return out
}

// Bids returns a copy of the resting bids in descending-rate order
func (b *Book) Bids() []models.Order {
	out := make([]models.Order, len(b.bids))
	copy(out, b.bids)
	return out
}

// recordTrade appends to the completed-trade history
func (b *Book) recordTrade(t models.Trade) {
	b.trades = append(b.trades, t)
}

// RecentTrades returns up to limit most recent trades, newest first
func (b *Book) RecentTrades(limit int) []models.Trade {
	if limit <= 0 || limit > len(b.trades) {
		limit = len(b.trades)
	}
	out := make([]models.Trade, 0, limit)
	for i := len(b.trades) - 1; i >= len(b.trades)-limit; i-- {
		out = append(out, b.trades[i])
	}
	return out
}
