package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/axonfi/axon/internal/models"
)

func TestBook_Add(t *testing.T) {
	b := NewBook()

	// Test asks
	asks := []models.Order{
		{
			ID:        1,
			Side:      models.SideAsk,
			Rate:      9,
			Amount:    decimal.NewFromInt(1000),
			Status:    "open",
			CreatedAt: time.Now().Add(-time.Second),
		},
		{
			ID:        2,
			Side:      models.SideAsk,
			Rate:      7,
			Amount:    decimal.NewFromInt(2000),
			Status:    "open",
			CreatedAt: time.Now(),
		},
		{
			ID:        3,
			Side:      models.SideAsk,
			Rate:      9,
			Amount:    decimal.NewFromInt(3000),
			Status:    "open",
			CreatedAt: time.Now().Add(time.Second),
		},
	}

	for _, order := range asks {
		b.Add(order)
	}

	if len(b.asks) != 3 {
		t.Errorf("expected 3 asks, got %d", len(b.asks))
	}

	// Verify price-time priority sorting
	if b.asks[0].Rate != 7 {
		t.Errorf("expected lowest rate first, got %f", b.asks[0].Rate)
	}
	if b.asks[1].Rate == b.asks[2].Rate && b.asks[1].CreatedAt.After(b.asks[2].CreatedAt) {
		t.Error("asks with same rate not sorted by time")
	}

	// Test bids
	bids := []models.Order{
		{
			ID:        4,
			Side:      models.SideBid,
			Rate:      8,
			Amount:    decimal.NewFromInt(1000),
			Status:    "open",
			CreatedAt: time.Now().Add(-time.Second),
		},
		{
			ID:        5,
			Side:      models.SideBid,
			Rate:      12,
			Amount:    decimal.NewFromInt(2000),
			Status:    "open",
			CreatedAt: time.Now(),
		},
		{
			ID:        6,
			Side:      models.SideBid,
			Rate:      8,
			Amount:    decimal.NewFromInt(3000),
			Status:    "open",
			CreatedAt: time.Now().Add(time.Second),
		},
	}

	for _, order := range bids {
		b.Add(order)
	}

	if len(b.bids) != 3 {
		t.Errorf("expected 3 bids, got %d", len(b.bids))
	}

	// Verify price-time priority sorting
	if b.bids[0].Rate != 12 {
		t.Errorf("expected highest rate first, got %f", b.bids[0].Rate)
	}
	if b.bids[1].Rate == b.bids[2].Rate && b.bids[1].CreatedAt.After(b.bids[2].CreatedAt) {
		t.Error("bids with same rate not sorted by time")
	}
}

func TestBook_Remove(t *testing.T) {
	b := NewBook()

	orders := []models.Order{
		{
			ID:     1,
			Side:   models.SideAsk,
			Rate:   7,
			Amount: decimal.NewFromInt(1000),
			Status: "open",
		},
		{
			ID:     2,
			Side:   models.SideBid,
			Rate:   9,
			Amount: decimal.NewFromInt(2000),
			Status: "open",
		},
	}

	for _, order := range orders {
		b.Add(order)
	}

	tests := []struct {
		name          string
		orderID       int
		expectRemoved bool
	}{
		{
			name:          "RemoveAsk",
			orderID:       1,
			expectRemoved: true,
		},
		{
			name:          "RemoveBid",
			orderID:       2,
			expectRemoved: true,
		},
		{
			name:          "NonExistentOrder",
			orderID:       999,
			expectRemoved: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, removed := b.Remove(tt.orderID)
			if removed != tt.expectRemoved {
				t.Errorf("expected removed=%v, got %v", tt.expectRemoved, removed)
			}

			// Verify order is not on either side
			for _, o := range b.asks {
				if o.ID == tt.orderID {
					t.Errorf("order %d still in asks", tt.orderID)
				}
			}
			for _, o := range b.bids {
				if o.ID == tt.orderID {
					t.Errorf("order %d still in bids", tt.orderID)
				}
			}
		})
	}
}

func TestBook_SnapshotsAreCopies(t *testing.T) {
	b := NewBook()
	b.Add(models.Order{
		ID:     1,
		Side:   models.SideAsk,
		Rate:   7,
		Amount: decimal.NewFromInt(1000),
		Status: "open",
	})

	asks := b.Asks()
	asks[0].Amount = decimal.NewFromInt(5)

	if !b.asks[0].Amount.Equal(decimal.NewFromInt(1000)) {
		t.Error("mutating a snapshot changed the book")
	}
}

func TestBook_RecentTrades(t *testing.T) {
	b := NewBook()
	for i := 1; i <= 5; i++ {
		b.recordTrade(models.Trade{ID: i})
	}

	trades := b.RecentTrades(3)
	if len(trades) != 3 {
		t.Fatalf("expected 3 trades, got %d", len(trades))
	}
	if trades[0].ID != 5 || trades[2].ID != 3 {
		t.Errorf("expected newest first, got ids %d..%d", trades[0].ID, trades[2].ID)
	}

	all := b.RecentTrades(0)
	if len(all) != 5 {
		t.Errorf("expected all 5 trades for limit 0, got %d", len(all))
	}
}
