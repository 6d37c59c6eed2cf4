package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account roles
const (
	RoleLender   = "LENDER"
	RoleBorrower = "BORROWER"
)

// Side of an order in the lending book
type Side string

const (
	SideAsk Side = "ask" // lender supplying capital
	SideBid Side = "bid" // borrower requesting capital
)

// RateBand is one of the three fixed APR ranges an order is placed under.
// The band determines the platform fee tier for trades against the order.
type RateBand string

const (
	BandLow  RateBand = "6-10"
	BandMid  RateBand = "10-14"
	BandHigh RateBand = "14-18"
)

// Bounds returns the band's APR range. ok is false for an unknown band.
func (b RateBand) Bounds() (low, high float64, ok bool) {
	switch b {
	case BandLow:
		return 6, 10, true
	case BandMid:
		return 10, 14, true
	case BandHigh:
		return 14, 18, true
	}
	return 0, 0, false
}

// Account represents a registered lender or borrower
type Account struct {
	ID           int             `json:"id"`
	Username     string          `json:"username"`
	PasswordHash string          `json:"-"`
	Role         string          `json:"role"`
	Balance      decimal.Decimal `json:"balance"`
	CreditScore  int             `json:"credit_score"`
	ESGPoints    int             `json:"esg_points"`
	CreatedAt    time.Time       `json:"created_at"`
}

// BadgeLevel derives the account's ESG badge from accumulated points.
func (a Account) BadgeLevel() string {
	switch {
	case a.ESGPoints > 1000:
		return "gold"
	case a.ESGPoints > 500:
		return "silver"
	}
	return "bronze"
}

// Order represents a resting ask or bid
type Order struct {
	ID        int             `json:"id"`
	UserID    int             `json:"user_id"`
	Side      Side            `json:"side"`
	Band      RateBand        `json:"band"`       // band the order was placed under
	Rate      float64         `json:"rate"`       // effective APR, percent
	Amount    decimal.Decimal `json:"amount"`     // remaining principal
	Status    string          `json:"status"`     // "open", "filled", "canceled"
	CreatedAt time.Time       `json:"created_at"` // used for time priority
}

// Trade represents an executed match between a bid and an ask.
// Immutable once created except for the optional Rating.
type Trade struct {
	ID         int             `json:"id"`
	BidOrderID int             `json:"bid_order_id"`
	AskOrderID int             `json:"ask_order_id"`
	LenderID   int             `json:"lender_id"`
	BorrowerID int             `json:"borrower_id"`
	Rate       float64         `json:"rate"`     // the resting ask's rate
	Amount     decimal.Decimal `json:"amount"`   // matched principal
	Interest   decimal.Decimal `json:"interest"` // amount * rate / 100
	Fee        decimal.Decimal `json:"fee"`      // platform fee incl. premium
	Premium    decimal.Decimal `json:"premium"`  // insurance share of the fee
	Rating     *int            `json:"rating,omitempty"`
	ExecutedAt time.Time       `json:"executed_at"`
}
