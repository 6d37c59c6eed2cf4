package engine

import "errors"

// Validation errors: rejected before any book mutation
var (
	ErrUnknownSide       = errors.New("side must be 'ask' or 'bid'")
	ErrAmountNotPositive = errors.New("amount must be positive")
	ErrUnknownBand       = errors.New("unknown rate band")
	ErrRateOutOfRange    = errors.New("rate out of range")
)

// Eligibility errors: the caller is not allowed this order
var (
	ErrSubPrimeSizeCap = errors.New("amount exceeds sub-prime size cap")
)

// Book / account errors
var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrNotOrderOwner     = errors.New("order not owned by user")
	ErrAccountNotFound   = errors.New("account not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// IsValidation reports whether err is a pre-admission validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrUnknownSide) ||
		errors.Is(err, ErrAmountNotPositive) ||
		errors.Is(err, ErrUnknownBand) ||
		errors.Is(err, ErrRateOutOfRange)
}

// IsEligibility reports whether err is a credit/size gating failure.
func IsEligibility(err error) bool {
	return errors.Is(err, ErrSubPrimeSizeCap)
}
