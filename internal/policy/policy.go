// Package policy holds the pure fee and risk rules of the exchange.
// Everything here is side-effect free; the engine decides what to apply.
package policy

import (
	"github.com/shopspring/decimal"

	"github.com/axonfi/axon/internal/models"
)

// Admissible rate range for any order
const (
	MinRate = 6.0
	MaxRate = 18.0
)

// ESGDiscount is the flat APR reduction for borrowers with a green-use proof.
const ESGDiscount = 1.0

// SubPrimeScore is the credit score below which a user is sub-prime.
const SubPrimeScore = 600

// SubPrimeSizeCap is the largest order a sub-prime user may place.
var SubPrimeSizeCap = decimal.NewFromInt(5000)

// Lender asks above SplitThreshold are split into equal child orders,
// at most MaxSplit of them, sized in multiples of SplitUnit.
var (
	SplitThreshold = decimal.NewFromInt(5000)
	SplitUnit      = decimal.NewFromInt(1000)
	MaxSplit       = 10
)

var (
	feeTierLow  = decimal.NewFromFloat(0.01)
	feeTierMid  = decimal.NewFromFloat(0.02)
	feeTierHigh = decimal.NewFromFloat(0.03)

	premiumRate = decimal.NewFromFloat(0.005)
	hundred     = decimal.NewFromInt(100)
)

// FeeTier returns the platform fee fraction of trade interest for the
// band the matched ask was originally placed under.
func FeeTier(band models.RateBand) decimal.Decimal {
	switch band {
	case models.BandMid:
		return feeTierMid
	case models.BandHigh:
		return feeTierHigh
	}
	return feeTierLow
}

// Interest computes the simple, non-compounding per-trade interest:
// amount * rate / 100.
func Interest(amount decimal.Decimal, rate float64) decimal.Decimal {
	return amount.Mul(decimal.NewFromFloat(rate)).Div(hundred)
}

// SubPrime reports whether a credit score is below the prime cutoff.
func SubPrime(creditScore int) bool {
	return creditScore < SubPrimeScore
}

// InsurancePremium is 0.5% of interest for sub-prime borrowers, zero
// otherwise. The premium funds the insurance pool.
func InsurancePremium(borrowerScore int, interest decimal.Decimal) decimal.Decimal {
	if !SubPrime(borrowerScore) {
		return decimal.Zero
	}
	return interest.Mul(premiumRate)
}

// SplitCount returns how many child orders a large ask is divided into.
// Returns 1 when the amount is at or below the threshold.
func SplitCount(amount decimal.Decimal) int {
	if amount.Cmp(SplitThreshold) <= 0 {
		return 1
	}
	n := int(amount.Div(SplitUnit).IntPart())
	if n > MaxSplit {
		n = MaxSplit
	}
	if n < 1 {
		n = 1
	}
	return n
}
