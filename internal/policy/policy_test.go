package policy

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/axonfi/axon/internal/models"
)

func TestFeeTier(t *testing.T) {
	tests := []struct {
		band models.RateBand
		want string
	}{
		{models.BandLow, "0.01"},
		{models.BandMid, "0.02"},
		{models.BandHigh, "0.03"},
	}

	for _, tt := range tests {
		t.Run(string(tt.band), func(t *testing.T) {
			got := FeeTier(tt.band)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("FeeTier(%s) = %s, want %s", tt.band, got, tt.want)
			}
		})
	}
}

func TestFeeTierMonotonic(t *testing.T) {
	// For fixed interest, a higher band never costs less
	interest := decimal.NewFromInt(100)
	low := interest.Mul(FeeTier(models.BandLow))
	mid := interest.Mul(FeeTier(models.BandMid))
	high := interest.Mul(FeeTier(models.BandHigh))

	if mid.Cmp(low) < 0 || high.Cmp(mid) < 0 {
		t.Errorf("fee tiers not monotonic: %s, %s, %s", low, mid, high)
	}
}

func TestInterest(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		rate   float64
		want   string
	}{
		{name: "WholeRate", amount: 1000, rate: 7, want: "70"},
		{name: "FractionalRate", amount: 1000, rate: 11.5, want: "115"},
		{name: "SmallAmount", amount: 1, rate: 6, want: "0.06"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Interest(decimal.NewFromInt(tt.amount), tt.rate)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("Interest(%d, %f) = %s, want %s", tt.amount, tt.rate, got, tt.want)
			}
		})
	}
}

func TestInsurancePremium(t *testing.T) {
	interest := decimal.NewFromInt(70)

	tests := []struct {
		name  string
		score int
		want  string
	}{
		{name: "SubPrime", score: 550, want: "0.35"},
		{name: "JustBelowCutoff", score: 599, want: "0.35"},
		{name: "AtCutoff", score: 600, want: "0"},
		{name: "Prime", score: 750, want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InsurancePremium(tt.score, interest)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("InsurancePremium(%d) = %s, want %s", tt.score, got, tt.want)
			}
		})
	}
}

func TestSplitCount(t *testing.T) {
	tests := []struct {
		amount int64
		want   int
	}{
		{1000, 1},
		{5000, 1},
		{5001, 5},
		{7000, 7},
		{10000, 10},
		{20000, 10},
	}

	for _, tt := range tests {
		got := SplitCount(decimal.NewFromInt(tt.amount))
		if got != tt.want {
			t.Errorf("SplitCount(%d) = %d, want %d", tt.amount, got, tt.want)
		}
	}
}
