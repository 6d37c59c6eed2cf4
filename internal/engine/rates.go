package engine

import (
	"math/rand"

	"github.com/axonfi/axon/internal/models"
)

// RateSource chooses the effective APR for an order placed under a band.
// The platform, not the placer, fixes the exact rate; keeping this behind
// an interface lets a deployment swap in user-specified rates without
// touching the matching logic.
type RateSource interface {
	Draw(band models.RateBand) float64
}

// BandRateSource draws uniformly at random within the band.
type BandRateSource struct{}

func (BandRateSource) Draw(band models.RateBand) float64 {
	low, high, ok := band.Bounds()
	if !ok {
		return 0
	}
	return low + rand.Float64()*(high-low)
}

// PinnedRateSource always returns the band floor. Useful for
// deterministic runs and tests.
type PinnedRateSource struct{}

func (PinnedRateSource) Draw(band models.RateBand) float64 {
	low, _, _ := band.Bounds()
	return low
}
