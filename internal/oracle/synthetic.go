package oracle

import (
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// SyntheticSource produces quotes via random walk. It stands in for a live
// feed in development and tests; every fetch advances the walk one step.
type SyntheticSource struct {
	mu         sync.Mutex
	price      int64   // Current price in micro-USD
	volatility float64 // Standard deviation of price changes (in micro-USD)
	drift      float64 // Mean drift per step (in micro-USD, usually 0)
	minPrice   int64   // Floor price
	maxPrice   int64   // Ceiling price
	rng        *rand.Rand
}

// NewSyntheticSource creates a random walk starting at initialPrice micro-USD.
func NewSyntheticSource(initialPrice int64, volatility float64) *SyntheticSource {
	return &SyntheticSource{
		price:      initialPrice,
		volatility: volatility,
		drift:      0,
		minPrice:   10_000,            // $0.01 minimum
		maxPrice:   1_000_000_000_000, // $1M ceiling
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// FetchQuote performs one random walk step and returns the new price.
func (s *SyntheticSource) FetchQuote() (Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Random walk: price += drift + volatility * N(0,1)
	change := s.drift + s.volatility*s.rng.NormFloat64()
	newPrice := s.price + int64(change)

	// Clamp to bounds
	if newPrice < s.minPrice {
		newPrice = s.minPrice
	}
	if newPrice > s.maxPrice {
		newPrice = s.maxPrice
	}
	s.price = newPrice

	return Quote{
		Price: decimal.New(newPrice, -6),
		At:    time.Now(),
	}, nil
}

// SetDrift adjusts the drift (in micro-USD per step).
func (s *SyntheticSource) SetDrift(d float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drift = d
}

// SetVolatility adjusts the volatility (in micro-USD).
func (s *SyntheticSource) SetVolatility(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volatility = v
}
