package engine

import (
	"time"
)

// Market is the registry record for one binary market: the conversion rate,
// aggregate counters, the active/resolved flag and the escrow balance backing
// all open buy orders and outstanding shares.
//
// Invariant: TotalIssuedA == TotalIssuedB at all times. Every match issues the
// same quantity to both sides; every merge burns the same quantity from both.
type Market struct {
	ID             string    `json:"id"`
	Authority      string    `json:"authority"`
	ConversionRate uint64    `json:"conversion_rate"` // collateral base units per unit of value
	OrderCountA    uint64    `json:"order_count_a"`
	OrderCountB    uint64    `json:"order_count_b"`
	TotalIssuedA   uint64    `json:"total_issued_a"`
	TotalIssuedB   uint64    `json:"total_issued_b"`
	TotalVolume    uint64    `json:"total_volume"`
	LastPriceA     uint64    `json:"last_price_a"`
	LastPriceB     uint64    `json:"last_price_b"`
	EscrowBalance  uint64    `json:"escrow_balance"`
	Active         bool      `json:"active"`
	WinningSide    Side      `json:"winning_side"` // meaningful only once resolved
	CreatedAt      time.Time `json:"created_at"`
}

// NewMarket opens a market. The authority account is the only caller allowed
// to update the conversion rate or resolve the market. Last prices start at
// the midpoint: with no trades yet, both outcomes are priced 50/50.
func NewMarket(id, authority string, conversionRate uint64, now time.Time) (*Market, *MarketCreated, error) {
	if conversionRate == 0 {
		return nil, nil, ErrInvalidAmount
	}
	m := &Market{
		ID:             id,
		Authority:      authority,
		ConversionRate: conversionRate,
		LastPriceA:     PriceScale / 2,
		LastPriceB:     PriceScale / 2,
		Active:         true,
		CreatedAt:      now,
	}
	ev := &MarketCreated{
		MarketID:       id,
		Authority:      authority,
		ConversionRate: conversionRate,
		Timestamp:      now.Unix(),
	}
	return m, ev, nil
}

// UpdateRate replaces the conversion rate. Authority only; a zero rate is
// rejected so cost and payout math can never divide into nothing.
func UpdateRate(m *Market, caller string, newRate uint64, now time.Time) (*RateUpdated, error) {
	if caller != m.Authority {
		return nil, ErrUnauthorized
	}
	if newRate == 0 {
		return nil, ErrInvalidAmount
	}
	old := m.ConversionRate
	m.ConversionRate = newRate
	return &RateUpdated{
		MarketID:  m.ID,
		OldRate:   old,
		NewRate:   newRate,
		Timestamp: now.Unix(),
	}, nil
}

// Resolve deactivates the market and records the winning side. Authority
// only, and only once: a resolved market cannot be resolved again.
func Resolve(m *Market, caller string, winner Side, now time.Time) (*MarketResolved, error) {
	if caller != m.Authority {
		return nil, ErrUnauthorized
	}
	if !m.Active {
		return nil, ErrMarketInactive
	}
	m.Active = false
	m.WinningSide = winner
	return &MarketResolved{
		MarketID:    m.ID,
		WinningSide: winner,
		Timestamp:   now.Unix(),
	}, nil
}
