package engine

import (
	"fmt"
	"time"
)

// PriceScale is the fixed-point denominator for prices. A price is a fraction
// of one unit of value: price 600_000 means 0.60.
const PriceScale uint64 = 1_000_000

// Side is one of the two complementary outcomes of a binary market.
type Side int

const (
	SideA Side = iota
	SideB
)

func (s Side) String() string {
	if s == SideA {
		return "a"
	}
	return "b"
}

// Opposite returns the complementary side.
func (s Side) Opposite() Side {
	if s == SideA {
		return SideB
	}
	return SideA
}

// MarshalJSON renders a side as its letter, so payloads carry "a" and "b"
// rather than bare integers.
func (s Side) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

func (s *Side) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"a"`:
		*s = SideA
	case `"b"`:
		*s = SideB
	default:
		return fmt.Errorf("invalid side %q", data)
	}
	return nil
}

// Status is the lifecycle state of an order. Cancelled and Filled are
// terminal; a status never regresses.
type Status int

const (
	StatusOpen Status = iota
	StatusPartiallyFilled
	StatusFilled
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusPartiallyFilled:
		return "partially_filled"
	case StatusFilled:
		return "filled"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

func (s *Status) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"open"`:
		*s = StatusOpen
	case `"partially_filled"`:
		*s = StatusPartiallyFilled
	case `"filled"`:
		*s = StatusFilled
	case `"cancelled"`:
		*s = StatusCancelled
	default:
		return fmt.Errorf("invalid status %q", data)
	}
	return nil
}

// Order is a resting buy or sell order on one side of a market. Buy orders
// escrow collateral at placement; sell orders lock already-held shares
// instead and carry zero collateral.
type Order struct {
	ID                  string    `json:"id"`
	Owner               string    `json:"owner"`
	MarketID            string    `json:"market_id"`
	Side                Side      `json:"side"`
	Price               uint64    `json:"price"`
	OriginalQty         uint64    `json:"original_qty"`
	FilledQty           uint64    `json:"filled_qty"`
	CollateralDeposited uint64    `json:"collateral_deposited"`
	Status              Status    `json:"status"`
	IsSell              bool      `json:"is_sell"`
	CreatedAt           time.Time `json:"created_at"`
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() uint64 {
	return o.OriginalQty - o.FilledQty
}

// IsOpen reports whether the order can still fill: Open or PartiallyFilled.
func (o *Order) IsOpen() bool {
	return o.Status == StatusOpen || o.Status == StatusPartiallyFilled
}

// fill applies a fill of qty and advances the status. Callers validate qty
// against Remaining first.
func (o *Order) fill(qty uint64) {
	o.FilledQty += qty
	if o.Remaining() == 0 {
		o.Status = StatusFilled
	} else {
		o.Status = StatusPartiallyFilled
	}
}
