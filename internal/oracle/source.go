// Package oracle keeps market conversion rates in line with the price of the
// collateral asset. A quote source reports the asset's USD price; the service
// turns each quote into a conversion rate (collateral base units per dollar of
// value) and pushes it into every active market it is the authority for. It
// also resolves parimutuel price pools that name it as oracle.
package oracle

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuote = errors.New("quote must be a positive price")
	ErrRateTooSmall = errors.New("computed rate rounds to zero")
)

// Quote is one USD price observation for the collateral asset.
type Quote struct {
	Price decimal.Decimal
	At    time.Time
}

// MicroUSD returns the quote in millionths of a dollar, the unit parimutuel
// price targets are set in. The fraction below a micro-dollar is truncated.
func (q Quote) MicroUSD() uint64 {
	micro := q.Price.Mul(decimal.New(1, 6)).IntPart()
	if micro < 0 {
		return 0
	}
	return uint64(micro)
}

// Source produces the current quote. Implementations are free to fetch,
// synthesize, or replay; the service handles caching and fallback.
type Source interface {
	FetchQuote() (Quote, error)
}

// ConversionRate converts a USD quote into collateral base units per unit of
// value: rate = baseUnitsPerCollateral / quote. With SOL collateral at 1e9
// lamports and a $142.35 quote, one dollar of value costs 7_024_938 lamports.
// The divide runs in decimal and truncates at the end.
func ConversionRate(baseUnitsPerCollateral uint64, quote decimal.Decimal) (uint64, error) {
	if quote.Sign() <= 0 {
		return 0, ErrInvalidQuote
	}
	rate := decimal.NewFromUint64(baseUnitsPerCollateral).Div(quote).IntPart()
	if rate < 1 {
		// A sub-unit rate would price every market at zero collateral.
		return 0, ErrRateTooSmall
	}
	return uint64(rate), nil
}
