package engine

import "errors"

var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidPrice        = errors.New("price must be between 0 and the price scale, exclusive")
	ErrPricesMustSumToOne  = errors.New("prices must sum to exactly one unit")
	ErrMarketInactive      = errors.New("market is not active")
	ErrMarketStillActive   = errors.New("market has not been resolved")
	ErrOrderNotOpen        = errors.New("order is not open")
	ErrOrderNotCancellable = errors.New("order cannot be cancelled")
	ErrInvalidOrderSide    = errors.New("orders must be on opposite sides")
	ErrMarketMismatch      = errors.New("orders belong to different markets")
	ErrNoMatchQuantity     = errors.New("no quantity available to match")
	ErrInsufficientShares  = errors.New("insufficient unlocked shares")
	ErrNotASellOrder       = errors.New("order is not a sell order")
	ErrNotABuyOrder        = errors.New("order is not a buy order")
	ErrNoSharesToRedeem    = errors.New("no winning shares to redeem")
	ErrUnauthorized        = errors.New("caller is not authorized")
	ErrOverflow            = errors.New("arithmetic overflow")
	ErrDivisionByZero      = errors.New("division by zero")
)
