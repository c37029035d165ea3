// Package amm implements a constant-product swap pool over the two outcome
// shares of one market. Like the settlement engine it is pure logic: the
// exchange layer loads the pool row, applies an operation and persists the
// result in the same transaction that moves the shares.
package amm

import (
	"errors"
	"math/bits"
	"time"
)

const (
	// DefaultFeeBps is the swap fee, 30 basis points of the input amount.
	DefaultFeeBps  uint64 = 30
	feeDenominator uint64 = 10_000
)

var (
	ErrInvalidAmount         = errors.New("amount must be greater than zero")
	ErrEmptyPool             = errors.New("pool is empty")
	ErrSlippageExceeded      = errors.New("slippage tolerance exceeded")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrOverflow              = errors.New("arithmetic overflow")
)

// Pool holds both outcome-share reserves and the LP share supply. The
// constant product k = ReserveA * ReserveB is recomputed from the reserves;
// swap fees fold into the reserves, so k only ever grows between liquidity
// events.
type Pool struct {
	ID            string    `json:"id"`
	MarketID      string    `json:"market_id"`
	ReserveA      uint64    `json:"reserve_a"`
	ReserveB      uint64    `json:"reserve_b"`
	FeeBps        uint64    `json:"fee_bps"`
	TotalLPShares uint64    `json:"total_lp_shares"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewPool seeds a pool with both reserves taken from the creator and mints
// the first LP shares, reserveA*reserveB, to the creator.
func NewPool(id, marketID string, reserveA, reserveB uint64, now time.Time) (*Pool, uint64, error) {
	if reserveA == 0 || reserveB == 0 {
		return nil, 0, ErrInvalidAmount
	}
	lp, err := checkedMul(reserveA, reserveB)
	if err != nil {
		return nil, 0, err
	}
	p := &Pool{
		ID:            id,
		MarketID:      marketID,
		ReserveA:      reserveA,
		ReserveB:      reserveB,
		FeeBps:        DefaultFeeBps,
		TotalLPShares: lp,
		CreatedAt:     now,
	}
	return p, lp, nil
}

// Swap pays amountIn shares of one side into the pool and returns the
// opposite side's output: out = reserveOut - k/(reserveIn + inAfterFee).
// The full input, fee included, joins the reserves, so the fee accrues to
// the liquidity providers.
func (p *Pool) Swap(sideAIn bool, amountIn, minimumOut uint64) (amountOut, fee uint64, err error) {
	if amountIn == 0 {
		return 0, 0, ErrInvalidAmount
	}
	if p.ReserveA == 0 || p.ReserveB == 0 {
		return 0, 0, ErrEmptyPool
	}

	reserveIn, reserveOut := p.ReserveB, p.ReserveA
	if sideAIn {
		reserveIn, reserveOut = p.ReserveA, p.ReserveB
	}

	fee, err = mulDiv(amountIn, p.FeeBps, feeDenominator)
	if err != nil {
		return 0, 0, err
	}

	newReserveIn, err := checkedAdd(reserveIn, amountIn)
	if err != nil {
		return 0, 0, err
	}
	// The fee sits out of the price calculation but still joins the reserves.
	priced := newReserveIn - fee
	hi, lo := bits.Mul64(reserveIn, reserveOut)
	if hi >= priced {
		return 0, 0, ErrOverflow
	}
	// Round the retained reserve up. Rounding it down would let a pair of
	// fee-free dust swaps walk value out of the pool one unit at a time.
	newOut, rem := bits.Div64(hi, lo, priced)
	if rem > 0 {
		newOut++
	}
	amountOut = reserveOut - newOut

	if amountOut < minimumOut {
		return 0, 0, ErrSlippageExceeded
	}

	if sideAIn {
		p.ReserveA = newReserveIn
		p.ReserveB = reserveOut - amountOut
	} else {
		p.ReserveB = newReserveIn
		p.ReserveA = reserveOut - amountOut
	}
	return amountOut, fee, nil
}

// AddLiquidity deposits both sides and mints LP shares proportional to the
// smaller side's ratio against the reserves, so an unbalanced deposit still
// cannot move the price.
func (p *Pool) AddLiquidity(amountA, amountB, minimumLP uint64) (uint64, error) {
	if amountA == 0 || amountB == 0 {
		return 0, ErrInvalidAmount
	}
	if p.ReserveA == 0 || p.ReserveB == 0 || p.TotalLPShares == 0 {
		return 0, ErrEmptyPool
	}

	ratioA, err := mulDiv(amountA, p.TotalLPShares, p.ReserveA)
	if err != nil {
		return 0, err
	}
	ratioB, err := mulDiv(amountB, p.TotalLPShares, p.ReserveB)
	if err != nil {
		return 0, err
	}
	lp := min(ratioA, ratioB)

	if lp < minimumLP {
		return 0, ErrSlippageExceeded
	}
	if lp == 0 {
		// The deposit is too small to mint a single LP share; taking it
		// anyway would gift it to existing providers.
		return 0, ErrInsufficientLiquidity
	}

	newA, err := checkedAdd(p.ReserveA, amountA)
	if err != nil {
		return 0, err
	}
	newB, err := checkedAdd(p.ReserveB, amountB)
	if err != nil {
		return 0, err
	}
	newTotal, err := checkedAdd(p.TotalLPShares, lp)
	if err != nil {
		return 0, err
	}

	p.ReserveA = newA
	p.ReserveB = newB
	p.TotalLPShares = newTotal
	return lp, nil
}

// RemoveLiquidity burns LP shares and pays out both reserves proportionally.
func (p *Pool) RemoveLiquidity(lpAmount, minimumA, minimumB uint64) (outA, outB uint64, err error) {
	if lpAmount == 0 {
		return 0, 0, ErrInvalidAmount
	}
	if p.TotalLPShares == 0 {
		return 0, 0, ErrEmptyPool
	}
	if lpAmount > p.TotalLPShares {
		return 0, 0, ErrInsufficientLiquidity
	}

	outA, err = mulDiv(lpAmount, p.ReserveA, p.TotalLPShares)
	if err != nil {
		return 0, 0, err
	}
	outB, err = mulDiv(lpAmount, p.ReserveB, p.TotalLPShares)
	if err != nil {
		return 0, 0, err
	}
	if outA < minimumA || outB < minimumB {
		return 0, 0, ErrSlippageExceeded
	}

	p.ReserveA -= outA
	p.ReserveB -= outB
	p.TotalLPShares -= lpAmount
	return outA, outB, nil
}

// ImpliedPrices returns the pool's implied outcome prices on the PriceScale
// used by the order book: priceA = reserveB / (reserveA + reserveB). The two
// always sum exactly to the scale.
func (p *Pool) ImpliedPrices(priceScale uint64) (priceA, priceB uint64, err error) {
	total, err := checkedAdd(p.ReserveA, p.ReserveB)
	if err != nil {
		return 0, 0, err
	}
	if total == 0 {
		return 0, 0, ErrEmptyPool
	}
	priceA, err = mulDiv(p.ReserveB, priceScale, total)
	if err != nil {
		return 0, 0, err
	}
	return priceA, priceScale - priceA, nil
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

func checkedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrOverflow
	}
	return lo, nil
}

// mulDiv computes a*b/den with a 128-bit intermediate.
func mulDiv(a, b, den uint64) (uint64, error) {
	if den == 0 {
		return 0, ErrEmptyPool
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= den {
		return 0, ErrOverflow
	}
	q, _ := bits.Div64(hi, lo, den)
	return q, nil
}
