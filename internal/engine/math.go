package engine

import "math/bits"

// All collateral arithmetic works on uint64 amounts. Products are widened to
// 128 bits before dividing and narrowed only after the final divide; anything
// that cannot be represented in 64 bits afterwards is an ErrOverflow, never a
// silent wrap.

// mulDiv returns a*b/den using a 128-bit intermediate product.
func mulDiv(a, b, den uint64) (uint64, error) {
	if den == 0 {
		return 0, ErrDivisionByZero
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= den {
		return 0, ErrOverflow // quotient does not fit in 64 bits
	}
	q, _ := bits.Div64(hi, lo, den)
	return q, nil
}

func checkedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrOverflow
	}
	return lo, nil
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

func checkedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrOverflow
	}
	return diff, nil
}

// scaledValue returns price*quantity*rate/PriceScale exactly.
//
// price*quantity alone can approach 2^64, so the product is split against
// PriceScale first: with price*quantity = q*PriceScale + r, the result is
// q*rate + r*rate/PriceScale. Because price < PriceScale, q always fits in
// 64 bits; only the final q*rate can genuinely overflow.
func scaledValue(price, quantity, rate uint64) (uint64, error) {
	hi, lo := bits.Mul64(price, quantity)
	if hi >= PriceScale {
		return 0, ErrOverflow
	}
	q, r := bits.Div64(hi, lo, PriceScale)

	whole, err := checkedMul(q, rate)
	if err != nil {
		return 0, err
	}
	frac, err := mulDiv(r, rate, PriceScale)
	if err != nil {
		return 0, err
	}
	return checkedAdd(whole, frac)
}
