// Package engine implements the settlement core of a binary-outcome
// prediction market: order placement, complementary-price matching, share
// issuance and burning, proportional cancellation refunds, and
// post-resolution redemption.
//
// The engine is pure state-machine logic. It performs no I/O and holds no
// locks; callers load the records an operation touches, invoke the operation,
// and persist the results inside their own atomic scope. Every operation
// front-loads all validation and arithmetic so that a rejected call leaves
// every record untouched.
//
// The engine performs no order discovery. Matching and merging execute a
// proposed pair of orders supplied by the caller; anyone may propose any
// pair, and invalid pairs are simply rejected.
package engine

import (
	"time"

	"github.com/google/uuid"
)

// PlaceOrder creates a buy order on one side of the market. The required
// collateral, price*quantity*rate/PriceScale, is recorded on the order and
// added to the market escrow; the caller debits the owner's account by
// Order.CollateralDeposited in the same atomic scope.
func PlaceOrder(m *Market, id, owner string, side Side, price, quantity uint64, now time.Time) (*Order, *OrderPlaced, error) {
	if !m.Active {
		return nil, nil, ErrMarketInactive
	}
	if price == 0 || price >= PriceScale {
		return nil, nil, ErrInvalidPrice
	}
	if quantity == 0 {
		return nil, nil, ErrInvalidAmount
	}

	cost, err := scaledValue(price, quantity, m.ConversionRate)
	if err != nil {
		return nil, nil, err
	}
	newEscrow, err := checkedAdd(m.EscrowBalance, cost)
	if err != nil {
		return nil, nil, err
	}

	if id == "" {
		id = uuid.New().String()
	}
	order := &Order{
		ID:                  id,
		Owner:               owner,
		MarketID:            m.ID,
		Side:                side,
		Price:               price,
		OriginalQty:         quantity,
		CollateralDeposited: cost,
		Status:              StatusOpen,
		CreatedAt:           now,
	}

	m.EscrowBalance = newEscrow
	if side == SideA {
		m.OrderCountA++
	} else {
		m.OrderCountB++
	}

	ev := &OrderPlaced{
		OrderID:   order.ID,
		Owner:     owner,
		MarketID:  m.ID,
		Side:      side,
		Price:     price,
		Quantity:  quantity,
		Cost:      cost,
		Timestamp: now.Unix(),
	}
	return order, ev, nil
}

// PlaceSellOrder creates a sell order backed by shares the owner already
// holds. No collateral is deposited; the quantity is locked in the owner's
// position until the order merges or is cancelled. Shares already earmarked
// by other open sell orders are not available to lock again.
func PlaceSellOrder(m *Market, pos *Position, id, owner string, side Side, price, quantity uint64, now time.Time) (*Order, *OrderPlaced, error) {
	if !m.Active {
		return nil, nil, ErrMarketInactive
	}
	if price == 0 || price >= PriceScale {
		return nil, nil, ErrInvalidPrice
	}
	if quantity == 0 {
		return nil, nil, ErrInvalidAmount
	}
	if pos.Available(side) < quantity {
		return nil, nil, ErrInsufficientShares
	}

	if id == "" {
		id = uuid.New().String()
	}
	order := &Order{
		ID:          id,
		Owner:       owner,
		MarketID:    m.ID,
		Side:        side,
		Price:       price,
		OriginalQty: quantity,
		Status:      StatusOpen,
		IsSell:      true,
		CreatedAt:   now,
	}

	pos.addLocked(side, quantity)

	ev := &OrderPlaced{
		OrderID:   order.ID,
		Owner:     owner,
		MarketID:  m.ID,
		Side:      side,
		Price:     price,
		Quantity:  quantity,
		IsSell:    true,
		Timestamp: now.Unix(),
	}
	return order, ev, nil
}

// MatchOrders executes a proposed pair of complementary buy orders. Both
// orders must be fillable, on opposite sides of the same market, and priced
// so that priceA + priceB == PriceScale: together the two buyers fund exactly
// one unit of payout per matched share.
//
// min(remaining, remaining) shares are issued to each owner's position. No
// collateral moves; the escrow already holds both deposits and keeps them as
// payout backing. posFirst and posSecond are the positions of the first and
// second order's owners; for a self-match they may be the same record.
func MatchOrders(m *Market, first, second *Order, posFirst, posSecond *Position, now time.Time) (*OrdersMatched, error) {
	if !m.Active {
		return nil, ErrMarketInactive
	}
	if first.IsSell || second.IsSell {
		return nil, ErrNotABuyOrder
	}
	if !first.IsOpen() || !second.IsOpen() {
		return nil, ErrOrderNotOpen
	}
	if first.Side == second.Side {
		return nil, ErrInvalidOrderSide
	}
	if first.MarketID != second.MarketID || first.MarketID != m.ID {
		return nil, ErrMarketMismatch
	}
	if first.Price+second.Price != PriceScale {
		return nil, ErrPricesMustSumToOne
	}
	qty := min(first.Remaining(), second.Remaining())
	if qty == 0 {
		return nil, ErrNoMatchQuantity
	}

	volume, err := checkedMul(qty, m.ConversionRate)
	if err != nil {
		return nil, err
	}
	newVolume, err := checkedAdd(m.TotalVolume, volume)
	if err != nil {
		return nil, err
	}

	// Normalize so a is the side-A order.
	a, b, posA, posB := first, second, posFirst, posSecond
	if a.Side == SideB {
		a, b, posA, posB = second, first, posSecond, posFirst
	}

	a.fill(qty)
	b.fill(qty)
	posA.addHeld(SideA, qty)
	posB.addHeld(SideB, qty)

	m.TotalIssuedA += qty
	m.TotalIssuedB += qty
	m.LastPriceA = a.Price
	m.LastPriceB = b.Price
	m.TotalVolume = newVolume

	return &OrdersMatched{
		OrderIDA:  a.ID,
		OrderIDB:  b.ID,
		MarketID:  m.ID,
		OwnerA:    a.Owner,
		OwnerB:    b.Owner,
		PriceA:    a.Price,
		PriceB:    b.Price,
		Quantity:  qty,
		Timestamp: now.Unix(),
	}, nil
}

// MergeOrders executes a proposed pair of complementary sell orders: the
// inverse of issuance. min(remaining, remaining) shares are burned from both
// sellers' held and locked balances, the market's issued totals shrink by the
// same quantity, and each seller is paid price*qty*rate/PriceScale from the
// escrow. Together the payouts return exactly the one unit of backing per
// share that issuance collected.
//
// The caller credits each seller's account by the returned event's PayoutA
// and PayoutB in the same atomic scope.
func MergeOrders(m *Market, first, second *Order, posFirst, posSecond *Position, now time.Time) (*SharesMerged, error) {
	if !m.Active {
		return nil, ErrMarketInactive
	}
	if !first.IsSell || !second.IsSell {
		return nil, ErrNotASellOrder
	}
	if !first.IsOpen() || !second.IsOpen() {
		return nil, ErrOrderNotOpen
	}
	if first.Side == second.Side {
		return nil, ErrInvalidOrderSide
	}
	if first.MarketID != second.MarketID || first.MarketID != m.ID {
		return nil, ErrMarketMismatch
	}
	if first.Price+second.Price != PriceScale {
		return nil, ErrPricesMustSumToOne
	}
	qty := min(first.Remaining(), second.Remaining())
	if qty == 0 {
		return nil, ErrNoMatchQuantity
	}
	if posFirst.Held(first.Side) < qty || posFirst.Locked(first.Side) < qty {
		return nil, ErrInsufficientShares
	}
	if posSecond.Held(second.Side) < qty || posSecond.Locked(second.Side) < qty {
		return nil, ErrInsufficientShares
	}

	a, b, posA, posB := first, second, posFirst, posSecond
	if a.Side == SideB {
		a, b, posA, posB = second, first, posSecond, posFirst
	}

	payoutA, err := scaledValue(a.Price, qty, m.ConversionRate)
	if err != nil {
		return nil, err
	}
	payoutB, err := scaledValue(b.Price, qty, m.ConversionRate)
	if err != nil {
		return nil, err
	}
	totalPayout, err := checkedAdd(payoutA, payoutB)
	if err != nil {
		return nil, err
	}
	newEscrow, err := checkedSub(m.EscrowBalance, totalPayout)
	if err != nil {
		return nil, err
	}
	newIssuedA, err := checkedSub(m.TotalIssuedA, qty)
	if err != nil {
		return nil, err
	}
	newIssuedB, err := checkedSub(m.TotalIssuedB, qty)
	if err != nil {
		return nil, err
	}

	posA.subHeld(SideA, qty)
	posA.subLocked(SideA, qty)
	posB.subHeld(SideB, qty)
	posB.subLocked(SideB, qty)

	a.fill(qty)
	b.fill(qty)

	m.TotalIssuedA = newIssuedA
	m.TotalIssuedB = newIssuedB
	m.EscrowBalance = newEscrow

	return &SharesMerged{
		OrderIDA:  a.ID,
		OrderIDB:  b.ID,
		MarketID:  m.ID,
		SellerA:   a.Owner,
		SellerB:   b.Owner,
		Quantity:  qty,
		PayoutA:   payoutA,
		PayoutB:   payoutB,
		Timestamp: now.Unix(),
	}, nil
}

// CancelOrder cancels the caller's open or partially filled order. The
// unfilled fraction of the deposit is refunded:
// collateral*remaining/original, widened before the divide. Sell orders carry
// no deposit, so their refund is zero and the still-locked remainder is
// released back to the owner's available shares instead.
//
// Cancellation is permitted after resolution; open orders on a resolved
// market are otherwise stuck. The caller credits the owner's account by the
// returned refund.
func CancelOrder(m *Market, o *Order, pos *Position, caller string, now time.Time) (uint64, *OrderCancelled, error) {
	if o.Owner != caller {
		return 0, nil, ErrUnauthorized
	}
	if o.Status != StatusOpen && o.Status != StatusPartiallyFilled {
		return 0, nil, ErrOrderNotCancellable
	}
	if o.MarketID != m.ID {
		return 0, nil, ErrMarketMismatch
	}

	remaining := o.Remaining()
	refund, err := mulDiv(o.CollateralDeposited, remaining, o.OriginalQty)
	if err != nil {
		return 0, nil, err
	}
	newEscrow, err := checkedSub(m.EscrowBalance, refund)
	if err != nil {
		return 0, nil, err
	}

	o.Status = StatusCancelled
	m.EscrowBalance = newEscrow
	if o.IsSell {
		// Winning-side redemption clears the lock along with the shares,
		// so a later cancel may find less locked than remained.
		pos.subLocked(o.Side, min(remaining, pos.Locked(o.Side)))
	}

	return refund, &OrderCancelled{
		OrderID:   o.ID,
		Owner:     o.Owner,
		MarketID:  o.MarketID,
		Refund:    refund,
		Timestamp: now.Unix(),
	}, nil
}

// Redeem pays out the caller's winning shares on a resolved market: each
// winning share is worth one full unit of value, shares*rate. The winning
// held balance (and any lock earmarked on it) is zeroed, so a repeat call
// finds nothing left to redeem.
//
// The caller credits the owner's account by the returned payout.
func Redeem(m *Market, pos *Position, caller string, now time.Time) (uint64, *SharesRedeemed, error) {
	if m.Active {
		return 0, nil, ErrMarketStillActive
	}
	if pos.Owner != caller {
		return 0, nil, ErrUnauthorized
	}

	winner := m.WinningSide
	shares := pos.Held(winner)
	if shares == 0 {
		return 0, nil, ErrNoSharesToRedeem
	}

	payout, err := checkedMul(shares, m.ConversionRate)
	if err != nil {
		return 0, nil, err
	}
	newEscrow, err := checkedSub(m.EscrowBalance, payout)
	if err != nil {
		return 0, nil, err
	}

	pos.subHeld(winner, shares)
	pos.subLocked(winner, pos.Locked(winner))
	m.EscrowBalance = newEscrow

	return payout, &SharesRedeemed{
		Owner:       pos.Owner,
		MarketID:    m.ID,
		WinningSide: winner,
		Shares:      shares,
		Payout:      payout,
		Timestamp:   now.Unix(),
	}, nil
}
