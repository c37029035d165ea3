// Package matcher discovers complementary order pairs and proposes them to
// the exchange. The engine does no discovery of its own; it validates
// whatever pair a caller proposes. This daemon is such a caller, an
// unprivileged loop over each market's open orders. Anything it proposes,
// any API client could propose by hand, and a rejected pair costs nothing.
package matcher

import (
	"context"
	"log"
	"time"

	"predex/internal/engine"
	"predex/internal/exchange"
)

// Matcher periodically scans open orders and proposes exact-complement
// matches (buy pairs) and merges (sell pairs).
type Matcher struct {
	exchange *exchange.Service
}

func New(exch *exchange.Service) *Matcher {
	return &Matcher{exchange: exch}
}

// Start launches the scan loop. It stops when the context is cancelled.
func (m *Matcher) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.scanOnce()
			}
		}
	}()
}

// scanOnce walks every active market and returns how many pairs were
// accepted by the exchange this pass.
func (m *Matcher) scanOnce() int {
	markets, err := m.exchange.Store().ListMarkets()
	if err != nil {
		log.Printf("matcher: listing markets failed: %v", err)
		return 0
	}

	proposed := 0
	for _, mkt := range markets {
		if !mkt.Active {
			continue
		}
		proposed += m.scanMarket(mkt.ID)
	}
	return proposed
}

func (m *Matcher) scanMarket(marketID string) int {
	orders, err := m.exchange.Store().ListOpenOrdersByMarket(marketID)
	if err != nil {
		log.Printf("matcher: listing orders for market %s failed: %v", marketID, err)
		return 0
	}

	// Partition by side and intent. The listing is oldest first, so pairing
	// walks in time priority.
	var buysA, buysB, sellsA, sellsB []*engine.Order
	for _, o := range orders {
		switch {
		case o.IsSell && o.Side == engine.SideA:
			sellsA = append(sellsA, o)
		case o.IsSell:
			sellsB = append(sellsB, o)
		case o.Side == engine.SideA:
			buysA = append(buysA, o)
		default:
			buysB = append(buysB, o)
		}
	}

	n := m.propose(marketID, buysA, buysB, false)
	n += m.propose(marketID, sellsA, sellsB, true)
	return n
}

// propose pairs each side-A order with the oldest side-B order at the exact
// complementary price. Each order joins at most one pair per pass; an order
// left partially filled pairs again on the next tick.
func (m *Matcher) propose(marketID string, sideA, sideB []*engine.Order, merge bool) int {
	byPrice := make(map[uint64][]*engine.Order, len(sideB))
	for _, o := range sideB {
		byPrice[o.Price] = append(byPrice[o.Price], o)
	}

	proposed := 0
	for _, a := range sideA {
		complement := engine.PriceScale - a.Price
		queue := byPrice[complement]
		if len(queue) == 0 {
			continue
		}
		b := queue[0]
		byPrice[complement] = queue[1:]

		var err error
		if merge {
			_, err = m.exchange.MergeOrders(marketID, a.ID, b.ID)
		} else {
			_, err = m.exchange.MatchOrders(marketID, a.ID, b.ID)
		}
		if err != nil {
			// Lost a race against a cancel or a competing proposer. The
			// next pass sees fresh state.
			log.Printf("matcher: pair %s/%s rejected: %v", a.ID, b.ID, err)
			continue
		}
		proposed++
	}
	return proposed
}
