// Package exchange coordinates the settlement engine with persistence. Each
// operation takes a per-market lock, loads the records it touches inside one
// store transaction, runs the engine transition, persists the results, and
// publishes the event only after the transaction commits.
package exchange

import (
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"predex/internal/engine"
	"predex/internal/outbox"
	"predex/internal/store"
)

// Service executes exchange operations. Reads can go to the store directly;
// every mutation goes through here so that account balances, market escrow
// and positions move together or not at all.
type Service struct {
	store    *store.Store
	outbox   *outbox.Outbox
	sink     func(engine.Event)
	now      func() time.Time
	treasury string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(st *store.Store) *Service {
	return &Service{
		store: st,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
}

// SetOutbox routes committed events through a durable outbox before any
// in-process sink sees them.
func (s *Service) SetOutbox(o *outbox.Outbox) {
	s.outbox = o
}

// SetSink registers an in-process observer for committed events, such as the
// WebSocket hub.
func (s *Service) SetSink(fn func(engine.Event)) {
	s.sink = fn
}

// SetClock overrides the time source, for tests.
func (s *Service) SetClock(fn func() time.Time) {
	s.now = fn
}

// SetTreasury names the account that collects pool creation fees. With no
// treasury configured the fee is waived.
func (s *Service) SetTreasury(accountID string) {
	s.treasury = accountID
}

// Store exposes the underlying store for read paths.
func (s *Service) Store() *store.Store {
	return s.store
}

// lockFor returns the mutex serializing mutations of one market or one
// parimutuel pool. SQLite would serialize the writes anyway; the lock keeps
// the read-compute-write cycle of concurrent requests from interleaving.
func (s *Service) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// publish hands a committed event to the outbox and the sink. The operation
// itself already committed, so outbox trouble is logged rather than returned.
func (s *Service) publish(ev engine.Event) {
	if s.outbox != nil {
		if _, err := s.outbox.Append(ev); err != nil {
			log.Printf("outbox append failed for %s: %v", ev.EventType(), err)
		}
	}
	if s.sink != nil {
		s.sink(ev)
	}
}

// accountAmount converts an engine amount to the signed account unit.
func accountAmount(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, engine.ErrOverflow
	}
	return int64(v), nil
}

// CreateMarket opens a market with the caller's account as its authority.
func (s *Service) CreateMarket(accountID, id string, conversionRate uint64) (*engine.Market, error) {
	if id == "" {
		id = uuid.New().String()
	}
	m, ev, err := engine.NewMarket(id, accountID, conversionRate, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateMarket(m); err != nil {
		return nil, err
	}
	s.publish(ev)
	return m, nil
}

// UpdateRate changes a market's conversion rate. Authority only.
func (s *Service) UpdateRate(accountID, marketID string, newRate uint64) (*engine.Market, error) {
	lock := s.lockFor(marketID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.store.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	m, err := tx.GetMarket(marketID)
	if err != nil {
		return nil, err
	}
	ev, err := engine.UpdateRate(m, accountID, newRate, s.now())
	if err != nil {
		return nil, err
	}
	if err := tx.UpdateMarket(m); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.publish(ev)
	return m, nil
}

// Resolve settles a market on the winning side. Authority only, one-shot.
func (s *Service) Resolve(accountID, marketID string, winner engine.Side) (*engine.Market, error) {
	lock := s.lockFor(marketID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.store.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	m, err := tx.GetMarket(marketID)
	if err != nil {
		return nil, err
	}
	ev, err := engine.Resolve(m, accountID, winner, s.now())
	if err != nil {
		return nil, err
	}
	if err := tx.UpdateMarket(m); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.publish(ev)
	return m, nil
}

// PlaceOrder places a buy order and debits the collateral from the caller's
// account. The debit happens after the engine accepts the order, so an
// unaffordable order rolls back without touching anything.
func (s *Service) PlaceOrder(accountID, marketID string, side engine.Side, price, quantity uint64) (*engine.Order, error) {
	lock := s.lockFor(marketID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.store.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	m, err := tx.GetMarket(marketID)
	if err != nil {
		return nil, err
	}
	order, ev, err := engine.PlaceOrder(m, "", accountID, side, price, quantity, s.now())
	if err != nil {
		return nil, err
	}
	cost, err := accountAmount(order.CollateralDeposited)
	if err != nil {
		return nil, err
	}
	if err := tx.DebitAccount(accountID, cost); err != nil {
		return nil, err
	}
	if err := tx.SaveOrder(order); err != nil {
		return nil, err
	}
	if err := tx.UpdateMarket(m); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.publish(ev)
	return order, nil
}

// PlaceSellOrder places a sell order backed by held shares. No collateral
// moves; the market record is untouched until the order merges.
func (s *Service) PlaceSellOrder(accountID, marketID string, side engine.Side, price, quantity uint64) (*engine.Order, error) {
	lock := s.lockFor(marketID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.store.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	m, err := tx.GetMarket(marketID)
	if err != nil {
		return nil, err
	}
	pos, err := tx.GetPosition(accountID, marketID)
	if err != nil {
		return nil, err
	}
	order, ev, err := engine.PlaceSellOrder(m, pos, "", accountID, side, price, quantity, s.now())
	if err != nil {
		return nil, err
	}
	if err := tx.SaveOrder(order); err != nil {
		return nil, err
	}
	if err := tx.SavePosition(pos); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.publish(ev)
	return order, nil
}

// MatchOrders executes a proposed pair of complementary buy orders. Anyone
// may propose a pair; the engine rejects invalid ones.
func (s *Service) MatchOrders(marketID, orderIDA, orderIDB string) (*engine.OrdersMatched, error) {
	lock := s.lockFor(marketID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.store.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	m, err := tx.GetMarket(marketID)
	if err != nil {
		return nil, err
	}
	a, err := tx.GetOrder(orderIDA)
	if err != nil {
		return nil, err
	}
	b, err := tx.GetOrder(orderIDB)
	if err != nil {
		return nil, err
	}

	// A self-match must see one position record, not two copies of it.
	posA, err := tx.GetPosition(a.Owner, marketID)
	if err != nil {
		return nil, err
	}
	posB := posA
	if b.Owner != a.Owner {
		posB, err = tx.GetPosition(b.Owner, marketID)
		if err != nil {
			return nil, err
		}
	}

	ev, err := engine.MatchOrders(m, a, b, posA, posB, s.now())
	if err != nil {
		return nil, err
	}

	if err := tx.UpdateOrder(a); err != nil {
		return nil, err
	}
	if err := tx.UpdateOrder(b); err != nil {
		return nil, err
	}
	if err := tx.SavePosition(posA); err != nil {
		return nil, err
	}
	if posB != posA {
		if err := tx.SavePosition(posB); err != nil {
			return nil, err
		}
	}
	if err := tx.UpdateMarket(m); err != nil {
		return nil, err
	}
	if err := tx.InsertMatchFill(ev); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.publish(ev)
	return ev, nil
}

// MergeOrders executes a proposed pair of complementary sell orders and
// credits both sellers from the escrow.
func (s *Service) MergeOrders(marketID, orderIDA, orderIDB string) (*engine.SharesMerged, error) {
	lock := s.lockFor(marketID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.store.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	m, err := tx.GetMarket(marketID)
	if err != nil {
		return nil, err
	}
	a, err := tx.GetOrder(orderIDA)
	if err != nil {
		return nil, err
	}
	b, err := tx.GetOrder(orderIDB)
	if err != nil {
		return nil, err
	}

	posA, err := tx.GetPosition(a.Owner, marketID)
	if err != nil {
		return nil, err
	}
	posB := posA
	if b.Owner != a.Owner {
		posB, err = tx.GetPosition(b.Owner, marketID)
		if err != nil {
			return nil, err
		}
	}

	ev, err := engine.MergeOrders(m, a, b, posA, posB, s.now())
	if err != nil {
		return nil, err
	}

	payoutA, err := accountAmount(ev.PayoutA)
	if err != nil {
		return nil, err
	}
	payoutB, err := accountAmount(ev.PayoutB)
	if err != nil {
		return nil, err
	}
	if err := tx.CreditAccount(ev.SellerA, payoutA); err != nil {
		return nil, err
	}
	if err := tx.CreditAccount(ev.SellerB, payoutB); err != nil {
		return nil, err
	}

	if err := tx.UpdateOrder(a); err != nil {
		return nil, err
	}
	if err := tx.UpdateOrder(b); err != nil {
		return nil, err
	}
	if err := tx.SavePosition(posA); err != nil {
		return nil, err
	}
	if posB != posA {
		if err := tx.SavePosition(posB); err != nil {
			return nil, err
		}
	}
	if err := tx.UpdateMarket(m); err != nil {
		return nil, err
	}

	// The merge event carries payouts but not prices; the fill row records
	// the normalized side-A and side-B prices.
	priceA, priceB := a.Price, b.Price
	if a.Side == engine.SideB {
		priceA, priceB = b.Price, a.Price
	}
	if err := tx.InsertMergeFill(ev, priceA, priceB); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.publish(ev)
	return ev, nil
}

// CancelOrder cancels the caller's order and refunds the unfilled share of
// the collateral. Allowed after resolution so resting orders are not stuck.
func (s *Service) CancelOrder(accountID, orderID string) (uint64, error) {
	// The order names its market; look it up first so the right lock is held
	// before the transactional re-read.
	order, err := s.store.GetOrder(orderID)
	if err != nil {
		return 0, err
	}

	lock := s.lockFor(order.MarketID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.store.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	m, err := tx.GetMarket(order.MarketID)
	if err != nil {
		return 0, err
	}
	order, err = tx.GetOrder(orderID)
	if err != nil {
		return 0, err
	}
	pos, err := tx.GetPosition(order.Owner, order.MarketID)
	if err != nil {
		return 0, err
	}

	refund, ev, err := engine.CancelOrder(m, order, pos, accountID, s.now())
	if err != nil {
		return 0, err
	}

	if refund > 0 {
		amount, err := accountAmount(refund)
		if err != nil {
			return 0, err
		}
		if err := tx.CreditAccount(accountID, amount); err != nil {
			return 0, err
		}
	}
	if err := tx.UpdateOrder(order); err != nil {
		return 0, err
	}
	if order.IsSell {
		if err := tx.SavePosition(pos); err != nil {
			return 0, err
		}
	}
	if err := tx.UpdateMarket(m); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	s.publish(ev)
	return refund, nil
}

// Redeem pays out the caller's winning shares on a resolved market.
func (s *Service) Redeem(accountID, marketID string) (uint64, error) {
	lock := s.lockFor(marketID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.store.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	m, err := tx.GetMarket(marketID)
	if err != nil {
		return 0, err
	}
	pos, err := tx.GetPosition(accountID, marketID)
	if err != nil {
		return 0, err
	}

	payout, ev, err := engine.Redeem(m, pos, accountID, s.now())
	if err != nil {
		return 0, err
	}

	amount, err := accountAmount(payout)
	if err != nil {
		return 0, err
	}
	if err := tx.CreditAccount(accountID, amount); err != nil {
		return 0, err
	}
	if err := tx.SavePosition(pos); err != nil {
		return 0, err
	}
	if err := tx.UpdateMarket(m); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	s.publish(ev)
	return payout, nil
}
