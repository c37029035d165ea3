package exchange

import (
	"github.com/google/uuid"

	"predex/internal/amm"
	"predex/internal/engine"
)

// CreatePool seeds a swap pool for a market with outcome shares taken from
// the creator's position. The creator receives the initial LP shares. One
// pool per market.
func (s *Service) CreatePool(accountID, marketID string, reserveA, reserveB uint64) (*amm.Pool, error) {
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
	if !m.Active {
		return nil, engine.ErrMarketInactive
	}
	pos, err := tx.GetPosition(accountID, marketID)
	if err != nil {
		return nil, err
	}

	pool, lp, err := amm.NewPool(uuid.New().String(), marketID, reserveA, reserveB, s.now())
	if err != nil {
		return nil, err
	}
	if err := pos.RemoveShares(engine.SideA, reserveA); err != nil {
		return nil, err
	}
	if err := pos.RemoveShares(engine.SideB, reserveB); err != nil {
		return nil, err
	}

	if err := tx.CreateAMMPool(pool); err != nil {
		return nil, err
	}
	if err := tx.SavePosition(pos); err != nil {
		return nil, err
	}
	if err := tx.SaveLPShares(pool.ID, accountID, lp); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.publish(&amm.PoolCreated{
		PoolID:    pool.ID,
		MarketID:  marketID,
		Creator:   accountID,
		ReserveA:  reserveA,
		ReserveB:  reserveB,
		LPShares:  lp,
		Timestamp: s.now().Unix(),
	})
	return pool, nil
}

// Swap trades the caller's shares of one side for the other through the
// pool. The input shares leave the caller's position before the output
// shares arrive, all inside one transaction.
func (s *Service) Swap(accountID, poolID string, sideAIn bool, amountIn, minimumOut uint64) (*amm.SwapExecuted, error) {
	// The pool names its market; look it up first so the right lock is held
	// before the transactional re-read.
	pool, err := s.store.GetAMMPool(poolID)
	if err != nil {
		return nil, err
	}

	lock := s.lockFor(pool.MarketID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.store.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	m, err := tx.GetMarket(pool.MarketID)
	if err != nil {
		return nil, err
	}
	if !m.Active {
		return nil, engine.ErrMarketInactive
	}
	pool, err = tx.GetAMMPool(poolID)
	if err != nil {
		return nil, err
	}
	pos, err := tx.GetPosition(accountID, pool.MarketID)
	if err != nil {
		return nil, err
	}

	amountOut, fee, err := pool.Swap(sideAIn, amountIn, minimumOut)
	if err != nil {
		return nil, err
	}

	inSide, outSide := engine.SideA, engine.SideB
	if !sideAIn {
		inSide, outSide = engine.SideB, engine.SideA
	}
	if err := pos.RemoveShares(inSide, amountIn); err != nil {
		return nil, err
	}
	pos.AddShares(outSide, amountOut)

	if err := tx.UpdateAMMPool(pool); err != nil {
		return nil, err
	}
	if err := tx.SavePosition(pos); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	ev := &amm.SwapExecuted{
		PoolID:    pool.ID,
		MarketID:  pool.MarketID,
		Trader:    accountID,
		SideAIn:   sideAIn,
		AmountIn:  amountIn,
		AmountOut: amountOut,
		Fee:       fee,
		Timestamp: s.now().Unix(),
	}
	s.publish(ev)
	return ev, nil
}

// AddLiquidity deposits shares on both sides and mints LP shares to the
// caller at the current reserve ratio.
func (s *Service) AddLiquidity(accountID, poolID string, amountA, amountB, minimumLP uint64) (uint64, error) {
	pool, err := s.store.GetAMMPool(poolID)
	if err != nil {
		return 0, err
	}

	lock := s.lockFor(pool.MarketID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.store.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	m, err := tx.GetMarket(pool.MarketID)
	if err != nil {
		return 0, err
	}
	if !m.Active {
		return 0, engine.ErrMarketInactive
	}
	pool, err = tx.GetAMMPool(poolID)
	if err != nil {
		return 0, err
	}
	pos, err := tx.GetPosition(accountID, pool.MarketID)
	if err != nil {
		return 0, err
	}

	lp, err := pool.AddLiquidity(amountA, amountB, minimumLP)
	if err != nil {
		return 0, err
	}
	if err := pos.RemoveShares(engine.SideA, amountA); err != nil {
		return 0, err
	}
	if err := pos.RemoveShares(engine.SideB, amountB); err != nil {
		return 0, err
	}

	held, err := tx.GetLPShares(pool.ID, accountID)
	if err != nil {
		return 0, err
	}
	if held+lp < held {
		return 0, engine.ErrOverflow
	}
	if err := tx.SaveLPShares(pool.ID, accountID, held+lp); err != nil {
		return 0, err
	}
	if err := tx.UpdateAMMPool(pool); err != nil {
		return 0, err
	}
	if err := tx.SavePosition(pos); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	s.publish(&amm.LiquidityAdded{
		PoolID:    pool.ID,
		MarketID:  pool.MarketID,
		Provider:  accountID,
		AmountA:   amountA,
		AmountB:   amountB,
		LPShares:  lp,
		Timestamp: s.now().Unix(),
	})
	return lp, nil
}

// RemoveLiquidity burns the caller's LP shares and returns both sides'
// shares to their position. Withdrawal stays open after the market
// resolves, so providers can pull their shares out and redeem the winners.
func (s *Service) RemoveLiquidity(accountID, poolID string, lpAmount, minimumA, minimumB uint64) (amountA, amountB uint64, err error) {
	pool, err := s.store.GetAMMPool(poolID)
	if err != nil {
		return 0, 0, err
	}

	lock := s.lockFor(pool.MarketID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.store.Begin()
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	pool, err = tx.GetAMMPool(poolID)
	if err != nil {
		return 0, 0, err
	}
	pos, err := tx.GetPosition(accountID, pool.MarketID)
	if err != nil {
		return 0, 0, err
	}
	held, err := tx.GetLPShares(pool.ID, accountID)
	if err != nil {
		return 0, 0, err
	}
	if held < lpAmount {
		return 0, 0, amm.ErrInsufficientLiquidity
	}

	amountA, amountB, err = pool.RemoveLiquidity(lpAmount, minimumA, minimumB)
	if err != nil {
		return 0, 0, err
	}
	pos.AddShares(engine.SideA, amountA)
	pos.AddShares(engine.SideB, amountB)

	if err := tx.SaveLPShares(pool.ID, accountID, held-lpAmount); err != nil {
		return 0, 0, err
	}
	if err := tx.UpdateAMMPool(pool); err != nil {
		return 0, 0, err
	}
	if err := tx.SavePosition(pos); err != nil {
		return 0, 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	s.publish(&amm.LiquidityRemoved{
		PoolID:    pool.ID,
		MarketID:  pool.MarketID,
		Provider:  accountID,
		LPShares:  lpAmount,
		AmountA:   amountA,
		AmountB:   amountB,
		Timestamp: s.now().Unix(),
	})
	return amountA, amountB, nil
}
