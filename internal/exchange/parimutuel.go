package exchange

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"predex/internal/parimutuel"
	"predex/internal/store"
)

// CreatePricePool opens a parimutuel pool on a price target. The named
// oracle account is the only identity that can resolve it. When a treasury
// is configured the creation fee moves from the creator to it.
func (s *Service) CreatePricePool(accountID, oracle string, targetPrice uint64, deadline time.Time) (*parimutuel.Pool, error) {
	pool, err := parimutuel.NewPool(uuid.New().String(), accountID, oracle, targetPrice, deadline, s.now())
	if err != nil {
		return nil, err
	}

	tx, err := s.store.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if s.treasury != "" {
		fee, err := accountAmount(parimutuel.CreationFee)
		if err != nil {
			return nil, err
		}
		if err := tx.DebitAccount(accountID, fee); err != nil {
			return nil, err
		}
		if err := tx.CreditAccount(s.treasury, fee); err != nil {
			return nil, err
		}
	}
	if err := tx.CreatePricePool(pool); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.publish(&parimutuel.PricePoolCreated{
		PoolID:      pool.ID,
		Creator:     accountID,
		Oracle:      oracle,
		TargetPrice: targetPrice,
		Deadline:    deadline.Unix(),
		Timestamp:   s.now().Unix(),
	})
	return pool, nil
}

// StakePricePool stakes collateral on one side of a pool. Each account may
// stake once per pool; the stake is debited immediately.
func (s *Service) StakePricePool(accountID, poolID string, above bool, amount uint64) (*parimutuel.Stake, error) {
	lock := s.lockFor(poolID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.store.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	pool, err := tx.GetPricePool(poolID)
	if err != nil {
		return nil, err
	}
	if _, err := tx.GetStake(poolID, accountID); err == nil {
		return nil, parimutuel.ErrAlreadyStaked
	} else if !errors.Is(err, store.ErrStakeNotFound) {
		return nil, err
	}

	st, err := pool.Stake(accountID, above, amount, s.now())
	if err != nil {
		return nil, err
	}
	debit, err := accountAmount(amount)
	if err != nil {
		return nil, err
	}
	if err := tx.DebitAccount(accountID, debit); err != nil {
		return nil, err
	}
	if err := tx.InsertStake(st); err != nil {
		return nil, err
	}
	if err := tx.UpdatePricePool(pool); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.publish(&parimutuel.StakePlaced{
		PoolID:     poolID,
		Owner:      accountID,
		Above:      above,
		Amount:     amount,
		TotalAbove: pool.TotalAbove,
		TotalBelow: pool.TotalBelow,
		Timestamp:  s.now().Unix(),
	})
	return st, nil
}

// ResolvePricePool settles a pool from a price quote. Oracle only.
func (s *Service) ResolvePricePool(accountID, poolID string, currentPrice uint64, quotedAt time.Time) (*parimutuel.Pool, error) {
	lock := s.lockFor(poolID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.store.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	pool, err := tx.GetPricePool(poolID)
	if err != nil {
		return nil, err
	}
	if err := pool.Resolve(accountID, currentPrice, quotedAt, s.now()); err != nil {
		return nil, err
	}
	if err := tx.UpdatePricePool(pool); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.publish(&parimutuel.PricePoolResolved{
		PoolID:       poolID,
		OutcomeAbove: pool.OutcomeAbove,
		Price:        currentPrice,
		Timestamp:    s.now().Unix(),
	})
	return pool, nil
}

// ClaimPricePool pays out the caller's winning stake. The pro-rata rounding
// remainder stays in the ledger unclaimed.
func (s *Service) ClaimPricePool(accountID, poolID string) (uint64, error) {
	lock := s.lockFor(poolID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.store.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	pool, err := tx.GetPricePool(poolID)
	if err != nil {
		return 0, err
	}
	st, err := tx.GetStake(poolID, accountID)
	if err != nil {
		return 0, err
	}

	payout, err := pool.Claim(st)
	if err != nil {
		return 0, err
	}
	credit, err := accountAmount(payout)
	if err != nil {
		return 0, err
	}
	if err := tx.CreditAccount(accountID, credit); err != nil {
		return 0, err
	}
	if err := tx.UpdateStake(st); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	s.publish(&parimutuel.StakeClaimed{
		PoolID:    poolID,
		Owner:     accountID,
		Payout:    payout,
		Timestamp: s.now().Unix(),
	})
	return payout, nil
}
