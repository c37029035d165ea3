package store

import (
	"database/sql"
	"errors"

	"predex/internal/parimutuel"
)

var ErrStakeNotFound = errors.New("stake not found")

const pricePoolColumns = `id, creator, oracle, target_price, deadline,
	total_above, total_below, resolved, outcome_above, created_at`

func scanPricePool(row rowScanner) (*parimutuel.Pool, error) {
	p := &parimutuel.Pool{}
	var target, above, below int64
	err := row.Scan(
		&p.ID, &p.Creator, &p.Oracle, &target, &p.Deadline,
		&above, &below, &p.Resolved, &p.OutcomeAbove, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.TargetPrice = uint64(target)
	p.TotalAbove = uint64(above)
	p.TotalBelow = uint64(below)
	return p, nil
}

func insertPricePool(q querier, p *parimutuel.Pool) error {
	_, err := q.Exec(`
		INSERT INTO price_pools (id, creator, oracle, target_price, deadline,
			total_above, total_below, resolved, outcome_above, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Creator, p.Oracle, int64(p.TargetPrice), p.Deadline,
		int64(p.TotalAbove), int64(p.TotalBelow), p.Resolved, p.OutcomeAbove, p.CreatedAt,
	)
	return err
}

func getPricePool(q querier, id string) (*parimutuel.Pool, error) {
	p, err := scanPricePool(q.QueryRow("SELECT "+pricePoolColumns+" FROM price_pools WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, ErrPoolNotFound
	}
	return p, err
}

// updatePricePool writes back the stake totals and the resolution state
func updatePricePool(q querier, p *parimutuel.Pool) error {
	res, err := q.Exec(`
		UPDATE price_pools SET total_above = ?, total_below = ?, resolved = ?, outcome_above = ?
		WHERE id = ?`,
		int64(p.TotalAbove), int64(p.TotalBelow), p.Resolved, p.OutcomeAbove, p.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrPoolNotFound
	}
	return nil
}

const stakeColumns = "pool_id, owner, above, amount, claimed"

func scanStake(row rowScanner) (*parimutuel.Stake, error) {
	s := &parimutuel.Stake{}
	var amount int64
	if err := row.Scan(&s.PoolID, &s.Owner, &s.Above, &amount, &s.Claimed); err != nil {
		return nil, err
	}
	s.Amount = uint64(amount)
	return s, nil
}

func getStake(q querier, poolID, owner string) (*parimutuel.Stake, error) {
	s, err := scanStake(q.QueryRow(
		"SELECT "+stakeColumns+" FROM price_pool_stakes WHERE pool_id = ? AND owner = ?",
		poolID, owner,
	))
	if err == sql.ErrNoRows {
		return nil, ErrStakeNotFound
	}
	return s, err
}

func insertStake(q querier, s *parimutuel.Stake) error {
	_, err := q.Exec(`
		INSERT INTO price_pool_stakes (pool_id, owner, above, amount, claimed, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		s.PoolID, s.Owner, s.Above, int64(s.Amount), s.Claimed,
	)
	return err
}

// updateStake writes back the claimed flag; the amount never changes
func updateStake(q querier, s *parimutuel.Stake) error {
	res, err := q.Exec(
		"UPDATE price_pool_stakes SET claimed = ?, updated_at = CURRENT_TIMESTAMP WHERE pool_id = ? AND owner = ?",
		s.Claimed, s.PoolID, s.Owner,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStakeNotFound
	}
	return nil
}

// GetPricePool retrieves a parimutuel pool by ID
func (s *Store) GetPricePool(id string) (*parimutuel.Pool, error) {
	return getPricePool(s.db, id)
}

// ListPricePools returns all parimutuel pools, newest first
func (s *Store) ListPricePools() ([]*parimutuel.Pool, error) {
	rows, err := s.db.Query("SELECT " + pricePoolColumns + " FROM price_pools ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pools []*parimutuel.Pool
	for rows.Next() {
		p, err := scanPricePool(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}
	return pools, rows.Err()
}

// GetStake retrieves one account's stake in a pool
func (s *Store) GetStake(poolID, owner string) (*parimutuel.Stake, error) {
	return getStake(s.db, poolID, owner)
}

// ListStakesByPool returns every stake in a pool
func (s *Store) ListStakesByPool(poolID string) ([]*parimutuel.Stake, error) {
	rows, err := s.db.Query(
		"SELECT "+stakeColumns+" FROM price_pool_stakes WHERE pool_id = ? ORDER BY id",
		poolID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stakes []*parimutuel.Stake
	for rows.Next() {
		st, err := scanStake(rows)
		if err != nil {
			return nil, err
		}
		stakes = append(stakes, st)
	}
	return stakes, rows.Err()
}

// ListStakesByOwner returns every stake an account holds across pools
func (s *Store) ListStakesByOwner(owner string) ([]*parimutuel.Stake, error) {
	rows, err := s.db.Query(
		"SELECT "+stakeColumns+" FROM price_pool_stakes WHERE owner = ? ORDER BY id",
		owner,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stakes []*parimutuel.Stake
	for rows.Next() {
		st, err := scanStake(rows)
		if err != nil {
			return nil, err
		}
		stakes = append(stakes, st)
	}
	return stakes, rows.Err()
}

func (t *Tx) CreatePricePool(p *parimutuel.Pool) error {
	return insertPricePool(t.tx, p)
}

func (t *Tx) GetPricePool(id string) (*parimutuel.Pool, error) {
	return getPricePool(t.tx, id)
}

func (t *Tx) UpdatePricePool(p *parimutuel.Pool) error {
	return updatePricePool(t.tx, p)
}

func (t *Tx) GetStake(poolID, owner string) (*parimutuel.Stake, error) {
	return getStake(t.tx, poolID, owner)
}

func (t *Tx) InsertStake(s *parimutuel.Stake) error {
	return insertStake(t.tx, s)
}

func (t *Tx) UpdateStake(s *parimutuel.Stake) error {
	return updateStake(t.tx, s)
}
