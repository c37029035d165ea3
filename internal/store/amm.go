package store

import (
	"database/sql"
	"errors"

	"predex/internal/amm"
)

var (
	ErrPoolNotFound = errors.New("pool not found")
	ErrPoolExists   = errors.New("market already has a pool")
)

const ammPoolColumns = "id, market_id, reserve_a, reserve_b, fee_bps, total_lp_shares, created_at"

func scanAMMPool(row rowScanner) (*amm.Pool, error) {
	p := &amm.Pool{}
	var reserveA, reserveB, feeBps, lpShares int64
	err := row.Scan(&p.ID, &p.MarketID, &reserveA, &reserveB, &feeBps, &lpShares, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.ReserveA = uint64(reserveA)
	p.ReserveB = uint64(reserveB)
	p.FeeBps = uint64(feeBps)
	p.TotalLPShares = uint64(lpShares)
	return p, nil
}

func insertAMMPool(q querier, p *amm.Pool) error {
	var exists bool
	err := q.QueryRow("SELECT EXISTS(SELECT 1 FROM amm_pools WHERE market_id = ?)", p.MarketID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return ErrPoolExists
	}
	_, err = q.Exec(`
		INSERT INTO amm_pools (id, market_id, reserve_a, reserve_b, fee_bps, total_lp_shares, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.MarketID, int64(p.ReserveA), int64(p.ReserveB),
		int64(p.FeeBps), int64(p.TotalLPShares), p.CreatedAt,
	)
	return err
}

func getAMMPool(q querier, id string) (*amm.Pool, error) {
	p, err := scanAMMPool(q.QueryRow("SELECT "+ammPoolColumns+" FROM amm_pools WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, ErrPoolNotFound
	}
	return p, err
}

func getAMMPoolByMarket(q querier, marketID string) (*amm.Pool, error) {
	p, err := scanAMMPool(q.QueryRow("SELECT "+ammPoolColumns+" FROM amm_pools WHERE market_id = ?", marketID))
	if err == sql.ErrNoRows {
		return nil, ErrPoolNotFound
	}
	return p, err
}

// updateAMMPool writes back the reserves and the LP share supply
func updateAMMPool(q querier, p *amm.Pool) error {
	res, err := q.Exec(`
		UPDATE amm_pools SET reserve_a = ?, reserve_b = ?, total_lp_shares = ?
		WHERE id = ?`,
		int64(p.ReserveA), int64(p.ReserveB), int64(p.TotalLPShares), p.ID,
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

// getLPShares returns an owner's LP share balance in a pool, zero if absent
func getLPShares(q querier, poolID, owner string) (uint64, error) {
	var shares int64
	err := q.QueryRow(
		"SELECT shares FROM amm_lp_shares WHERE pool_id = ? AND owner = ?",
		poolID, owner,
	).Scan(&shares)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uint64(shares), nil
}

// saveLPShares upserts an owner's LP share balance
func saveLPShares(q querier, poolID, owner string, shares uint64) error {
	_, err := q.Exec(`
		INSERT INTO amm_lp_shares (pool_id, owner, shares, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(pool_id, owner) DO UPDATE SET
			shares = excluded.shares,
			updated_at = CURRENT_TIMESTAMP`,
		poolID, owner, int64(shares),
	)
	return err
}

// GetAMMPool retrieves a swap pool by ID
func (s *Store) GetAMMPool(id string) (*amm.Pool, error) {
	return getAMMPool(s.db, id)
}

// GetAMMPoolByMarket retrieves the swap pool attached to a market
func (s *Store) GetAMMPoolByMarket(marketID string) (*amm.Pool, error) {
	return getAMMPoolByMarket(s.db, marketID)
}

// ListAMMPools returns all swap pools, newest first
func (s *Store) ListAMMPools() ([]*amm.Pool, error) {
	rows, err := s.db.Query("SELECT " + ammPoolColumns + " FROM amm_pools ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pools []*amm.Pool
	for rows.Next() {
		p, err := scanAMMPool(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}
	return pools, rows.Err()
}

// GetLPShares returns an owner's LP share balance in a pool, zero if absent
func (s *Store) GetLPShares(poolID, owner string) (uint64, error) {
	return getLPShares(s.db, poolID, owner)
}

func (t *Tx) CreateAMMPool(p *amm.Pool) error {
	return insertAMMPool(t.tx, p)
}

func (t *Tx) GetAMMPool(id string) (*amm.Pool, error) {
	return getAMMPool(t.tx, id)
}

func (t *Tx) UpdateAMMPool(p *amm.Pool) error {
	return updateAMMPool(t.tx, p)
}

func (t *Tx) GetLPShares(poolID, owner string) (uint64, error) {
	return getLPShares(t.tx, poolID, owner)
}

func (t *Tx) SaveLPShares(poolID, owner string, shares uint64) error {
	return saveLPShares(t.tx, poolID, owner, shares)
}
