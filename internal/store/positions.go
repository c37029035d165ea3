package store

import (
	"database/sql"

	"predex/internal/engine"
)

const positionColumns = "owner, market_id, held_a, held_b, locked_a, locked_b"

func scanPosition(row rowScanner) (*engine.Position, error) {
	p := &engine.Position{}
	var heldA, heldB, lockedA, lockedB int64
	if err := row.Scan(&p.Owner, &p.MarketID, &heldA, &heldB, &lockedA, &lockedB); err != nil {
		return nil, err
	}
	p.HeldA = uint64(heldA)
	p.HeldB = uint64(heldB)
	p.LockedA = uint64(lockedA)
	p.LockedB = uint64(lockedB)
	return p, nil
}

// getPosition returns the stored position, or an empty one when the owner has
// never held shares in the market.
func getPosition(q querier, owner, marketID string) (*engine.Position, error) {
	p, err := scanPosition(q.QueryRow(
		"SELECT "+positionColumns+" FROM positions WHERE owner = ? AND market_id = ?",
		owner, marketID,
	))
	if err == sql.ErrNoRows {
		return engine.NewPosition(owner, marketID), nil
	}
	return p, err
}

// savePosition upserts the position row
func savePosition(q querier, p *engine.Position) error {
	_, err := q.Exec(`
		INSERT INTO positions (owner, market_id, held_a, held_b, locked_a, locked_b, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(owner, market_id) DO UPDATE SET
			held_a = excluded.held_a,
			held_b = excluded.held_b,
			locked_a = excluded.locked_a,
			locked_b = excluded.locked_b,
			updated_at = CURRENT_TIMESTAMP`,
		p.Owner, p.MarketID,
		int64(p.HeldA), int64(p.HeldB), int64(p.LockedA), int64(p.LockedB),
	)
	return err
}

// GetPosition retrieves an owner's position in a market, empty if absent
func (s *Store) GetPosition(owner, marketID string) (*engine.Position, error) {
	return getPosition(s.db, owner, marketID)
}

// SavePosition persists a position
func (s *Store) SavePosition(p *engine.Position) error {
	return savePosition(s.db, p)
}

// ListPositionsByOwner returns every non-empty position an account holds
func (s *Store) ListPositionsByOwner(owner string) ([]*engine.Position, error) {
	rows, err := s.db.Query(
		"SELECT "+positionColumns+" FROM positions WHERE owner = ? ORDER BY market_id",
		owner,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []*engine.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}
