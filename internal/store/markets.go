package store

import (
	"database/sql"
	"errors"

	"predex/internal/engine"
)

var ErrMarketNotFound = errors.New("market not found")

const marketColumns = `id, authority, conversion_rate, order_count_a, order_count_b,
	total_issued_a, total_issued_b, total_volume, last_price_a, last_price_b,
	escrow_balance, active, winning_side, created_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMarket(row rowScanner) (*engine.Market, error) {
	m := &engine.Market{}
	var rate, countA, countB, issuedA, issuedB, volume, priceA, priceB, escrow, winner int64
	err := row.Scan(
		&m.ID, &m.Authority, &rate, &countA, &countB,
		&issuedA, &issuedB, &volume, &priceA, &priceB,
		&escrow, &m.Active, &winner, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.ConversionRate = uint64(rate)
	m.OrderCountA = uint64(countA)
	m.OrderCountB = uint64(countB)
	m.TotalIssuedA = uint64(issuedA)
	m.TotalIssuedB = uint64(issuedB)
	m.TotalVolume = uint64(volume)
	m.LastPriceA = uint64(priceA)
	m.LastPriceB = uint64(priceB)
	m.EscrowBalance = uint64(escrow)
	m.WinningSide = engine.Side(winner)
	return m, nil
}

func insertMarket(q querier, m *engine.Market) error {
	_, err := q.Exec(`
		INSERT INTO markets (id, authority, conversion_rate, order_count_a, order_count_b,
			total_issued_a, total_issued_b, total_volume, last_price_a, last_price_b,
			escrow_balance, active, winning_side, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Authority, int64(m.ConversionRate), int64(m.OrderCountA), int64(m.OrderCountB),
		int64(m.TotalIssuedA), int64(m.TotalIssuedB), int64(m.TotalVolume),
		int64(m.LastPriceA), int64(m.LastPriceB), int64(m.EscrowBalance),
		m.Active, int64(m.WinningSide), m.CreatedAt,
	)
	return err
}

func getMarket(q querier, id string) (*engine.Market, error) {
	m, err := scanMarket(q.QueryRow("SELECT "+marketColumns+" FROM markets WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, ErrMarketNotFound
	}
	return m, err
}

// updateMarket writes back every mutable market field
func updateMarket(q querier, m *engine.Market) error {
	res, err := q.Exec(`
		UPDATE markets SET conversion_rate = ?, order_count_a = ?, order_count_b = ?,
			total_issued_a = ?, total_issued_b = ?, total_volume = ?,
			last_price_a = ?, last_price_b = ?, escrow_balance = ?,
			active = ?, winning_side = ?
		WHERE id = ?`,
		int64(m.ConversionRate), int64(m.OrderCountA), int64(m.OrderCountB),
		int64(m.TotalIssuedA), int64(m.TotalIssuedB), int64(m.TotalVolume),
		int64(m.LastPriceA), int64(m.LastPriceB), int64(m.EscrowBalance),
		m.Active, int64(m.WinningSide), m.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrMarketNotFound
	}
	return nil
}

// CreateMarket persists a newly opened market
func (s *Store) CreateMarket(m *engine.Market) error {
	return insertMarket(s.db, m)
}

// GetMarket retrieves a market by ID
func (s *Store) GetMarket(id string) (*engine.Market, error) {
	return getMarket(s.db, id)
}

// ListMarkets returns all markets, newest first
func (s *Store) ListMarkets() ([]*engine.Market, error) {
	rows, err := s.db.Query("SELECT " + marketColumns + " FROM markets ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []*engine.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}
