package store

import (
	"predex/internal/engine"
)

const fillColumns = `id, market_id, order_id_a, order_id_b, owner_a, owner_b,
	price_a, price_b, quantity, kind, created_at`

// insertMatchFill records an executed issuance match
func insertMatchFill(q querier, ev *engine.OrdersMatched) error {
	id, err := generateID()
	if err != nil {
		return err
	}
	_, err = q.Exec(`
		INSERT INTO fills (id, market_id, order_id_a, order_id_b, owner_a, owner_b,
			price_a, price_b, quantity, kind)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'match')`,
		id, ev.MarketID, ev.OrderIDA, ev.OrderIDB, ev.OwnerA, ev.OwnerB,
		int64(ev.PriceA), int64(ev.PriceB), int64(ev.Quantity),
	)
	return err
}

// insertMergeFill records an executed burn merge
func insertMergeFill(q querier, ev *engine.SharesMerged, priceA, priceB uint64) error {
	id, err := generateID()
	if err != nil {
		return err
	}
	_, err = q.Exec(`
		INSERT INTO fills (id, market_id, order_id_a, order_id_b, owner_a, owner_b,
			price_a, price_b, quantity, kind)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'merge')`,
		id, ev.MarketID, ev.OrderIDA, ev.OrderIDB, ev.SellerA, ev.SellerB,
		int64(priceA), int64(priceB), int64(ev.Quantity),
	)
	return err
}

func listFills(q querier, query string, args ...any) ([]*Fill, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fills []*Fill
	for rows.Next() {
		f := &Fill{}
		if err := rows.Scan(
			&f.ID, &f.MarketID, &f.OrderIDA, &f.OrderIDB, &f.OwnerA, &f.OwnerB,
			&f.PriceA, &f.PriceB, &f.Quantity, &f.Kind, &f.CreatedAt,
		); err != nil {
			return nil, err
		}
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// ListFillsByMarket returns a market's executed fills, newest first. The
// rowid tiebreaker keeps same-second fills in insertion order.
func (s *Store) ListFillsByMarket(marketID string, limit int) ([]*Fill, error) {
	return listFills(s.db,
		"SELECT "+fillColumns+" FROM fills WHERE market_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?",
		marketID, limit,
	)
}

// ListFillsByOwner returns fills an account took part in, newest first
func (s *Store) ListFillsByOwner(owner string, limit int) ([]*Fill, error) {
	return listFills(s.db,
		"SELECT "+fillColumns+" FROM fills WHERE owner_a = ? OR owner_b = ? ORDER BY created_at DESC, rowid DESC LIMIT ?",
		owner, owner, limit,
	)
}
