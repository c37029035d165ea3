package store

import (
	"database/sql"
	"errors"

	"predex/internal/engine"
)

var ErrOrderNotFound = errors.New("order not found")

const orderColumns = `id, owner, market_id, side, price, original_qty, filled_qty,
	collateral, status, is_sell, created_at`

func scanOrder(row rowScanner) (*engine.Order, error) {
	o := &engine.Order{}
	var side, price, origQty, filledQty, collateral, status int64
	err := row.Scan(
		&o.ID, &o.Owner, &o.MarketID, &side, &price, &origQty, &filledQty,
		&collateral, &status, &o.IsSell, &o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Side = engine.Side(side)
	o.Price = uint64(price)
	o.OriginalQty = uint64(origQty)
	o.FilledQty = uint64(filledQty)
	o.CollateralDeposited = uint64(collateral)
	o.Status = engine.Status(status)
	return o, nil
}

func insertOrder(q querier, o *engine.Order) error {
	_, err := q.Exec(`
		INSERT INTO orders (id, owner, market_id, side, price, original_qty, filled_qty,
			collateral, status, is_sell, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Owner, o.MarketID, int64(o.Side), int64(o.Price), int64(o.OriginalQty),
		int64(o.FilledQty), int64(o.CollateralDeposited), int64(o.Status), o.IsSell, o.CreatedAt,
	)
	return err
}

func getOrder(q querier, id string) (*engine.Order, error) {
	o, err := scanOrder(q.QueryRow("SELECT "+orderColumns+" FROM orders WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	return o, err
}

// updateOrder writes back the fields an operation can change
func updateOrder(q querier, o *engine.Order) error {
	res, err := q.Exec(
		"UPDATE orders SET filled_qty = ?, status = ? WHERE id = ?",
		int64(o.FilledQty), int64(o.Status), o.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func listOrders(q querier, query string, args ...any) ([]*engine.Order, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*engine.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// SaveOrder persists a newly placed order
func (s *Store) SaveOrder(o *engine.Order) error {
	return insertOrder(s.db, o)
}

// GetOrder retrieves an order by ID
func (s *Store) GetOrder(id string) (*engine.Order, error) {
	return getOrder(s.db, id)
}

// ListOpenOrdersByMarket returns a market's fillable orders, oldest first
func (s *Store) ListOpenOrdersByMarket(marketID string) ([]*engine.Order, error) {
	return listOrders(s.db,
		"SELECT "+orderColumns+" FROM orders WHERE market_id = ? AND status IN (?, ?) ORDER BY created_at",
		marketID, int64(engine.StatusOpen), int64(engine.StatusPartiallyFilled),
	)
}

// ListOrdersByOwner returns every order an account has placed, newest first
func (s *Store) ListOrdersByOwner(owner string) ([]*engine.Order, error) {
	return listOrders(s.db,
		"SELECT "+orderColumns+" FROM orders WHERE owner = ? ORDER BY created_at DESC",
		owner,
	)
}
