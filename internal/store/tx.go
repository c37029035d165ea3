package store

import (
	"database/sql"

	"predex/internal/engine"
)

// Tx is one atomic exchange operation: every record an operation touches is
// read and written through the same SQLite transaction, so a failure at any
// point rolls the whole operation back.
type Tx struct {
	tx *sql.Tx
}

// Begin opens a transaction
func (s *Store) Begin() (*Tx, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

// Commit commits the transaction
func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback aborts the transaction; a no-op after Commit
func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

func (t *Tx) CreateMarket(m *engine.Market) error {
	return insertMarket(t.tx, m)
}

func (t *Tx) GetMarket(id string) (*engine.Market, error) {
	return getMarket(t.tx, id)
}

func (t *Tx) UpdateMarket(m *engine.Market) error {
	return updateMarket(t.tx, m)
}

func (t *Tx) SaveOrder(o *engine.Order) error {
	return insertOrder(t.tx, o)
}

func (t *Tx) GetOrder(id string) (*engine.Order, error) {
	return getOrder(t.tx, id)
}

func (t *Tx) UpdateOrder(o *engine.Order) error {
	return updateOrder(t.tx, o)
}

func (t *Tx) GetPosition(owner, marketID string) (*engine.Position, error) {
	return getPosition(t.tx, owner, marketID)
}

func (t *Tx) SavePosition(p *engine.Position) error {
	return savePosition(t.tx, p)
}

func (t *Tx) DebitAccount(accountID string, amount int64) error {
	return debitAccount(t.tx, accountID, amount)
}

func (t *Tx) CreditAccount(accountID string, amount int64) error {
	return creditAccount(t.tx, accountID, amount)
}

func (t *Tx) InsertMatchFill(ev *engine.OrdersMatched) error {
	return insertMatchFill(t.tx, ev)
}

func (t *Tx) InsertMergeFill(ev *engine.SharesMerged, priceA, priceB uint64) error {
	return insertMergeFill(t.tx, ev, priceA, priceB)
}
