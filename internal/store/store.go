package store

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// StartingBalance is the collateral every new account is seeded with, in base
// units.
const StartingBalance int64 = 1_000_000_000

// Store provides SQLite persistence for the exchange
type Store struct {
	db *sql.DB
}

// New creates a new Store and brings the schema up to date
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer; one connection keeps writers from
	// tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection for advanced operations
func (s *Store) GetDB() *sql.DB {
	return s.db
}

// querier is the statement surface shared by *sql.DB and *sql.Tx, so every
// query helper works both standalone and inside a transaction.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// User represents a registered user
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Account represents a collateral account
type Account struct {
	ID        string
	UserID    string
	Balance   int64 // base units
	CreatedAt time.Time
}

// Fill is one executed match or merge, kept for history
type Fill struct {
	ID        string    `json:"id"`
	MarketID  string    `json:"market_id"`
	OrderIDA  string    `json:"order_id_a"`
	OrderIDB  string    `json:"order_id_b"`
	OwnerA    string    `json:"owner_a"`
	OwnerB    string    `json:"owner_b"`
	PriceA    int64     `json:"price_a"`
	PriceB    int64     `json:"price_b"`
	Quantity  int64     `json:"quantity"`
	Kind      string    `json:"kind"` // "match" or "merge"
	CreatedAt time.Time `json:"created_at"`
}
