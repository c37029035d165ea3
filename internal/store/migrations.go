package store

import (
	"database/sql"
	"fmt"
)

// Migration represents a database schema migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// migrations is the ordered list of all migrations
// New migrations should be appended to the end with incrementing version numbers
var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		SQL: `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			balance INTEGER NOT NULL DEFAULT 1000000000,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS markets (
			id TEXT PRIMARY KEY,
			authority TEXT NOT NULL,
			conversion_rate INTEGER NOT NULL,
			order_count_a INTEGER NOT NULL DEFAULT 0,
			order_count_b INTEGER NOT NULL DEFAULT 0,
			total_issued_a INTEGER NOT NULL DEFAULT 0,
			total_issued_b INTEGER NOT NULL DEFAULT 0,
			total_volume INTEGER NOT NULL DEFAULT 0,
			last_price_a INTEGER NOT NULL,
			last_price_b INTEGER NOT NULL,
			escrow_balance INTEGER NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			winning_side INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			owner TEXT NOT NULL REFERENCES accounts(id),
			market_id TEXT NOT NULL REFERENCES markets(id),
			side INTEGER NOT NULL,
			price INTEGER NOT NULL,
			original_qty INTEGER NOT NULL,
			filled_qty INTEGER NOT NULL DEFAULT 0,
			collateral INTEGER NOT NULL DEFAULT 0,
			status INTEGER NOT NULL DEFAULT 0,
			is_sell BOOLEAN NOT NULL DEFAULT FALSE,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS positions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner TEXT NOT NULL REFERENCES accounts(id),
			market_id TEXT NOT NULL REFERENCES markets(id),
			held_a INTEGER NOT NULL DEFAULT 0,
			held_b INTEGER NOT NULL DEFAULT 0,
			locked_a INTEGER NOT NULL DEFAULT 0,
			locked_b INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(owner, market_id)
		);

		CREATE TABLE IF NOT EXISTS fills (
			id TEXT PRIMARY KEY,
			market_id TEXT NOT NULL REFERENCES markets(id),
			order_id_a TEXT NOT NULL,
			order_id_b TEXT NOT NULL,
			owner_a TEXT NOT NULL,
			owner_b TEXT NOT NULL,
			price_a INTEGER NOT NULL,
			price_b INTEGER NOT NULL,
			quantity INTEGER NOT NULL,
			kind TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_accounts_user ON accounts(user_id);
		CREATE INDEX IF NOT EXISTS idx_orders_market ON orders(market_id, status);
		CREATE INDEX IF NOT EXISTS idx_orders_owner ON orders(owner);
		CREATE INDEX IF NOT EXISTS idx_positions_owner ON positions(owner);
		CREATE INDEX IF NOT EXISTS idx_fills_market ON fills(market_id);
		`,
	},
	{
		Version:     2,
		Description: "Persistent sessions",
		SQL: `
		CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			account_id TEXT NOT NULL REFERENCES accounts(id),
			expires_at DATETIME NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
		CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);
		`,
	},
	{
		Version:     3,
		Description: "Swap pools",
		SQL: `
		CREATE TABLE IF NOT EXISTS amm_pools (
			id TEXT PRIMARY KEY,
			market_id TEXT NOT NULL REFERENCES markets(id),
			reserve_a INTEGER NOT NULL,
			reserve_b INTEGER NOT NULL,
			fee_bps INTEGER NOT NULL,
			total_lp_shares INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(market_id)
		);

		CREATE TABLE IF NOT EXISTS amm_lp_shares (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pool_id TEXT NOT NULL REFERENCES amm_pools(id),
			owner TEXT NOT NULL REFERENCES accounts(id),
			shares INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(pool_id, owner)
		);

		CREATE INDEX IF NOT EXISTS idx_amm_lp_owner ON amm_lp_shares(owner);
		`,
	},
	{
		Version:     4,
		Description: "Price pools",
		SQL: `
		CREATE TABLE IF NOT EXISTS price_pools (
			id TEXT PRIMARY KEY,
			creator TEXT NOT NULL REFERENCES accounts(id),
			target_price INTEGER NOT NULL,
			deadline DATETIME NOT NULL,
			total_above INTEGER NOT NULL DEFAULT 0,
			total_below INTEGER NOT NULL DEFAULT 0,
			resolved BOOLEAN NOT NULL DEFAULT FALSE,
			outcome_above BOOLEAN NOT NULL DEFAULT FALSE,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS price_pool_stakes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pool_id TEXT NOT NULL REFERENCES price_pools(id),
			owner TEXT NOT NULL REFERENCES accounts(id),
			above BOOLEAN NOT NULL,
			amount INTEGER NOT NULL DEFAULT 0,
			claimed BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(pool_id, owner)
		);

		CREATE INDEX IF NOT EXISTS idx_price_pool_stakes_owner ON price_pool_stakes(owner);
		`,
	},
	{
		Version:     5,
		Description: "Price pool oracle",
		SQL: `
		ALTER TABLE price_pools ADD COLUMN oracle TEXT NOT NULL DEFAULT '';
		`,
	},
}

// initMigrationsTable creates the migrations tracking table
func (s *Store) initMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// getCurrentVersion returns the highest applied migration version
func (s *Store) getCurrentVersion() (int, error) {
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// Migrate runs all pending migrations
func (s *Store) Migrate() error {
	if err := s.initMigrationsTable(); err != nil {
		return fmt.Errorf("failed to init migrations table: %w", err)
	}

	currentVersion, err := s.getCurrentVersion()
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		if err := s.applyMigration(m); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
	}

	return nil
}

// applyMigration runs a single migration in a transaction
func (s *Store) applyMigration(m Migration) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.SQL); err != nil {
		return err
	}

	// Record the migration
	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
		m.Version, m.Description,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// MigrationStatus returns applied and pending migrations
func (s *Store) MigrationStatus() (applied []int, pending []int, err error) {
	if err := s.initMigrationsTable(); err != nil {
		return nil, nil, err
	}

	rows, err := s.db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	appliedSet := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, nil, err
		}
		applied = append(applied, v)
		appliedSet[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	for _, m := range migrations {
		if !appliedSet[m.Version] {
			pending = append(pending, m.Version)
		}
	}

	return applied, pending, nil
}
