package store

import (
	"database/sql"
	"errors"
)

var ErrInsufficientFunds = errors.New("insufficient funds")

// debitAccount subtracts amount from an account balance, failing without a
// write when the balance cannot cover it.
func debitAccount(q querier, accountID string, amount int64) error {
	var balance int64
	err := q.QueryRow("SELECT balance FROM accounts WHERE id = ?", accountID).Scan(&balance)
	if err == sql.ErrNoRows {
		return ErrAccountNotFound
	}
	if err != nil {
		return err
	}
	if balance < amount {
		return ErrInsufficientFunds
	}
	_, err = q.Exec("UPDATE accounts SET balance = balance - ? WHERE id = ?", amount, accountID)
	return err
}

// creditAccount adds amount to an account balance.
func creditAccount(q querier, accountID string, amount int64) error {
	res, err := q.Exec("UPDATE accounts SET balance = balance + ? WHERE id = ?", amount, accountID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// DebitAccount subtracts amount from an account outside any transaction
func (s *Store) DebitAccount(accountID string, amount int64) error {
	return debitAccount(s.db, accountID, amount)
}

// CreditAccount adds amount to an account outside any transaction
func (s *Store) CreditAccount(accountID string, amount int64) error {
	return creditAccount(s.db, accountID, amount)
}

// GetBalance returns the current balance of an account
func (s *Store) GetBalance(accountID string) (int64, error) {
	var balance int64
	err := s.db.QueryRow("SELECT balance FROM accounts WHERE id = ?", accountID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, ErrAccountNotFound
	}
	return balance, err
}

// SumBalances returns the total collateral held across all accounts
func (s *Store) SumBalances() (int64, error) {
	var total int64
	err := s.db.QueryRow("SELECT COALESCE(SUM(balance), 0) FROM accounts").Scan(&total)
	return total, err
}
