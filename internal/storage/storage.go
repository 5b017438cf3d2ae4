package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicate     = errors.New("duplicate")
	ErrAlreadyExists = errors.New("already exists")
)

// Storage handles all database operations
type Storage struct {
	db *sql.DB
}

// New creates a new Storage instance and initializes the database.
// Transactions are opened IMMEDIATE so a write transaction takes the
// write lock up front instead of failing on upgrade mid-flight.
func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, err
	}

	// SQLite works best with a single writer; cap the pool accordingly.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Storage{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			telegram_id INTEGER NOT NULL UNIQUE,
			username TEXT,
			is_premium INTEGER NOT NULL DEFAULT 0,
			paid_amount REAL NOT NULL DEFAULT 0,
			state TEXT,
			payout_wallet TEXT,
			total_commission REAL NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS wallets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			telegram_id INTEGER NOT NULL,
			address TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			UNIQUE (telegram_id, address)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_wallets_address ON wallets(address)`,

		`CREATE TABLE IF NOT EXISTS payments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			telegram_id INTEGER NOT NULL,
			amount REAL NOT NULL,
			transaction_id TEXT NOT NULL UNIQUE,
			payment_date INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_user ON payments(telegram_id)`,

		`CREATE TABLE IF NOT EXISTS referrals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			referrer_id INTEGER NOT NULL,
			referred_id INTEGER NOT NULL UNIQUE,
			converted INTEGER NOT NULL DEFAULT 0,
			commission_amount REAL NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_referrals_referrer ON referrals(referrer_id)`,

		`CREATE TABLE IF NOT EXISTS referral_codes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			telegram_id INTEGER NOT NULL UNIQUE,
			code TEXT NOT NULL UNIQUE,
			created_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS auth_tokens (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			telegram_id INTEGER NOT NULL,
			token TEXT NOT NULL UNIQUE,
			expires_at INTEGER NOT NULL,
			used INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_auth_tokens_expires ON auth_tokens(expires_at)`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}

	return nil
}

// Tx is a transaction handle exposing the row-level mutations that must
// commit or roll back as one unit per incoming payment event.
type Tx struct {
	tx *sql.Tx
}

// WithTx runs fn inside a single database transaction. Any error from fn
// rolls the whole transaction back.
func (s *Storage) WithTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&Tx{tx: tx}); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// isUniqueViolation reports whether err is a sqlite UNIQUE constraint error.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrConstraint &&
			se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
