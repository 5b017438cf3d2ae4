package storage

import (
	"context"
	"database/sql"
	"time"
)

// EnsureUser inserts a user on first contact. Returns true if the user was
// newly created.
func (s *Storage) EnsureUser(ctx context.Context, telegramID int64, username string) (bool, error) {
	now := time.Now().Unix()
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (telegram_id, username, created_at, updated_at)
		 VALUES (?, ?, ?, ?)`,
		telegramID, username, now, now,
	)
	if err != nil {
		return false, err
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// GetUser returns a user by telegram ID
func (s *Storage) GetUser(ctx context.Context, telegramID int64) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT telegram_id, username, is_premium, paid_amount, state, payout_wallet,
		        total_commission, created_at, updated_at
		 FROM users WHERE telegram_id = ?`,
		telegramID,
	)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var username, state, payout sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&u.TelegramID, &username, &u.IsPremium, &u.PaidAmount,
		&state, &payout, &u.TotalCommission, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	u.Username = username.String
	u.State = ConversationState(state.String)
	u.PayoutWallet = payout.String
	u.CreatedAt = time.Unix(createdAt, 0)
	u.UpdatedAt = time.Unix(updatedAt, 0)
	return &u, nil
}

// SetUserState persists the user's conversation state. Pass StateNone to
// clear it.
func (s *Storage) SetUserState(ctx context.Context, telegramID int64, state ConversationState) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET state = ?, updated_at = ? WHERE telegram_id = ?",
		nullableState(state), time.Now().Unix(), telegramID,
	)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// UserState returns the user's persisted conversation state.
func (s *Storage) UserState(ctx context.Context, telegramID int64) (ConversationState, error) {
	var state sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT state FROM users WHERE telegram_id = ?", telegramID,
	).Scan(&state)
	if err == sql.ErrNoRows {
		return StateNone, ErrNotFound
	}
	if err != nil {
		return StateNone, err
	}
	return ConversationState(state.String), nil
}

func nullableState(state ConversationState) any {
	if state == StateNone {
		return nil
	}
	return string(state)
}

// SetPayoutWallet sets the wallet commissions are paid out to.
func (s *Storage) SetPayoutWallet(ctx context.Context, telegramID int64, address string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET payout_wallet = ?, updated_at = ? WHERE telegram_id = ?",
		address, time.Now().Unix(), telegramID,
	)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Wallets ---

// AddWallet links a Solana address to a user. Returns ErrAlreadyExists if
// this user already linked the same address.
func (s *Storage) AddWallet(ctx context.Context, telegramID int64, address string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO wallets (telegram_id, address, created_at) VALUES (?, ?, ?)",
		telegramID, address, time.Now().Unix(),
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

// ListWallets returns all wallets linked by a user
func (s *Storage) ListWallets(ctx context.Context, telegramID int64) ([]Wallet, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, telegram_id, address, created_at FROM wallets WHERE telegram_id = ? ORDER BY id",
		telegramID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wallets []Wallet
	for rows.Next() {
		var w Wallet
		var createdAt int64
		if err := rows.Scan(&w.ID, &w.UserID, &w.Address, &createdAt); err != nil {
			return nil, err
		}
		w.CreatedAt = time.Unix(createdAt, 0)
		wallets = append(wallets, w)
	}

	return wallets, rows.Err()
}

// RemoveWallet unlinks an address from a user
func (s *Storage) RemoveWallet(ctx context.Context, telegramID int64, address string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM wallets WHERE telegram_id = ? AND address = ?",
		telegramID, address,
	)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// GetUserByWallet resolves the owner of a wallet address. Payment
// attribution treats the first linked owner as authoritative; nothing stops
// two users claiming the same address, so the oldest link wins.
func (s *Storage) GetUserByWallet(ctx context.Context, address string) (int64, error) {
	var userID int64
	err := s.db.QueryRowContext(ctx,
		"SELECT telegram_id FROM wallets WHERE address = ? ORDER BY id LIMIT 1",
		address,
	).Scan(&userID)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	return userID, err
}

// --- Admin stats ---

// Stats summarizes the user base for the admin surface.
type Stats struct {
	TotalUsers         int
	PremiumUsers       int
	TotalPayments      int
	TotalPaid          float64
	TotalReferrals     int
	ConvertedReferrals int
	TotalCommission    float64
}

// GetStats returns aggregate counters for /admin_stats.
func (s *Storage) GetStats(ctx context.Context) (*Stats, error) {
	var st Stats

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(is_premium), 0) FROM users`,
	).Scan(&st.TotalUsers, &st.PremiumUsers)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(amount), 0) FROM payments`,
	).Scan(&st.TotalPayments, &st.TotalPaid)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(converted), 0), COALESCE(SUM(commission_amount), 0)
		 FROM referrals`,
	).Scan(&st.TotalReferrals, &st.ConvertedReferrals, &st.TotalCommission)
	if err != nil {
		return nil, err
	}

	return &st, nil
}
