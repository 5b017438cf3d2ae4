package storage

import (
	"context"
	"database/sql"
	"time"
)

// InsertReferral records a referrer↔referred link. Returns ErrDuplicate if
// the referred user already has a referrer; the UNIQUE constraint on
// referred_id enforces first-writer-wins at write time.
func (s *Storage) InsertReferral(ctx context.Context, referrerID, referredID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO referrals (referrer_id, referred_id, created_at)
		 VALUES (?, ?, ?)`,
		referrerID, referredID, time.Now().Unix(),
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetReferralCode returns a user's referral code
func (s *Storage) GetReferralCode(ctx context.Context, telegramID int64) (string, error) {
	var code string
	err := s.db.QueryRowContext(ctx,
		"SELECT code FROM referral_codes WHERE telegram_id = ?", telegramID,
	).Scan(&code)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return code, err
}

// InsertReferralCode creates a user's permanent code. Returns ErrDuplicate
// on a code collision or when the user already holds a code.
func (s *Storage) InsertReferralCode(ctx context.Context, telegramID int64, code string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO referral_codes (telegram_id, code, created_at) VALUES (?, ?, ?)",
		telegramID, code, time.Now().Unix(),
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetUserByReferralCode resolves a code to its owner. Comparison is
// case-sensitive: sqlite TEXT equality, no collation override.
func (s *Storage) GetUserByReferralCode(ctx context.Context, code string) (int64, error) {
	var userID int64
	err := s.db.QueryRowContext(ctx,
		"SELECT telegram_id FROM referral_codes WHERE code = ?", code,
	).Scan(&userID)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	return userID, err
}

// ReferralStats summarizes a referrer's links.
type ReferralStats struct {
	Total           int
	Converted       int
	TotalCommission float64
}

// GetReferralStats returns referral counters for one referrer.
func (s *Storage) GetReferralStats(ctx context.Context, telegramID int64) (*ReferralStats, error) {
	var st ReferralStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(converted), 0), COALESCE(SUM(commission_amount), 0)
		 FROM referrals WHERE referrer_id = ?`,
		telegramID,
	).Scan(&st.Total, &st.Converted, &st.TotalCommission)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// GetReferral returns the referral link for a referred user.
func (s *Storage) GetReferral(ctx context.Context, referredID int64) (*Referral, error) {
	var r Referral
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, referrer_id, referred_id, converted, commission_amount, created_at
		 FROM referrals WHERE referred_id = ?`,
		referredID,
	).Scan(&r.ID, &r.ReferrerID, &r.ReferredID, &r.Converted, &r.CommissionAmount, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.CreatedAt = time.Unix(createdAt, 0)
	return &r, nil
}
