package storage

import (
	"context"
	"time"
)

// InsertAuthToken stores a fresh unused bridge token.
func (s *Storage) InsertAuthToken(ctx context.Context, telegramID int64, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO auth_tokens (telegram_id, token, expires_at, created_at)
		 VALUES (?, ?, ?, ?)`,
		telegramID, token, expiresAt.Unix(), time.Now().Unix(),
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// SweepAuthTokens deletes all terminal token rows: expired or already used.
// Safe concurrently with verification, which only ever matches live rows.
func (s *Storage) SweepAuthTokens(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM auth_tokens WHERE expires_at < ? OR used = 1",
		now.Unix(),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
