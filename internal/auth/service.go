// Package auth issues and redeems the single-use tokens that bridge a bot
// identity to a web session.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/suspectuso/sol-gate/internal/storage"
)

// ErrInvalidToken covers expired, used, and unknown tokens alike so callers
// cannot tell them apart.
var ErrInvalidToken = errors.New("invalid or expired token")

// Service manages bridge token lifecycle.
type Service struct {
	store *storage.Storage
	log   *slog.Logger
}

// New creates an auth token service
func New(store *storage.Storage, log *slog.Logger) *Service {
	return &Service{store: store, log: log}
}

// Issue generates a random single-use token for userID expiring after ttl.
func (s *Service) Issue(ctx context.Context, userID int64, ttl time.Duration) (*storage.AuthToken, error) {
	token := &storage.AuthToken{
		UserID:    userID,
		Token:     uuid.NewString(),
		ExpiresAt: time.Now().Add(ttl),
	}

	if err := s.store.InsertAuthToken(ctx, userID, token.Token, token.ExpiresAt); err != nil {
		return nil, fmt.Errorf("insert auth token: %w", err)
	}

	s.log.Info("auth token issued", "user_id", userID, "expires_at", token.ExpiresAt)
	return token, nil
}

// Verify redeems a token and returns its owner. The first successful call
// flips the token to used inside one transaction; any later call, and any
// call on an expired or unknown token, returns ErrInvalidToken.
func (s *Service) Verify(ctx context.Context, token string) (*storage.User, error) {
	var userID int64
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		userID, err = tx.RedeemAuthToken(token, time.Now())
		return err
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.log.Info("auth token verified", "user_id", userID)
	return user, nil
}

// Sweep deletes expired and used tokens, returning how many were removed.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	return s.store.SweepAuthTokens(ctx, time.Now())
}

// StartSweeper runs Sweep once immediately and then on every tick until the
// context is cancelled.
func (s *Service) StartSweeper(ctx context.Context, interval time.Duration) {
	if n, err := s.Sweep(ctx); err != nil {
		s.log.Error("token sweep", "error", err)
	} else if n > 0 {
		s.log.Info("token sweep", "deleted", n)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.Sweep(ctx); err != nil {
				s.log.Error("token sweep", "error", err)
			} else if n > 0 {
				s.log.Info("token sweep", "deleted", n)
			}
		}
	}
}
