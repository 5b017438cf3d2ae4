// Package referral records referrer↔referred links, resolves deep-link
// codes, and settles commission when a referred user converts.
package referral

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/suspectuso/sol-gate/internal/storage"
)

var (
	ErrInvalidCode  = errors.New("code must be 3-15 characters of letters, numbers, and underscores")
	ErrReservedCode = errors.New("code is reserved")
	ErrCodeTaken    = errors.New("code already taken")
	ErrHasCode      = errors.New("user already has a code")
)

var codeRe = regexp.MustCompile(`^[A-Za-z0-9_]{3,15}$`)

// reservedCodes are command-like words that would collide with bot deep links.
var reservedCodes = map[string]bool{
	"admin":    true,
	"help":     true,
	"start":    true,
	"settings": true,
	"premium":  true,
	"pay":      true,
}

// Engine resolves codes and maintains referral links.
type Engine struct {
	store *storage.Storage
	log   *slog.Logger
}

// New creates a referral engine
func New(store *storage.Storage, log *slog.Logger) *Engine {
	return &Engine{store: store, log: log}
}

// RecordLink records that referrerID brought in referredID. Returns false
// without writing on self-referral or when the referred user already has a
// referrer; a repeat attempt is a safe no-op.
func (e *Engine) RecordLink(ctx context.Context, referrerID, referredID int64) (bool, error) {
	if referrerID == referredID {
		return false, nil
	}

	err := e.store.InsertReferral(ctx, referrerID, referredID)
	if errors.Is(err, storage.ErrDuplicate) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert referral: %w", err)
	}

	e.log.Info("referral recorded", "referrer_id", referrerID, "referred_id", referredID)
	return true, nil
}

// ResolveCode resolves a referral code to its owner. Case-sensitive exact
// match; ok is false when no such code exists.
func (e *Engine) ResolveCode(ctx context.Context, code string) (int64, bool, error) {
	userID, err := e.store.GetUserByReferralCode(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return userID, true, nil
}

// CreateCode creates the permanent referral code for a user after
// validating charset, length, reserved words, and uniqueness.
func (e *Engine) CreateCode(ctx context.Context, userID int64, code string) error {
	if !codeRe.MatchString(code) {
		return ErrInvalidCode
	}
	if reservedCodes[strings.ToLower(code)] {
		return ErrReservedCode
	}

	if _, err := e.store.GetReferralCode(ctx, userID); err == nil {
		return ErrHasCode
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	err := e.store.InsertReferralCode(ctx, userID, code)
	if errors.Is(err, storage.ErrDuplicate) {
		// Own-code case handled above, so the collision is on the code.
		return ErrCodeTaken
	}
	return err
}

// Code returns the user's referral code, ok=false when none exists yet.
func (e *Engine) Code(ctx context.Context, userID int64) (string, bool, error) {
	code, err := e.store.GetReferralCode(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return code, true, nil
}

// Conversion is the settled result of a referred user going premium.
type Conversion struct {
	ReferrerID int64
	Commission float64
}

// Convert settles the referral of userID, if an unconverted link exists.
// Runs on the caller's transaction so the commission credit commits or
// rolls back together with the payment that triggered it. Returns nil when
// the user has no pending referral.
func (e *Engine) Convert(tx *storage.Tx, userID int64, paymentAmount, commissionPercent float64) (*Conversion, error) {
	referrerID, err := tx.UnconvertedReferrer(userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	commission := paymentAmount * commissionPercent / 100
	if err := tx.ConvertReferral(referrerID, userID, commission); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Lost the race to another conversion inside this tx scope.
			return nil, nil
		}
		return nil, err
	}

	return &Conversion{ReferrerID: referrerID, Commission: commission}, nil
}

// Stats returns referral counters for a referrer.
func (e *Engine) Stats(ctx context.Context, userID int64) (*storage.ReferralStats, error) {
	return e.store.GetReferralStats(ctx, userID)
}
