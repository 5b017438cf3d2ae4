// Package reconcile applies externally delivered payment events to the
// ledger: exactly-once crediting, premium threshold crossing, and referral
// settlement, all inside one database transaction per event.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/suspectuso/sol-gate/internal/referral"
	"github.com/suspectuso/sol-gate/internal/storage"
)

// LamportsPerSOL converts minor units reported by the payment webhook.
const LamportsPerSOL = 1_000_000_000

// Event is one native transfer extracted from a webhook delivery.
type Event struct {
	// ID is the on-chain signature, globally unique per transaction.
	ID       string
	From     string
	To       string
	Lamports int64
}

// OutcomeKind classifies what applying an event did.
type OutcomeKind int

const (
	// OutcomeIgnored: transfer not addressed to the deposit wallet.
	OutcomeIgnored OutcomeKind = iota
	// OutcomeUnattributed: funds arrived from a wallet no user has linked.
	OutcomeUnattributed
	// OutcomeDuplicate: transaction id already in the ledger; nothing changed.
	OutcomeDuplicate
	// OutcomePremiumGranted: this credit crossed the premium threshold.
	OutcomePremiumGranted
	// OutcomePartial: credited, but below the threshold or already premium.
	OutcomePartial
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeUnattributed:
		return "unattributed"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomePremiumGranted:
		return "premium_granted"
	case OutcomePartial:
		return "partial"
	}
	return "unknown"
}

// Outcome reports the result of one applied event.
type Outcome struct {
	Kind     OutcomeKind
	UserID   int64
	Amount   float64
	NewTotal float64
	// Remaining to reach the premium threshold; only set on OutcomePartial
	// for non-premium users.
	Remaining float64
	// Conversion is set when this event settled a referral.
	Conversion *referral.Conversion
}

// Engine consumes payment events and mutates the ledger.
type Engine struct {
	store             *storage.Storage
	referrals         *referral.Engine
	depositAddress    string
	requiredPayment   float64
	commissionPercent float64
	log               *slog.Logger
}

// New creates a reconciliation engine
func New(store *storage.Storage, referrals *referral.Engine, depositAddress string, requiredPayment, commissionPercent float64, log *slog.Logger) *Engine {
	return &Engine{
		store:             store,
		referrals:         referrals,
		depositAddress:    depositAddress,
		requiredPayment:   requiredPayment,
		commissionPercent: commissionPercent,
		log:               log,
	}
}

// ApplyTransaction applies one payment event. Deliveries are at-least-once
// and may race: the duplicate check rides on the payments UNIQUE constraint
// inside the same transaction as the credit, so a redelivered or concurrent
// duplicate rolls back without touching the user row. A non-nil error means
// the event was not applied and is safe to redeliver.
func (e *Engine) ApplyTransaction(ctx context.Context, ev Event) (Outcome, error) {
	if ev.ID == "" || ev.Lamports <= 0 {
		return Outcome{Kind: OutcomeIgnored}, nil
	}
	if ev.To != e.depositAddress {
		return Outcome{Kind: OutcomeIgnored}, nil
	}

	amount := float64(ev.Lamports) / LamportsPerSOL

	userID, err := e.store.GetUserByWallet(ctx, ev.From)
	if errors.Is(err, storage.ErrNotFound) {
		e.log.Warn("payment from unknown wallet",
			"tx_id", ev.ID,
			"from", ev.From,
			"amount", amount,
		)
		return Outcome{Kind: OutcomeUnattributed, Amount: amount}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve wallet owner: %w", err)
	}

	out := Outcome{UserID: userID, Amount: amount}

	err = e.store.WithTx(ctx, func(tx *storage.Tx) error {
		if err := tx.InsertPayment(userID, ev.ID, amount); err != nil {
			return err
		}

		newTotal, wasPremium, err := tx.CreditUser(userID, amount)
		if err != nil {
			return err
		}
		out.NewTotal = newTotal

		if wasPremium || newTotal < e.requiredPayment {
			out.Kind = OutcomePartial
			if !wasPremium {
				out.Remaining = e.requiredPayment - newTotal
			}
			return nil
		}

		if err := tx.SetPremium(userID); err != nil {
			return err
		}

		conv, err := e.referrals.Convert(tx, userID, amount, e.commissionPercent)
		if err != nil {
			return err
		}

		out.Kind = OutcomePremiumGranted
		out.Conversion = conv
		return nil
	})

	if errors.Is(err, storage.ErrDuplicate) {
		e.log.Info("duplicate payment event", "tx_id", ev.ID, "user_id", userID)
		return Outcome{Kind: OutcomeDuplicate, UserID: userID, Amount: amount}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("apply transaction %s: %w", ev.ID, err)
	}

	e.log.Info("payment applied",
		"tx_id", ev.ID,
		"user_id", userID,
		"amount", amount,
		"new_total", out.NewTotal,
		"outcome", out.Kind.String(),
	)
	return out, nil
}
