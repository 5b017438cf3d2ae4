package reconcile_test

import (
	"context"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"testing"

	"github.com/suspectuso/sol-gate/internal/reconcile"
	"github.com/suspectuso/sol-gate/internal/referral"
	"github.com/suspectuso/sol-gate/internal/storage"
)

const (
	depositAddr = "Deposit1111111111111111111111111111111"
	userWallet  = "Wallet11111111111111111111111111111111"
)

func newTestEngine(t *testing.T) (*reconcile.Engine, *referral.Engine, *storage.Storage) {
	t.Helper()
	s, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("init storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	refs := referral.New(s, log)
	engine := reconcile.New(s, refs, depositAddr, 0.5, 10.0, log)
	return engine, refs, s
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestApplyIgnoredAndUnattributed(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	// Transfer to some other address.
	out, err := engine.ApplyTransaction(ctx, reconcile.Event{
		ID: "tx1", From: userWallet, To: "Other111111111111111111111111111111111", Lamports: 500_000_000,
	})
	if err != nil {
		t.Fatalf("ApplyTransaction: %v", err)
	}
	if out.Kind != reconcile.OutcomeIgnored {
		t.Errorf("expected Ignored, got %v", out.Kind)
	}

	// Transfer to the deposit address from a wallet nobody linked.
	out, err = engine.ApplyTransaction(ctx, reconcile.Event{
		ID: "tx2", From: "Unknown1111111111111111111111111111111", To: depositAddr, Lamports: 500_000_000,
	})
	if err != nil {
		t.Fatalf("ApplyTransaction: %v", err)
	}
	if out.Kind != reconcile.OutcomeUnattributed {
		t.Errorf("expected Unattributed, got %v", out.Kind)
	}
}

func TestApplyZeroAmountIgnored(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	out, err := engine.ApplyTransaction(context.Background(), reconcile.Event{
		ID: "tx1", From: userWallet, To: depositAddr, Lamports: 0,
	})
	if err != nil {
		t.Fatalf("ApplyTransaction: %v", err)
	}
	if out.Kind != reconcile.OutcomeIgnored {
		t.Errorf("expected Ignored for zero amount, got %v", out.Kind)
	}
}

// Two partial payments cross the threshold, and a redelivered event
// changes nothing.
func TestThresholdCrossingAndIdempotency(t *testing.T) {
	engine, _, s := newTestEngine(t)
	ctx := context.Background()

	s.EnsureUser(ctx, 42, "payer")
	if err := s.AddWallet(ctx, 42, userWallet); err != nil {
		t.Fatalf("AddWallet: %v", err)
	}

	// Event A: 0.3 SOL, below the 0.5 threshold.
	out, err := engine.ApplyTransaction(ctx, reconcile.Event{
		ID: "tx1", From: userWallet, To: depositAddr, Lamports: 300_000_000,
	})
	if err != nil {
		t.Fatalf("apply tx1: %v", err)
	}
	if out.Kind != reconcile.OutcomePartial {
		t.Fatalf("expected Partial, got %v", out.Kind)
	}
	if !almostEqual(out.NewTotal, 0.3) || !almostEqual(out.Remaining, 0.2) {
		t.Errorf("unexpected totals: new_total=%v remaining=%v", out.NewTotal, out.Remaining)
	}

	u, _ := s.GetUser(ctx, 42)
	if u.IsPremium {
		t.Error("user must not be premium below threshold")
	}

	// Event B: another 0.3 SOL crosses the threshold.
	out, err = engine.ApplyTransaction(ctx, reconcile.Event{
		ID: "tx2", From: userWallet, To: depositAddr, Lamports: 300_000_000,
	})
	if err != nil {
		t.Fatalf("apply tx2: %v", err)
	}
	if out.Kind != reconcile.OutcomePremiumGranted {
		t.Fatalf("expected PremiumGranted, got %v", out.Kind)
	}
	if !almostEqual(out.NewTotal, 0.6) {
		t.Errorf("expected new_total 0.6, got %v", out.NewTotal)
	}

	u, _ = s.GetUser(ctx, 42)
	if !u.IsPremium {
		t.Error("user must be premium after crossing threshold")
	}

	// Redelivery of event A: duplicate, no ledger change.
	out, err = engine.ApplyTransaction(ctx, reconcile.Event{
		ID: "tx1", From: userWallet, To: depositAddr, Lamports: 300_000_000,
	})
	if err != nil {
		t.Fatalf("redeliver tx1: %v", err)
	}
	if out.Kind != reconcile.OutcomeDuplicate {
		t.Errorf("expected Duplicate, got %v", out.Kind)
	}

	u, _ = s.GetUser(ctx, 42)
	if !almostEqual(u.PaidAmount, 0.6) {
		t.Errorf("paid_amount must be unchanged by redelivery, got %v", u.PaidAmount)
	}
}

func TestRepeatPaymentAfterPremium(t *testing.T) {
	engine, _, s := newTestEngine(t)
	ctx := context.Background()

	s.EnsureUser(ctx, 42, "payer")
	s.AddWallet(ctx, 42, userWallet)

	if _, err := engine.ApplyTransaction(ctx, reconcile.Event{
		ID: "tx1", From: userWallet, To: depositAddr, Lamports: 500_000_000,
	}); err != nil {
		t.Fatalf("apply tx1: %v", err)
	}

	// A later payment from a premium user is still credited but reported
	// as partial/repeat with no remaining amount.
	out, err := engine.ApplyTransaction(ctx, reconcile.Event{
		ID: "tx2", From: userWallet, To: depositAddr, Lamports: 100_000_000,
	})
	if err != nil {
		t.Fatalf("apply tx2: %v", err)
	}
	if out.Kind != reconcile.OutcomePartial {
		t.Errorf("expected Partial for already-premium user, got %v", out.Kind)
	}
	if out.Remaining != 0 {
		t.Errorf("expected no remaining amount, got %v", out.Remaining)
	}

	u, _ := s.GetUser(ctx, 42)
	if !almostEqual(u.PaidAmount, 0.6) {
		t.Errorf("expected paid_amount 0.6, got %v", u.PaidAmount)
	}
}

// User 7 referred by user 3, 10% commission on a 0.5 SOL payment.
func TestConversionSettlesCommission(t *testing.T) {
	engine, refs, s := newTestEngine(t)
	ctx := context.Background()

	s.EnsureUser(ctx, 3, "referrer")
	s.EnsureUser(ctx, 7, "referred")
	s.AddWallet(ctx, 7, userWallet)

	if ok, _ := refs.RecordLink(ctx, 3, 7); !ok {
		t.Fatal("RecordLink failed")
	}

	out, err := engine.ApplyTransaction(ctx, reconcile.Event{
		ID: "tx1", From: userWallet, To: depositAddr, Lamports: 500_000_000,
	})
	if err != nil {
		t.Fatalf("ApplyTransaction: %v", err)
	}
	if out.Kind != reconcile.OutcomePremiumGranted {
		t.Fatalf("expected PremiumGranted, got %v", out.Kind)
	}
	if out.Conversion == nil {
		t.Fatal("expected a referral conversion")
	}
	if out.Conversion.ReferrerID != 3 || !almostEqual(out.Conversion.Commission, 0.05) {
		t.Errorf("unexpected conversion: %+v", out.Conversion)
	}

	referrer, _ := s.GetUser(ctx, 3)
	if !almostEqual(referrer.TotalCommission, 0.05) {
		t.Errorf("expected referrer commission 0.05, got %v", referrer.TotalCommission)
	}
	link, _ := s.GetReferral(ctx, 7)
	if !link.Converted {
		t.Error("referral link must be converted")
	}
}

// A duplicate delivered concurrently with the original must not
// double-credit: the unique constraint decides the winner.
func TestConcurrentDuplicateDeliveries(t *testing.T) {
	engine, _, s := newTestEngine(t)
	ctx := context.Background()

	s.EnsureUser(ctx, 42, "payer")
	s.AddWallet(ctx, 42, userWallet)

	ev := reconcile.Event{ID: "tx1", From: userWallet, To: depositAddr, Lamports: 300_000_000}

	results := make(chan reconcile.OutcomeKind, 2)
	for i := 0; i < 2; i++ {
		go func() {
			out, err := engine.ApplyTransaction(ctx, ev)
			if err != nil {
				t.Errorf("ApplyTransaction: %v", err)
			}
			results <- out.Kind
		}()
	}

	kinds := map[reconcile.OutcomeKind]int{}
	for i := 0; i < 2; i++ {
		kinds[<-results]++
	}
	if kinds[reconcile.OutcomePartial] != 1 || kinds[reconcile.OutcomeDuplicate] != 1 {
		t.Errorf("expected exactly one applied and one duplicate, got %v", kinds)
	}

	u, _ := s.GetUser(ctx, 42)
	if !almostEqual(u.PaidAmount, 0.3) {
		t.Errorf("expected single credit of 0.3, got %v", u.PaidAmount)
	}
}
