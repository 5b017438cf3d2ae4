package webhook_test

import (
	"context"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/suspectuso/sol-gate/internal/reconcile"
	"github.com/suspectuso/sol-gate/internal/referral"
	"github.com/suspectuso/sol-gate/internal/storage"
	"github.com/suspectuso/sol-gate/internal/webhook"
)

const (
	depositAddr = "Deposit1111111111111111111111111111111"
	userWallet  = "Wallet11111111111111111111111111111111"
)

type recordingSink struct {
	mu       sync.Mutex
	outcomes []reconcile.Outcome
}

func (r *recordingSink) HandleOutcome(_ context.Context, out reconcile.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, out)
}

func (r *recordingSink) kinds() []reconcile.OutcomeKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]reconcile.OutcomeKind, len(r.outcomes))
	for i, out := range r.outcomes {
		kinds[i] = out.Kind
	}
	return kinds
}

func newTestServer(t *testing.T) (*httptest.Server, *recordingSink, *storage.Storage) {
	t.Helper()
	s, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("init storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	refs := referral.New(s, log)
	engine := reconcile.New(s, refs, depositAddr, 0.5, 10.0, log)

	sink := &recordingSink{}
	srv := httptest.NewServer(webhook.NewServer(engine, sink, nil, log).Router())
	t.Cleanup(srv.Close)
	return srv, sink, s
}

func postWebhook(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/payment_webhook", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST webhook: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestWebhookAppliesBatch(t *testing.T) {
	srv, sink, s := newTestServer(t)
	ctx := context.Background()

	s.EnsureUser(ctx, 42, "payer")
	s.AddWallet(ctx, 42, userWallet)

	// A batch mixing a real payment, a transfer to somewhere else, and an
	// entry with no signature. Only the first credits the user; none of
	// them fail the request.
	body := `[
		{"signature": "tx1", "nativeTransfers": [
			{"fromUserAccount": "` + userWallet + `", "toUserAccount": "` + depositAddr + `", "amount": 500000000}
		]},
		{"signature": "tx2", "nativeTransfers": [
			{"fromUserAccount": "` + userWallet + `", "toUserAccount": "Elsewhere", "amount": 100000000}
		]},
		{"nativeTransfers": [
			{"fromUserAccount": "` + userWallet + `", "toUserAccount": "` + depositAddr + `", "amount": 100000000}
		]}
	]`

	resp := postWebhook(t, srv, body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	u, err := s.GetUser(ctx, 42)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if !u.IsPremium || math.Abs(u.PaidAmount-0.5) > 1e-9 {
		t.Errorf("expected premium with 0.5 paid, got premium=%v paid=%v", u.IsPremium, u.PaidAmount)
	}

	kinds := sink.kinds()
	if len(kinds) != 2 || kinds[0] != reconcile.OutcomePremiumGranted || kinds[1] != reconcile.OutcomeIgnored {
		t.Errorf("unexpected outcomes: %v", kinds)
	}
}

// An entry whose fields don't decode (here a numeric signature) must be
// skipped, not fail the batch: the provider won't redeliver on a 4xx, so
// rejecting the whole array would lose the valid payment next to it.
func TestWebhookSkipsUndecodableEntry(t *testing.T) {
	srv, sink, s := newTestServer(t)
	ctx := context.Background()

	s.EnsureUser(ctx, 42, "payer")
	s.AddWallet(ctx, 42, userWallet)

	body := `[
		{"signature": "tx1", "nativeTransfers": [
			{"fromUserAccount": "` + userWallet + `", "toUserAccount": "` + depositAddr + `", "amount": 300000000}
		]},
		{"signature": 12345, "nativeTransfers": [
			{"fromUserAccount": "` + userWallet + `", "toUserAccount": "` + depositAddr + `", "amount": 100000000}
		]}
	]`

	resp := postWebhook(t, srv, body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	u, err := s.GetUser(ctx, 42)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if math.Abs(u.PaidAmount-0.3) > 1e-9 {
		t.Errorf("valid entry must still be applied, got paid=%v", u.PaidAmount)
	}

	kinds := sink.kinds()
	if len(kinds) != 1 || kinds[0] != reconcile.OutcomePartial {
		t.Errorf("unexpected outcomes: %v", kinds)
	}
}

func TestWebhookSingleObjectPayload(t *testing.T) {
	srv, sink, s := newTestServer(t)
	ctx := context.Background()

	s.EnsureUser(ctx, 42, "payer")
	s.AddWallet(ctx, 42, userWallet)

	body := `{"signature": "tx1", "nativeTransfers": [
		{"fromUserAccount": "` + userWallet + `", "toUserAccount": "` + depositAddr + `", "amount": 300000000}
	]}`

	resp := postWebhook(t, srv, body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	kinds := sink.kinds()
	if len(kinds) != 1 || kinds[0] != reconcile.OutcomePartial {
		t.Errorf("unexpected outcomes: %v", kinds)
	}
}

func TestWebhookRedeliveryIsIdempotent(t *testing.T) {
	srv, sink, s := newTestServer(t)
	ctx := context.Background()

	s.EnsureUser(ctx, 42, "payer")
	s.AddWallet(ctx, 42, userWallet)

	body := `[{"signature": "tx1", "nativeTransfers": [
		{"fromUserAccount": "` + userWallet + `", "toUserAccount": "` + depositAddr + `", "amount": 300000000}
	]}]`

	for i := 0; i < 2; i++ {
		resp := postWebhook(t, srv, body)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d", i+1, resp.StatusCode)
		}
	}

	u, _ := s.GetUser(ctx, 42)
	if math.Abs(u.PaidAmount-0.3) > 1e-9 {
		t.Errorf("redelivery must not double-credit, got %v", u.PaidAmount)
	}

	kinds := sink.kinds()
	if len(kinds) != 2 || kinds[0] != reconcile.OutcomePartial || kinds[1] != reconcile.OutcomeDuplicate {
		t.Errorf("unexpected outcomes: %v", kinds)
	}
}

func TestWebhookRejectsMalformedBody(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := postWebhook(t, srv, "not json")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestWebhookStorageFailureReturns500(t *testing.T) {
	srv, _, s := newTestServer(t)
	ctx := context.Background()

	s.EnsureUser(ctx, 42, "payer")
	s.AddWallet(ctx, 42, userWallet)

	// Closing the database makes every apply fail; the provider must see
	// an error status so it redelivers.
	s.Close()

	body := `[{"signature": "tx1", "nativeTransfers": [
		{"fromUserAccount": "` + userWallet + `", "toUserAccount": "` + depositAddr + `", "amount": 300000000}
	]}]`

	resp := postWebhook(t, srv, body)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json error body, got %q", ct)
	}
}
