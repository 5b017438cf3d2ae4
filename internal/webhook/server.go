// Package webhook is the HTTP intake for payment notifications and the
// mount point for the auth bridge.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/suspectuso/sol-gate/internal/reconcile"
)

// Sink receives applied outcomes for user-facing notification.
type Sink interface {
	HandleOutcome(ctx context.Context, out reconcile.Outcome)
}

// Server handles incoming payment webhooks
type Server struct {
	engine *reconcile.Engine
	sink   Sink
	auth   http.Handler
	log    *slog.Logger

	server *http.Server
}

// NewServer creates a new webhook server. auth may be nil when the auth
// bridge is disabled.
func NewServer(engine *reconcile.Engine, sink Sink, auth http.Handler, log *slog.Logger) *Server {
	return &Server{
		engine: engine,
		sink:   sink,
		auth:   auth,
		log:    log,
	}
}

// Router builds the HTTP routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Post("/payment_webhook", s.handlePaymentWebhook)
	r.Get("/health", s.handleHealth)
	if s.auth != nil {
		r.Mount("/auth", s.auth)
	}

	return r
}

// Start starts the webhook server
func (s *Server) Start(ctx context.Context, port int) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.log.Info("starting webhook server", "port", port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	return s.server.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// TransactionPayload is one webhook entry: a signed transaction with its
// native transfers. Unknown fields are ignored; absent transfers mean there
// is nothing to apply.
type TransactionPayload struct {
	Signature       string           `json:"signature"`
	NativeTransfers []NativeTransfer `json:"nativeTransfers"`
}

// NativeTransfer is a single lamport movement inside a transaction.
type NativeTransfer struct {
	FromUserAccount string `json:"fromUserAccount"`
	ToUserAccount   string `json:"toUserAccount"`
	Amount          int64  `json:"amount"`
}

// handlePaymentWebhook accepts a JSON array or a single JSON object of
// transactions. A malformed or irrelevant entry never fails the batch; a
// storage failure does, so the provider redelivers and idempotency absorbs
// the repeats.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	txs, ok := s.parsePayload(body)
	if !ok {
		s.log.Warn("invalid webhook payload")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.log.Info("webhook received", "transactions", len(txs))

	w.Header().Set("Content-Type", "application/json")

	for _, tx := range txs {
		if err := s.processTransaction(r.Context(), tx); err != nil {
			s.log.Error("process transaction", "tx_id", tx.Signature, "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"status": "error"})
			return
		}
	}

	json.NewEncoder(w).Encode(map[string]string{"status": "success"})
}

// parsePayload decodes a batch array or a single object. Array elements are
// decoded one at a time: an entry that fails to decode is skipped and logged,
// never failing the rest of the batch.
func (s *Server) parsePayload(body []byte) ([]TransactionPayload, bool) {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		var one TransactionPayload
		if err := json.Unmarshal(body, &one); err != nil {
			return nil, false
		}
		return []TransactionPayload{one}, true
	}

	txs := make([]TransactionPayload, 0, len(raw))
	for i, el := range raw {
		var tx TransactionPayload
		if err := json.Unmarshal(el, &tx); err != nil {
			s.log.Warn("skipping undecodable webhook entry", "index", i, "error", err)
			continue
		}
		txs = append(txs, tx)
	}
	return txs, true
}

func (s *Server) processTransaction(ctx context.Context, tx TransactionPayload) error {
	if tx.Signature == "" {
		s.log.Warn("transaction missing signature")
		return nil
	}

	for _, tr := range tx.NativeTransfers {
		out, err := s.engine.ApplyTransaction(ctx, reconcile.Event{
			ID:       tx.Signature,
			From:     tr.FromUserAccount,
			To:       tr.ToUserAccount,
			Lamports: tr.Amount,
		})
		if err != nil {
			return err
		}

		if s.sink != nil {
			s.sink.HandleOutcome(ctx, out)
		}
	}

	return nil
}
