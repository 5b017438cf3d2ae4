package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/suspectuso/sol-gate/internal/config"
	"github.com/suspectuso/sol-gate/internal/storage"
)

// HTTPHandler exposes the auth bridge: token issuance, redemption into a
// web-session JWT, and JWT verification for the front-end.
type HTTPHandler struct {
	svc   *Service
	store *storage.Storage
	cfg   *config.Config
	log   *slog.Logger
}

// NewHTTPHandler creates the auth HTTP surface
func NewHTTPHandler(svc *Service, store *storage.Storage, cfg *config.Config, log *slog.Logger) *HTTPHandler {
	return &HTTPHandler{svc: svc, store: store, cfg: cfg, log: log}
}

// Routes returns the /auth subtree.
func (h *HTTPHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleAuth)
	r.Get("/token", h.handleIssue)
	r.Get("/verify", h.handleVerifyToken)
	r.Post("/verify_jwt", h.handleVerifyJWT)
	return r
}

// handleIssue issues a bridge token for a bot user and redirects to the
// website with the token embedded.
func (h *HTTPHandler) handleIssue(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "missing or invalid user_id")
		return
	}

	if _, err := h.store.GetUser(r.Context(), userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "user not found")
			return
		}
		h.log.Error("get user", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "server error")
		return
	}

	token, err := h.svc.Issue(r.Context(), userID, h.cfg.AuthTokenTTL)
	if err != nil {
		h.log.Error("issue token", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	http.Redirect(w, r, fmt.Sprintf("%s?token=%s", h.cfg.WebsiteURL, token.Token), http.StatusFound)
}

// handleAuth redeems a bridge token, mints a session JWT, and redirects to
// the website login.
func (h *HTTPHandler) handleAuth(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeJSONError(w, http.StatusBadRequest, "no token provided")
		return
	}

	user, err := h.svc.Verify(r.Context(), token)
	if errors.Is(err, ErrInvalidToken) {
		writeJSONError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}
	if err != nil {
		h.log.Error("verify token", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "server error")
		return
	}

	signed, err := h.mintJWT(user)
	if err != nil {
		h.log.Error("sign jwt", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "server error")
		return
	}

	loginPath := "/login"
	if user.IsPremium {
		loginPath = "/premium/login"
	}
	http.Redirect(w, r, fmt.Sprintf("%s%s?token=%s", h.cfg.WebsiteURL, loginPath, signed), http.StatusFound)
}

// handleVerifyToken redeems a bridge token and returns the identity as JSON
// instead of redirecting.
func (h *HTTPHandler) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"valid": false, "error": "missing token parameter"})
		return
	}

	user, err := h.svc.Verify(r.Context(), token)
	if errors.Is(err, ErrInvalidToken) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"valid": false, "error": "invalid or expired token"})
		return
	}
	if err != nil {
		h.log.Error("verify token", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"valid": false, "error": "server error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"valid": true,
		"user": map[string]any{
			"telegram_id": user.TelegramID,
			"username":    user.Username,
			"is_premium":  user.IsPremium,
			"paid_amount": user.PaidAmount,
		},
	})
}

// handleVerifyJWT validates a bearer session JWT and re-checks premium so a
// downgraded user loses web access when the front-end next asks.
func (h *HTTPHandler) handleVerifyJWT(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "no token provided"})
		return
	}
	raw := strings.TrimPrefix(authHeader, "Bearer ")

	parsed, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return []byte(h.cfg.JWTSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "invalid token"})
		return
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "invalid token"})
		return
	}
	idClaim, ok := claims["telegram_id"].(float64)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "invalid token"})
		return
	}

	user, err := h.store.GetUser(r.Context(), int64(idClaim))
	if err != nil || !user.IsPremium {
		writeJSON(w, http.StatusForbidden, map[string]any{"success": false, "error": "user is not premium"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user": map[string]any{
			"telegram_id": user.TelegramID,
			"username":    user.Username,
			"is_premium":  user.IsPremium,
		},
	})
}

func (h *HTTPHandler) mintJWT(user *storage.User) (string, error) {
	claims := jwt.MapClaims{
		"telegram_id": user.TelegramID,
		"username":    user.Username,
		"is_premium":  user.IsPremium,
		"exp":         time.Now().Add(24 * time.Hour).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(h.cfg.JWTSecret))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
