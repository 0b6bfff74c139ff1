// Package handlers exposes the tenant management API: signup, profile,
// working hours, the service and staff catalogs, analytics, and billing
// webhooks.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tmachado/agendly/libs/auth"
	"github.com/tmachado/agendly/services/tenant-service/internal/outbox"
	"github.com/tmachado/agendly/services/tenant-service/internal/storage"
)

type Handler struct {
	repo       *storage.Repository
	outboxRepo *outbox.Repository
	logger     *slog.Logger
	jwtSecret  string

	stripeWebhookSecret    string
	stripeWebhookTolerance time.Duration
}

type Config struct {
	JWTSecret                     string
	StripeWebhookSecret           string
	StripeWebhookToleranceSeconds int
}

func New(repo *storage.Repository, outboxRepo *outbox.Repository, logger *slog.Logger, cfg Config) *Handler {
	tolerance := time.Duration(cfg.StripeWebhookToleranceSeconds) * time.Second
	if tolerance <= 0 {
		tolerance = 300 * time.Second
	}
	return &Handler{
		repo:                   repo,
		outboxRepo:             outboxRepo,
		logger:                 logger,
		jwtSecret:              cfg.JWTSecret,
		stripeWebhookSecret:    cfg.StripeWebhookSecret,
		stripeWebhookTolerance: tolerance,
	}
}

type ctxKey int

const claimsKey ctxKey = 0

// RequireAuth verifies the bearer token and stores its claims on the context.
func (h *Handler) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		claims, err := auth.ParseAndVerifyHS256(strings.TrimPrefix(header, "Bearer "), h.jwtSecret)
		if err != nil || claims.TenantID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	}
}

// RequireOwner additionally rejects callers whose role cannot manage the
// tenant's configuration.
func (h *Handler) RequireOwner(next http.HandlerFunc) http.HandlerFunc {
	return h.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := claimsFrom(r.Context())
		if claims.Role != "owner" && claims.Role != "admin" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	})
}

func claimsFrom(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*auth.Claims)
	return claims, ok && claims != nil
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrSlugTaken):
		http.Error(w, "slug already taken", http.StatusConflict)
	default:
		h.logger.Error("tenant handler error", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
