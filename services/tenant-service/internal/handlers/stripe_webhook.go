package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/tmachado/agendly/libs/plan"
	"github.com/tmachado/agendly/services/tenant-service/internal/outbox"
)

// StripeWebhook handles POST /api/v1/billing/webhooks/stripe. Signature
// verification is the auth; the route carries no JWT.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if strings.TrimSpace(h.stripeWebhookSecret) == "" {
		http.Error(w, "stripe webhook not configured", http.StatusServiceUnavailable)
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		http.Error(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1 MiB hard cap
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	evt, err := webhook.ConstructEventWithTolerance(body, sigHeader, h.stripeWebhookSecret, h.stripeWebhookTolerance)
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	evtType := string(evt.Type)
	h.logger.Info("billing provider event received",
		"provider", "stripe",
		"provider_event_id", evt.ID,
		"event_type", evtType,
		"occurred_at", time.Unix(evt.Created, 0).UTC().Format(time.RFC3339),
	)

	err = h.repo.Pool().InTx(r.Context(), func(tx pgx.Tx) error {
		// Replayed Stripe events dedupe through the inbox table.
		fresh, err := recordProviderEvent(r.Context(), tx, "stripe:"+evt.ID, evtType)
		if err != nil {
			return err
		}
		if !fresh {
			h.logger.Info("billing provider event duplicate ignored", "provider_event_id", evt.ID)
			return nil
		}
		return h.applyStripeEvent(r.Context(), tx, evtType, evt.Data.Raw)
	})
	if err != nil {
		h.logger.Error("stripe webhook apply failed", "err", err, "provider_event_id", evt.ID)
		http.Error(w, "failed to apply event", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) applyStripeEvent(ctx context.Context, tx pgx.Tx, evtType string, raw []byte) error {
	switch evtType {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(raw, &session); err != nil {
			h.logger.Error("stripe: invalid checkout session payload", "err", err)
			return nil
		}
		return h.applyPlanChange(ctx, tx,
			session.Metadata["tenant_slug"], session.Metadata["tier"], "stripe")

	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			h.logger.Error("stripe: invalid subscription payload", "err", err)
			return nil
		}
		// Only active/trialing subscriptions grant entitlements.
		if sub.Status != stripe.SubscriptionStatusActive && sub.Status != stripe.SubscriptionStatusTrialing {
			return nil
		}
		return h.applyPlanChange(ctx, tx,
			sub.Metadata["tenant_slug"], sub.Metadata["tier"], "stripe")

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			h.logger.Error("stripe: invalid subscription payload", "err", err)
			return nil
		}
		return h.applyPlanChange(ctx, tx,
			sub.Metadata["tenant_slug"], plan.TierBasic, "stripe")
	}
	return nil
}

func (h *Handler) applyPlanChange(ctx context.Context, tx pgx.Tx, tenantSlug, tier, source string) error {
	tenantSlug = strings.TrimSpace(tenantSlug)
	tier = strings.ToLower(strings.TrimSpace(tier))
	if tenantSlug == "" || !plan.Known(tier) {
		h.logger.Warn("stripe: missing or unknown tenant_slug/tier metadata",
			"tenant", tenantSlug, "tier", tier)
		return nil
	}

	if err := h.repo.UpdatePlan(ctx, tx, tenantSlug, tier, "active"); err != nil {
		return err
	}
	evt, err := outbox.PlanChangedEvent(tenantSlug, tier, source)
	if err != nil {
		return err
	}
	if err := h.outboxRepo.Insert(ctx, tx, evt); err != nil {
		return err
	}
	h.logger.Info("tenant plan changed", "tenant", tenantSlug, "tier", tier, "source", source)
	return nil
}

// recordProviderEvent dedupes with ON CONFLICT rather than by catching the
// unique violation: an aborted statement would poison the surrounding tx.
func recordProviderEvent(ctx context.Context, tx pgx.Tx, eventID, eventType string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
