package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/tmachado/agendly/libs/plan"
)

// Dashboard handles GET /api/v1/tenant/analytics/dashboard. Defaults to the
// current month on the tenant's calendar; ?from=&to= (YYYY-MM-DD) override.
// Analytics is a paid feature; basic-plan tenants get 402.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims, _ := claimsFrom(r.Context())

	tenant, err := h.repo.GetTenant(r.Context(), claims.TenantID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !plan.ForTier(tenant.Plan).Analytics {
		http.Error(w, "analytics requires a premium plan", http.StatusPaymentRequired)
		return
	}

	loc, err := time.LoadLocation(tenant.Timezone)
	if err != nil {
		loc = time.UTC
	}
	now := time.Now().In(loc)
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	to := from.AddDate(0, 1, 0)

	q := r.URL.Query()
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		t, err := time.ParseInLocation("2006-01-02", v, loc)
		if err != nil {
			http.Error(w, "invalid from", http.StatusBadRequest)
			return
		}
		from = t
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		t, err := time.ParseInLocation("2006-01-02", v, loc)
		if err != nil {
			http.Error(w, "invalid to", http.StatusBadRequest)
			return
		}
		to = t
	}
	if !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
	}

	stats, err := h.repo.DashboardStats(r.Context(), claims.TenantID, from.UTC(), to.UTC())
	if err != nil {
		h.writeError(w, err)
		return
	}
	top, err := h.repo.TopServices(r.Context(), claims.TenantID, from.UTC(), to.UTC(), 5)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"from":         from.Format("2006-01-02"),
		"to":           to.Format("2006-01-02"),
		"stats":        stats,
		"top_services": top,
	})
}
