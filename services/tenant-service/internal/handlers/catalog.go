package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/tmachado/agendly/libs/plan"
	"github.com/tmachado/agendly/services/tenant-service/internal/storage"
)

type serviceItem struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	DurationMinutes int     `json:"duration_minutes"`
	Price           float64 `json:"price"`
	Description     string  `json:"description,omitempty"`
	Active          bool    `json:"active"`
	CreatedAt       string  `json:"created_at"`
}

// Services handles GET and POST /api/v1/tenant/services.
func (h *Handler) Services(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())

	switch r.Method {
	case http.MethodGet:
		services, err := h.repo.ListServices(r.Context(), claims.TenantID, false)
		if err != nil {
			h.writeError(w, err)
			return
		}
		out := make([]serviceItem, 0, len(services))
		for _, s := range services {
			out = append(out, serviceItem{
				ID:              s.ID,
				Name:            s.Name,
				DurationMinutes: s.DurationMinutes,
				Price:           s.Price,
				Description:     s.Description,
				Active:          s.Active,
				CreatedAt:       s.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"services": out})

	case http.MethodPost:
		var req struct {
			Name            string  `json:"name"`
			DurationMinutes int     `json:"duration_minutes"`
			Price           float64 `json:"price"`
			Description     string  `json:"description"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" || req.DurationMinutes <= 0 {
			http.Error(w, "name and positive duration_minutes required", http.StatusBadRequest)
			return
		}
		if req.DurationMinutes > 24*60 {
			http.Error(w, "duration_minutes too large", http.StatusBadRequest)
			return
		}

		if !h.serviceQuotaOK(w, r, claims.TenantID) {
			return
		}

		id, err := h.repo.CreateService(r.Context(), storage.Service{
			TenantSlug:      claims.TenantID,
			Name:            req.Name,
			DurationMinutes: req.DurationMinutes,
			Price:           req.Price,
			Description:     strings.TrimSpace(req.Description),
		})
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// DeleteService handles POST /api/v1/tenant/services/deactivate. Services are
// never hard-deleted; appointment history keeps pointing at them.
func (h *Handler) DeleteService(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.ID) == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}
	if err := h.repo.DeactivateService(r.Context(), claims.TenantID, strings.TrimSpace(req.ID)); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type staffItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at"`
}

// Staff handles GET and POST /api/v1/tenant/staff.
func (h *Handler) Staff(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())

	switch r.Method {
	case http.MethodGet:
		staff, err := h.repo.ListStaff(r.Context(), claims.TenantID, false)
		if err != nil {
			h.writeError(w, err)
			return
		}
		out := make([]staffItem, 0, len(staff))
		for _, s := range staff {
			out = append(out, staffItem{
				ID:        s.ID,
				Name:      s.Name,
				Active:    s.Active,
				CreatedAt: s.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"staff": out})

	case http.MethodPost:
		var req struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			http.Error(w, "name required", http.StatusBadRequest)
			return
		}

		tenant, err := h.repo.GetTenant(r.Context(), claims.TenantID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		count, err := h.repo.CountActiveStaff(r.Context(), claims.TenantID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		if max := plan.ForTier(tenant.Plan).MaxStaff; count >= max {
			http.Error(w, "staff limit reached for plan", http.StatusPaymentRequired)
			return
		}

		id, err := h.repo.CreateStaff(r.Context(), claims.TenantID, req.Name)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// DeactivateStaff handles POST /api/v1/tenant/staff/deactivate.
func (h *Handler) DeactivateStaff(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.ID) == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}
	if err := h.repo.DeactivateStaff(r.Context(), claims.TenantID, strings.TrimSpace(req.ID)); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// serviceQuotaOK writes the error response itself when the quota is spent.
func (h *Handler) serviceQuotaOK(w http.ResponseWriter, r *http.Request, tenantSlug string) bool {
	tenant, err := h.repo.GetTenant(r.Context(), tenantSlug)
	if err != nil {
		h.writeError(w, err)
		return false
	}
	count, err := h.repo.CountActiveServices(r.Context(), tenantSlug)
	if err != nil {
		h.writeError(w, err)
		return false
	}
	if max := plan.ForTier(tenant.Plan).MaxServices; count >= max {
		http.Error(w, "service limit reached for plan", http.StatusPaymentRequired)
		return false
	}
	return true
}
