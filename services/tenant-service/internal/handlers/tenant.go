package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/tmachado/agendly/libs/plan"
	"github.com/tmachado/agendly/services/tenant-service/internal/storage"
)

const trialDays = 14

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{2,39}$`)

type signupRequest struct {
	Slug     string `json:"slug"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Timezone string `json:"timezone"`
}

type tenantResponse struct {
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Timezone    string `json:"timezone"`
	Plan        string `json:"plan"`
	Status      string `json:"status"`
	TrialEndsAt string `json:"trial_ends_at,omitempty"`
}

func toTenantResponse(t storage.Tenant) tenantResponse {
	resp := tenantResponse{
		Slug:     t.Slug,
		Name:     t.Name,
		Email:    t.Email,
		Phone:    t.Phone,
		Timezone: t.Timezone,
		Plan:     t.Plan,
		Status:   t.Status,
	}
	if t.TrialEndsAt != nil {
		resp.TrialEndsAt = t.TrialEndsAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// Signup handles POST /api/v1/tenants. The slug becomes the tenant's public
// booking identity and cannot change later.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Slug = strings.ToLower(strings.TrimSpace(req.Slug))
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Timezone = strings.TrimSpace(req.Timezone)

	if !slugPattern.MatchString(req.Slug) {
		http.Error(w, "invalid slug", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Email == "" || !strings.Contains(req.Email, "@") {
		http.Error(w, "name and email required", http.StatusBadRequest)
		return
	}
	if req.Timezone == "" {
		req.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		http.Error(w, "invalid timezone", http.StatusBadRequest)
		return
	}

	trialEnd := time.Now().UTC().AddDate(0, 0, trialDays)
	t := storage.Tenant{
		Slug:        req.Slug,
		Name:        req.Name,
		Email:       req.Email,
		Phone:       strings.TrimSpace(req.Phone),
		Timezone:    req.Timezone,
		Plan:        plan.TierBasic,
		TrialEndsAt: &trialEnd,
	}
	if err := h.repo.CreateTenant(r.Context(), t); err != nil {
		h.writeError(w, err)
		return
	}
	h.logger.Info("tenant created", "tenant", t.Slug)

	created, err := h.repo.GetTenant(r.Context(), t.Slug)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTenantResponse(created))
}

// Profile handles GET and PUT /api/v1/tenant/profile.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())

	switch r.Method {
	case http.MethodGet:
		t, err := h.repo.GetTenant(r.Context(), claims.TenantID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toTenantResponse(t))

	case http.MethodPut:
		var req signupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		req.Timezone = strings.TrimSpace(req.Timezone)
		if req.Name == "" {
			http.Error(w, "name required", http.StatusBadRequest)
			return
		}
		if req.Timezone != "" {
			if _, err := time.LoadLocation(req.Timezone); err != nil {
				http.Error(w, "invalid timezone", http.StatusBadRequest)
				return
			}
		}
		err := h.repo.UpdateProfile(r.Context(), claims.TenantID, req.Name,
			strings.TrimSpace(req.Email), strings.TrimSpace(req.Phone), req.Timezone)
		if err != nil {
			h.writeError(w, err)
			return
		}
		t, err := h.repo.GetTenant(r.Context(), claims.TenantID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toTenantResponse(t))

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type dayHoursItem struct {
	Weekday int    `json:"weekday"`
	IsOpen  bool   `json:"is_open"`
	Open    string `json:"open"`
	Close   string `json:"close"`
}

// WorkingHours handles GET and PUT /api/v1/tenant/hours. Times travel as
// "HH:MM" strings in the tenant's timezone.
func (h *Handler) WorkingHours(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())

	switch r.Method {
	case http.MethodGet:
		hours, err := h.repo.GetWorkingHours(r.Context(), claims.TenantID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		out := make([]dayHoursItem, 0, len(hours))
		for _, d := range hours {
			out = append(out, dayHoursItem{
				Weekday: d.Weekday,
				IsOpen:  d.IsOpen,
				Open:    formatClock(d.OpenMinute),
				Close:   formatClock(d.CloseMinute),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"working_hours": out})

	case http.MethodPut:
		var req struct {
			WorkingHours []dayHoursItem `json:"working_hours"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		if len(req.WorkingHours) == 0 {
			http.Error(w, "working_hours required", http.StatusBadRequest)
			return
		}

		hours := make([]storage.DayHours, 0, len(req.WorkingHours))
		for _, d := range req.WorkingHours {
			if d.Weekday < 0 || d.Weekday > 6 {
				http.Error(w, "weekday must be 0-6", http.StatusBadRequest)
				return
			}
			day := storage.DayHours{Weekday: d.Weekday, IsOpen: d.IsOpen}
			if d.IsOpen {
				open, err := parseClock(d.Open)
				if err != nil {
					http.Error(w, "invalid open time", http.StatusBadRequest)
					return
				}
				closeMin, err := parseClock(d.Close)
				if err != nil || closeMin <= open {
					http.Error(w, "close must be after open", http.StatusBadRequest)
					return
				}
				day.OpenMinute, day.CloseMinute = open, closeMin
			}
			hours = append(hours, day)
		}
		if err := h.repo.PutWorkingHours(r.Context(), claims.TenantID, hours); err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
