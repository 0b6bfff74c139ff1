// Package handlers exposes the booking HTTP API. Public routes identify the
// tenant explicitly; management routes take it from the caller's token.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tmachado/agendly/libs/auth"
	"github.com/tmachado/agendly/services/booking-service/internal/booking"
	"github.com/tmachado/agendly/services/booking-service/internal/catalog"
	"github.com/tmachado/agendly/services/booking-service/internal/model"
	"github.com/tmachado/agendly/services/booking-service/internal/reservation"
	"github.com/tmachado/agendly/services/booking-service/internal/storage"
)

// Service is what the handlers need from the booking orchestrator.
type Service interface {
	ListSlots(ctx context.Context, req booking.SlotsRequest) (booking.SlotsResponse, error)
	RequestBooking(ctx context.Context, req booking.BookingRequest) (model.Appointment, error)
	Confirm(ctx context.Context, tenantSlug, token string) (model.Appointment, error)
	Cancel(ctx context.Context, tenantSlug, id, actor, reason string) (model.Appointment, error)
	CancelByClient(ctx context.Context, tenantSlug, id, email, reason string) (model.Appointment, error)
	Complete(ctx context.Context, tenantSlug, id string) (model.Appointment, error)
	NoShow(ctx context.Context, tenantSlug, id string) (model.Appointment, error)
	List(ctx context.Context, tenantSlug string, f storage.ListFilter) ([]model.Appointment, error)
}

type BookingHandler struct {
	svc       Service
	logger    *slog.Logger
	jwtSecret string
}

func NewBookingHandler(svc Service, logger *slog.Logger, jwtSecret string) *BookingHandler {
	return &BookingHandler{svc: svc, logger: logger, jwtSecret: jwtSecret}
}

type appointmentResponse struct {
	AppointmentID   string  `json:"appointment_id"`
	StaffID         string  `json:"staff_id,omitempty"`
	ServiceID       string  `json:"service_id"`
	ServiceName     string  `json:"service_name"`
	DurationMinutes int     `json:"duration_minutes"`
	Price           float64 `json:"price"`
	ClientName      string  `json:"client_name"`
	ClientEmail     string  `json:"client_email"`
	StartTime       string  `json:"start_time"`
	EndTime         string  `json:"end_time"`
	Status          string  `json:"status"`
	CancelledBy     string  `json:"cancelled_by,omitempty"`
	CancelledReason string  `json:"cancellation_reason,omitempty"`
}

func toResponse(a model.Appointment) appointmentResponse {
	return appointmentResponse{
		AppointmentID:   a.ID,
		StaffID:         a.StaffID,
		ServiceID:       a.ServiceID,
		ServiceName:     a.ServiceName,
		DurationMinutes: a.DurationMinutes,
		Price:           a.Price,
		ClientName:      a.ClientName,
		ClientEmail:     a.ClientEmail,
		StartTime:       a.StartTime.UTC().Format(time.RFC3339),
		EndTime:         a.EndTime.UTC().Format(time.RFC3339),
		Status:          a.Status,
		CancelledBy:     a.CancelledBy,
		CancelledReason: a.CancelledReason,
	}
}

// Slots handles GET /api/v1/public/slots.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	req := booking.SlotsRequest{
		TenantSlug: strings.TrimSpace(q.Get("tenant")),
		ServiceID:  strings.TrimSpace(q.Get("service_id")),
		StaffID:    strings.TrimSpace(q.Get("staff_id")),
		Date:       strings.TrimSpace(q.Get("date")),
	}
	if req.TenantSlug == "" || req.ServiceID == "" || req.Date == "" {
		http.Error(w, "tenant, service_id and date required", http.StatusBadRequest)
		return
	}

	resp, err := h.svc.ListSlots(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type bookRequest struct {
	Tenant      string `json:"tenant"`
	ServiceID   string `json:"service_id"`
	StaffID     string `json:"staff_id"`
	ClientName  string `json:"client_name"`
	ClientEmail string `json:"client_email"`
	ClientPhone string `json:"client_phone"`
	Notes       string `json:"notes"`
	Date        string `json:"date"`
	Time        string `json:"time"`
}

type bookResponse struct {
	appointmentResponse
	ConfirmationToken string `json:"confirmation_token"`
	ExpiresInSeconds  int    `json:"expires_in_seconds"`
}

// Book handles POST /api/v1/public/book. The response is a pending hold: the
// caller gets the confirmation token back (the same token the email carries)
// together with how long the hold lasts. Only the booking creator ever sees
// the token; list and confirm responses never include it.
func (h *BookingHandler) Book(holdWindow time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req bookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		req.Tenant = strings.TrimSpace(req.Tenant)
		req.ServiceID = strings.TrimSpace(req.ServiceID)
		req.ClientName = strings.TrimSpace(req.ClientName)
		req.ClientEmail = strings.TrimSpace(req.ClientEmail)
		if req.Tenant == "" || req.ServiceID == "" || req.ClientName == "" || req.ClientEmail == "" || req.Date == "" || req.Time == "" {
			http.Error(w, "missing required fields", http.StatusBadRequest)
			return
		}
		if !strings.Contains(req.ClientEmail, "@") {
			http.Error(w, "invalid client_email", http.StatusBadRequest)
			return
		}

		appt, err := h.svc.RequestBooking(r.Context(), booking.BookingRequest{
			TenantSlug:  req.Tenant,
			ServiceID:   req.ServiceID,
			StaffID:     strings.TrimSpace(req.StaffID),
			ClientName:  req.ClientName,
			ClientEmail: req.ClientEmail,
			ClientPhone: strings.TrimSpace(req.ClientPhone),
			Notes:       strings.TrimSpace(req.Notes),
			Date:        strings.TrimSpace(req.Date),
			Time:        strings.TrimSpace(req.Time),
		})
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, bookResponse{
			appointmentResponse: toResponse(appt),
			ConfirmationToken:   appt.ConfirmationToken,
			ExpiresInSeconds:    int(holdWindow.Seconds()),
		})
	}
}

// Confirm handles GET and POST /api/v1/public/confirm. GET serves the link
// sent by email.
func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var tenant, token string
	switch r.Method {
	case http.MethodGet:
		tenant = strings.TrimSpace(r.URL.Query().Get("tenant"))
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	case http.MethodPost:
		var req struct {
			Tenant string `json:"tenant"`
			Token  string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		tenant = strings.TrimSpace(req.Tenant)
		token = strings.TrimSpace(req.Token)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if tenant == "" || token == "" {
		http.Error(w, "tenant and token required", http.StatusBadRequest)
		return
	}

	appt, err := h.svc.Confirm(r.Context(), tenant, token)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

type publicCancelRequest struct {
	Tenant        string `json:"tenant"`
	AppointmentID string `json:"appointment_id"`
	ClientEmail   string `json:"client_email"`
	Reason        string `json:"reason"`
}

// PublicCancel handles POST /api/v1/public/cancel.
func (h *BookingHandler) PublicCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req publicCancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Tenant = strings.TrimSpace(req.Tenant)
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.ClientEmail = strings.TrimSpace(req.ClientEmail)
	if req.Tenant == "" || req.AppointmentID == "" || req.ClientEmail == "" {
		http.Error(w, "tenant, appointment_id and client_email required", http.StatusBadRequest)
		return
	}

	appt, err := h.svc.CancelByClient(r.Context(), req.Tenant, req.AppointmentID, req.ClientEmail, strings.TrimSpace(req.Reason))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

// List handles GET /api/v1/appointments.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims, ok := claimsFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()
	var f storage.ListFilter
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid from", http.StatusBadRequest)
			return
		}
		f.From = t
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid to", http.StatusBadRequest)
			return
		}
		f.To = t
	}
	f.Status = strings.TrimSpace(q.Get("status"))
	if v := strings.TrimSpace(q.Get("staff_id")); v != "" {
		f.StaffID = &v
	}
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		f.Limit = n
	}

	appts, err := h.svc.List(r.Context(), claims.TenantID, f)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, toResponse(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": out})
}

type manageRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

// Cancel handles POST /api/v1/appointments/cancel for the tenant's staff.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.manage(w, r, func(ctx context.Context, tenant string, req manageRequest) (model.Appointment, error) {
		return h.svc.Cancel(ctx, tenant, req.AppointmentID, model.ActorTenant, req.Reason)
	})
}

// Complete handles POST /api/v1/appointments/complete.
func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.manage(w, r, func(ctx context.Context, tenant string, req manageRequest) (model.Appointment, error) {
		return h.svc.Complete(ctx, tenant, req.AppointmentID)
	})
}

// NoShow handles POST /api/v1/appointments/no-show.
func (h *BookingHandler) NoShow(w http.ResponseWriter, r *http.Request) {
	h.manage(w, r, func(ctx context.Context, tenant string, req manageRequest) (model.Appointment, error) {
		return h.svc.NoShow(ctx, tenant, req.AppointmentID)
	})
}

func (h *BookingHandler) manage(w http.ResponseWriter, r *http.Request, apply func(context.Context, string, manageRequest) (model.Appointment, error)) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims, ok := claimsFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req manageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}
	req.Reason = strings.TrimSpace(req.Reason)

	appt, err := apply(r.Context(), claims.TenantID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

type ctxKey int

const claimsKey ctxKey = 0

// RequireAuth verifies the bearer token and stores its claims on the context.
func (h *BookingHandler) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		claims, err := auth.ParseAndVerifyHS256(strings.TrimPrefix(header, "Bearer "), h.jwtSecret)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	}
}

func claimsFrom(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*auth.Claims)
	return claims, ok && claims != nil && claims.TenantID != ""
}

func (h *BookingHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrTenantNotFound),
		errors.Is(err, catalog.ErrServiceNotFound),
		errors.Is(err, catalog.ErrStaffNotFound),
		errors.Is(err, reservation.ErrNotFound),
		errors.Is(err, reservation.ErrTokenNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, reservation.ErrInvalidDateTime):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, booking.ErrTenantInactive):
		http.Error(w, "tenant inactive", http.StatusForbidden)
	case errors.Is(err, booking.ErrPlanLimitReached):
		http.Error(w, err.Error(), http.StatusPaymentRequired)
	case errors.Is(err, reservation.ErrSlotConflict):
		http.Error(w, "time slot already booked", http.StatusConflict)
	case errors.Is(err, reservation.ErrAlreadyConfirmed):
		http.Error(w, "appointment already confirmed", http.StatusConflict)
	case errors.Is(err, reservation.ErrConfirmationExpired):
		http.Error(w, "confirmation window expired", http.StatusGone)
	case errors.Is(err, reservation.ErrCancellationWindowClosed),
		errors.Is(err, reservation.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		h.logger.Error("booking handler error", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
