package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tmachado/agendly/libs/auth"
	"github.com/tmachado/agendly/services/booking-service/internal/booking"
	"github.com/tmachado/agendly/services/booking-service/internal/model"
	"github.com/tmachado/agendly/services/booking-service/internal/reservation"
	"github.com/tmachado/agendly/services/booking-service/internal/storage"
)

const testSecret = "test-secret"

type fakeService struct {
	slots      booking.SlotsResponse
	appt       model.Appointment
	err        error
	lastFilter storage.ListFilter
	lastActor  string
}

func (f *fakeService) ListSlots(context.Context, booking.SlotsRequest) (booking.SlotsResponse, error) {
	return f.slots, f.err
}

func (f *fakeService) RequestBooking(context.Context, booking.BookingRequest) (model.Appointment, error) {
	return f.appt, f.err
}

func (f *fakeService) Confirm(context.Context, string, string) (model.Appointment, error) {
	return f.appt, f.err
}

func (f *fakeService) Cancel(_ context.Context, _, _, actor, _ string) (model.Appointment, error) {
	f.lastActor = actor
	return f.appt, f.err
}

func (f *fakeService) CancelByClient(context.Context, string, string, string, string) (model.Appointment, error) {
	return f.appt, f.err
}

func (f *fakeService) Complete(context.Context, string, string) (model.Appointment, error) {
	return f.appt, f.err
}

func (f *fakeService) NoShow(context.Context, string, string) (model.Appointment, error) {
	return f.appt, f.err
}

func (f *fakeService) List(_ context.Context, _ string, filter storage.ListFilter) ([]model.Appointment, error) {
	f.lastFilter = filter
	return []model.Appointment{f.appt}, f.err
}

func sampleAppointment() model.Appointment {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	return model.Appointment{
		ID:                "appt-1",
		TenantSlug:        "glow-studio",
		ServiceID:         "svc-cut",
		ServiceName:       "Haircut",
		DurationMinutes:   30,
		Price:             40,
		ClientName:        "Ana",
		ClientEmail:       "ana@example.com",
		StartTime:         start,
		EndTime:           start.Add(30 * time.Minute),
		Status:            model.StatusPending,
		ConfirmationToken: "tok-abc123",
	}
}

func newHandler(f *fakeService) *BookingHandler {
	return NewBookingHandler(f, slog.New(slog.NewTextHandler(io.Discard, nil)), testSecret)
}

func bearer(t *testing.T) string {
	t.Helper()
	token, err := auth.SignHS256(auth.Claims{
		Sub:      "user-1",
		TenantID: "glow-studio",
		Role:     "owner",
		Iat:      time.Now().Unix(),
		Exp:      time.Now().Add(time.Hour).Unix(),
	}, testSecret)
	if err != nil {
		t.Fatal(err)
	}
	return "Bearer " + token
}

func TestSlots(t *testing.T) {
	f := &fakeService{slots: booking.SlotsResponse{Date: "2026-03-02", Timezone: "UTC", Open: true, Slots: []string{"09:00", "09:30"}}}
	h := newHandler(f)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?tenant=glow-studio&service_id=svc-cut&date=2026-03-02", nil)
	rec := httptest.NewRecorder()
	h.Slots(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp booking.SlotsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Slots) != 2 || resp.Slots[0] != "09:00" {
		t.Fatalf("unexpected slots: %+v", resp)
	}
}

func TestSlots_MissingParams(t *testing.T) {
	h := newHandler(&fakeService{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?tenant=glow-studio", nil)
	rec := httptest.NewRecorder()
	h.Slots(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestBook(t *testing.T) {
	f := &fakeService{appt: sampleAppointment()}
	h := newHandler(f)

	body := `{"tenant":"glow-studio","service_id":"svc-cut","client_name":"Ana","client_email":"ana@example.com","date":"2026-03-02","time":"10:00"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Book(10*time.Minute)(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp struct {
		AppointmentID     string `json:"appointment_id"`
		Status            string `json:"status"`
		ConfirmationToken string `json:"confirmation_token"`
		ExpiresInSeconds  int    `json:"expires_in_seconds"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.AppointmentID != "appt-1" || resp.Status != "pending" || resp.ExpiresInSeconds != 600 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.ConfirmationToken != "tok-abc123" {
		t.Fatalf("confirmation_token = %q", resp.ConfirmationToken)
	}
}

func TestBook_MissingFields(t *testing.T) {
	h := newHandler(&fakeService{})
	body := `{"tenant":"glow-studio","service_id":"svc-cut"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Book(10*time.Minute)(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestBook_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{reservation.ErrSlotConflict, http.StatusConflict},
		{booking.ErrPlanLimitReached, http.StatusPaymentRequired},
		{booking.ErrTenantInactive, http.StatusForbidden},
		{reservation.ErrInvalidDateTime, http.StatusBadRequest},
	}
	body := `{"tenant":"glow-studio","service_id":"svc-cut","client_name":"Ana","client_email":"ana@example.com","date":"2026-03-02","time":"10:00"}`
	for _, tt := range cases {
		h := newHandler(&fakeService{err: tt.err})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.Book(10*time.Minute)(rec, req)
		if rec.Code != tt.want {
			t.Errorf("%v: status = %d, want %d", tt.err, rec.Code, tt.want)
		}
	}
}

func TestConfirm_Get(t *testing.T) {
	appt := sampleAppointment()
	appt.Status = model.StatusConfirmed
	h := newHandler(&fakeService{appt: appt})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/confirm?tenant=glow-studio&token=abc", nil)
	rec := httptest.NewRecorder()
	h.Confirm(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
}

func TestConfirm_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{reservation.ErrTokenNotFound, http.StatusNotFound},
		{reservation.ErrAlreadyConfirmed, http.StatusConflict},
		{reservation.ErrConfirmationExpired, http.StatusGone},
	}
	for _, tt := range cases {
		h := newHandler(&fakeService{err: tt.err})
		req := httptest.NewRequest(http.MethodGet, "/api/v1/public/confirm?tenant=glow-studio&token=abc", nil)
		rec := httptest.NewRecorder()
		h.Confirm(rec, req)
		if rec.Code != tt.want {
			t.Errorf("%v: status = %d, want %d", tt.err, rec.Code, tt.want)
		}
	}
}

func TestPublicCancel_WindowClosed(t *testing.T) {
	h := newHandler(&fakeService{err: reservation.ErrCancellationWindowClosed})
	body := `{"tenant":"glow-studio","appointment_id":"appt-1","client_email":"ana@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/cancel", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.PublicCancel(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestList_RequiresAuth(t *testing.T) {
	h := newHandler(&fakeService{appt: sampleAppointment()})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	rec := httptest.NewRecorder()
	h.RequireAuth(h.List)(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/appointments?status=confirmed&limit=10", nil)
	req.Header.Set("Authorization", bearer(t))
	rec = httptest.NewRecorder()
	h.RequireAuth(h.List)(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("with token: status = %d, body %s", rec.Code, rec.Body)
	}
}

func TestList_RejectsWrongSecret(t *testing.T) {
	h := newHandler(&fakeService{})
	token, err := auth.SignHS256(auth.Claims{TenantID: "glow-studio", Exp: time.Now().Add(time.Hour).Unix()}, "other-secret")
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.RequireAuth(h.List)(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCancel_UsesTenantActor(t *testing.T) {
	f := &fakeService{appt: sampleAppointment()}
	h := newHandler(f)

	body := `{"appointment_id":"appt-1","reason":"staff sick"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments/cancel", strings.NewReader(body))
	req.Header.Set("Authorization", bearer(t))
	rec := httptest.NewRecorder()
	h.RequireAuth(h.Cancel)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if f.lastActor != model.ActorTenant {
		t.Fatalf("actor = %q, want tenant", f.lastActor)
	}
}

func TestManage_MethodNotAllowed(t *testing.T) {
	h := newHandler(&fakeService{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments/cancel", nil)
	req.Header.Set("Authorization", bearer(t))
	rec := httptest.NewRecorder()
	h.RequireAuth(h.Cancel)(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
}
