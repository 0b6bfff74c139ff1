package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/tmachado/agendly/services/booking-service/internal/catalog"
	"github.com/tmachado/agendly/services/booking-service/internal/model"
	"github.com/tmachado/agendly/services/booking-service/internal/reservation"
	"github.com/tmachado/agendly/services/booking-service/internal/schedule"
	"github.com/tmachado/agendly/services/booking-service/internal/storage"
	"github.com/tmachado/agendly/services/booking-service/internal/timeslot"
)

// memStore backs both the reservation machine and the orchestrator in tests.
type memStore struct {
	appts map[string]model.Appointment
	now   func() time.Time

	entitlements      storage.TenantEntitlements
	entitlementsFound bool
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{appts: make(map[string]model.Appointment), now: now}
}

func (s *memStore) InsertPending(_ context.Context, appt model.Appointment) error {
	for _, existing := range s.appts {
		if existing.TenantSlug != appt.TenantSlug || existing.StaffID != appt.StaffID {
			continue
		}
		if !existing.Active(s.now(), reservation.DefaultHoldWindow) {
			continue
		}
		if timeslot.Overlaps(appt.StartTime, appt.EndTime, existing.StartTime, existing.EndTime) {
			return reservation.ErrSlotConflict
		}
	}
	s.appts[appt.ID] = appt
	return nil
}

func (s *memStore) GetByID(_ context.Context, tenantSlug, id string) (model.Appointment, error) {
	appt, ok := s.appts[id]
	if !ok || appt.TenantSlug != tenantSlug {
		return model.Appointment{}, reservation.ErrNotFound
	}
	return appt, nil
}

func (s *memStore) GetByToken(_ context.Context, tenantSlug, token string) (model.Appointment, error) {
	for _, appt := range s.appts {
		if appt.TenantSlug == tenantSlug && appt.ConfirmationToken != "" && appt.ConfirmationToken == token {
			return appt, nil
		}
	}
	return model.Appointment{}, reservation.ErrTokenNotFound
}

func (s *memStore) MarkConfirmed(_ context.Context, tenantSlug, id string, at time.Time) error {
	appt, ok := s.appts[id]
	if !ok || appt.TenantSlug != tenantSlug || appt.Status != model.StatusPending {
		return reservation.ErrNotFound
	}
	appt.Status = model.StatusConfirmed
	appt.ConfirmedAt = &at
	s.appts[id] = appt
	return nil
}

func (s *memStore) MarkCancelled(_ context.Context, tenantSlug, id string, at time.Time, actor, reason string) error {
	appt, ok := s.appts[id]
	if !ok || appt.TenantSlug != tenantSlug {
		return reservation.ErrNotFound
	}
	appt.Status = model.StatusCancelled
	appt.ConfirmationToken = ""
	appt.CancelledAt = &at
	appt.CancelledBy = actor
	appt.CancelledReason = reason
	s.appts[id] = appt
	return nil
}

func (s *memStore) MarkCompleted(_ context.Context, tenantSlug, id string, at time.Time) error {
	return s.setStatus(tenantSlug, id, model.StatusCompleted)
}

func (s *memStore) MarkNoShow(_ context.Context, tenantSlug, id string, at time.Time) error {
	return s.setStatus(tenantSlug, id, model.StatusNoShow)
}

func (s *memStore) setStatus(tenantSlug, id, status string) error {
	appt, ok := s.appts[id]
	if !ok || appt.TenantSlug != tenantSlug {
		return reservation.ErrNotFound
	}
	appt.Status = status
	s.appts[id] = appt
	return nil
}

func (s *memStore) ListActiveBetween(_ context.Context, tenantSlug, staffID string, from, to time.Time) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, appt := range s.appts {
		if appt.TenantSlug != tenantSlug || appt.StaffID != staffID {
			continue
		}
		if !appt.Active(s.now(), reservation.DefaultHoldWindow) {
			continue
		}
		if timeslot.Overlaps(appt.StartTime, appt.EndTime, from, to) {
			out = append(out, appt)
		}
	}
	return out, nil
}

func (s *memStore) ListByTenant(_ context.Context, tenantSlug string, f storage.ListFilter) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, appt := range s.appts {
		if appt.TenantSlug != tenantSlug {
			continue
		}
		if f.Status != "" && appt.Status != f.Status {
			continue
		}
		out = append(out, appt)
	}
	return out, nil
}

func (s *memStore) CountBookedBetween(_ context.Context, tenantSlug string, from, to time.Time) (int, error) {
	n := 0
	for _, appt := range s.appts {
		if appt.TenantSlug != tenantSlug || appt.Status == model.StatusCancelled {
			continue
		}
		if !appt.StartTime.Before(from) && appt.StartTime.Before(to) {
			n++
		}
	}
	return n, nil
}

func (s *memStore) GetTenantEntitlements(_ context.Context, _ string) (storage.TenantEntitlements, bool, error) {
	return s.entitlements, s.entitlementsFound, nil
}

type fakeCatalog struct {
	tenant   catalog.Tenant
	services map[string]catalog.Service
	staff    map[string]catalog.Staff
}

func (c *fakeCatalog) GetTenant(_ context.Context, slug string) (catalog.Tenant, error) {
	if slug != c.tenant.Slug {
		return catalog.Tenant{}, catalog.ErrTenantNotFound
	}
	return c.tenant, nil
}

func (c *fakeCatalog) GetService(_ context.Context, _, serviceID string) (catalog.Service, error) {
	svc, ok := c.services[serviceID]
	if !ok {
		return catalog.Service{}, catalog.ErrServiceNotFound
	}
	return svc, nil
}

func (c *fakeCatalog) GetStaff(_ context.Context, _, staffID string) (catalog.Staff, error) {
	st, ok := c.staff[staffID]
	if !ok {
		return catalog.Staff{}, catalog.ErrStaffNotFound
	}
	return st, nil
}

func weekdays(open, close int) schedule.WeekHours {
	var w schedule.WeekHours
	for d := time.Monday; d <= time.Friday; d++ {
		w[int(d)] = schedule.DayHours{IsOpen: true, Open: open, Close: close}
	}
	return w
}

func newTestService() (*Service, *memStore, *fakeCatalog) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC) // Monday 08:00 UTC
	store := newMemStore(func() time.Time { return now })

	cat := &fakeCatalog{
		tenant: catalog.Tenant{
			Slug:     "glow-studio",
			Name:     "Glow Studio",
			Timezone: "UTC",
			Plan:     "basic",
			Active:   true,
			Hours:    weekdays(9*60, 18*60),
		},
		services: map[string]catalog.Service{
			"svc-cut": {ID: "svc-cut", Name: "Haircut", DurationMinutes: 30, Price: 40, Active: true},
			"svc-color": {ID: "svc-color", Name: "Coloring", DurationMinutes: 90, Price: 120, Active: true},
		},
		staff: map[string]catalog.Staff{
			"staff-1": {ID: "staff-1", Name: "Marta", Active: true},
		},
	}

	machine := reservation.NewMachine(store, reservation.DefaultHoldWindow, reservation.DefaultCancelCutoff)
	svc := NewService(cat, machine, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return now }
	return svc, store, cat
}

func TestListSlots_FullDay(t *testing.T) {
	svc, _, _ := newTestService()

	resp, err := svc.ListSlots(context.Background(), SlotsRequest{
		TenantSlug: "glow-studio", ServiceID: "svc-cut", Date: "2026-03-02",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Open {
		t.Fatal("Monday should be open")
	}
	if len(resp.Slots) != 18 {
		t.Fatalf("expected 18 slots, got %d: %v", len(resp.Slots), resp.Slots)
	}
	if resp.Slots[0] != "09:00" || resp.Slots[17] != "17:30" {
		t.Fatalf("unexpected slot bounds: %v", resp.Slots)
	}
}

func TestListSlots_ClosedDay(t *testing.T) {
	svc, _, _ := newTestService()

	resp, err := svc.ListSlots(context.Background(), SlotsRequest{
		TenantSlug: "glow-studio", ServiceID: "svc-cut", Date: "2026-03-08", // Sunday
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Open || len(resp.Slots) != 0 {
		t.Fatalf("closed day should have no slots: %+v", resp)
	}
}

func TestListSlots_BookedSlotHidden(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.RequestBooking(context.Background(), BookingRequest{
		TenantSlug: "glow-studio", ServiceID: "svc-cut",
		ClientName: "Ana", ClientEmail: "ana@example.com",
		Date: "2026-03-02", Time: "14:00",
	})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := svc.ListSlots(context.Background(), SlotsRequest{
		TenantSlug: "glow-studio", ServiceID: "svc-cut", Date: "2026-03-02",
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range resp.Slots {
		if s == "14:00" {
			t.Fatal("held slot should be hidden")
		}
	}
	if len(resp.Slots) != 17 {
		t.Fatalf("expected 17 slots, got %d", len(resp.Slots))
	}
}

func TestListSlots_UnknownService(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.ListSlots(context.Background(), SlotsRequest{
		TenantSlug: "glow-studio", ServiceID: "svc-nope", Date: "2026-03-02",
	})
	if !errors.Is(err, catalog.ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound, got %v", err)
	}
}

func TestListSlots_BadDate(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.ListSlots(context.Background(), SlotsRequest{
		TenantSlug: "glow-studio", ServiceID: "svc-cut", Date: "03/02/2026",
	})
	if !errors.Is(err, reservation.ErrInvalidDateTime) {
		t.Fatalf("expected ErrInvalidDateTime, got %v", err)
	}
}

func TestRequestBooking_HoldsSlot(t *testing.T) {
	svc, _, _ := newTestService()

	appt, err := svc.RequestBooking(context.Background(), BookingRequest{
		TenantSlug: "glow-studio", ServiceID: "svc-cut",
		ClientName: "Ana", ClientEmail: "ana@example.com",
		Date: "2026-03-02", Time: "10:00",
	})
	if err != nil {
		t.Fatal(err)
	}
	if appt.Status != model.StatusPending {
		t.Fatalf("status = %s, want pending", appt.Status)
	}
	if appt.ConfirmationToken == "" {
		t.Fatal("hold should carry a confirmation token")
	}
	want := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	if !appt.StartTime.Equal(want) || !appt.EndTime.Equal(want.Add(30*time.Minute)) {
		t.Fatalf("unexpected interval: %s - %s", appt.StartTime, appt.EndTime)
	}
	if appt.ServiceName != "Haircut" || appt.Price != 40 {
		t.Fatalf("service snapshot missing: %+v", appt)
	}
}

func TestRequestBooking_Conflict(t *testing.T) {
	svc, _, _ := newTestService()
	req := BookingRequest{
		TenantSlug: "glow-studio", ServiceID: "svc-cut",
		ClientName: "Ana", ClientEmail: "ana@example.com",
		Date: "2026-03-02", Time: "10:00",
	}
	if _, err := svc.RequestBooking(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	req.ClientName = "Bea"
	_, err := svc.RequestBooking(context.Background(), req)
	if !errors.Is(err, reservation.ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict, got %v", err)
	}
}

func TestRequestBooking_OutsideWorkingHours(t *testing.T) {
	svc, _, _ := newTestService()

	for _, clock := range []string{"08:00", "17:45"} { // before open; runs past close
		_, err := svc.RequestBooking(context.Background(), BookingRequest{
			TenantSlug: "glow-studio", ServiceID: "svc-cut",
			ClientName: "Ana", ClientEmail: "ana@example.com",
			Date: "2026-03-02", Time: clock,
		})
		if !errors.Is(err, reservation.ErrInvalidDateTime) {
			t.Fatalf("%s: expected ErrInvalidDateTime, got %v", clock, err)
		}
	}
}

func TestRequestBooking_PastStart(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.RequestBooking(context.Background(), BookingRequest{
		TenantSlug: "glow-studio", ServiceID: "svc-cut",
		ClientName: "Ana", ClientEmail: "ana@example.com",
		Date: "2026-02-27", Time: "10:00",
	})
	if !errors.Is(err, reservation.ErrInvalidDateTime) {
		t.Fatalf("expected ErrInvalidDateTime for past start, got %v", err)
	}
}

func TestRequestBooking_PlanLimit(t *testing.T) {
	svc, store, _ := newTestService()
	store.entitlements = storage.TenantEntitlements{
		TenantSlug: "glow-studio", Tier: "basic", MaxMonthlyAppointments: 1,
	}
	store.entitlementsFound = true

	req := BookingRequest{
		TenantSlug: "glow-studio", ServiceID: "svc-cut",
		ClientName: "Ana", ClientEmail: "ana@example.com",
		Date: "2026-03-02", Time: "10:00",
	}
	if _, err := svc.RequestBooking(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	req.Time = "11:00"
	_, err := svc.RequestBooking(context.Background(), req)
	if !errors.Is(err, ErrPlanLimitReached) {
		t.Fatalf("expected ErrPlanLimitReached, got %v", err)
	}
}

func TestRequestBooking_InactiveTenant(t *testing.T) {
	svc, _, cat := newTestService()
	cat.tenant.Active = false

	_, err := svc.RequestBooking(context.Background(), BookingRequest{
		TenantSlug: "glow-studio", ServiceID: "svc-cut",
		ClientName: "Ana", ClientEmail: "ana@example.com",
		Date: "2026-03-02", Time: "10:00",
	})
	if !errors.Is(err, ErrTenantInactive) {
		t.Fatalf("expected ErrTenantInactive, got %v", err)
	}
}

func TestConfirmAndCancelFlow(t *testing.T) {
	svc, _, _ := newTestService()

	held, err := svc.RequestBooking(context.Background(), BookingRequest{
		TenantSlug: "glow-studio", ServiceID: "svc-cut",
		ClientName: "Ana", ClientEmail: "ana@example.com",
		Date: "2026-03-02", Time: "14:00",
	})
	if err != nil {
		t.Fatal(err)
	}

	confirmed, err := svc.Confirm(context.Background(), "glow-studio", held.ConfirmationToken)
	if err != nil {
		t.Fatal(err)
	}
	if confirmed.Status != model.StatusConfirmed {
		t.Fatalf("status = %s, want confirmed", confirmed.Status)
	}

	cancelled, err := svc.Cancel(context.Background(), "glow-studio", held.ID, model.ActorTenant, "double booked")
	if err != nil {
		t.Fatal(err)
	}
	if cancelled.Status != model.StatusCancelled || cancelled.CancelledBy != model.ActorTenant {
		t.Fatalf("unexpected cancel result: %+v", cancelled)
	}
}

func TestListSlots_TenantTimezone(t *testing.T) {
	svc, _, cat := newTestService()
	cat.tenant.Timezone = "America/Sao_Paulo"

	resp, err := svc.ListSlots(context.Background(), SlotsRequest{
		TenantSlug: "glow-studio", ServiceID: "svc-color", Date: "2026-03-02",
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Timezone != "America/Sao_Paulo" {
		t.Fatalf("timezone = %s", resp.Timezone)
	}
	// 90 minute service steps by 90m: 09:00, 10:30, 12:00, 13:30, 15:00, 16:30.
	if len(resp.Slots) != 6 || resp.Slots[0] != "09:00" || resp.Slots[5] != "16:30" {
		t.Fatalf("unexpected slots: %v", resp.Slots)
	}
}
