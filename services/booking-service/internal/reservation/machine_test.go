package reservation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tmachado/agendly/services/booking-service/internal/model"
	"github.com/tmachado/agendly/services/booking-service/internal/timeslot"
)

// fakeStore mirrors the repository's conflict and activity rules in memory.
type fakeStore struct {
	mu         sync.Mutex
	appts      map[string]model.Appointment
	now        func() time.Time
	holdWindow time.Duration
}

func newFakeStore(now func() time.Time) *fakeStore {
	return &fakeStore{
		appts:      make(map[string]model.Appointment),
		now:        now,
		holdWindow: DefaultHoldWindow,
	}
}

func (s *fakeStore) InsertPending(_ context.Context, appt model.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, existing := range s.appts {
		if existing.TenantSlug != appt.TenantSlug || existing.StaffID != appt.StaffID {
			continue
		}
		if !existing.Active(now, s.holdWindow) {
			continue
		}
		if timeslot.Overlaps(appt.StartTime, appt.EndTime, existing.StartTime, existing.EndTime) {
			return ErrSlotConflict
		}
	}
	s.appts[appt.ID] = appt
	return nil
}

func (s *fakeStore) GetByID(_ context.Context, tenantSlug, id string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appts[id]
	if !ok || appt.TenantSlug != tenantSlug {
		return model.Appointment{}, ErrNotFound
	}
	return appt, nil
}

func (s *fakeStore) GetByToken(_ context.Context, tenantSlug, token string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, appt := range s.appts {
		if appt.TenantSlug == tenantSlug && appt.ConfirmationToken != "" && appt.ConfirmationToken == token {
			return appt, nil
		}
	}
	return model.Appointment{}, ErrTokenNotFound
}

func (s *fakeStore) MarkConfirmed(_ context.Context, tenantSlug, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appts[id]
	if !ok || appt.TenantSlug != tenantSlug || appt.Status != model.StatusPending {
		return ErrNotFound
	}
	appt.Status = model.StatusConfirmed
	appt.ConfirmedAt = &at
	appt.UpdatedAt = at
	s.appts[id] = appt
	return nil
}

func (s *fakeStore) MarkCancelled(_ context.Context, tenantSlug, id string, at time.Time, actor, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appts[id]
	if !ok || appt.TenantSlug != tenantSlug {
		return ErrNotFound
	}
	appt.Status = model.StatusCancelled
	appt.ConfirmationToken = ""
	appt.CancelledAt = &at
	appt.CancelledBy = actor
	appt.CancelledReason = reason
	appt.UpdatedAt = at
	s.appts[id] = appt
	return nil
}

func (s *fakeStore) MarkCompleted(_ context.Context, tenantSlug, id string, at time.Time) error {
	return s.setStatus(tenantSlug, id, model.StatusCompleted, at)
}

func (s *fakeStore) MarkNoShow(_ context.Context, tenantSlug, id string, at time.Time) error {
	return s.setStatus(tenantSlug, id, model.StatusNoShow, at)
}

func (s *fakeStore) setStatus(tenantSlug, id, status string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appts[id]
	if !ok || appt.TenantSlug != tenantSlug {
		return ErrNotFound
	}
	appt.Status = status
	appt.UpdatedAt = at
	s.appts[id] = appt
	return nil
}

func (s *fakeStore) ListActiveBetween(_ context.Context, tenantSlug, staffID string, from, to time.Time) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var out []model.Appointment
	for _, appt := range s.appts {
		if appt.TenantSlug != tenantSlug || appt.StaffID != staffID {
			continue
		}
		if !appt.Active(now, s.holdWindow) {
			continue
		}
		if timeslot.Overlaps(appt.StartTime, appt.EndTime, from, to) {
			out = append(out, appt)
		}
	}
	return out, nil
}

type clock struct {
	t time.Time
}

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMachine() (*Machine, *fakeStore, *clock) {
	clk := &clock{t: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
	store := newFakeStore(clk.Now)
	m := NewMachine(store, DefaultHoldWindow, DefaultCancelCutoff)
	m.now = clk.Now
	return m, store, clk
}

func draft(start time.Time) model.Appointment {
	return model.Appointment{
		TenantSlug:      "glow-studio",
		ServiceID:       "svc-1",
		ServiceName:     "Haircut",
		DurationMinutes: 30,
		ClientName:      "Ana",
		ClientEmail:     "ana@example.com",
		StartTime:       start,
		EndTime:         start.Add(30 * time.Minute),
	}
}

func TestHold_CreatesPendingWithToken(t *testing.T) {
	m, _, clk := newTestMachine()
	start := clk.Now().Add(2 * time.Hour)

	appt, err := m.Hold(context.Background(), draft(start))
	if err != nil {
		t.Fatal(err)
	}
	if appt.ID == "" {
		t.Fatal("hold should assign an ID")
	}
	if appt.Status != model.StatusPending {
		t.Fatalf("status = %s, want pending", appt.Status)
	}
	if len(appt.ConfirmationToken) != 64 {
		t.Fatalf("token should be 64 hex chars, got %d", len(appt.ConfirmationToken))
	}
}

func TestHold_RejectsOverlap(t *testing.T) {
	m, _, clk := newTestMachine()
	start := clk.Now().Add(2 * time.Hour)

	if _, err := m.Hold(context.Background(), draft(start)); err != nil {
		t.Fatal(err)
	}
	_, err := m.Hold(context.Background(), draft(start.Add(15*time.Minute)))
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict, got %v", err)
	}
}

func TestHold_AllowsBackToBack(t *testing.T) {
	m, _, clk := newTestMachine()
	start := clk.Now().Add(2 * time.Hour)

	if _, err := m.Hold(context.Background(), draft(start)); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Hold(context.Background(), draft(start.Add(30*time.Minute))); err != nil {
		t.Fatalf("back-to-back should not conflict: %v", err)
	}
}

func TestHold_DifferentStaffDoNotConflict(t *testing.T) {
	m, _, clk := newTestMachine()
	start := clk.Now().Add(2 * time.Hour)

	a := draft(start)
	a.StaffID = "staff-1"
	if _, err := m.Hold(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	b := draft(start)
	b.StaffID = "staff-2"
	if _, err := m.Hold(context.Background(), b); err != nil {
		t.Fatalf("different staff should not conflict: %v", err)
	}
}

func TestHold_InvalidInterval(t *testing.T) {
	m, _, clk := newTestMachine()
	appt := draft(clk.Now().Add(2 * time.Hour))
	appt.EndTime = appt.StartTime

	_, err := m.Hold(context.Background(), appt)
	if !errors.Is(err, ErrInvalidDateTime) {
		t.Fatalf("expected ErrInvalidDateTime, got %v", err)
	}
}

func TestConfirm_Promotes(t *testing.T) {
	m, _, clk := newTestMachine()
	held, err := m.Hold(context.Background(), draft(clk.Now().Add(2*time.Hour)))
	if err != nil {
		t.Fatal(err)
	}

	clk.Advance(5 * time.Minute)
	appt, err := m.Confirm(context.Background(), held.TenantSlug, held.ConfirmationToken)
	if err != nil {
		t.Fatal(err)
	}
	if appt.Status != model.StatusConfirmed {
		t.Fatalf("status = %s, want confirmed", appt.Status)
	}
	if appt.ConfirmedAt == nil {
		t.Fatal("ConfirmedAt should be set")
	}
}

func TestConfirm_Twice(t *testing.T) {
	m, _, clk := newTestMachine()
	held, _ := m.Hold(context.Background(), draft(clk.Now().Add(2*time.Hour)))

	if _, err := m.Confirm(context.Background(), held.TenantSlug, held.ConfirmationToken); err != nil {
		t.Fatal(err)
	}
	_, err := m.Confirm(context.Background(), held.TenantSlug, held.ConfirmationToken)
	if !errors.Is(err, ErrAlreadyConfirmed) {
		t.Fatalf("expected ErrAlreadyConfirmed, got %v", err)
	}
}

func TestConfirm_ExpiredHoldFreesSlot(t *testing.T) {
	m, _, clk := newTestMachine()
	start := clk.Now().Add(2 * time.Hour)
	held, _ := m.Hold(context.Background(), draft(start))

	clk.Advance(DefaultHoldWindow + time.Minute)
	_, err := m.Confirm(context.Background(), held.TenantSlug, held.ConfirmationToken)
	if !errors.Is(err, ErrConfirmationExpired) {
		t.Fatalf("expected ErrConfirmationExpired, got %v", err)
	}

	// The expired hold is cancelled, so the slot books again.
	if _, err := m.Hold(context.Background(), draft(start)); err != nil {
		t.Fatalf("slot should be free after expired confirm: %v", err)
	}
}

func TestConfirm_ExpiredHoldIgnoredByNewHolds(t *testing.T) {
	m, _, clk := newTestMachine()
	start := clk.Now().Add(2 * time.Hour)
	if _, err := m.Hold(context.Background(), draft(start)); err != nil {
		t.Fatal(err)
	}

	// Nobody confirms; after the window the stale pending no longer blocks.
	clk.Advance(DefaultHoldWindow + time.Minute)
	if _, err := m.Hold(context.Background(), draft(start)); err != nil {
		t.Fatalf("stale pending should not block: %v", err)
	}
}

func TestConfirm_UnknownToken(t *testing.T) {
	m, _, _ := newTestMachine()
	_, err := m.Confirm(context.Background(), "glow-studio", "deadbeef")
	if !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestConfirm_TokenScopedToTenant(t *testing.T) {
	m, _, clk := newTestMachine()
	held, _ := m.Hold(context.Background(), draft(clk.Now().Add(2*time.Hour)))

	_, err := m.Confirm(context.Background(), "other-tenant", held.ConfirmationToken)
	if !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("token must not resolve across tenants, got %v", err)
	}
}

func TestCancel_ClientInsideCutoff(t *testing.T) {
	m, _, clk := newTestMachine()
	start := clk.Now().Add(90 * time.Minute) // inside the 2h cutoff
	held, _ := m.Hold(context.Background(), draft(start))
	if _, err := m.Confirm(context.Background(), held.TenantSlug, held.ConfirmationToken); err != nil {
		t.Fatal(err)
	}

	_, err := m.Cancel(context.Background(), held.TenantSlug, held.ID, model.ActorClient, "changed plans")
	if !errors.Is(err, ErrCancellationWindowClosed) {
		t.Fatalf("expected ErrCancellationWindowClosed, got %v", err)
	}
}

func TestCancel_TenantBypassesCutoff(t *testing.T) {
	m, _, clk := newTestMachine()
	start := clk.Now().Add(90 * time.Minute)
	held, _ := m.Hold(context.Background(), draft(start))
	if _, err := m.Confirm(context.Background(), held.TenantSlug, held.ConfirmationToken); err != nil {
		t.Fatal(err)
	}

	appt, err := m.Cancel(context.Background(), held.TenantSlug, held.ID, model.ActorTenant, "staff sick")
	if err != nil {
		t.Fatal(err)
	}
	if appt.Status != model.StatusCancelled || appt.CancelledBy != model.ActorTenant {
		t.Fatalf("unexpected cancel result: %+v", appt)
	}
}

func TestCancel_ClientOutsideCutoff(t *testing.T) {
	m, _, clk := newTestMachine()
	start := clk.Now().Add(3 * time.Hour)
	held, _ := m.Hold(context.Background(), draft(start))
	if _, err := m.Confirm(context.Background(), held.TenantSlug, held.ConfirmationToken); err != nil {
		t.Fatal(err)
	}

	appt, err := m.Cancel(context.Background(), held.TenantSlug, held.ID, model.ActorClient, "")
	if err != nil {
		t.Fatal(err)
	}
	if appt.Status != model.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", appt.Status)
	}
}

func TestCancel_PendingHasNoCutoff(t *testing.T) {
	m, _, clk := newTestMachine()
	start := clk.Now().Add(30 * time.Minute)
	held, _ := m.Hold(context.Background(), draft(start))

	if _, err := m.Cancel(context.Background(), held.TenantSlug, held.ID, model.ActorClient, ""); err != nil {
		t.Fatalf("pending cancel should ignore the cutoff: %v", err)
	}
}

func TestCancel_TerminalStatusRejected(t *testing.T) {
	m, _, clk := newTestMachine()
	held, _ := m.Hold(context.Background(), draft(clk.Now().Add(3*time.Hour)))
	if _, err := m.Cancel(context.Background(), held.TenantSlug, held.ID, model.ActorTenant, ""); err != nil {
		t.Fatal(err)
	}

	_, err := m.Cancel(context.Background(), held.TenantSlug, held.ID, model.ActorTenant, "")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestCompleteAndNoShow(t *testing.T) {
	m, _, clk := newTestMachine()

	held, _ := m.Hold(context.Background(), draft(clk.Now().Add(3*time.Hour)))
	if _, err := m.Complete(context.Background(), held.TenantSlug, held.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("complete from pending should fail, got %v", err)
	}

	if _, err := m.Confirm(context.Background(), held.TenantSlug, held.ConfirmationToken); err != nil {
		t.Fatal(err)
	}
	appt, err := m.Complete(context.Background(), held.TenantSlug, held.ID)
	if err != nil {
		t.Fatal(err)
	}
	if appt.Status != model.StatusCompleted {
		t.Fatalf("status = %s, want completed", appt.Status)
	}

	other, _ := m.Hold(context.Background(), draft(clk.Now().Add(5*time.Hour)))
	if _, err := m.Confirm(context.Background(), other.TenantSlug, other.ConfirmationToken); err != nil {
		t.Fatal(err)
	}
	appt, err = m.NoShow(context.Background(), other.TenantSlug, other.ID)
	if err != nil {
		t.Fatal(err)
	}
	if appt.Status != model.StatusNoShow {
		t.Fatalf("status = %s, want no_show", appt.Status)
	}
}

func TestBusy_ReturnsActiveIntervals(t *testing.T) {
	m, _, clk := newTestMachine()
	start := clk.Now().Add(2 * time.Hour)

	held, _ := m.Hold(context.Background(), draft(start))
	if _, err := m.Confirm(context.Background(), held.TenantSlug, held.ConfirmationToken); err != nil {
		t.Fatal(err)
	}
	cancelled, _ := m.Hold(context.Background(), draft(start.Add(time.Hour)))
	if _, err := m.Cancel(context.Background(), cancelled.TenantSlug, cancelled.ID, model.ActorClient, ""); err != nil {
		t.Fatal(err)
	}

	busy, err := m.Busy(context.Background(), "glow-studio", "", clk.Now(), clk.Now().Add(24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(busy) != 1 {
		t.Fatalf("only the confirmed appointment should be busy, got %d", len(busy))
	}
	if !busy[0].Start.Equal(start) {
		t.Fatalf("busy interval start = %s, want %s", busy[0].Start, start)
	}
}
