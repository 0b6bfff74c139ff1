// Package reservation implements the appointment lifecycle: a two-phase
// hold/confirm flow in front of a small status state machine. Holds are
// pending rows that block their slot for a limited window; expiry is lazy,
// nothing sweeps the table in the background.
package reservation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tmachado/agendly/services/booking-service/internal/model"
	"github.com/tmachado/agendly/services/booking-service/internal/timeslot"
)

const (
	// DefaultHoldWindow is how long a pending appointment keeps its slot.
	DefaultHoldWindow = 10 * time.Minute
	// DefaultCancelCutoff is how close to the start a client may still cancel.
	DefaultCancelCutoff = 2 * time.Hour

	cancelReasonExpired = "confirmation window expired"
)

// Store is the persistence surface the machine drives. Implementations must
// make InsertPending atomic with respect to concurrent inserts for the same
// resource, and MarkConfirmed conditional on the row still being pending.
type Store interface {
	// InsertPending writes a new pending appointment, failing with
	// ErrSlotConflict if an active appointment overlaps its interval.
	InsertPending(ctx context.Context, appt model.Appointment) error
	GetByID(ctx context.Context, tenantSlug, id string) (model.Appointment, error)
	GetByToken(ctx context.Context, tenantSlug, token string) (model.Appointment, error)
	// MarkConfirmed promotes a pending row. It returns ErrNotFound if the
	// row is no longer pending.
	MarkConfirmed(ctx context.Context, tenantSlug, id string, at time.Time) error
	MarkCancelled(ctx context.Context, tenantSlug, id string, at time.Time, actor, reason string) error
	MarkCompleted(ctx context.Context, tenantSlug, id string, at time.Time) error
	MarkNoShow(ctx context.Context, tenantSlug, id string, at time.Time) error
	// ListActiveBetween returns appointments still blocking slots that
	// overlap [from, to) for the given resource.
	ListActiveBetween(ctx context.Context, tenantSlug, staffID string, from, to time.Time) ([]model.Appointment, error)
}

// Machine applies lifecycle rules on top of a Store.
type Machine struct {
	store        Store
	holdWindow   time.Duration
	cancelCutoff time.Duration
	now          func() time.Time
}

func NewMachine(store Store, holdWindow, cancelCutoff time.Duration) *Machine {
	if holdWindow <= 0 {
		holdWindow = DefaultHoldWindow
	}
	if cancelCutoff < 0 {
		cancelCutoff = DefaultCancelCutoff
	}
	return &Machine{
		store:        store,
		holdWindow:   holdWindow,
		cancelCutoff: cancelCutoff,
		now:          time.Now,
	}
}

func (m *Machine) HoldWindow() time.Duration { return m.holdWindow }

// Hold creates a pending appointment for the given interval. The appointment
// comes back with its ID, confirmation token and timestamps filled in.
func (m *Machine) Hold(ctx context.Context, appt model.Appointment) (model.Appointment, error) {
	if !appt.EndTime.After(appt.StartTime) {
		return model.Appointment{}, fmt.Errorf("%w: end must be after start", ErrInvalidDateTime)
	}

	now := m.now().UTC()
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	appt.Status = model.StatusPending
	appt.ConfirmationToken = NewConfirmationToken()
	appt.CreatedAt = now
	appt.UpdatedAt = now

	if err := m.store.InsertPending(ctx, appt); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// Confirm promotes the pending appointment matching the token. An expired
// hold is cancelled on the spot and its slot freed.
func (m *Machine) Confirm(ctx context.Context, tenantSlug, token string) (model.Appointment, error) {
	appt, err := m.store.GetByToken(ctx, tenantSlug, token)
	if err != nil {
		return model.Appointment{}, err
	}

	switch appt.Status {
	case model.StatusConfirmed:
		return model.Appointment{}, ErrAlreadyConfirmed
	case model.StatusPending:
	default:
		return model.Appointment{}, ErrTokenNotFound
	}

	now := m.now().UTC()
	if now.Sub(appt.CreatedAt) >= m.holdWindow {
		if err := m.store.MarkCancelled(ctx, tenantSlug, appt.ID, now, model.ActorSystem, cancelReasonExpired); err != nil {
			return model.Appointment{}, err
		}
		return model.Appointment{}, ErrConfirmationExpired
	}

	// Conditional on status; a concurrent confirm of the same token loses here.
	if err := m.store.MarkConfirmed(ctx, tenantSlug, appt.ID, now); err != nil {
		return model.Appointment{}, err
	}
	return m.store.GetByID(ctx, tenantSlug, appt.ID)
}

// Cancel cancels a pending or confirmed appointment. Clients may not cancel a
// confirmed appointment inside the cutoff before its start; the tenant and the
// system may.
func (m *Machine) Cancel(ctx context.Context, tenantSlug, id, actor, reason string) (model.Appointment, error) {
	appt, err := m.store.GetByID(ctx, tenantSlug, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !ValidTransition("cancel", appt.Status) {
		return model.Appointment{}, fmt.Errorf("%w: cancel from %s", ErrInvalidTransition, appt.Status)
	}

	now := m.now().UTC()
	if appt.Status == model.StatusConfirmed && actor == model.ActorClient {
		if appt.StartTime.Sub(now) < m.cancelCutoff {
			return model.Appointment{}, ErrCancellationWindowClosed
		}
	}

	if err := m.store.MarkCancelled(ctx, tenantSlug, id, now, actor, reason); err != nil {
		return model.Appointment{}, err
	}
	return m.store.GetByID(ctx, tenantSlug, id)
}

// Complete marks a confirmed appointment as completed.
func (m *Machine) Complete(ctx context.Context, tenantSlug, id string) (model.Appointment, error) {
	return m.finish(ctx, tenantSlug, id, "complete", m.store.MarkCompleted)
}

// NoShow marks a confirmed appointment as a no-show.
func (m *Machine) NoShow(ctx context.Context, tenantSlug, id string) (model.Appointment, error) {
	return m.finish(ctx, tenantSlug, id, "no_show", m.store.MarkNoShow)
}

func (m *Machine) finish(ctx context.Context, tenantSlug, id, action string, mark func(context.Context, string, string, time.Time) error) (model.Appointment, error) {
	appt, err := m.store.GetByID(ctx, tenantSlug, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !ValidTransition(action, appt.Status) {
		return model.Appointment{}, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, appt.Status)
	}
	if err := mark(ctx, tenantSlug, id, m.now().UTC()); err != nil {
		return model.Appointment{}, err
	}
	return m.store.GetByID(ctx, tenantSlug, id)
}

// Busy returns the intervals still blocking slots for a resource within
// [from, to).
func (m *Machine) Busy(ctx context.Context, tenantSlug, staffID string, from, to time.Time) ([]timeslot.Interval, error) {
	appts, err := m.store.ListActiveBetween(ctx, tenantSlug, staffID, from, to)
	if err != nil {
		return nil, err
	}
	busy := make([]timeslot.Interval, 0, len(appts))
	for _, a := range appts {
		busy = append(busy, timeslot.Interval{Start: a.StartTime, End: a.EndTime})
	}
	return busy, nil
}

// NewConfirmationToken returns a 64-character hex token from 32 random bytes.
func NewConfirmationToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return hex.EncodeToString(buf)
}
