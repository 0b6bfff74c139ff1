// Package booking orchestrates the public reservation flow: slot listing,
// the hold/confirm handshake, and tenant-side appointment management.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmachado/agendly/libs/plan"
	"github.com/tmachado/agendly/services/booking-service/internal/catalog"
	"github.com/tmachado/agendly/services/booking-service/internal/model"
	"github.com/tmachado/agendly/services/booking-service/internal/reservation"
	"github.com/tmachado/agendly/services/booking-service/internal/schedule"
	"github.com/tmachado/agendly/services/booking-service/internal/storage"
	"github.com/tmachado/agendly/services/booking-service/internal/timeslot"
)

var (
	// ErrTenantInactive means the tenant exists but is suspended or expired.
	ErrTenantInactive = errors.New("tenant inactive")
	// ErrPlanLimitReached means the tenant used up its monthly appointment quota.
	ErrPlanLimitReached = errors.New("plan limit reached")
)

// Store is the subset of the storage repository the orchestrator reads from.
// Lifecycle writes go through the reservation machine instead.
type Store interface {
	GetByID(ctx context.Context, tenantSlug, id string) (model.Appointment, error)
	ListByTenant(ctx context.Context, tenantSlug string, f storage.ListFilter) ([]model.Appointment, error)
	CountBookedBetween(ctx context.Context, tenantSlug string, from, to time.Time) (int, error)
	GetTenantEntitlements(ctx context.Context, tenantSlug string) (storage.TenantEntitlements, bool, error)
}

type Service struct {
	catalog catalog.Catalog
	machine *reservation.Machine
	store   Store
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(cat catalog.Catalog, machine *reservation.Machine, store Store, logger *slog.Logger) *Service {
	return &Service{
		catalog: cat,
		machine: machine,
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
}

type SlotsRequest struct {
	TenantSlug string
	ServiceID  string
	StaffID    string
	Date       string // YYYY-MM-DD in the tenant's timezone
}

type SlotsResponse struct {
	Date     string   `json:"date"`
	Timezone string   `json:"timezone"`
	Open     bool     `json:"open"`
	Slots    []string `json:"slots"`
}

// ListSlots returns the free start times for a service on one date. A closed
// day is not an error; it comes back with Open=false and no slots.
func (s *Service) ListSlots(ctx context.Context, req SlotsRequest) (SlotsResponse, error) {
	tenant, svc, _, err := s.resolve(ctx, req.TenantSlug, req.ServiceID, req.StaffID)
	if err != nil {
		return SlotsResponse{}, err
	}
	loc := tenantLocation(tenant)

	date, err := schedule.ParseDate(req.Date, loc)
	if err != nil {
		return SlotsResponse{}, fmt.Errorf("%w: date %q", reservation.ErrInvalidDateTime, req.Date)
	}

	resp := SlotsResponse{
		Date:     date.Format("2006-01-02"),
		Timezone: loc.String(),
		Slots:    []string{},
	}

	window := tenant.Hours.DayWindow(date, loc)
	if !window.Open {
		return resp, nil
	}
	resp.Open = true

	busy, err := s.machine.Busy(ctx, tenant.Slug, req.StaffID, window.Start, window.End)
	if err != nil {
		return SlotsResponse{}, err
	}

	duration := time.Duration(svc.DurationMinutes) * time.Minute
	for _, start := range timeslot.AvailableSlots(window.Start, window.End, duration, busy, s.now()) {
		resp.Slots = append(resp.Slots, start.In(loc).Format("15:04"))
	}
	return resp, nil
}

type BookingRequest struct {
	TenantSlug  string
	ServiceID   string
	StaffID     string
	ClientName  string
	ClientEmail string
	ClientPhone string
	Notes       string
	Date        string // YYYY-MM-DD
	Time        string // HH:MM, tenant-local
}

// RequestBooking places a hold on the requested slot. The returned
// appointment is pending; the client has the hold window to confirm it.
func (s *Service) RequestBooking(ctx context.Context, req BookingRequest) (model.Appointment, error) {
	tenant, svc, _, err := s.resolve(ctx, req.TenantSlug, req.ServiceID, req.StaffID)
	if err != nil {
		return model.Appointment{}, err
	}
	loc := tenantLocation(tenant)

	start, err := parseLocalStart(req.Date, req.Time, loc)
	if err != nil {
		return model.Appointment{}, err
	}
	now := s.now()
	if start.Before(now) {
		return model.Appointment{}, fmt.Errorf("%w: start is in the past", reservation.ErrInvalidDateTime)
	}

	duration := time.Duration(svc.DurationMinutes) * time.Minute
	end := start.Add(duration)

	window := tenant.Hours.DayWindow(start, loc)
	if !window.Open || start.Before(window.Start) || end.After(window.End) {
		return model.Appointment{}, fmt.Errorf("%w: outside working hours", reservation.ErrInvalidDateTime)
	}

	if err := s.checkMonthlyQuota(ctx, tenant, start, loc); err != nil {
		return model.Appointment{}, err
	}

	appt, err := s.machine.Hold(ctx, model.Appointment{
		TenantSlug:      tenant.Slug,
		StaffID:         req.StaffID,
		ServiceID:       svc.ID,
		ServiceName:     svc.Name,
		DurationMinutes: svc.DurationMinutes,
		Price:           svc.Price,
		ClientName:      req.ClientName,
		ClientEmail:     req.ClientEmail,
		ClientPhone:     req.ClientPhone,
		Notes:           req.Notes,
		StartTime:       start.UTC(),
		EndTime:         end.UTC(),
	})
	if err != nil {
		return model.Appointment{}, err
	}

	s.logger.Info("appointment held",
		"tenant", tenant.Slug,
		"appointment_id", appt.ID,
		"service_id", svc.ID,
		"start_time", appt.StartTime.Format(time.RFC3339),
	)
	return appt, nil
}

// Confirm promotes a held appointment by its confirmation token.
func (s *Service) Confirm(ctx context.Context, tenantSlug, token string) (model.Appointment, error) {
	appt, err := s.machine.Confirm(ctx, tenantSlug, token)
	if err != nil {
		return model.Appointment{}, err
	}
	s.logger.Info("appointment confirmed", "tenant", tenantSlug, "appointment_id", appt.ID)
	return appt, nil
}

// Cancel cancels an appointment on behalf of the given actor.
func (s *Service) Cancel(ctx context.Context, tenantSlug, id, actor, reason string) (model.Appointment, error) {
	appt, err := s.machine.Cancel(ctx, tenantSlug, id, actor, reason)
	if err != nil {
		return model.Appointment{}, err
	}
	s.logger.Info("appointment cancelled",
		"tenant", tenantSlug,
		"appointment_id", appt.ID,
		"cancelled_by", actor,
	)
	return appt, nil
}

// CancelByClient cancels on the client's behalf after checking the request
// comes with the email the appointment was booked under. A mismatch reads the
// same as a missing appointment so IDs cannot be probed.
func (s *Service) CancelByClient(ctx context.Context, tenantSlug, id, email, reason string) (model.Appointment, error) {
	appt, err := s.store.GetByID(ctx, tenantSlug, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !strings.EqualFold(appt.ClientEmail, strings.TrimSpace(email)) {
		return model.Appointment{}, reservation.ErrNotFound
	}
	return s.Cancel(ctx, tenantSlug, id, model.ActorClient, reason)
}

// Complete marks a confirmed appointment as done.
func (s *Service) Complete(ctx context.Context, tenantSlug, id string) (model.Appointment, error) {
	return s.machine.Complete(ctx, tenantSlug, id)
}

// NoShow marks a confirmed appointment as missed.
func (s *Service) NoShow(ctx context.Context, tenantSlug, id string) (model.Appointment, error) {
	return s.machine.NoShow(ctx, tenantSlug, id)
}

// List returns a tenant's appointments, newest start first.
func (s *Service) List(ctx context.Context, tenantSlug string, f storage.ListFilter) ([]model.Appointment, error) {
	return s.store.ListByTenant(ctx, tenantSlug, f)
}

func (s *Service) resolve(ctx context.Context, tenantSlug, serviceID, staffID string) (catalog.Tenant, catalog.Service, catalog.Staff, error) {
	tenant, err := s.catalog.GetTenant(ctx, tenantSlug)
	if err != nil {
		return catalog.Tenant{}, catalog.Service{}, catalog.Staff{}, err
	}
	if !tenant.Active {
		return catalog.Tenant{}, catalog.Service{}, catalog.Staff{}, ErrTenantInactive
	}

	svc, err := s.catalog.GetService(ctx, tenantSlug, serviceID)
	if err != nil {
		return catalog.Tenant{}, catalog.Service{}, catalog.Staff{}, err
	}
	if !svc.Active {
		return catalog.Tenant{}, catalog.Service{}, catalog.Staff{}, catalog.ErrServiceNotFound
	}

	var staff catalog.Staff
	if staffID != "" {
		staff, err = s.catalog.GetStaff(ctx, tenantSlug, staffID)
		if err != nil {
			return catalog.Tenant{}, catalog.Service{}, catalog.Staff{}, err
		}
		if !staff.Active {
			return catalog.Tenant{}, catalog.Service{}, catalog.Staff{}, catalog.ErrStaffNotFound
		}
	}
	return tenant, svc, staff, nil
}

// checkMonthlyQuota enforces the plan's appointment cap for the month the
// booking lands in, counted on the tenant's calendar.
func (s *Service) checkMonthlyQuota(ctx context.Context, tenant catalog.Tenant, start time.Time, loc *time.Location) error {
	max := plan.ForTier(tenant.Plan).MaxMonthlyAppointments
	if ent, found, err := s.store.GetTenantEntitlements(ctx, tenant.Slug); err != nil {
		return err
	} else if found {
		max = ent.MaxMonthlyAppointments
	}
	if max <= 0 {
		return nil
	}

	local := start.In(loc)
	monthStart := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	monthEnd := monthStart.AddDate(0, 1, 0)

	booked, err := s.store.CountBookedBetween(ctx, tenant.Slug, monthStart.UTC(), monthEnd.UTC())
	if err != nil {
		return err
	}
	if booked >= max {
		return fmt.Errorf("%w: %d of %d this month", ErrPlanLimitReached, booked, max)
	}
	return nil
}

func tenantLocation(t catalog.Tenant) *time.Location {
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil || t.Timezone == "" {
		return time.UTC
	}
	return loc
}

func parseLocalStart(date, clock string, loc *time.Location) (time.Time, error) {
	day, err := schedule.ParseDate(date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", reservation.ErrInvalidDateTime, date)
	}
	minutes, err := schedule.ParseClock(clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: time %q", reservation.ErrInvalidDateTime, clock)
	}
	return day.Add(time.Duration(minutes) * time.Minute), nil
}
