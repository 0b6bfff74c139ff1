package model

import "time"

// Appointment statuses. Pending rows hold a slot until confirmed or until the
// hold window lapses; only pending and confirmed rows block other bookings.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
	StatusNoShow    = "no_show"
)

// Actors recorded on cancellations.
const (
	ActorClient = "client"
	ActorTenant = "tenant"
	ActorSystem = "system"
)

// Appointment is a reservation row. Service name, duration and price are
// snapshotted at booking time so later catalog edits never rewrite history.
type Appointment struct {
	ID         string
	TenantSlug string
	// StaffID is empty when the tenant itself is the booked resource.
	StaffID string

	ServiceID       string
	ServiceName     string
	DurationMinutes int
	Price           float64

	ClientName  string
	ClientEmail string
	ClientPhone string
	Notes       string

	StartTime time.Time
	EndTime   time.Time
	Status    string

	ConfirmationToken string
	ConfirmedAt       *time.Time

	CancelledAt     *time.Time
	CancelledBy     string
	CancelledReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether the appointment blocks its slot at the given time:
// confirmed, or pending with the hold window not yet lapsed.
func (a Appointment) Active(now time.Time, holdWindow time.Duration) bool {
	switch a.Status {
	case StatusConfirmed:
		return true
	case StatusPending:
		return now.Sub(a.CreatedAt) < holdWindow
	default:
		return false
	}
}
