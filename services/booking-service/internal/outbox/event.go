package outbox

import (
	"encoding/json"
	"time"

	"github.com/tmachado/agendly/services/booking-service/internal/model"
)

// Topic name equals the event type, one event shape per topic.
const (
	EventAppointmentPending   = "booking.appointment.pending.v1"
	EventAppointmentConfirmed = "booking.appointment.confirmed.v1"
	EventAppointmentCancelled = "booking.appointment.cancelled.v1"
)

// Event is the envelope written to the outbox table inside the same
// transaction as the state change it describes.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// AppointmentPayload is the JSON body shared by all appointment events.
// ConfirmationToken is only set on pending events; the notification service
// needs it to build the confirmation link.
type AppointmentPayload struct {
	AppointmentID   string    `json:"appointment_id"`
	TenantSlug      string    `json:"tenant_slug"`
	StaffID         string    `json:"staff_id,omitempty"`
	ServiceID       string    `json:"service_id"`
	ServiceName     string    `json:"service_name"`
	DurationMinutes int       `json:"duration_minutes"`
	ClientName      string    `json:"client_name"`
	ClientEmail     string    `json:"client_email"`
	ClientPhone     string    `json:"client_phone,omitempty"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	Status          string    `json:"status"`

	ConfirmationToken string `json:"confirmation_token,omitempty"`
	CancelledBy       string `json:"cancelled_by,omitempty"`
	CancelledReason   string `json:"cancelled_reason,omitempty"`
}

// AppointmentEvent builds the envelope for an appointment state change.
func AppointmentEvent(eventType string, appt model.Appointment) (Event, error) {
	p := AppointmentPayload{
		AppointmentID:   appt.ID,
		TenantSlug:      appt.TenantSlug,
		StaffID:         appt.StaffID,
		ServiceID:       appt.ServiceID,
		ServiceName:     appt.ServiceName,
		DurationMinutes: appt.DurationMinutes,
		ClientName:      appt.ClientName,
		ClientEmail:     appt.ClientEmail,
		ClientPhone:     appt.ClientPhone,
		StartTime:       appt.StartTime.UTC(),
		EndTime:         appt.EndTime.UTC(),
		Status:          appt.Status,
	}
	if eventType == EventAppointmentPending {
		p.ConfirmationToken = appt.ConfirmationToken
	}
	if eventType == EventAppointmentCancelled {
		p.CancelledBy = appt.CancelledBy
		p.CancelledReason = appt.CancelledReason
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}
