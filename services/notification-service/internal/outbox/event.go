package outbox

import "encoding/json"

const (
	EventNotificationSent   = "notification.sent.v1"
	EventNotificationFailed = "notification.failed.v1"
)

type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type DeliveryPayload struct {
	AppointmentID string `json:"appointment_id"`
	TenantSlug    string `json:"tenant_slug"`
	Channel       string `json:"channel"`
	Recipient     string `json:"recipient"`
	ErrorReason   string `json:"error_reason,omitempty"`
}

// DeliveryEvent reports the outcome of one send attempt.
func DeliveryEvent(appointmentID, tenantSlug, channel, recipient, errorReason string) (Event, error) {
	eventType := EventNotificationSent
	if errorReason != "" {
		eventType = EventNotificationFailed
	}
	payload, err := json.Marshal(DeliveryPayload{
		AppointmentID: appointmentID,
		TenantSlug:    tenantSlug,
		Channel:       channel,
		Recipient:     recipient,
		ErrorReason:   errorReason,
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "notification",
		AggregateID:   appointmentID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}
