package outbox

import (
	"encoding/json"
	"time"
)

const EventUserCreated = "auth.user.created.v1"

type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type UserCreatedPayload struct {
	UserID     string `json:"user_id"`
	TenantSlug string `json:"tenant_slug"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	CreatedAt  string `json:"created_at"`
}

func UserCreatedEvent(userID, tenantSlug, email, role string) (Event, error) {
	payload, err := json.Marshal(UserCreatedPayload{
		UserID:     userID,
		TenantSlug: tenantSlug,
		Email:      email,
		Role:       role,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "user",
		AggregateID:   userID,
		EventType:     EventUserCreated,
		Payload:       payload,
	}, nil
}
