package outbox

import "encoding/json"

const EventPlanChanged = "tenant.plan.changed.v1"

// Event is the envelope written to the outbox table inside the same
// transaction as the state change it describes.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type PlanChangedPayload struct {
	TenantSlug string `json:"tenant_slug"`
	Tier       string `json:"tier"`
	Source     string `json:"source"`
}

// PlanChangedEvent announces a tenant's plan change; consumers derive limits
// from the tier, the payload carries no numbers.
func PlanChangedEvent(tenantSlug, tier, source string) (Event, error) {
	payload, err := json.Marshal(PlanChangedPayload{TenantSlug: tenantSlug, Tier: tier, Source: source})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "tenant",
		AggregateID:   tenantSlug,
		EventType:     EventPlanChanged,
		Payload:       payload,
	}, nil
}
