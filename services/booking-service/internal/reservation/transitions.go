package reservation

import "github.com/tmachado/agendly/services/booking-service/internal/model"

var transitionMap = map[string][]string{
	"confirm":  {model.StatusPending},
	"cancel":   {model.StatusPending, model.StatusConfirmed},
	"complete": {model.StatusConfirmed},
	"no_show":  {model.StatusConfirmed},
}

// ValidTransition reports whether the action is allowed from the given status.
func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}
