package custody

import (
	"github.com/angelmondragon/cautela-backend/pkg/db/models"
	"github.com/angelmondragon/cautela-backend/pkg/enums"
)

// DetermineRole derives the role of an incoming signature from the record's
// prior events. Events that exist without any checkout among them are an
// anomaly left by rows written before roles were stored; those resolve to
// return and report fallback=true.
func DetermineRole(events []models.SignatureEvent) (role enums.SignatureRole, fallback bool) {
	if len(events) == 0 {
		return enums.SignatureRoleCheckout, false
	}
	for _, event := range events {
		if event.Role != nil && *event.Role == enums.SignatureRoleCheckout {
			return enums.SignatureRoleReturn, false
		}
	}
	return enums.SignatureRoleReturn, true
}

func hasRole(events []models.SignatureEvent, role enums.SignatureRole) bool {
	for _, event := range events {
		if event.Role != nil && *event.Role == role {
			return true
		}
	}
	return false
}
