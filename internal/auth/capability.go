package auth

import (
	"github.com/DoyleJ11/floor-ops-backend/internal/apperr"
	"github.com/DoyleJ11/floor-ops-backend/internal/models"
)

type Action string

const (
	ActionUpdateEmergency        Action = "emergency.update"
	ActionDeleteEmergency        Action = "emergency.delete"
	ActionSetProductionMode      Action = "production.mode"
	ActionUpdateProductionStatus Action = "production.status"
	ActionUpdateMemberStatus     Action = "team.member_status"
)

func isDirector(role models.Role) bool {
	return role == models.RoleFieldDirector || role == models.RoleAdmin
}

// Can reports whether a caller with role may perform action on a resource
// owned by ownerID. ownerID is ignored for director-only actions.
func Can(action Action, role models.Role, callerID, ownerID string) bool {
	switch action {
	case ActionUpdateEmergency, ActionUpdateMemberStatus:
		return isDirector(role) || (callerID != "" && callerID == ownerID)
	case ActionDeleteEmergency, ActionSetProductionMode, ActionUpdateProductionStatus:
		return isDirector(role)
	default:
		return false
	}
}

// Require is Can as an error.
func Require(action Action, role models.Role, callerID, ownerID string) error {
	if Can(action, role, callerID, ownerID) {
		return nil
	}
	return apperr.Forbidden("Access denied. Insufficient permissions.")
}
