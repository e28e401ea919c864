package status

import (
	"github.com/apptbook/platform/libs/auth"
	"github.com/apptbook/platform/services/booking-service/internal/model"
)

// Actor is the authenticated caller requesting a transition.
type Actor struct {
	UserID         string
	Role           string
	OrganizationID string
	ProviderID     string
}

func ActorFromClaims(c *auth.Claims) Actor {
	if c == nil {
		return Actor{}
	}
	return Actor{
		UserID:         c.UserID(),
		Role:           c.Role,
		OrganizationID: c.OrganizationID,
		ProviderID:     c.ProviderID,
	}
}

// RelationTo classifies the actor against a. Staff means the appointment's
// own provider or an admin of its organization.
func (a Actor) RelationTo(appt model.Appointment) Relation {
	switch {
	case a.Role == auth.RoleAdmin:
		return RelationAdmin
	case a.Role == auth.RoleProvider && a.ProviderID != "" && a.ProviderID == appt.ProviderID:
		return RelationStaff
	case a.Role == auth.RoleOrgAdmin && a.OrganizationID != "" && a.OrganizationID == appt.OrganizationID:
		return RelationStaff
	case a.UserID != "" && a.UserID == appt.UserID:
		return RelationOwner
	}
	return RelationNone
}
