package availability

import (
	"context"
	"time"

	"github.com/apptbook/platform/services/booking-service/internal/model"
)

// Catalog reads providers, organizations and services. Lookups of a missing
// id return an apperr NotFound error.
type Catalog interface {
	GetProvider(ctx context.Context, id string) (model.Provider, error)
	GetOrganization(ctx context.Context, id string) (model.Organization, error)
	GetService(ctx context.Context, id string) (model.Service, error)
	ListProvidersByOrganization(ctx context.Context, organizationID, serviceID string) ([]model.Provider, error)
}

// Calendar reads what already occupies a provider's time. Both finders return
// records overlapping [from, to).
type Calendar interface {
	FindActiveAppointments(ctx context.Context, providerID string, from, to time.Time) ([]model.Appointment, error)
	FindScheduleBlocks(ctx context.Context, providerID string, from, to time.Time) ([]model.ScheduleBlock, error)
}
