// Package booking validates booking requests end to end and commits new
// appointments.
package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/apptbook/platform/services/booking-service/internal/apperr"
	"github.com/apptbook/platform/services/booking-service/internal/duration"
	"github.com/apptbook/platform/services/booking-service/internal/events"
	"github.com/apptbook/platform/services/booking-service/internal/metrics"
	"github.com/apptbook/platform/services/booking-service/internal/model"
)

const startLayout = "2006-01-02 15:04"

// Policy holds the lead-time rules applied to new bookings.
type Policy struct {
	MinAdvanceHours int
	// MinCancellationHours is carried for cancellation rules but not enforced.
	MinCancellationHours int
	PastGrace            time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MinAdvanceHours: 1, MinCancellationHours: 2, PastGrace: 5 * time.Minute}
}

type Catalog interface {
	GetProvider(ctx context.Context, id string) (model.Provider, error)
	GetService(ctx context.Context, id string) (model.Service, error)
}

type Availability interface {
	IsAvailable(ctx context.Context, providerID string, start, end time.Time) (bool, error)
}

// Store must reject an active appointment overlapping another active one for
// the same provider with an apperr Conflict, and record evts atomically with
// the insert.
type Store interface {
	CreateAppointment(ctx context.Context, a model.Appointment, evts ...events.Event) (model.Appointment, error)
}

type Request struct {
	UserID         string
	ProviderID     string
	OrganizationID string
	ServiceIDs     []string
	Date           string
	Time           string
	Notes          string
}

type Orchestrator struct {
	catalog      Catalog
	availability Availability
	store        Store
	policy       Policy
	loc          *time.Location
	metrics      *metrics.Metrics
	logger       zerolog.Logger
	tracer       trace.Tracer
	now          func() time.Time
}

func NewOrchestrator(catalog Catalog, availability Availability, store Store, policy Policy, loc *time.Location, m *metrics.Metrics, logger zerolog.Logger) *Orchestrator {
	if loc == nil {
		loc = time.Local
	}
	return &Orchestrator{
		catalog:      catalog,
		availability: availability,
		store:        store,
		policy:       policy,
		loc:          loc,
		metrics:      m,
		logger:       logger,
		tracer:       otel.Tracer("booking-service/booking"),
		now:          time.Now,
	}
}

// Book creates a PENDING appointment covering all requested services back to
// back, failing on the first rule the request breaks.
func (o *Orchestrator) Book(ctx context.Context, req Request) (model.Appointment, error) {
	ctx, span := o.tracer.Start(ctx, "booking.Book", trace.WithAttributes(
		attribute.String("provider.id", req.ProviderID),
		attribute.Int("services", len(req.ServiceIDs)),
	))
	defer span.End()

	appt, err := o.book(ctx, req)
	if err != nil {
		kind := apperr.KindOf(err)
		o.metrics.Booking(kind.String())
		span.SetStatus(codes.Error, kind.String())
		if kind == apperr.KindInternal {
			span.RecordError(err)
			o.logger.Error().Err(err).Str("provider_id", req.ProviderID).Msg("booking failed")
		}
		return model.Appointment{}, err
	}
	o.metrics.Booking("created")
	o.logger.Info().
		Str("appointment_id", appt.ID).
		Str("provider_id", appt.ProviderID).
		Time("start", appt.Start).
		Time("end", appt.End).
		Msg("appointment booked")
	return appt, nil
}

func (o *Orchestrator) book(ctx context.Context, req Request) (model.Appointment, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return model.Appointment{}, apperr.Validation("user id is required")
	}
	serviceIDs := dedupe(req.ServiceIDs)
	if len(serviceIDs) == 0 {
		return model.Appointment{}, apperr.Validation("at least one service is required")
	}

	services := make([]model.Service, 0, len(serviceIDs))
	for _, id := range serviceIDs {
		svc, err := o.catalog.GetService(ctx, id)
		if err != nil {
			return model.Appointment{}, err
		}
		services = append(services, svc)
	}

	total := 0
	minutes := make([]int, len(services))
	for i, svc := range services {
		m, ok := duration.ParseMinutes(svc.Duration)
		if !ok {
			return model.Appointment{}, apperr.Validation("service %q has invalid duration %q", svc.ID, svc.Duration)
		}
		minutes[i] = m
		total += m
	}
	if total > duration.MaxMinutes {
		return model.Appointment{}, apperr.Validation("combined duration of %d minutes exceeds %d", total, duration.MaxMinutes)
	}

	provider, err := o.resolveProvider(ctx, strings.TrimSpace(req.ProviderID), strings.TrimSpace(req.OrganizationID))
	if err != nil {
		return model.Appointment{}, err
	}

	start, err := time.ParseInLocation(startLayout, strings.TrimSpace(req.Date)+" "+strings.TrimSpace(req.Time), o.loc)
	if err != nil {
		return model.Appointment{}, apperr.Validation("invalid date/time %q %q, expected YYYY-MM-DD and HH:MM", req.Date, req.Time)
	}
	now := o.now()
	if start.Before(now.Add(-o.policy.PastGrace)) {
		return model.Appointment{}, apperr.Validation("cannot book an appointment in the past")
	}
	if hours := int(start.Sub(now) / time.Hour); hours < o.policy.MinAdvanceHours {
		return model.Appointment{}, apperr.Validation("appointments must be booked at least %d hour(s) in advance", o.policy.MinAdvanceHours)
	}

	end := start.Add(time.Duration(total) * time.Minute)
	ok, err := o.availability.IsAvailable(ctx, provider.ID, start, end)
	if err != nil {
		return model.Appointment{}, err
	}
	if !ok {
		return model.Appointment{}, apperr.Conflict("requested time is not available", nil)
	}

	appt := model.Appointment{
		ID:             uuid.NewString(),
		ProviderID:     provider.ID,
		OrganizationID: provider.OrganizationID,
		UserID:         userID,
		Start:          start,
		End:            end,
		Status:         model.StatusPending,
		Notes:          strings.TrimSpace(req.Notes),
	}
	for i, svc := range services {
		appt.Services = append(appt.Services, model.AppointmentService{
			ServiceID:       svc.ID,
			DurationMinutes: minutes[i],
			Price:           priceFor(provider, svc),
			Position:        i,
		})
	}

	evt, err := events.Booked(appt, now)
	if err != nil {
		return model.Appointment{}, err
	}
	created, err := o.store.CreateAppointment(ctx, appt, evt)
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return model.Appointment{}, err
		}
		return model.Appointment{}, &apperr.Error{Kind: apperr.KindInternal, Message: "create appointment", Err: err}
	}
	return created, nil
}

func (o *Orchestrator) resolveProvider(ctx context.Context, providerID, organizationID string) (model.Provider, error) {
	if providerID == "" {
		if organizationID != "" {
			return model.Provider{}, apperr.Validation("provider_id is required; automatic provider selection is not supported")
		}
		return model.Provider{}, apperr.Validation("provider_id is required")
	}
	p, err := o.catalog.GetProvider(ctx, providerID)
	if err != nil {
		return model.Provider{}, err
	}
	if organizationID != "" && p.OrganizationID != organizationID {
		return model.Provider{}, apperr.Validation("provider %q does not belong to organization %q", providerID, organizationID)
	}
	return p, nil
}

func priceFor(p model.Provider, svc model.Service) string {
	for _, ps := range p.Services {
		if ps.ServiceID == svc.ID && ps.PriceOverride != nil {
			return *ps.PriceOverride
		}
	}
	return svc.Price
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
