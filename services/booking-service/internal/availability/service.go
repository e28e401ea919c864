package availability

import (
	"context"
	"errors"
	"iter"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/apptbook/platform/services/booking-service/internal/apperr"
	"github.com/apptbook/platform/services/booking-service/internal/duration"
	"github.com/apptbook/platform/services/booking-service/internal/metrics"
	"github.com/apptbook/platform/services/booking-service/internal/model"
	"github.com/apptbook/platform/services/booking-service/internal/workinghours"
)

const (
	DateLayout = "2006-01-02"

	// organization listings compute providers concurrently, at most this many at once
	fanOutLimit = 8
)

type Options struct {
	Granularity time.Duration
	Location    *time.Location
}

type Service struct {
	catalog  Catalog
	detector *ConflictDetector
	opts     Options
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	tracer   trace.Tracer
}

func NewService(catalog Catalog, detector *ConflictDetector, opts Options, m *metrics.Metrics, logger zerolog.Logger) *Service {
	if opts.Granularity <= 0 {
		opts.Granularity = DefaultGranularity
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Service{
		catalog:  catalog,
		detector: detector,
		opts:     opts,
		metrics:  m,
		logger:   logger,
		tracer:   otel.Tracer("booking-service/availability"),
	}
}

func (s *Service) Location() *time.Location {
	return s.opts.Location
}

// WorkingHours returns the provider's week, falling back to its
// organization's. nil means no hours are configured anywhere.
func (s *Service) WorkingHours(ctx context.Context, p model.Provider) (*workinghours.Week, error) {
	if p.WorkingHours != nil || p.OrganizationID == "" {
		return p.WorkingHours, nil
	}
	org, err := s.catalog.GetOrganization(ctx, p.OrganizationID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			s.logger.Warn().Str("provider_id", p.ID).Str("organization_id", p.OrganizationID).Msg("provider references missing organization")
			return nil, nil
		}
		return nil, err
	}
	return org.WorkingHours, nil
}

// IsAvailable reports whether [start, end) lies inside the provider's working
// hours for start's day and overlaps nothing busy. With no hours configured
// only conflicts are checked.
func (s *Service) IsAvailable(ctx context.Context, providerID string, start, end time.Time) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "availability.IsAvailable", trace.WithAttributes(
		attribute.String("provider.id", providerID),
		attribute.String("start", start.Format(time.RFC3339)),
		attribute.String("end", end.Format(time.RFC3339)),
	))
	defer span.End()

	if !end.After(start) {
		return false, apperr.Validation("end must be after start")
	}
	p, err := s.catalog.GetProvider(ctx, providerID)
	if err != nil {
		return false, err
	}
	week, err := s.WorkingHours(ctx, p)
	if err != nil {
		return false, err
	}

	iv := model.Interval{Start: start, End: end}
	if week != nil {
		open, close, ok := week.Resolve(start.In(s.opts.Location))
		if !ok || !(model.Interval{Start: open, End: close}).Contains(iv) {
			s.metrics.AvailabilityCheck(false)
			span.SetAttributes(attribute.String("reason", "outside_working_hours"))
			return false, nil
		}
	}

	conflict, err := s.detector.HasConflict(ctx, providerID, start, end)
	if err != nil {
		return false, err
	}
	s.metrics.AvailabilityCheck(!conflict)
	return !conflict, nil
}

// Generate returns the provider's free slot starts on date for a booking of
// the given length. A closed day yields an empty sequence.
func (s *Service) Generate(ctx context.Context, p model.Provider, date time.Time, minutes int) (iter.Seq[string], error) {
	week, err := s.WorkingHours(ctx, p)
	if err != nil {
		return nil, err
	}
	return s.generate(ctx, p.ID, week, date, minutes)
}

func (s *Service) generate(ctx context.Context, providerID string, week *workinghours.Week, date time.Time, minutes int) (iter.Seq[string], error) {
	if minutes <= 0 {
		return nil, apperr.Validation("duration must be positive, got %d minutes", minutes)
	}
	open, close, ok := week.Resolve(date.In(s.opts.Location))
	if !ok {
		return func(func(string) bool) {}, nil
	}
	busy, err := s.detector.Busy(ctx, providerID, model.Interval{Start: open, End: close})
	if err != nil {
		return nil, err
	}
	return Clock(Slots(open, close, time.Duration(minutes)*time.Minute, s.opts.Granularity, busy)), nil
}

func (s *Service) ProviderSlots(ctx context.Context, providerID string, date time.Time, minutes int) ([]string, error) {
	defer s.metrics.SlotQuery("provider", time.Now())
	ctx, span := s.tracer.Start(ctx, "availability.ProviderSlots", trace.WithAttributes(attribute.String("provider.id", providerID)))
	defer span.End()

	p, err := s.catalog.GetProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	seq, err := s.Generate(ctx, p, date, minutes)
	if err != nil {
		return nil, err
	}
	return collect(seq), nil
}

// OrganizationSlots lists slots for every provider of the organization that
// offers serviceID, keyed by provider id. Providers closed on date map to an
// empty list.
func (s *Service) OrganizationSlots(ctx context.Context, organizationID, serviceID string, date time.Time, minutes int) (map[string][]string, error) {
	defer s.metrics.SlotQuery("organization", time.Now())
	ctx, span := s.tracer.Start(ctx, "availability.OrganizationSlots", trace.WithAttributes(
		attribute.String("organization.id", organizationID),
		attribute.String("service.id", serviceID),
	))
	defer span.End()

	org, err := s.catalog.GetOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	providers, err := s.catalog.ListProvidersByOrganization(ctx, organizationID, serviceID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("providers", len(providers)))

	var mu sync.Mutex
	out := make(map[string][]string, len(providers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOutLimit)
	for _, p := range providers {
		g.Go(func() error {
			seq, err := s.generate(gctx, p.ID, workinghours.Fallback(p.WorkingHours, org.WorkingHours), date, minutes)
			if err != nil {
				return err
			}
			slots := collect(seq)
			mu.Lock()
			out[p.ID] = slots
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

type Query struct {
	ProviderID     string
	OrganizationID string
	ServiceID      string
	Date           string
}

// Result holds Slots for a provider query or ByProvider for an
// organization query.
type Result struct {
	ProviderID     string
	OrganizationID string
	Date           string
	Slots          []string
	ByProvider     map[string][]string
}

// Search answers an availability query for one provider or, when no
// provider is given, for every qualifying provider of an organization.
func (s *Service) Search(ctx context.Context, q Query) (Result, error) {
	q.ProviderID = strings.TrimSpace(q.ProviderID)
	q.OrganizationID = strings.TrimSpace(q.OrganizationID)
	q.ServiceID = strings.TrimSpace(q.ServiceID)

	if q.ServiceID == "" {
		return Result{}, apperr.Validation("service_id is required")
	}
	if q.ProviderID == "" && q.OrganizationID == "" {
		return Result{}, apperr.Validation("provider_id or organization_id is required")
	}
	date, err := time.ParseInLocation(DateLayout, strings.TrimSpace(q.Date), s.opts.Location)
	if err != nil {
		return Result{}, apperr.Validation("invalid date %q, expected YYYY-MM-DD", q.Date)
	}
	minutes, err := s.ServiceMinutes(ctx, q.ServiceID)
	if err != nil {
		return Result{}, err
	}

	res := Result{Date: date.Format(DateLayout)}
	if q.ProviderID != "" {
		res.ProviderID = q.ProviderID
		res.Slots, err = s.ProviderSlots(ctx, q.ProviderID, date, minutes)
		return res, err
	}
	res.OrganizationID = q.OrganizationID
	res.ByProvider, err = s.OrganizationSlots(ctx, q.OrganizationID, q.ServiceID, date, minutes)
	return res, err
}

// ServiceMinutes loads a service and parses its duration.
func (s *Service) ServiceMinutes(ctx context.Context, serviceID string) (int, error) {
	svc, err := s.catalog.GetService(ctx, serviceID)
	if err != nil {
		return 0, err
	}
	minutes, ok := duration.ParseMinutes(svc.Duration)
	if !ok {
		return 0, apperr.Validation("service %q has invalid duration %q", serviceID, svc.Duration)
	}
	return minutes, nil
}

func collect(seq iter.Seq[string]) []string {
	out := slices.Collect(seq)
	if out == nil {
		out = []string{}
	}
	return out
}
