// Package memstore is an in-memory implementation of the booking engine's
// repositories. It enforces the same per-provider exclusion rule as the
// Postgres schema, so engine tests can exercise the conflict path.
package memstore

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/apptbook/platform/services/booking-service/internal/apperr"
	"github.com/apptbook/platform/services/booking-service/internal/events"
	"github.com/apptbook/platform/services/booking-service/internal/model"
)

type Store struct {
	mu            sync.Mutex
	organizations map[string]model.Organization
	providers     map[string]model.Provider
	services      map[string]model.Service
	appointments  map[string]model.Appointment
	blocks        []model.ScheduleBlock
	outbox        []events.Event
	now           func() time.Time
}

func New() *Store {
	return &Store{
		organizations: map[string]model.Organization{},
		providers:     map[string]model.Provider{},
		services:      map[string]model.Service{},
		appointments:  map[string]model.Appointment{},
		now:           time.Now,
	}
}

func (s *Store) PutOrganization(o model.Organization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.organizations[o.ID] = o
}

func (s *Store) PutProvider(p model.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[p.ID] = p
}

func (s *Store) PutService(svc model.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.ID] = svc
}

func (s *Store) PutScheduleBlock(b model.ScheduleBlock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks = append(s.blocks, b)
}

// PutAppointment stores a without the exclusion check.
func (s *Store) PutAppointment(a model.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appointments[a.ID] = a
}

func (s *Store) Appointments() []model.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Appointment, 0, len(s.appointments))
	for _, a := range s.appointments {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b model.Appointment) int { return a.Start.Compare(b.Start) })
	return out
}

// Events returns the recorded outbox events in commit order.
func (s *Store) Events() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.outbox)
}

func (s *Store) GetProvider(_ context.Context, id string) (model.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.providers[id]
	if !ok {
		return model.Provider{}, apperr.NotFound("provider", id)
	}
	return p, nil
}

func (s *Store) GetOrganization(_ context.Context, id string) (model.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.organizations[id]
	if !ok {
		return model.Organization{}, apperr.NotFound("organization", id)
	}
	return o, nil
}

func (s *Store) GetService(_ context.Context, id string) (model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[id]
	if !ok {
		return model.Service{}, apperr.NotFound("service", id)
	}
	return svc, nil
}

func (s *Store) ListProvidersByOrganization(_ context.Context, organizationID, serviceID string) ([]model.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Provider
	for _, p := range s.providers {
		if p.OrganizationID == organizationID && p.Offers(serviceID) {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b model.Provider) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *Store) FindActiveAppointments(_ context.Context, providerID string, from, to time.Time) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeOverlapping(providerID, model.Interval{Start: from, End: to}, ""), nil
}

func (s *Store) FindScheduleBlocks(_ context.Context, providerID string, from, to time.Time) ([]model.ScheduleBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	window := model.Interval{Start: from, End: to}
	var out []model.ScheduleBlock
	for _, b := range s.blocks {
		if b.ProviderID == providerID && b.Interval().Overlaps(window) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) CreateAppointment(_ context.Context, a model.Appointment, evts ...events.Event) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !a.End.After(a.Start) {
		return model.Appointment{}, apperr.Validation("appointment end must be after start")
	}
	if _, exists := s.appointments[a.ID]; exists {
		return model.Appointment{}, apperr.Conflict("appointment id already exists", nil)
	}
	if a.Status.IsActive() && len(s.activeOverlapping(a.ProviderID, a.Interval(), a.ID)) > 0 {
		return model.Appointment{}, apperr.Conflict("time slot already booked", nil)
	}
	now := s.now()
	a.CreatedAt, a.UpdatedAt = now, now
	s.appointments[a.ID] = a
	s.outbox = append(s.outbox, evts...)
	return a, nil
}

func (s *Store) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return model.Appointment{}, apperr.NotFound("appointment", id)
	}
	return a, nil
}

func (s *Store) UpdateAppointmentStatus(_ context.Context, id string, from, to model.Status, evts ...events.Event) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return model.Appointment{}, apperr.NotFound("appointment", id)
	}
	if a.Status != from {
		return model.Appointment{}, apperr.Conflict("appointment status changed concurrently", nil)
	}
	if !from.IsActive() && to.IsActive() && len(s.activeOverlapping(a.ProviderID, a.Interval(), a.ID)) > 0 {
		return model.Appointment{}, apperr.Conflict("time slot already booked", nil)
	}
	a.Status = to
	a.UpdatedAt = s.now()
	s.appointments[id] = a
	s.outbox = append(s.outbox, evts...)
	return a, nil
}

func (s *Store) activeOverlapping(providerID string, iv model.Interval, exclude string) []model.Appointment {
	var out []model.Appointment
	for _, a := range s.appointments {
		if a.ID == exclude || a.ProviderID != providerID || !a.Status.IsActive() {
			continue
		}
		if a.Interval().Overlaps(iv) {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b model.Appointment) int { return a.Start.Compare(b.Start) })
	return out
}
