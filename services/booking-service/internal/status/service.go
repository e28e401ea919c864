package status

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/apptbook/platform/services/booking-service/internal/apperr"
	"github.com/apptbook/platform/services/booking-service/internal/events"
	"github.com/apptbook/platform/services/booking-service/internal/metrics"
	"github.com/apptbook/platform/services/booking-service/internal/model"
)

// Store persists transitions. UpdateAppointmentStatus only applies when the
// stored status still equals from, and records evts in the same transaction.
type Store interface {
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id string, from, to model.Status, evts ...events.Event) (model.Appointment, error)
}

type Service struct {
	store   Store
	machine *Machine
	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(store Store, machine *Machine, m *metrics.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		store:   store,
		machine: machine,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *Service) UpdateStatus(ctx context.Context, appointmentID string, to model.Status, actor Actor) (model.Appointment, error) {
	appointmentID = strings.TrimSpace(appointmentID)
	if appointmentID == "" {
		return model.Appointment{}, apperr.Validation("appointment id is required")
	}
	if !to.Valid() {
		return model.Appointment{}, apperr.Validation("unknown status %q", to)
	}

	appt, err := s.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	from := appt.Status
	rel := actor.RelationTo(appt)
	if err := s.machine.Check(from, to, rel); err != nil {
		s.metrics.Transition(string(to), "rejected")
		s.logger.Info().
			Str("appointment_id", appointmentID).
			Str("from", string(from)).
			Str("to", string(to)).
			Str("relation", rel.String()).
			Msg("status transition rejected")
		return model.Appointment{}, err
	}

	evt, err := events.StatusChanged(appt, from, to, actor.UserID, actor.Role, s.now())
	if err != nil {
		return model.Appointment{}, err
	}
	updated, err := s.store.UpdateAppointmentStatus(ctx, appointmentID, from, to, evt)
	if err != nil {
		s.metrics.Transition(string(to), "failed")
		return model.Appointment{}, err
	}

	s.metrics.Transition(string(to), "accepted")
	s.logger.Info().
		Str("appointment_id", appointmentID).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("actor", actor.UserID).
		Msg("appointment status changed")
	return updated, nil
}
