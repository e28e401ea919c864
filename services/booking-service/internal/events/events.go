// Package events defines the domain events the booking engine records.
// Events are written to the outbox in the same transaction as the state
// change they describe, and published to Kafka with the topic equal to Type.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/apptbook/platform/services/booking-service/internal/model"
)

const (
	AggregateAppointment = "appointment"

	TypeAppointmentBooked = "appointment.booked"
	TypeStatusChanged     = "appointment.status_changed"
)

type Event struct {
	ID            string
	Type          string
	AggregateType string
	AggregateID   string
	OccurredAt    time.Time
	Payload       []byte
}

type BookedPayload struct {
	AppointmentID  string    `json:"appointment_id"`
	ProviderID     string    `json:"provider_id"`
	OrganizationID string    `json:"organization_id,omitempty"`
	UserID         string    `json:"user_id"`
	ServiceIDs     []string  `json:"service_ids"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Status         string    `json:"status"`
}

type StatusChangedPayload struct {
	AppointmentID  string    `json:"appointment_id"`
	ProviderID     string    `json:"provider_id"`
	OrganizationID string    `json:"organization_id,omitempty"`
	UserID         string    `json:"user_id"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	ChangedBy      string    `json:"changed_by"`
	ChangedByRole  string    `json:"changed_by_role"`
	ChangedAt      time.Time `json:"changed_at"`
}

func newEvent(eventType, aggregateID string, at time.Time, payload any) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		AggregateType: AggregateAppointment,
		AggregateID:   aggregateID,
		OccurredAt:    at.UTC(),
		Payload:       body,
	}, nil
}

func Booked(a model.Appointment, at time.Time) (Event, error) {
	ids := make([]string, 0, len(a.Services))
	for _, s := range a.Services {
		ids = append(ids, s.ServiceID)
	}
	return newEvent(TypeAppointmentBooked, a.ID, at, BookedPayload{
		AppointmentID:  a.ID,
		ProviderID:     a.ProviderID,
		OrganizationID: a.OrganizationID,
		UserID:         a.UserID,
		ServiceIDs:     ids,
		StartTime:      a.Start.UTC(),
		EndTime:        a.End.UTC(),
		Status:         string(a.Status),
	})
}

func StatusChanged(a model.Appointment, from, to model.Status, actorID, actorRole string, at time.Time) (Event, error) {
	return newEvent(TypeStatusChanged, a.ID, at, StatusChangedPayload{
		AppointmentID:  a.ID,
		ProviderID:     a.ProviderID,
		OrganizationID: a.OrganizationID,
		UserID:         a.UserID,
		From:           string(from),
		To:             string(to),
		ChangedBy:      actorID,
		ChangedByRole:  actorRole,
		ChangedAt:      at.UTC(),
	})
}
