// Package handlers is the HTTP surface of the booking engine.
package handlers

import (
	"context"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/apptbook/platform/services/booking-service/internal/availability"
	"github.com/apptbook/platform/services/booking-service/internal/booking"
	"github.com/apptbook/platform/services/booking-service/internal/model"
	"github.com/apptbook/platform/services/booking-service/internal/status"
)

type AvailabilitySearcher interface {
	Search(ctx context.Context, q availability.Query) (availability.Result, error)
}

type Booker interface {
	Book(ctx context.Context, req booking.Request) (model.Appointment, error)
}

type StatusUpdater interface {
	UpdateStatus(ctx context.Context, appointmentID string, to model.Status, actor status.Actor) (model.Appointment, error)
}

type Handler struct {
	availability AvailabilitySearcher
	booking      Booker
	status       StatusUpdater
	validate     *validator.Validate
	logger       zerolog.Logger
}

func New(avail AvailabilitySearcher, booker Booker, updater StatusUpdater, logger zerolog.Logger) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		availability: avail,
		booking:      booker,
		status:       updater,
		validate:     v,
		logger:       logger,
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/availability", h.Availability)
	mux.HandleFunc("POST /api/v1/bookings", h.Book)
	mux.HandleFunc("POST /api/v1/appointments/{id}/status", h.UpdateStatus)
}
