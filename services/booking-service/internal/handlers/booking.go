package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/apptbook/platform/libs/auth"
	"github.com/apptbook/platform/services/booking-service/internal/apperr"
	"github.com/apptbook/platform/services/booking-service/internal/booking"
	"github.com/apptbook/platform/services/booking-service/internal/model"
)

type createBookingRequest struct {
	UserID         string   `json:"user_id"`
	ProviderID     string   `json:"provider_id" validate:"required_without=OrganizationID"`
	OrganizationID string   `json:"organization_id"`
	ServiceIDs     []string `json:"service_ids" validate:"required,min=1,max=20,dive,required"`
	Date           string   `json:"date" validate:"required,datetime=2006-01-02"`
	Time           string   `json:"time" validate:"required,datetime=15:04"`
	Notes          string   `json:"notes" validate:"max=2000"`
}

type appointmentServiceResponse struct {
	ServiceID       string `json:"service_id"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           string `json:"price"`
	Position        int    `json:"position"`
}

type appointmentResponse struct {
	ID             string                       `json:"id"`
	ProviderID     string                       `json:"provider_id"`
	OrganizationID string                       `json:"organization_id,omitempty"`
	UserID         string                       `json:"user_id"`
	StartTime      string                       `json:"start_time"`
	EndTime        string                       `json:"end_time"`
	Status         string                       `json:"status"`
	Notes          string                       `json:"notes,omitempty"`
	Services       []appointmentServiceResponse `json:"services"`
	CreatedAt      string                       `json:"created_at,omitempty"`
	UpdatedAt      string                       `json:"updated_at,omitempty"`
}

func toAppointmentResponse(a model.Appointment) appointmentResponse {
	resp := appointmentResponse{
		ID:             a.ID,
		ProviderID:     a.ProviderID,
		OrganizationID: a.OrganizationID,
		UserID:         a.UserID,
		StartTime:      a.Start.Format(time.RFC3339),
		EndTime:        a.End.Format(time.RFC3339),
		Status:         string(a.Status),
		Notes:          a.Notes,
		Services:       make([]appointmentServiceResponse, 0, len(a.Services)),
	}
	if !a.CreatedAt.IsZero() {
		resp.CreatedAt = a.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !a.UpdatedAt.IsZero() {
		resp.UpdatedAt = a.UpdatedAt.UTC().Format(time.RFC3339)
	}
	for _, s := range a.Services {
		resp.Services = append(resp.Services, appointmentServiceResponse{
			ServiceID:       s.ServiceID,
			DurationMinutes: s.DurationMinutes,
			Price:           s.Price,
			Position:        s.Position,
		})
	}
	return resp
}

// Book handles POST /api/v1/bookings. The booking user is the token subject;
// user_id in the body is only honored when no token was verified.
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	userID := strings.TrimSpace(req.UserID)
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		userID = claims.UserID()
	}
	if userID == "" {
		h.writeError(w, r, apperr.Validation("user_id is required"))
		return
	}

	appt, err := h.booking.Book(r.Context(), booking.Request{
		UserID:         userID,
		ProviderID:     req.ProviderID,
		OrganizationID: req.OrganizationID,
		ServiceIDs:     req.ServiceIDs,
		Date:           req.Date,
		Time:           req.Time,
		Notes:          req.Notes,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	logRequest(h.logger, r).Str("appointment_id", appt.ID).Str("provider_id", appt.ProviderID).Msg("booking created")
	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}
