package handlers

import (
	"net/http"
	"strings"

	"github.com/apptbook/platform/libs/auth"
	"github.com/apptbook/platform/services/booking-service/internal/model"
	"github.com/apptbook/platform/services/booking-service/internal/status"
)

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=PENDING CONFIRMED IN_PROGRESS COMPLETED CANCELLED NO_SHOW"`
}

func (r *updateStatusRequest) normalize() {
	r.Status = strings.ToUpper(strings.TrimSpace(r.Status))
}

// UpdateStatus handles POST /api/v1/appointments/{id}/status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required", Code: "unauthenticated"})
		return
	}

	var req updateStatusRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	appt, err := h.status.UpdateStatus(r.Context(), r.PathValue("id"), model.Status(req.Status), status.ActorFromClaims(claims))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}
