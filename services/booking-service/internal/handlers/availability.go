package handlers

import (
	"net/http"

	"github.com/apptbook/platform/services/booking-service/internal/availability"
)

type providerSlotsResponse struct {
	ProviderID string   `json:"provider_id"`
	ServiceID  string   `json:"service_id"`
	Date       string   `json:"date"`
	Slots      []string `json:"slots"`
}

type organizationSlotsResponse struct {
	OrganizationID string              `json:"organization_id"`
	ServiceID      string              `json:"service_id"`
	Date           string              `json:"date"`
	Providers      map[string][]string `json:"providers"`
}

// Availability answers GET /api/v1/availability with a flat slot list for
// provider_id, or slots per provider for organization_id.
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.availability.Search(r.Context(), availability.Query{
		ProviderID:     q.Get("provider_id"),
		OrganizationID: q.Get("organization_id"),
		ServiceID:      q.Get("service_id"),
		Date:           q.Get("date"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if res.ProviderID != "" {
		writeJSON(w, http.StatusOK, providerSlotsResponse{
			ProviderID: res.ProviderID,
			ServiceID:  q.Get("service_id"),
			Date:       res.Date,
			Slots:      res.Slots,
		})
		return
	}
	providers := res.ByProvider
	if providers == nil {
		providers = map[string][]string{}
	}
	writeJSON(w, http.StatusOK, organizationSlotsResponse{
		OrganizationID: res.OrganizationID,
		ServiceID:      q.Get("service_id"),
		Date:           res.Date,
		Providers:      providers,
	})
}
