package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apptbook/platform/libs/auth"
	"github.com/apptbook/platform/services/booking-service/internal/availability"
	"github.com/apptbook/platform/services/booking-service/internal/booking"
	"github.com/apptbook/platform/services/booking-service/internal/model"
	"github.com/apptbook/platform/services/booking-service/internal/status"
	"github.com/apptbook/platform/services/booking-service/internal/storage/memstore"
	"github.com/apptbook/platform/services/booking-service/internal/workinghours"
)

const everyDay9to17 = `{
	"sunday":{"start":"09:00","end":"17:00"},"monday":{"start":"09:00","end":"17:00"},
	"tuesday":{"start":"09:00","end":"17:00"},"wednesday":{"start":"09:00","end":"17:00"},
	"thursday":{"start":"09:00","end":"17:00"},"friday":{"start":"09:00","end":"17:00"},
	"saturday":{"start":"09:00","end":"17:00"}}`

type testServer struct {
	handler  http.Handler
	verifier *auth.Verifier
	store    *memstore.Store
	date     string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memstore.New()
	store.PutOrganization(model.Organization{ID: "org-1", Name: "Salon"})
	store.PutService(model.Service{ID: "cut", Name: "Haircut", Duration: "PT1H", Price: "30.00"})
	store.PutProvider(model.Provider{ID: "alice", OrganizationID: "org-1", WorkingHours: workinghours.Parse([]byte(everyDay9to17)), Services: []model.ProviderService{{ServiceID: "cut"}}})
	store.PutProvider(model.Provider{ID: "bob", OrganizationID: "org-1", Services: []model.ProviderService{{ServiceID: "cut"}}})

	logger := zerolog.Nop()
	avail := availability.NewService(store, availability.NewConflictDetector(store, false), availability.Options{Location: time.UTC}, nil, logger)
	orch := booking.NewOrchestrator(store, avail, store, booking.DefaultPolicy(), time.UTC, nil, logger)
	updater := status.NewService(store, status.NewMachine(false), nil, logger)

	mux := http.NewServeMux()
	New(avail, orch, updater, logger).Register(mux)

	verifier := auth.NewVerifier("test-secret", "")
	return &testServer{
		handler:  verifier.Middleware(mux),
		verifier: verifier,
		store:    store,
		date:     time.Now().UTC().AddDate(0, 0, 7).Format("2006-01-02"),
	}
}

func (s *testServer) token(t *testing.T, sub, role, providerID string) string {
	t.Helper()
	tok, err := s.verifier.Sign(auth.Claims{
		Role:             role,
		ProviderID:       providerID,
		RegisteredClaims: jwt.RegisteredClaims{Subject: sub},
	}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestAvailability(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "u-1", auth.RoleCustomer, "")

	rec := s.do(t, http.MethodGet, "/api/v1/availability?provider_id=alice&service_id=cut&date="+s.date, tok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	single := decodeBody[providerSlotsResponse](t, rec)
	assert.Equal(t, "alice", single.ProviderID)
	require.Len(t, single.Slots, 29)
	assert.Equal(t, "09:00", single.Slots[0])
	assert.Equal(t, "16:00", single.Slots[28])

	rec = s.do(t, http.MethodGet, "/api/v1/availability?organization_id=org-1&service_id=cut&date="+s.date, tok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	multi := decodeBody[organizationSlotsResponse](t, rec)
	assert.Len(t, multi.Providers["alice"], 29)
	assert.Equal(t, []string{}, multi.Providers["bob"], "bob has no hours")

	rec = s.do(t, http.MethodGet, "/api/v1/availability?provider_id=alice&date="+s.date, tok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", decodeBody[errorResponse](t, rec).Code)

	rec = s.do(t, http.MethodGet, "/api/v1/availability?provider_id=zed&service_id=cut&date="+s.date, tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/availability?provider_id=alice&service_id=cut&date="+s.date, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBook(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "u-1", auth.RoleCustomer, "")
	body := map[string]any{"provider_id": "alice", "service_ids": []string{"cut"}, "date": s.date, "time": "10:00", "notes": "first visit"}

	rec := s.do(t, http.MethodPost, "/api/v1/bookings", tok, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	appt := decodeBody[appointmentResponse](t, rec)
	assert.Equal(t, "u-1", appt.UserID)
	assert.Equal(t, "PENDING", appt.Status)
	assert.Equal(t, s.date+"T10:00:00Z", appt.StartTime)
	assert.Equal(t, s.date+"T11:00:00Z", appt.EndTime)
	require.Len(t, appt.Services, 1)
	assert.Equal(t, "30.00", appt.Services[0].Price)

	body["time"] = "10:30"
	rec = s.do(t, http.MethodPost, "/api/v1/bookings", tok, body)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, "conflict", decodeBody[errorResponse](t, rec).Code)
}

func TestBook_BadRequests(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "u-1", auth.RoleCustomer, "")

	cases := map[string]struct {
		body map[string]any
		want int
	}{
		"bad date":          {map[string]any{"provider_id": "alice", "service_ids": []string{"cut"}, "date": "tomorrow", "time": "10:00"}, http.StatusBadRequest},
		"bad time":          {map[string]any{"provider_id": "alice", "service_ids": []string{"cut"}, "date": s.date, "time": "10am"}, http.StatusBadRequest},
		"no services":       {map[string]any{"provider_id": "alice", "service_ids": []string{}, "date": s.date, "time": "10:00"}, http.StatusBadRequest},
		"no target":         {map[string]any{"service_ids": []string{"cut"}, "date": s.date, "time": "10:00"}, http.StatusBadRequest},
		"organization only": {map[string]any{"organization_id": "org-1", "service_ids": []string{"cut"}, "date": s.date, "time": "10:00"}, http.StatusBadRequest},
		"unknown field":     {map[string]any{"provider_id": "alice", "service_ids": []string{"cut"}, "date": s.date, "time": "10:00", "colour": "red"}, http.StatusBadRequest},
		"unknown service":   {map[string]any{"provider_id": "alice", "service_ids": []string{"perm"}, "date": s.date, "time": "10:00"}, http.StatusNotFound},
		"after close":       {map[string]any{"provider_id": "alice", "service_ids": []string{"cut"}, "date": s.date, "time": "16:30"}, http.StatusConflict},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/v1/bookings", tok, tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
	assert.Empty(t, s.store.Appointments())
}

func TestUpdateStatus(t *testing.T) {
	s := newTestServer(t)
	customer := s.token(t, "u-1", auth.RoleCustomer, "")
	provider := s.token(t, "p-1", auth.RoleProvider, "alice")

	rec := s.do(t, http.MethodPost, "/api/v1/bookings", customer, map[string]any{"provider_id": "alice", "service_ids": []string{"cut"}, "date": s.date, "time": "13:00"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decodeBody[appointmentResponse](t, rec).ID
	target := "/api/v1/appointments/" + id + "/status"

	rec = s.do(t, http.MethodPost, target, customer, map[string]string{"status": "CONFIRMED"})
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, target, provider, map[string]string{"status": " confirmed "})
	require.Equal(t, http.StatusOK, rec.Code, "status is case-insensitive: %s", rec.Body.String())
	assert.Equal(t, "CONFIRMED", decodeBody[appointmentResponse](t, rec).Status)

	rec = s.do(t, http.MethodPost, target, customer, map[string]string{"status": "CANCELLED"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, target, provider, map[string]string{"status": "ARCHIVED"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/appointments/nope/status", provider, map[string]string{"status": "CONFIRMED"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Len(t, s.store.Events(), 3, "booked, confirmed, cancelled")
}

func TestWriteError_InternalIsGeneric(t *testing.T) {
	h := New(nil, nil, nil, zerolog.Nop())
	rec := httptest.NewRecorder()
	h.writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, errorResponse{Error: "internal error", Code: "internal"}, decodeBody[errorResponse](t, rec))
}
