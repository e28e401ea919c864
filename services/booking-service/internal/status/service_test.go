package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apptbook/platform/services/booking-service/internal/apperr"
	"github.com/apptbook/platform/services/booking-service/internal/events"
	"github.com/apptbook/platform/services/booking-service/internal/model"
	"github.com/apptbook/platform/services/booking-service/internal/storage/memstore"
)

func newService(store *memstore.Store) *Service {
	svc := NewService(store, NewMachine(false), nil, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC) }
	return svc
}

func seed(store *memstore.Store, id string, start time.Time, st model.Status) {
	store.PutAppointment(model.Appointment{
		ID: id, ProviderID: "alice", OrganizationID: "org-1", UserID: "u-1",
		Start: start, End: start.Add(time.Hour), Status: st,
	})
}

var tenAM = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func TestUpdateStatus_Accepted(t *testing.T) {
	store := memstore.New()
	seed(store, "a1", tenAM, model.StatusPending)
	svc := newService(store)

	got, err := svc.UpdateStatus(t.Context(), "a1", model.StatusConfirmed, Actor{UserID: "p-user", Role: "provider", ProviderID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, got.Status)

	evts := store.Events()
	require.Len(t, evts, 1)
	assert.Equal(t, events.TypeStatusChanged, evts[0].Type)
	var p events.StatusChangedPayload
	require.NoError(t, json.Unmarshal(evts[0].Payload, &p))
	assert.Equal(t, "PENDING", p.From)
	assert.Equal(t, "CONFIRMED", p.To)
	assert.Equal(t, "p-user", p.ChangedBy)
}

func TestUpdateStatus_Rejected(t *testing.T) {
	store := memstore.New()
	seed(store, "a1", tenAM, model.StatusConfirmed)
	svc := newService(store)

	_, err := svc.UpdateStatus(t.Context(), "a1", model.StatusPending, Actor{Role: "admin", UserID: "root"})
	assert.ErrorIs(t, err, apperr.ErrAuthorization)

	_, err = svc.UpdateStatus(t.Context(), "a1", model.StatusCompleted, Actor{Role: "customer", UserID: "u-1"})
	assert.ErrorIs(t, err, apperr.ErrAuthorization)

	a, err := store.GetAppointment(t.Context(), "a1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, a.Status, "rejected transitions leave state unchanged")
	assert.Empty(t, store.Events())
}

func TestUpdateStatus_OwnerCancels(t *testing.T) {
	store := memstore.New()
	seed(store, "a1", tenAM, model.StatusConfirmed)

	got, err := newService(store).UpdateStatus(t.Context(), "a1", model.StatusCancelled, Actor{Role: "customer", UserID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
}

func TestUpdateStatus_ReactivationConflicts(t *testing.T) {
	store := memstore.New()
	seed(store, "old", tenAM, model.StatusCancelled)
	seed(store, "new", tenAM.Add(30*time.Minute), model.StatusPending)

	_, err := newService(store).UpdateStatus(t.Context(), "old", model.StatusPending, Actor{Role: "admin", UserID: "root"})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestUpdateStatus_Validation(t *testing.T) {
	svc := newService(memstore.New())

	_, err := svc.UpdateStatus(t.Context(), " ", model.StatusConfirmed, Actor{Role: "admin"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.UpdateStatus(t.Context(), "a1", model.Status("ARCHIVED"), Actor{Role: "admin"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.UpdateStatus(t.Context(), "missing", model.StatusConfirmed, Actor{Role: "admin"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

type brokenStore struct {
	*memstore.Store
}

func (brokenStore) UpdateAppointmentStatus(context.Context, string, model.Status, model.Status, ...events.Event) (model.Appointment, error) {
	return model.Appointment{}, fmt.Errorf("update appointment status: %w", errors.New("connection reset"))
}

func TestUpdateStatus_StoreErrorNotRewrapped(t *testing.T) {
	store := memstore.New()
	seed(store, "a1", tenAM, model.StatusPending)
	svc := NewService(brokenStore{store}, NewMachine(false), nil, zerolog.Nop())

	_, err := svc.UpdateStatus(t.Context(), "a1", model.StatusCancelled, Actor{Role: "customer", UserID: "u-1"})
	assert.EqualError(t, err, "update appointment status: connection reset")
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}
