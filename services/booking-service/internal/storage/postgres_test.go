package storage

import (
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apptbook/platform/libs/db"
	"github.com/apptbook/platform/services/booking-service/internal/apperr"
	"github.com/apptbook/platform/services/booking-service/internal/events"
	"github.com/apptbook/platform/services/booking-service/internal/model"
	"github.com/apptbook/platform/services/booking-service/internal/outbox"
	"github.com/apptbook/platform/services/booking-service/migrations"
)

// pgFixture runs against the database in DATABASE_URL. Every test seeds its
// own organization, provider and services under a fresh suffix.
type pgFixture struct {
	pool         *db.Pool
	catalog      *CatalogRepository
	appointments *AppointmentRepository
	org          string
	provider     string
	other        string
	cut          string
	color        string
}

func newPGFixture(t *testing.T) *pgFixture {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := t.Context()
	pool, err := db.Open(ctx, url, db.Options{MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = db.NewMigrator(pool, migrations.FS).Up(ctx)
	require.NoError(t, err)

	suffix := uuid.NewString()[:8]
	f := &pgFixture{
		pool:         pool,
		catalog:      NewCatalogRepository(pool),
		appointments: NewAppointmentRepository(pool, outbox.NewRepository()),
		org:          "org-" + suffix,
		provider:     "alice-" + suffix,
		other:        "bob-" + suffix,
		cut:          "cut-" + suffix,
		color:        "color-" + suffix,
	}
	f.exec(t, `INSERT INTO organizations (id, name, working_hours) VALUES ($1, 'Salon', '{"monday":{"start":"09:00","end":"12:00"}}')`, f.org)
	f.exec(t, `INSERT INTO providers (id, organization_id, working_hours) VALUES ($1, $2, '{"monday":{"start":"09:00","end":"17:00"}}')`, f.provider, f.org)
	f.exec(t, `INSERT INTO providers (id, organization_id) VALUES ($1, $2)`, f.other, f.org)
	f.exec(t, `INSERT INTO services (id, name, duration, price) VALUES ($1, 'Cut', 'PT1H', 30), ($2, 'Color', '30m', 45.5)`, f.cut, f.color)
	f.exec(t, `INSERT INTO provider_services (provider_id, service_id, price_override) VALUES ($1, $2, 25), ($1, $3, NULL), ($4, $3, NULL)`, f.provider, f.cut, f.color, f.other)
	return f
}

func (f *pgFixture) exec(t *testing.T, sql string, args ...any) {
	t.Helper()
	_, err := f.pool.Exec(t.Context(), sql, args...)
	require.NoError(t, err)
}

var mondayTen = time.Date(2030, 3, 4, 10, 0, 0, 0, time.UTC)

func (f *pgFixture) appointment(start time.Time, minutes int, st model.Status) model.Appointment {
	return model.Appointment{
		ID:             uuid.NewString(),
		ProviderID:     f.provider,
		OrganizationID: f.org,
		UserID:         "u-1",
		Start:          start,
		End:            start.Add(time.Duration(minutes) * time.Minute),
		Status:         st,
		Services:       []model.AppointmentService{{ServiceID: f.cut, DurationMinutes: minutes, Price: "25.00", Position: 0}},
	}
}

func (f *pgFixture) create(t *testing.T, a model.Appointment) (model.Appointment, error) {
	t.Helper()
	evt, err := events.Booked(a, time.Now())
	require.NoError(t, err)
	return f.appointments.CreateAppointment(t.Context(), a, evt)
}

func TestPostgresCatalog(t *testing.T) {
	f := newPGFixture(t)
	ctx := t.Context()

	p, err := f.catalog.GetProvider(ctx, f.provider)
	require.NoError(t, err)
	assert.Equal(t, f.org, p.OrganizationID)
	require.NotNil(t, p.WorkingHours.Day(time.Monday))
	assert.Equal(t, "17:00", p.WorkingHours.Day(time.Monday).Close.String())
	require.Len(t, p.Services, 2)
	require.NotNil(t, p.Services[1].PriceOverride)
	assert.Equal(t, "25.00", *p.Services[1].PriceOverride, "services ordered by id: color-, cut-")
	assert.Nil(t, p.Services[0].PriceOverride)

	bob, err := f.catalog.GetProvider(ctx, f.other)
	require.NoError(t, err)
	assert.Nil(t, bob.WorkingHours, "NULL working_hours is not configured")

	org, err := f.catalog.GetOrganization(ctx, f.org)
	require.NoError(t, err)
	assert.Equal(t, "12:00", org.WorkingHours.Day(time.Monday).Close.String())

	svc, err := f.catalog.GetService(ctx, f.color)
	require.NoError(t, err)
	assert.Equal(t, model.Service{ID: f.color, Name: "Color", Duration: "30m", Price: "45.50"}, svc)

	offering, err := f.catalog.ListProvidersByOrganization(ctx, f.org, f.cut)
	require.NoError(t, err)
	require.Len(t, offering, 1)
	assert.Equal(t, f.provider, offering[0].ID)

	offering, err = f.catalog.ListProvidersByOrganization(ctx, f.org, f.color)
	require.NoError(t, err)
	assert.Len(t, offering, 2)

	_, err = f.catalog.GetProvider(ctx, "missing-"+f.provider)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.catalog.GetOrganization(ctx, "missing-"+f.org)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.catalog.GetService(ctx, "missing-"+f.cut)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPostgresCreateAppointment(t *testing.T) {
	f := newPGFixture(t)
	ctx := t.Context()

	first, err := f.create(t, f.appointment(mondayTen, 60, model.StatusPending))
	require.NoError(t, err)
	assert.False(t, first.CreatedAt.IsZero())

	got, err := f.appointments.GetAppointment(ctx, first.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, mondayTen, got.Start, 0)
	assert.Equal(t, []model.AppointmentService{{ServiceID: f.cut, DurationMinutes: 60, Price: "25.00", Position: 0}}, got.Services)

	var outboxRows int
	require.NoError(t, f.pool.QueryRow(ctx, `SELECT count(*) FROM outbox_events WHERE aggregate_id = $1 AND event_type = $2`, first.ID, events.TypeAppointmentBooked).Scan(&outboxRows))
	assert.Equal(t, 1, outboxRows)

	_, err = f.create(t, f.appointment(mondayTen.Add(30*time.Minute), 60, model.StatusPending))
	assert.ErrorIs(t, err, apperr.ErrConflict, "overlapping active appointment")

	_, err = f.create(t, f.appointment(mondayTen.Add(time.Hour), 60, model.StatusPending))
	assert.NoError(t, err, "touching intervals do not overlap")

	_, err = f.create(t, f.appointment(mondayTen.Add(15*time.Minute), 30, model.StatusCancelled))
	assert.NoError(t, err, "inactive appointments are outside the constraint")

	dup := f.appointment(mondayTen.Add(4*time.Hour), 30, model.StatusPending)
	dup.ID = first.ID
	_, err = f.create(t, dup)
	assert.ErrorIs(t, err, apperr.ErrConflict, "duplicate id")

	require.NoError(t, f.pool.QueryRow(ctx, `SELECT count(*) FROM outbox_events WHERE aggregate_id = $1`, first.ID).Scan(&outboxRows))
	assert.Equal(t, 1, outboxRows, "failed inserts leave no outbox rows")

	_, err = f.appointments.GetAppointment(ctx, uuid.NewString())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.appointments.GetAppointment(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPostgresFindActiveAppointments(t *testing.T) {
	f := newPGFixture(t)
	ctx := t.Context()

	booked, err := f.create(t, f.appointment(mondayTen, 60, model.StatusConfirmed))
	require.NoError(t, err)
	_, err = f.create(t, f.appointment(mondayTen.Add(2*time.Hour), 60, model.StatusCancelled))
	require.NoError(t, err)

	cases := []struct {
		name     string
		from, to time.Time
		want     int
	}{
		{"whole day", mondayTen.Add(-10 * time.Hour), mondayTen.Add(10 * time.Hour), 1},
		{"ends where appointment starts", mondayTen.Add(-time.Hour), mondayTen, 0},
		{"starts where appointment ends", mondayTen.Add(time.Hour), mondayTen.Add(2 * time.Hour), 0},
		{"inside", mondayTen.Add(15 * time.Minute), mondayTen.Add(30 * time.Minute), 1},
		{"straddles start", mondayTen.Add(-time.Minute), mondayTen.Add(time.Minute), 1},
		{"only cancelled", mondayTen.Add(2 * time.Hour), mondayTen.Add(3 * time.Hour), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := f.appointments.FindActiveAppointments(ctx, f.provider, tc.from, tc.to)
			require.NoError(t, err)
			require.Len(t, got, tc.want)
			if tc.want == 1 {
				assert.Equal(t, booked.ID, got[0].ID)
			}
		})
	}

	f.exec(t, `INSERT INTO schedule_blocks (provider_id, start_time, end_time, reason) VALUES ($1, $2, $3, 'lunch')`,
		f.provider, mondayTen.Add(2*time.Hour), mondayTen.Add(3*time.Hour))
	blocks, err := f.appointments.FindScheduleBlocks(ctx, f.provider, mondayTen.Add(150*time.Minute), mondayTen.Add(4*time.Hour))
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "lunch", blocks[0].Reason)

	blocks, err = f.appointments.FindScheduleBlocks(ctx, f.provider, mondayTen.Add(3*time.Hour), mondayTen.Add(4*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, blocks)
}

func TestPostgresUpdateAppointmentStatus(t *testing.T) {
	f := newPGFixture(t)
	ctx := t.Context()

	a, err := f.create(t, f.appointment(mondayTen, 60, model.StatusPending))
	require.NoError(t, err)

	evt, err := events.StatusChanged(a, model.StatusPending, model.StatusConfirmed, "p-1", "provider", time.Now())
	require.NoError(t, err)
	updated, err := f.appointments.UpdateAppointmentStatus(ctx, a.ID, model.StatusPending, model.StatusConfirmed, evt)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, updated.Status)
	assert.Len(t, updated.Services, 1)

	_, err = f.appointments.UpdateAppointmentStatus(ctx, a.ID, model.StatusPending, model.StatusCancelled)
	assert.ErrorIs(t, err, apperr.ErrConflict, "stored status is no longer PENDING")

	_, err = f.appointments.UpdateAppointmentStatus(ctx, uuid.NewString(), model.StatusPending, model.StatusCancelled)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.appointments.UpdateAppointmentStatus(ctx, "not-a-uuid", model.StatusPending, model.StatusCancelled)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.appointments.UpdateAppointmentStatus(ctx, a.ID, model.StatusConfirmed, model.StatusCancelled)
	require.NoError(t, err)
	_, err = f.create(t, f.appointment(mondayTen, 60, model.StatusPending))
	require.NoError(t, err, "cancelling frees the slot")

	_, err = f.appointments.UpdateAppointmentStatus(ctx, a.ID, model.StatusCancelled, model.StatusPending)
	assert.ErrorIs(t, err, apperr.ErrConflict, "reactivation would overlap")

	var outboxRows int
	require.NoError(t, f.pool.QueryRow(ctx, `SELECT count(*) FROM outbox_events WHERE aggregate_id = $1 AND event_type = $2`, a.ID, events.TypeStatusChanged).Scan(&outboxRows))
	assert.Equal(t, 1, outboxRows)
}
