package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/apptbook/platform/libs/db"
	"github.com/apptbook/platform/services/booking-service/internal/apperr"
	"github.com/apptbook/platform/services/booking-service/internal/events"
	"github.com/apptbook/platform/services/booking-service/internal/model"
	"github.com/apptbook/platform/services/booking-service/internal/outbox"
)

const appointmentColumns = `id::text, provider_id, COALESCE(organization_id, ''), user_id, start_time, end_time, status, notes, created_at, updated_at`

// AppointmentRepository owns appointments, their services and schedule
// blocks. Writes run in serializable transactions and append outbox events
// in the same transaction; the appointments_no_overlap exclusion constraint
// rejects double bookings.
type AppointmentRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewAppointmentRepository(pool *db.Pool, outboxRepo *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{pool: pool, outbox: outboxRepo}
}

func (r *AppointmentRepository) CreateAppointment(ctx context.Context, a model.Appointment, evts ...events.Event) (model.Appointment, error) {
	err := r.pool.InSerializableTx(ctx, func(tx pgx.Tx) error {
		var orgID *string
		if a.OrganizationID != "" {
			orgID = &a.OrganizationID
		}
		err := tx.QueryRow(ctx, `
			INSERT INTO appointments (id, provider_id, organization_id, user_id, start_time, end_time, status, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING created_at, updated_at
		`, a.ID, a.ProviderID, orgID, a.UserID, a.Start, a.End, string(a.Status), a.Notes).Scan(&a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, s := range a.Services {
			batch.Queue(`
				INSERT INTO appointment_services (appointment_id, position, service_id, duration_minutes, price)
				VALUES ($1, $2, $3, $4, $5::text::numeric)
			`, a.ID, s.Position, s.ServiceID, s.DurationMinutes, s.Price)
		}
		if batch.Len() > 0 {
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return err
			}
		}
		return r.insertEvents(ctx, tx, evts)
	})
	if err != nil {
		return model.Appointment{}, fmt.Errorf("create appointment: %w", mapWriteError(err))
	}
	return a, nil
}

func (r *AppointmentRepository) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Appointment{}, apperr.NotFound("appointment", id)
	}
	a, err := scanAppointment(r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	if err != nil {
		if IsNotFound(err) {
			return model.Appointment{}, apperr.NotFound("appointment", id)
		}
		return model.Appointment{}, fmt.Errorf("get appointment: %w", err)
	}
	if a.Services, err = r.services(ctx, r.pool, a.ID); err != nil {
		return model.Appointment{}, err
	}
	return a, nil
}

// UpdateAppointmentStatus moves the appointment from -> to. It fails with a
// conflict when the stored status is no longer from, or when reactivating it
// would overlap another active appointment.
func (r *AppointmentRepository) UpdateAppointmentStatus(ctx context.Context, id string, from, to model.Status, evts ...events.Event) (model.Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Appointment{}, apperr.NotFound("appointment", id)
	}
	var a model.Appointment
	err := r.pool.InSerializableTx(ctx, func(tx pgx.Tx) error {
		var err error
		a, err = scanAppointment(tx.QueryRow(ctx, `
			UPDATE appointments
			SET status = $3, updated_at = now()
			WHERE id = $1 AND status = $2
			RETURNING `+appointmentColumns,
			id, string(from), string(to)))
		if IsNotFound(err) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return apperr.NotFound("appointment", id)
			}
			return apperr.Conflict("appointment status changed concurrently", nil)
		}
		if err != nil {
			return err
		}
		if a.Services, err = r.services(ctx, tx, a.ID); err != nil {
			return err
		}
		return r.insertEvents(ctx, tx, evts)
	})
	if err != nil {
		return model.Appointment{}, fmt.Errorf("update appointment status: %w", mapWriteError(err))
	}
	return a, nil
}

// FindActiveAppointments returns active appointments overlapping [from, to).
// Services are not loaded.
func (r *AppointmentRepository) FindActiveAppointments(ctx context.Context, providerID string, from, to time.Time) ([]model.Appointment, error) {
	active := make([]string, 0, len(model.ActiveStatuses))
	for _, s := range model.ActiveStatuses {
		active = append(active, string(s))
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
			AND status = ANY($2)
			AND start_time < $4
			AND end_time > $3
		ORDER BY start_time ASC
	`, providerID, active, from, to)
	if err != nil {
		return nil, fmt.Errorf("find active appointments: %w", err)
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func (r *AppointmentRepository) FindScheduleBlocks(ctx context.Context, providerID string, from, to time.Time) ([]model.ScheduleBlock, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, provider_id, start_time, end_time, reason
		FROM schedule_blocks
		WHERE provider_id = $1
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, providerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("find schedule blocks: %w", err)
	}
	defer rows.Close()

	var blocks []model.ScheduleBlock
	for rows.Next() {
		var b model.ScheduleBlock
		if err := rows.Scan(&b.ID, &b.ProviderID, &b.Start, &b.End, &b.Reason); err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return blocks, nil
}

func (r *AppointmentRepository) insertEvents(ctx context.Context, tx pgx.Tx, evts []events.Event) error {
	for _, evt := range evts {
		if err := r.outbox.Insert(ctx, tx, evt); err != nil {
			return fmt.Errorf("insert outbox event %s: %w", evt.Type, err)
		}
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *AppointmentRepository) services(ctx context.Context, q querier, appointmentID string) ([]model.AppointmentService, error) {
	rows, err := q.Query(ctx, `
		SELECT service_id, duration_minutes, price::text, position
		FROM appointment_services
		WHERE appointment_id = $1
		ORDER BY position
	`, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("list appointment services: %w", err)
	}
	defer rows.Close()

	var out []model.AppointmentService
	for rows.Next() {
		var s model.AppointmentService
		if err := rows.Scan(&s.ServiceID, &s.DurationMinutes, &s.Price, &s.Position); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var status string
	err := row.Scan(&a.ID, &a.ProviderID, &a.OrganizationID, &a.UserID, &a.Start, &a.End, &status, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Status = model.Status(status)
	return a, nil
}
