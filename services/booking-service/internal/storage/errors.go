package storage

import (
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/apptbook/platform/libs/db"
	"github.com/apptbook/platform/services/booking-service/internal/apperr"
)

// IsConflict reports whether err is the database refusing an overlapping or
// concurrently conflicting write.
func IsConflict(err error) bool {
	return db.IsExclusionViolation(err) || db.IsSerializationFailure(err)
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func mapWriteError(err error) error {
	switch {
	case err == nil:
		return nil
	case IsConflict(err):
		return apperr.Conflict("time slot already booked", err)
	case db.IsUniqueViolation(err):
		return apperr.Conflict("appointment already exists", err)
	}
	return err
}
