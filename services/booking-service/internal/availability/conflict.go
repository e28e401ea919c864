package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/apptbook/platform/services/booking-service/internal/model"
)

// Busy is the set of intervals a provider cannot be booked into.
type Busy []model.Interval

func (b Busy) Overlaps(iv model.Interval) bool {
	for _, x := range b {
		if x.Overlaps(iv) {
			return true
		}
	}
	return false
}

// ConflictDetector finds overlaps with active appointments and, when enabled,
// schedule blocks. It is a read-only check; the store's exclusion constraint
// is what makes concurrent bookings safe.
type ConflictDetector struct {
	calendar    Calendar
	checkBlocks bool
}

func NewConflictDetector(calendar Calendar, checkBlocks bool) *ConflictDetector {
	return &ConflictDetector{calendar: calendar, checkBlocks: checkBlocks}
}

// Busy loads everything overlapping window for providerID.
func (d *ConflictDetector) Busy(ctx context.Context, providerID string, window model.Interval) (Busy, error) {
	appts, err := d.calendar.FindActiveAppointments(ctx, providerID, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("find active appointments: %w", err)
	}
	busy := make(Busy, 0, len(appts))
	for _, a := range appts {
		if !a.Status.IsActive() {
			continue
		}
		busy = append(busy, a.Interval())
	}

	if !d.checkBlocks {
		return busy, nil
	}
	blocks, err := d.calendar.FindScheduleBlocks(ctx, providerID, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("find schedule blocks: %w", err)
	}
	for _, b := range blocks {
		busy = append(busy, b.Interval())
	}
	return busy, nil
}

func (d *ConflictDetector) HasConflict(ctx context.Context, providerID string, start, end time.Time) (bool, error) {
	iv := model.Interval{Start: start, End: end}
	busy, err := d.Busy(ctx, providerID, iv)
	if err != nil {
		return false, err
	}
	return busy.Overlaps(iv), nil
}
