package availability

import (
	"iter"
	"time"

	"github.com/apptbook/platform/services/booking-service/internal/model"
)

// DefaultGranularity is the step between candidate slot starts.
const DefaultGranularity = 15 * time.Minute

const slotLayout = "15:04"

// Slots yields candidate starts in [open, close) stepping by step, where a
// booking of length duration ends no later than close and does not overlap
// busy. The sequence is ordered, finite and can be ranged over repeatedly.
func Slots(open, close time.Time, duration, step time.Duration, busy Busy) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if duration <= 0 || step <= 0 || !close.After(open) {
			return
		}
		for t := open; !t.Add(duration).After(close); t = t.Add(step) {
			if busy.Overlaps(model.Interval{Start: t, End: t.Add(duration)}) {
				continue
			}
			if !yield(t) {
				return
			}
		}
	}
}

// Clock formats each slot as zero-padded "HH:MM" in its own location.
func Clock(slots iter.Seq[time.Time]) iter.Seq[string] {
	return func(yield func(string) bool) {
		for t := range slots {
			if !yield(t.Format(slotLayout)) {
				return
			}
		}
	}
}
