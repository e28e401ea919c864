// Package workinghours turns the weekly opening-hours JSON stored for
// providers and organizations into a validated Week, and resolves a Week
// against a calendar date.
//
// Parsing is lenient: anything malformed about a day means the day is
// closed. It never fails.
package workinghours

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var clockPattern = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

// Clock is a wall-clock time of day with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

func ParseClock(s string) (Clock, bool) {
	m := clockPattern.FindStringSubmatch(s)
	if m == nil {
		return Clock{}, false
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	return Clock{Hour: h, Minute: min}, true
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c Clock) minutes() int {
	return c.Hour*60 + c.Minute
}

// On anchors c to the calendar day of date in date's location.
func (c Clock) On(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, date.Location())
}

// Window is an open day. Close is always after Open.
type Window struct {
	Open  Clock
	Close Clock
}

// Week is indexed by time.Weekday. A nil entry is a closed day.
type Week [7]*Window

// Day returns the window for wd, or nil when closed.
func (w *Week) Day(wd time.Weekday) *Window {
	if w == nil || wd < time.Sunday || wd > time.Saturday {
		return nil
	}
	return w[wd]
}

// Resolve returns the opening and closing instants on date's calendar day.
// ok is false when the week is nil or the day is closed.
func (w *Week) Resolve(date time.Time) (open, close time.Time, ok bool) {
	win := w.Day(date.Weekday())
	if win == nil {
		return time.Time{}, time.Time{}, false
	}
	return win.Open.On(date), win.Close.On(date), true
}

// Fallback returns the first non-nil week.
func Fallback(weeks ...*Week) *Week {
	for _, w := range weeks {
		if w != nil {
			return w
		}
	}
	return nil
}

type entry struct {
	IsOpen json.RawMessage `json:"isOpen"`
	Start  json.RawMessage `json:"start"`
	End    json.RawMessage `json:"end"`
}

// Parse builds a Week from a JSON object keyed by exact lowercase weekday name
// ("sunday".."saturday"), each value shaped {"isOpen": bool, "start": "HH:MM",
// "end": "HH:MM"}. Empty input or JSON null yields nil (not configured). Any
// other non-object input yields a week that is closed every day.
func Parse(raw []byte) *Week {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	week := &Week{}
	var days map[string]json.RawMessage
	if err := json.Unmarshal(raw, &days); err != nil {
		return week
	}
	for name, body := range days {
		wd, ok := weekdayByName[name]
		if !ok {
			continue
		}
		week[wd] = parseEntry(body)
	}
	return week
}

func parseEntry(body json.RawMessage) *Window {
	var e entry
	if err := json.Unmarshal(body, &e); err != nil {
		return nil
	}
	if bytes.Equal(bytes.TrimSpace(e.IsOpen), []byte("false")) {
		return nil
	}
	open, ok := clockField(e.Start)
	if !ok {
		return nil
	}
	close, ok := clockField(e.End)
	if !ok {
		return nil
	}
	if close.minutes() <= open.minutes() {
		return nil
	}
	return &Window{Open: open, Close: close}
}

func clockField(raw json.RawMessage) (Clock, bool) {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return Clock{}, false
	}
	return ParseClock(s)
}

var weekdayByName = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}
