// Package duration parses service durations such as "PT1H30M" or "1h30m".
package duration

import (
	"regexp"
	"strconv"
)

// MaxMinutes is the longest duration accepted, one day.
const MaxMinutes = 24 * 60

var (
	isoPattern   = regexp.MustCompile(`PT(?:(\d+)H)?(?:(\d+)M)?`)
	hoursPattern = regexp.MustCompile(`(\d+)h`)
	minsPattern  = regexp.MustCompile(`(\d+)m`)
)

// ParseMinutes returns the total minutes in s. The ISO form PT[nH][nM] is
// tried first, then independent "<n>h" / "<n>m" parts. ok is false unless the
// total is in (0, MaxMinutes].
func ParseMinutes(s string) (minutes int, ok bool) {
	if m := isoPattern.FindStringSubmatch(s); m != nil {
		if total := atoi(m[1])*60 + atoi(m[2]); total > 0 {
			return bounded(total)
		}
	}

	total := 0
	if m := hoursPattern.FindStringSubmatch(s); m != nil {
		total += atoi(m[1]) * 60
	}
	if m := minsPattern.FindStringSubmatch(s); m != nil {
		total += atoi(m[1])
	}
	return bounded(total)
}

func bounded(total int) (int, bool) {
	if total <= 0 || total > MaxMinutes {
		return 0, false
	}
	return total, true
}

// atoi clamps anything above MaxMinutes to MaxMinutes+1 so sums of parts
// cannot overflow.
func atoi(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n > MaxMinutes {
		return MaxMinutes + 1
	}
	return n
}
