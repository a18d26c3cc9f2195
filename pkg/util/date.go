package util

import (
	"fmt"
	"strings"
	"time"
)

// ISO8601Layout is the upstream date-time format, always UTC.
const ISO8601Layout = "2006-01-02T15:04:05Z"

var (
	monthFirstLayouts = []string{"1/2/2006", "2006-1-2", "1-2-2006", "2006/1/2"}
	dayFirstLayouts   = []string{"2/1/2006", "2-1-2006"}
)

// ParseDate parses a calendar date written as MM/DD/YYYY, YYYY-MM-DD,
// MM-DD-YYYY or YYYY/MM/DD. With dayFirst, DD/MM/YYYY and DD-MM-YYYY are
// tried first.
func ParseDate(s string, dayFirst bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	layouts := monthFirstLayouts
	if dayFirst {
		layouts = append(append([]string{}, dayFirstLayouts...), monthFirstLayouts...)
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format: %q", s)
}

// ToISO8601 normalizes a user date to YYYY-MM-DDTHH:MM:SSZ at the start of
// the day, or at 23:59:59 when endOfDay is set.
func ToISO8601(s string, endOfDay, dayFirst bool) (string, error) {
	t, err := ParseDate(s, dayFirst)
	if err != nil {
		return "", err
	}
	if endOfDay {
		t = t.Add(23*time.Hour + 59*time.Minute + 59*time.Second)
	}
	return t.Format(ISO8601Layout), nil
}

// DefaultRange returns the dates covering the last days days up to now, in
// YYYY-MM-DD form.
func DefaultRange(now time.Time, days int) (start, end string) {
	now = now.UTC()
	return now.AddDate(0, 0, -days).Format("2006-01-02"), now.Format("2006-01-02")
}
