package shared

import (
	"fmt"
	"strings"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

// ParseDate reads YYYY-MM-DD or RFC3339 and returns the calendar date at
// midnight UTC. An empty value yields the zero time.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		stamp, rfcErr := time.Parse(time.RFC3339, value)
		if rfcErr != nil {
			return time.Time{}, err
		}
		parsed = stamp.UTC()
	}
	return time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC), nil
}

// ParseMonth reads YYYY-MM and returns the first and last day of that month.
func ParseMonth(value string) (time.Time, time.Time, error) {
	parsed, err := time.Parse(monthLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse month %q: %w", value, err)
	}
	start := time.Date(parsed.Year(), parsed.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, -1), nil
}
