package domain

import (
	"fmt"
	"strings"
	"time"
)

// TargetHour normalizes a timestamp to the UTC hour it falls in.
func TargetHour(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

var hourLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02T15",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15",
	"20060102-150405",
}

// ParseHour accepts the formats operators type on a command line and returns
// the UTC target hour. Minutes and seconds are truncated.
func ParseHour(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: empty hour", ErrConfig)
	}
	for _, layout := range hourLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return TargetHour(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse hour %q (want e.g. 2025-12-17T16)", ErrConfig, value)
}

// HourStamp renders the dump file stamp for an hour, e.g. 20251217-160000.
func HourStamp(hour time.Time) string {
	return TargetHour(hour).Format("20060102-150000")
}
