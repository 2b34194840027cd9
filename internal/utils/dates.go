package utils

import (
	"fmt"
	"strings"
	"time"
)

// dateLayouts are the date formats accepted at the ingestion boundary
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"02/01/2006",
}

// ParseDate parses a calendar date and truncates it to midnight UTC
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return TruncateDay(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// TruncateDay returns midnight UTC of t's calendar day
func TruncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DateToUnix stores a calendar date as a Unix timestamp at midnight UTC
func DateToUnix(t time.Time) int64 {
	return TruncateDay(t).Unix()
}

// UnixToDate converts a stored Unix timestamp back to a UTC date
func UnixToDate(ts int64) time.Time {
	return time.Unix(ts, 0).UTC()
}
