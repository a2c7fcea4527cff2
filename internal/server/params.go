package server

import (
	"strings"
	"time"
)

// parseDate accepts a calendar date (2006-01-02) or an RFC 3339 timestamp. Empty input yields the zero time.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func parseOptionalDate(raw *string) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	t, err := parseDate(*raw)
	if err != nil || t.IsZero() {
		return nil, err
	}
	return &t, nil
}
