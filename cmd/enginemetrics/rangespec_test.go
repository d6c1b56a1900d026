package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRangeSpec(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name      string
		spec      string
		wantSince time.Time
		wantUntil time.Time
	}{
		{"day-range", "90d", now.AddDate(0, 0, -90), now},
		{"quarter", "Q3-2026", time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)},
		{"year", "2026", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"explicit", "2026-01-01:2026-03-31", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, err := parseRangeSpec(tc.spec, now)
			require.NoError(t, err)
			assert.True(t, tc.wantSince.Equal(w.Since), "since: got %v want %v", w.Since, tc.wantSince)
			assert.True(t, tc.wantUntil.Equal(w.Until), "until: got %v want %v", w.Until, tc.wantUntil)
		})
	}
}

func TestParseRangeSpec_RejectsUnrecognizedForm(t *testing.T) {
	_, err := parseRangeSpec("not-a-range", time.Now())
	assert.Error(t, err)
}

func TestParseRangeSpec_RejectsBadQuarter(t *testing.T) {
	_, err := parseRangeSpec("Q5-2026", time.Now())
	assert.Error(t, err)
}
