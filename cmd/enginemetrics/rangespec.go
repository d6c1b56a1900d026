package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/devlens/enginemetrics/model"
)

// parseRangeSpec turns a validated range-spec string into an absolute
// window, matching cache.ValidRangeSpec's four accepted forms. An "Nd"
// spec ends at now; quarter, year and explicit specs are fixed calendar
// windows independent of now.
func parseRangeSpec(spec string, now time.Time) (model.Window, error) {
	switch {
	case strings.HasSuffix(spec, "d") && isDigits(spec[:len(spec)-1]):
		days, err := strconv.Atoi(spec[:len(spec)-1])
		if err != nil {
			return model.Window{}, fmt.Errorf("bad day-range spec %q: %w", spec, err)
		}
		return model.Window{Since: now.AddDate(0, 0, -days), Until: now}, nil

	case strings.HasPrefix(spec, "Q") && len(spec) == 7 && spec[2] == '-':
		q, err := strconv.Atoi(spec[1:2])
		if err != nil || q < 1 || q > 4 {
			return model.Window{}, fmt.Errorf("bad quarter spec %q", spec)
		}
		year, err := strconv.Atoi(spec[3:])
		if err != nil {
			return model.Window{}, fmt.Errorf("bad quarter spec %q: %w", spec, err)
		}
		startMonth := time.Month((q-1)*3 + 1)
		since := time.Date(year, startMonth, 1, 0, 0, 0, 0, time.UTC)
		return model.Window{Since: since, Until: since.AddDate(0, 3, 0)}, nil

	case len(spec) == 4 && isDigits(spec):
		year, err := strconv.Atoi(spec)
		if err != nil {
			return model.Window{}, fmt.Errorf("bad year spec %q: %w", spec, err)
		}
		since := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return model.Window{Since: since, Until: since.AddDate(1, 0, 0)}, nil

	case len(spec) == 21 && spec[10] == ':':
		since, err := time.Parse("2006-01-02", spec[:10])
		if err != nil {
			return model.Window{}, fmt.Errorf("bad explicit range spec %q: %w", spec, err)
		}
		until, err := time.Parse("2006-01-02", spec[11:])
		if err != nil {
			return model.Window{}, fmt.Errorf("bad explicit range spec %q: %w", spec, err)
		}
		return model.Window{Since: since, Until: until}, nil

	default:
		return model.Window{}, fmt.Errorf("unrecognized range spec %q", spec)
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
