package metricskernel

import (
	"sort"
	"time"

	"github.com/devlens/enginemetrics/model"
)

// weekStartISO returns the Monday-start ISO date (UTC) for the week
// containing t.
func weekStartISO(t time.Time) string {
	t = t.UTC()
	offset := int(t.Weekday())
	if offset == 0 { // Sunday
		offset = 6
	} else {
		offset--
	}
	monday := t.AddDate(0, 0, -offset)
	return monday.Format("2006-01-02")
}

// dayISO returns the UTC calendar date of t.
func dayISO(t time.Time) string { return t.UTC().Format("2006-01-02") }

// mean returns the arithmetic mean, or (0, false) if xs is empty.
func mean(xs []float64) (float64, bool) {
	if len(xs) == 0 {
		return 0, false
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs)), true
}

// median returns the median of xs (for an even count, the upper of the
// two middle values), or (0, false) if xs is empty. xs is not mutated; a
// sorted copy is used internally.
func median(xs []float64) (float64, bool) {
	return percentile(xs, 50)
}

// percentile returns the element of sorted xs at index p/100*(n-1)
// rounded to the nearest integer (p in 0-100, no interpolation), or
// (0, false) if xs is empty.
func percentile(xs []float64, p float64) (float64, bool) {
	if len(xs) == 0 {
		return 0, false
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	idx := int(p/100*float64(len(sorted)-1) + 0.5)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx], true
}

// sizeBucketFor classifies additions+deletions per spec.md's PR-size
// bucket boundaries.
func sizeBucketFor(changedLines int) model.SizeBucket {
	switch {
	case changedLines < 10:
		return model.SizeXS
	case changedLines < 100:
		return model.SizeS
	case changedLines < 500:
		return model.SizeM
	case changedLines < 1000:
		return model.SizeL
	default:
		return model.SizeXL
	}
}
