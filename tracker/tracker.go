// Package tracker implements C8: one row per served HTTP request,
// aggregate route statistics, and a weighted health score. Rows persist
// in a bbolt bucket keyed by "route|RFC3339Nano-timestamp" so range
// scans over a route's recent history are ordered cursor walks rather
// than full-bucket loads, grounded on storage.DB's PutJSON/ForEach
// helpers generalized from single-value get/put.
package tracker

import (
	"sort"
	"time"

	"github.com/devlens/enginemetrics/errkind"
	"github.com/devlens/enginemetrics/storage"
)

const bucket = "requests"

// Row is one served-request observation.
type Row struct {
	Timestamp  time.Time `json:"timestamp"`
	Route      string    `json:"route"`
	Method     string    `json:"method"`
	DurationMs float64   `json:"durationMs"`
	StatusCode int       `json:"statusCode"`
	CacheHit   bool      `json:"cacheHit"`
	ErrorTag   string    `json:"errorTag,omitempty"`
}

// Tracker records and aggregates request rows.
type Tracker struct {
	db *storage.DB
}

// New opens (or creates) the tracker's bucket in db.
func New(db *storage.DB) (*Tracker, error) {
	if err := db.CreateBucket(bucket); err != nil {
		return nil, errkind.New(errkind.Internal, "tracker.New", err)
	}
	return &Tracker{db: db}, nil
}

func rowKey(route string, ts time.Time) string {
	return route + "|" + ts.Format(time.RFC3339Nano)
}

// Record persists one served-request row.
func (t *Tracker) Record(row Row) error {
	key := rowKey(row.Route, row.Timestamp)
	if err := t.db.PutJSON(bucket, key, row); err != nil {
		return errkind.New(errkind.Internal, "tracker.Record", err)
	}
	return nil
}

func (t *Tracker) rowsSince(route string, since time.Time) ([]Row, error) {
	var rows []Row
	err := t.db.ForEachPrefixJSON(bucket, route+"|", func() interface{} { return &Row{} }, func(_ string, v interface{}) error {
		row := v.(*Row)
		if !row.Timestamp.Before(since) {
			rows = append(rows, *row)
		}
		return nil
	})
	if err != nil {
		return nil, errkind.New(errkind.Internal, "tracker.rowsSince", err)
	}
	return rows, nil
}

// RouteStats is the aggregate returned by GetRouteStats.
type RouteStats struct {
	Count        int     `json:"count"`
	Mean         float64 `json:"mean"`
	P50          float64 `json:"p50"`
	P95          float64 `json:"p95"`
	P99          float64 `json:"p99"`
	CacheHitRate float64 `json:"cacheHitRate"`
}

// GetRouteStats computes exact (non-sampled) latency percentiles and
// cache-hit rate for route over the last daysBack days.
func (t *Tracker) GetRouteStats(route string, daysBack int) (RouteStats, error) {
	rows, err := t.rowsSince(route, time.Now().AddDate(0, 0, -daysBack))
	if err != nil {
		return RouteStats{}, err
	}
	if len(rows) == 0 {
		return RouteStats{}, nil
	}

	durations := make([]float64, len(rows))
	hits := 0
	var sum float64
	for i, r := range rows {
		durations[i] = r.DurationMs
		sum += r.DurationMs
		if r.CacheHit {
			hits++
		}
	}
	sort.Float64s(durations)

	return RouteStats{
		Count:        len(rows),
		Mean:         sum / float64(len(rows)),
		P50:          percentile(durations, 50),
		P95:          percentile(durations, 95),
		P99:          percentile(durations, 99),
		CacheHitRate: float64(hits) / float64(len(rows)),
	}, nil
}

// percentile returns the element of the already-sorted slice at index
// p/100*(n-1) rounded to the nearest integer (p in 0-100, no
// interpolation).
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p/100*float64(len(sorted)-1) + 0.5)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// SlowRoute is one entry of GetSlowestRoutes.
type SlowRoute struct {
	Route string  `json:"route"`
	P95   float64 `json:"p95"`
	Count int     `json:"count"`
}

// GetSlowestRoutes ranks every route seen in the last daysBack days by
// P95 latency, descending, capped at limit.
func (t *Tracker) GetSlowestRoutes(limit, daysBack int) ([]SlowRoute, error) {
	since := time.Now().AddDate(0, 0, -daysBack)
	byRoute := make(map[string][]float64)
	err := t.db.ForEachJSON(bucket, func() interface{} { return &Row{} }, func(_ string, v interface{}) error {
		row := v.(*Row)
		if !row.Timestamp.Before(since) {
			byRoute[row.Route] = append(byRoute[row.Route], row.DurationMs)
		}
		return nil
	})
	if err != nil {
		return nil, errkind.New(errkind.Internal, "tracker.GetSlowestRoutes", err)
	}

	routes := make([]SlowRoute, 0, len(byRoute))
	for route, durations := range byRoute {
		sort.Float64s(durations)
		routes = append(routes, SlowRoute{Route: route, P95: percentile(durations, 95), Count: len(durations)})
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].P95 != routes[j].P95 {
			return routes[i].P95 > routes[j].P95
		}
		return routes[i].Route < routes[j].Route
	})
	if len(routes) > limit {
		routes = routes[:limit]
	}
	return routes, nil
}

// HourlyPoint is one bucket of GetHourlyMetrics' time series.
type HourlyPoint struct {
	HourStart time.Time `json:"hourStart"`
	Count     int       `json:"count"`
	Mean      float64   `json:"mean"`
}

// GetHourlyMetrics buckets route's requests over the last daysBack days
// into hourly counts and mean latency.
func (t *Tracker) GetHourlyMetrics(route string, daysBack int) ([]HourlyPoint, error) {
	rows, err := t.rowsSince(route, time.Now().AddDate(0, 0, -daysBack))
	if err != nil {
		return nil, err
	}

	buckets := make(map[time.Time][]float64)
	for _, r := range rows {
		hour := r.Timestamp.UTC().Truncate(time.Hour)
		buckets[hour] = append(buckets[hour], r.DurationMs)
	}

	points := make([]HourlyPoint, 0, len(buckets))
	for hour, durations := range buckets {
		var sum float64
		for _, d := range durations {
			sum += d
		}
		points = append(points, HourlyPoint{HourStart: hour, Count: len(durations), Mean: sum / float64(len(durations))})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].HourStart.Before(points[j].HourStart) })
	return points, nil
}

// Rotate deletes rows older than daysToKeep and returns how many were
// removed.
func (t *Tracker) Rotate(daysToKeep int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -daysToKeep)
	n, err := t.db.DeleteBefore(bucket, cutoff, func(key string) (time.Time, bool) {
		for i := len(key) - 1; i >= 0; i-- {
			if key[i] == '|' {
				ts, err := time.Parse(time.RFC3339Nano, key[i+1:])
				return ts, err == nil
			}
		}
		return time.Time{}, false
	})
	if err != nil {
		return 0, errkind.New(errkind.Internal, "tracker.Rotate", err)
	}
	return n, nil
}

// HealthScore is the weighted composite of latency, cache-hit, and
// error-rate, plus its letter grade.
type HealthScore struct {
	Score float64 `json:"score"`
	Grade string  `json:"grade"`
}

// ComputeHealthScore weights latency 40%, cache-hit 30%, error-rate 30%
// across every row observed in the last daysBack days.
func (t *Tracker) ComputeHealthScore(daysBack int) (HealthScore, error) {
	since := time.Now().AddDate(0, 0, -daysBack)
	var count, hits, errors int
	var totalLatency float64
	err := t.db.ForEachJSON(bucket, func() interface{} { return &Row{} }, func(_ string, v interface{}) error {
		row := v.(*Row)
		if row.Timestamp.Before(since) {
			return nil
		}
		count++
		totalLatency += row.DurationMs
		if row.CacheHit {
			hits++
		}
		if row.StatusCode >= 500 || row.ErrorTag != "" {
			errors++
		}
		return nil
	})
	if err != nil {
		return HealthScore{}, errkind.New(errkind.Internal, "tracker.ComputeHealthScore", err)
	}
	if count == 0 {
		return HealthScore{Score: 100, Grade: "A"}, nil
	}

	meanLatency := totalLatency / float64(count)
	latencyScore := 100 * clamp01(1-meanLatency/2000) // 2s treated as fully degraded
	cacheScore := 100 * (float64(hits) / float64(count))
	errorScore := 100 * clamp01(1-float64(errors)/float64(count))

	score := 0.4*latencyScore + 0.3*cacheScore + 0.3*errorScore
	return HealthScore{Score: score, Grade: grade(score)}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func grade(score float64) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}
