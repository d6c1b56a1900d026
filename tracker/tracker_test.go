package tracker

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devlens/enginemetrics/storage"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "tracker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	tr, err := New(db)
	require.NoError(t, err)
	return tr
}

func TestGetRouteStats_ExactPercentiles(t *testing.T) {
	tr := newTestTracker(t)
	now := time.Now()
	for i, d := range []float64{10, 20, 30, 40, 100} {
		require.NoError(t, tr.Record(Row{
			Timestamp: now.Add(time.Duration(i) * time.Second),
			Route:     "/api/metrics",
			DurationMs: d,
			StatusCode: 200,
			CacheHit:   i%2 == 0,
		}))
	}

	stats, err := tr.GetRouteStats("/api/metrics", 7)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Count)
	assert.InDelta(t, 40, stats.Mean, 0.1)
	assert.InDelta(t, 3.0/5, stats.CacheHitRate, 0.001)
}

func TestGetSlowestRoutes_RanksDescendingByP95(t *testing.T) {
	tr := newTestTracker(t)
	now := time.Now()
	require.NoError(t, tr.Record(Row{Timestamp: now, Route: "/fast", DurationMs: 10, StatusCode: 200}))
	require.NoError(t, tr.Record(Row{Timestamp: now, Route: "/slow", DurationMs: 900, StatusCode: 200}))

	routes, err := tr.GetSlowestRoutes(10, 7)
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, "/slow", routes[0].Route)
}

func TestRotate_DeletesOldRows(t *testing.T) {
	tr := newTestTracker(t)
	old := time.Now().AddDate(0, 0, -30)
	recent := time.Now()
	require.NoError(t, tr.Record(Row{Timestamp: old, Route: "/x", DurationMs: 1, StatusCode: 200}))
	require.NoError(t, tr.Record(Row{Timestamp: recent, Route: "/x", DurationMs: 1, StatusCode: 200}))

	n, err := tr.Rotate(7)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stats, err := tr.GetRouteStats("/x", 365)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Count)
}

func TestComputeHealthScore_NoErrorsNoLatencyIsGradeA(t *testing.T) {
	tr := newTestTracker(t)
	now := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, tr.Record(Row{Timestamp: now, Route: "/x", DurationMs: 5, StatusCode: 200, CacheHit: true}))
	}

	hs, err := tr.ComputeHealthScore(7)
	require.NoError(t, err)
	assert.Equal(t, "A", hs.Grade)
}
