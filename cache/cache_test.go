package cache

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devlens/enginemetrics/model"
)

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	art := NewArtifact("90d", model.EnvProduction, Payload{
		Teams: []model.TeamMetrics{{Team: "payments"}},
	}, mustTime("2026-01-01T00:00:00Z"))

	raw, err := Encode(art)
	require.NoError(t, err)

	decoded, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "payments", decoded.Payload.Teams[0].Team)
	assert.Equal(t, "90d", decoded.Header.RangeSpec)
}

func TestDecode_RefusesUnknownVersion(t *testing.T) {
	raw, err := Encode(NewArtifact("30d", model.EnvOther, Payload{}, mustTime("2026-01-01T00:00:00Z")))
	require.NoError(t, err)
	raw[len(magic)] = 99 // corrupt the version byte

	_, err = Decode(raw)
	require.Error(t, err)
}

func TestDecode_RefusesBadMagic(t *testing.T) {
	_, err := Decode([]byte("not an artifact at all"))
	require.Error(t, err)
}

func TestKey_SuppressesDefaultEnvironmentSuffix(t *testing.T) {
	assert.Equal(t, "metrics_90d", Key("90d", model.EnvProduction, model.EnvProduction))
	assert.Equal(t, "metrics_90d_staging", Key("90d", model.EnvStaging, model.EnvProduction))
}

func TestValidRangeSpec(t *testing.T) {
	assert.True(t, ValidRangeSpec("90d"))
	assert.True(t, ValidRangeSpec("Q2-2026"))
	assert.True(t, ValidRangeSpec("2026"))
	assert.True(t, ValidRangeSpec("2026-01-01:2026-03-31"))
	assert.False(t, ValidRangeSpec("90 days"))
}

func TestCache_GetFlow_MemoryMissDiskHitPromotes(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	log := logrus.NewEntry(logrus.New())
	c := New(Config{MaxBytes: 1 << 20}, store, log)

	art := NewArtifact("30d", model.EnvProduction, Payload{Teams: []model.TeamMetrics{{Team: "x"}}}, mustTime("2026-01-01T00:00:00Z"))
	require.NoError(t, c.Set(context.Background(), "metrics_30d", art))

	// Force a cold read by bypassing memory via a fresh Cache over the
	// same store.
	c2 := New(Config{MaxBytes: 1 << 20}, store, log)
	got, found, err := c2.Get(context.Background(), "metrics_30d")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "x", got.Payload.Teams[0].Team)

	stats := c2.Stats()
	assert.Equal(t, int64(1), stats.DiskHits)
	assert.Equal(t, 1, stats.EntryCount)
}

func TestCache_Miss(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	c := New(Config{MaxBytes: 1 << 20}, store, logrus.NewEntry(logrus.New()))

	_, found, err := c.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, int64(1), c.Stats().Misses)
}

func TestLRUPolicy_EvictsOldestWhenOverBudget(t *testing.T) {
	policy := LRUPolicy{}
	t0 := mustTime("2026-01-01T00:00:00Z")
	entries := []*entry{
		{key: "a", lastAccessed: t0, sizeBytes: 100},
		{key: "b", lastAccessed: t0.Add(time.Hour), sizeBytes: 100},
	}
	victims := policy.SelectForEviction(entries, 150, t0.Add(2*time.Hour))
	require.Len(t, victims, 1)
	assert.Equal(t, "a", victims[0].key)
}
