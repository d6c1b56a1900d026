package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/devlens/enginemetrics/eventbus"
	"github.com/devlens/enginemetrics/model"
)

// Stats is a point-in-time snapshot of the cache's running counters.
type Stats struct {
	MemoryHits   int64
	DiskHits     int64
	Misses       int64
	Evictions    int64
	Sets         int64
	CurrentBytes int64
	EntryCount   int
	HitRate      float64
}

// HumanBytes renders CurrentBytes for display, e.g. "4.2 MB".
func (s Stats) HumanBytes() string { return humanize.Bytes(uint64(s.CurrentBytes)) }

// Cache is the two-tier artifact cache: an in-process memory tier in
// front of a pluggable cold ArtifactStore.
type Cache struct {
	memory *memoryTier
	store  ArtifactStore
	log    *logrus.Entry

	memoryHits int64
	diskHits   int64
	misses     int64
	evictions  int64
	sets       int64
}

// Config tunes a Cache.
type Config struct {
	MaxBytes int64
	TTL      time.Duration // zero disables TTL eviction; LRU-only
}

// New constructs a Cache backed by store.
func New(cfg Config, store ArtifactStore, log *logrus.Entry) *Cache {
	var policy EvictionPolicy = LRUPolicy{}
	if cfg.TTL > 0 {
		policy = TTLPolicy{TTL: cfg.TTL}
	}
	return &Cache{memory: newMemoryTier(cfg.MaxBytes, policy), store: store, log: log}
}

// Get implements the four-step lookup of spec.md §4.6: memory
// hit-and-alive, memory hit-and-dead (evict, fall through), disk hit
// (promote), or miss.
func (c *Cache) Get(ctx context.Context, key string) (Artifact, bool, error) {
	now := time.Now()
	if e, ok := c.memory.get(key, now); ok {
		atomic.AddInt64(&c.memoryHits, 1)
		return e.artifact, true, nil
	}

	raw, ok, err := c.store.Load(ctx, key)
	if err != nil {
		return Artifact{}, false, err
	}
	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return Artifact{}, false, nil
	}

	art, err := Decode(raw)
	if err != nil {
		return Artifact{}, false, err
	}
	atomic.AddInt64(&c.diskHits, 1)
	c.admit(key, raw, art, now)
	return art, true, nil
}

// admit promotes a freshly-loaded (or just-built) artifact into memory,
// evicting whatever the policy selects as a result.
func (c *Cache) admit(key string, raw []byte, art Artifact, now time.Time) {
	e := &entry{key: key, payload: raw, artifact: art, createdAt: now, lastAccessed: now, sizeBytes: int64(len(raw))}
	evicted := c.memory.put(e)
	atomic.AddInt64(&c.evictions, int64(len(evicted)))
}

// Set persists art to the cold tier and admits it into memory, used
// immediately after a collection job completes.
func (c *Cache) Set(ctx context.Context, key string, art Artifact) error {
	raw, err := Encode(art)
	if err != nil {
		return err
	}
	if err := c.store.Save(ctx, key, raw); err != nil {
		return err
	}
	atomic.AddInt64(&c.sets, 1)
	c.admit(key, raw, art, time.Now())
	return nil
}

// Invalidate evicts key from memory without touching the cold tier.
func (c *Cache) Invalidate(key string) {
	c.memory.delete(key)
}

// ClearMemory evicts every memory-tier entry and returns how many were
// removed.
func (c *Cache) ClearMemory() int {
	return c.memory.clear()
}

// Warm loads each of keys into memory if not already resident.
func (c *Cache) Warm(ctx context.Context, keys []string) error {
	for _, key := range keys {
		if _, ok := c.memory.get(key, time.Now()); ok {
			continue
		}
		if _, _, err := c.Get(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// Stats reports the current counters.
func (c *Cache) Stats() Stats {
	count, bytes := c.memory.snapshot()
	mh := atomic.LoadInt64(&c.memoryHits)
	dh := atomic.LoadInt64(&c.diskHits)
	miss := atomic.LoadInt64(&c.misses)
	total := mh + dh + miss
	rate := 0.0
	if total > 0 {
		rate = float64(mh+dh) / float64(total)
	}
	return Stats{
		MemoryHits: mh, DiskHits: dh, Misses: miss,
		Evictions: atomic.LoadInt64(&c.evictions), Sets: atomic.LoadInt64(&c.sets),
		CurrentBytes: bytes, EntryCount: count, HitRate: rate,
	}
}

// SubscribeInvalidation wires the cache into the C7 event bus per
// spec.md §4.6's event-driven invalidation rules.
func (c *Cache) SubscribeInvalidation(bus *eventbus.Bus, defaultEnv model.Environment, rebuild func(ctx context.Context, rangeSpec string, env model.Environment) (Artifact, bool, error)) {
	bus.Subscribe(eventbus.DataCollected, true, func(p eventbus.Payload) {
		key := Key(p.RangeSpec, model.Environment(p.Environment), defaultEnv)
		c.Invalidate(key)
		if _, _, err := c.Get(context.Background(), key); err != nil {
			c.log.WithError(err).Warn("cache reload after data collected failed")
		}
	})

	bus.Subscribe(eventbus.ConfigChanged, false, func(p eventbus.Payload) {
		if p.Scope == "performanceWeights" {
			// Scores are embedded in TeamMetrics/PersonMetrics payloads, so a
			// weight change invalidates every cached artifact.
			keys, err := c.store.Keys(context.Background())
			if err != nil {
				c.log.WithError(err).Warn("cache invalidation scan failed")
				return
			}
			for _, key := range keys {
				c.Invalidate(key)
			}
		}
	})

	bus.Subscribe(eventbus.ManualRefresh, true, func(p eventbus.Payload) {
		key := Key(p.RangeSpec, model.Environment(p.Environment), defaultEnv)
		c.Invalidate(key)
		if rebuild == nil {
			return
		}
		art, ok, err := rebuild(context.Background(), p.RangeSpec, model.Environment(p.Environment))
		if err != nil {
			c.log.WithError(err).Warn("manual refresh rebuild failed")
			return
		}
		if !ok {
			return
		}
		if err := c.Set(context.Background(), key, art); err != nil {
			c.log.WithError(err).Warn("manual refresh cache set failed")
		}
	})
}
