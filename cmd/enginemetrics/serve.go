package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/devlens/enginemetrics/cache"
	"github.com/devlens/enginemetrics/collector"
	"github.com/devlens/enginemetrics/config"
	"github.com/devlens/enginemetrics/eventbus"
	"github.com/devlens/enginemetrics/httpapi"
	"github.com/devlens/enginemetrics/logging"
	"github.com/devlens/enginemetrics/model"
	"github.com/devlens/enginemetrics/storage"
	"github.com/devlens/enginemetrics/tracker"
)

// weightsBox is the single mutable piece of server state: the
// performance-weight vector POST /api/settings/weights may replace at
// runtime, read by every subsequent collection/refresh.
type weightsBox struct {
	mu sync.RWMutex
	w  config.PerformanceWeights
}

func (b *weightsBox) Get() config.PerformanceWeights {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.w
}

func (b *weightsBox) Set(w config.PerformanceWeights) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.w = w
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs the dashboard HTTP API against the cache",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logging.New(logging.Config{Level: logging.LevelInfo, Format: "json", Service: "enginemetrics-serve"})

	cfg, err := config.Load(cfgFile, nil)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := openArtifactStore(cfg)
	if err != nil {
		return err
	}
	c := cache.New(cache.Config{
		MaxBytes: cfg.Cache.MemoryMaxBytes,
		TTL:      time.Duration(cfg.Cache.TTLSeconds) * time.Second,
	}, store, log)

	bus := eventbus.New(log, 4)
	defer bus.Close()

	db, err := storage.Open(cfg.Tracker.DBPath)
	if err != nil {
		return fmt.Errorf("open tracker db: %w", err)
	}
	defer db.Close()
	trk, err := tracker.New(db)
	if err != nil {
		return fmt.Errorf("open tracker: %w", err)
	}

	weights := &weightsBox{w: cfg.PerformanceWeights}
	jobs := collector.NewJobTracker(500)

	c.SubscribeInvalidation(bus, model.EnvProduction, func(ctx context.Context, rangeSpec string, env model.Environment) (cache.Artifact, bool, error) {
		return collectOnce(ctx, cfg, rangeSpec, env, weights.Get(), log)
	})

	deps := httpapi.Dependencies{
		Cache:      c,
		Bus:        bus,
		Tracker:    trk,
		Jobs:       jobs,
		Teams:      cfg.Teams,
		DefaultEnv: model.EnvProduction,
		Log:        log,
		Refresh: func(ctx context.Context, rangeSpec string, env model.Environment) string {
			jobID := rangeSpec + "@" + string(env) + "@" + time.Now().Format(time.RFC3339Nano)
			jobs.Start(jobID, rangeSpec, string(env))
			go func() {
				art, built, err := collectOnce(context.Background(), cfg, rangeSpec, env, weights.Get(), log)
				if err != nil {
					jobs.Complete(jobID, err, false)
					log.WithError(err).Warn("background refresh failed")
					return
				}
				if !built {
					jobs.Complete(jobID, fmt.Errorf("collection produced no teams"), false)
					return
				}
				if err := c.Set(context.Background(), cache.Key(rangeSpec, env, model.EnvProduction), art); err != nil {
					jobs.Complete(jobID, err, false)
					log.WithError(err).Warn("background refresh cache write failed")
					return
				}
				jobs.Complete(jobID, nil, false)
				publishCollected(bus, rangeSpec, env)
			}()
			return jobID
		},
		UpdateWeights: func(w config.PerformanceWeights) error {
			sum := w.Sum()
			if sum < 0.99 || sum > 1.01 {
				return fmt.Errorf("performanceWeights must sum to 1.0 +/- 0.01, got %.4f", sum)
			}
			weights.Set(w)
			return nil
		},
	}

	serverCfg := httpapi.ServerConfigFrom(cfg.Dashboard)
	e := httpapi.NewEchoServer(serverCfg, deps)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.WithField("port", serverCfg.Port).Info("dashboard listening")
	return httpapi.StartServer(ctx, e, serverCfg)
}
