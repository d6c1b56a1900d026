package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/devlens/enginemetrics/cache"
	"github.com/devlens/enginemetrics/collector"
	"github.com/devlens/enginemetrics/config"
	"github.com/devlens/enginemetrics/eventbus"
	"github.com/devlens/enginemetrics/logging"
	"github.com/devlens/enginemetrics/metricskernel"
	"github.com/devlens/enginemetrics/model"
	"github.com/devlens/enginemetrics/releaseclass"
	"github.com/devlens/enginemetrics/scorer"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Runs one collection job and writes its cache artifact",
	RunE:  runCollect,
}

func init() {
	bindCommon(collectCmd)
}

func runCollect(cmd *cobra.Command, args []string) error {
	log := logging.New(logging.Config{Level: logging.LevelInfo, Format: "json", Service: "enginemetrics-collect"})

	cfg, err := config.Load(cfgFile, nil)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rangeSpec := viper.GetString("range")
	envName := model.Environment(viper.GetString("env"))

	art, built, err := collectOnce(cmd.Context(), cfg, rangeSpec, envName, cfg.PerformanceWeights, log)
	if err != nil {
		return err
	}
	if !built {
		return fmt.Errorf("collection produced no teams for range %q", rangeSpec)
	}

	store, err := openArtifactStore(cfg)
	if err != nil {
		return err
	}
	c := cache.New(cache.Config{
		MaxBytes: cfg.Cache.MemoryMaxBytes,
		TTL:      time.Duration(cfg.Cache.TTLSeconds) * time.Second,
	}, store, log)

	key := cache.Key(rangeSpec, envName, model.EnvProduction)
	if err := c.Set(cmd.Context(), key, art); err != nil {
		return fmt.Errorf("write cache artifact: %w", err)
	}

	log.WithField("key", key).WithField("teams", len(art.Payload.Teams)).Info("collection complete")
	return nil
}

// collectOnce runs the full fan-out -> kernel -> scorer pipeline for one
// (rangeSpec, environment) pair and returns the resulting artifact.
func collectOnce(ctx context.Context, cfg *config.Config, rangeSpec string, env model.Environment, weights config.PerformanceWeights, log *logrus.Entry) (cache.Artifact, bool, error) {
	window, err := parseRangeSpec(rangeSpec, time.Now())
	if err != nil {
		return cache.Artifact{}, false, err
	}

	classifier, err := releaseclass.Compile(cfg.ReleaseClassification.Rules)
	if err != nil {
		return cache.Artifact{}, false, fmt.Errorf("compile release classification: %w", err)
	}

	clients, err := buildClients(cfg, env, log)
	if err != nil {
		return cache.Artifact{}, false, err
	}

	orch := collector.New(cfg.Pools, classifier, log)
	stop := make(chan struct{})
	recordSets := orch.Run(ctx, clients, cfg.Teams, window, env, stop)
	attachFixVersions(ctx, clients, cfg, cfg.Teams, recordSets)

	kernel := metricskernel.New(metricskernel.Config{
		IncidentBlastRadiusHours: cfg.Delivery.IncidentBlastRadiusHours,
		IncidentIssueType:        cfg.Delivery.IncidentIssueType,
		IncidentLabel:            cfg.Delivery.IncidentLabel,
	})
	sc := scorer.New(weights)

	teamMetrics := make([]model.TeamMetrics, 0, len(recordSets))
	var personMetrics []model.PersonMetrics
	for i, rs := range recordSets {
		tm := kernel.Compute(rs)
		teamMetrics = append(teamMetrics, tm)

		for _, member := range cfg.Teams[i].Members {
			personMetrics = append(personMetrics, kernel.ComputePerson(rs, member.SourceLogin))
		}
	}
	sc.Score(personMetrics)

	payload := cache.Payload{
		Teams:      teamMetrics,
		Persons:    personMetrics,
		Comparison: model.NewComparisonView(window, env, teamMetrics),
	}
	return cache.NewArtifact(rangeSpec, env, payload, time.Now()), len(teamMetrics) > 0, nil
}

func openArtifactStore(cfg *config.Config) (cache.ArtifactStore, error) {
	if cfg.Cache.Backend == "redis" {
		return cache.NewRedisStore(context.Background(), cache.RedisConfig{URL: cfg.Cache.RedisURL})
	}
	return cache.NewFileStore(cfg.Cache.DiskDir)
}

// publishCollected lets the serve-side refresh path reuse collectOnce
// and announce completion over the event bus.
func publishCollected(bus *eventbus.Bus, rangeSpec string, env model.Environment) {
	if bus == nil {
		return
	}
	bus.Publish(eventbus.DataCollected, eventbus.Payload{RangeSpec: rangeSpec, Environment: string(env)})
}
