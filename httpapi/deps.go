package httpapi

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/devlens/enginemetrics/cache"
	"github.com/devlens/enginemetrics/collector"
	"github.com/devlens/enginemetrics/config"
	"github.com/devlens/enginemetrics/eventbus"
	"github.com/devlens/enginemetrics/model"
	"github.com/devlens/enginemetrics/tracker"
	"github.com/devlens/enginemetrics/version"
)

// Refresher kicks off an out-of-band collection + metrics-computation
// job for (rangeSpec, environment) and returns a job id. The HTTP layer
// never blocks a request handler on collection.
type Refresher func(ctx context.Context, rangeSpec string, env model.Environment) (jobID string)

// Dependencies bundles every backing component a route handler may need.
type Dependencies struct {
	Cache      *cache.Cache
	Bus        *eventbus.Bus
	Tracker    *tracker.Tracker
	Jobs       *collector.JobTracker
	Teams      []config.Team
	DefaultEnv model.Environment
	Refresh    Refresher
	// UpdateWeights validates and applies a new performance-weight vector.
	// The weights route publishes CONFIG_CHANGED after it returns nil.
	UpdateWeights func(config.PerformanceWeights) error
	Log           *logrus.Entry
}

// ServiceVersion is reported by /api/health.
func ServiceVersion() string { return version.CollectorVersion() }
