// Package config loads and validates the declarative configuration
// described by the external-interfaces section of the platform: upstream
// credentials, team fan-out plan, cache tuning, dashboard auth, and
// performance-score weights. Loading is viper-backed so that a YAML file,
// environment variables (prefixed ENGINEMETRICS_), and CLI flags compose
// with flags taking precedence, matching the layered-override pattern the
// rest of the stack uses for its own configuration.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/devlens/enginemetrics/errkind"
)

// SourceHostConfig holds source-host (PR/review/commit/release GraphQL
// API) credentials.
type SourceHostConfig struct {
	Token        string `mapstructure:"token"`
	Organization string `mapstructure:"organization"`
	BaseURL      string `mapstructure:"baseUrl"`
}

// IssueTrackerEnvironment is one named environment under
// issueTracker.environments.<name>.
type IssueTrackerEnvironment struct {
	Server         string `mapstructure:"server"`
	TimeOffsetDays int    `mapstructure:"timeOffsetDays"`
	FilterIDs      []string `mapstructure:"filterIds"`
}

// PaginationConfig is C2's adaptive-pagination strategy knobs.
type PaginationConfig struct {
	Enabled                bool `mapstructure:"enabled"`
	BatchSize              int  `mapstructure:"batchSize"`
	HugeThreshold          int  `mapstructure:"hugeThreshold"`
	FetchChangelogForLarge bool `mapstructure:"fetchChangelogForLarge"`
	MaxRetries             int  `mapstructure:"maxRetries"`
	RetryDelaySeconds      int  `mapstructure:"retryDelaySeconds"`
	LargeBatchSize         int  `mapstructure:"largeBatchSize"`
}

// IssueTrackerConfig holds issue-tracker (JQL/REST) credentials and
// strategy.
type IssueTrackerConfig struct {
	Server       string                              `mapstructure:"server"`
	Username     string                              `mapstructure:"username"`
	APIToken     string                              `mapstructure:"apiToken"`
	ProjectKeys  []string                            `mapstructure:"projectKeys"`
	VerifySSL    bool                                `mapstructure:"verifySsl"`
	Environments map[string]IssueTrackerEnvironment  `mapstructure:"environments"`
	Pagination   PaginationConfig                    `mapstructure:"pagination"`
}

// TeamMember is one member entry of a team's fan-out plan.
type TeamMember struct {
	Name             string `mapstructure:"name"`
	SourceLogin      string `mapstructure:"sourceLogin"`
	IssueTrackerLogin string `mapstructure:"issueTrackerLogin"`
}

// Team is a fan-out unit: a team's repositories and members.
type Team struct {
	Name         string       `mapstructure:"name"`
	Members      []TeamMember `mapstructure:"members"`
	Repositories []string     `mapstructure:"repositories"`
}

// AuthUser is one HTTP Basic auth credential entry.
type AuthUser struct {
	Username             string `mapstructure:"username"`
	PasswordHashPbkdf2Sha256 string `mapstructure:"passwordHashPbkdf2Sha256"`
}

// AuthConfig controls the dashboard's optional HTTP Basic auth.
type AuthConfig struct {
	Enabled bool       `mapstructure:"enabled"`
	Users   []AuthUser `mapstructure:"users"`
}

// RateLimitingConfig controls the dashboard's rate-limit middleware.
type RateLimitingConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	DefaultLimit float64 `mapstructure:"defaultLimit"`
	StorageURI   string `mapstructure:"storageUri"`
}

// DashboardConfig holds HTTP-server-level settings.
type DashboardConfig struct {
	Port                 int                `mapstructure:"port"`
	Debug                bool               `mapstructure:"debug"`
	EnableHSTS           bool               `mapstructure:"enableHsts"`
	Auth                 AuthConfig         `mapstructure:"auth"`
	RateLimiting         RateLimitingConfig `mapstructure:"rateLimiting"`
	RefusePartialResults bool               `mapstructure:"refusePartialResults"`
}

// PerformanceWeights is the weight vector for the ten scorer dimensions;
// must sum to 1.0 +/- 0.01.
type PerformanceWeights struct {
	PRs                 float64 `mapstructure:"prs"`
	Reviews             float64 `mapstructure:"reviews"`
	Commits             float64 `mapstructure:"commits"`
	CycleTime           float64 `mapstructure:"cycleTime"`
	JiraCompleted       float64 `mapstructure:"jiraCompleted"`
	MergeRate           float64 `mapstructure:"mergeRate"`
	DeploymentFrequency float64 `mapstructure:"deploymentFrequency"`
	LeadTime            float64 `mapstructure:"leadTime"`
	ChangeFailureRate   float64 `mapstructure:"changeFailureRate"`
	MTTR                float64 `mapstructure:"mttr"`
	NormalizeByTeamSize bool    `mapstructure:"normalizeByTeamSize"`
}

// Sum returns the total of all ten weights (normalization flag excluded).
func (w PerformanceWeights) Sum() float64 {
	return w.PRs + w.Reviews + w.Commits + w.CycleTime + w.JiraCompleted +
		w.MergeRate + w.DeploymentFrequency + w.LeadTime + w.ChangeFailureRate + w.MTTR
}

// Each returns the ten weights as a flat slice, for range-check validation.
func (w PerformanceWeights) Each() []float64 {
	return []float64{w.PRs, w.Reviews, w.Commits, w.CycleTime, w.JiraCompleted,
		w.MergeRate, w.DeploymentFrequency, w.LeadTime, w.ChangeFailureRate, w.MTTR}
}

// CacheConfig tunes C6.
type CacheConfig struct {
	Backend       string `mapstructure:"backend"` // "file" (default) or "redis"
	RedisURL      string `mapstructure:"redisUrl"`
	MemoryMaxBytes int64  `mapstructure:"memoryMaxBytes"`
	TTLSeconds     int    `mapstructure:"ttlSeconds"`
	EvictionPolicy string `mapstructure:"evictionPolicy"` // "lru" or "ttl"
	DiskDir        string `mapstructure:"diskDir"`
	MaxArtifacts   int    `mapstructure:"maxArtifacts"`
}

// ReleaseClassificationRule is one ordered tag-pattern -> environment rule.
type ReleaseClassificationRule struct {
	Pattern     string `mapstructure:"pattern"`
	Environment string `mapstructure:"environment"`
}

// DeliveryConfig resolves the Open Questions around incident blast radius
// and release classification.
type DeliveryConfig struct {
	IncidentBlastRadiusHours int                         `mapstructure:"incidentBlastRadiusHours"`
	IncidentIssueType        string                      `mapstructure:"incidentIssueType"`
	IncidentLabel            string                      `mapstructure:"incidentLabel"`
}

// ReleaseClassificationConfig is the ordered rule list for tag -> environment.
type ReleaseClassificationConfig struct {
	Rules []ReleaseClassificationRule `mapstructure:"rules"`
}

// PoolSizesConfig is C3's three bounded-pool sizes.
type PoolSizesConfig struct {
	Teams           int `mapstructure:"teams"`
	ReposPerTeam    int `mapstructure:"reposPerTeam"`
	PersonsPerTeam  int `mapstructure:"personsPerTeam"`
}

// TrackerConfig tunes C8's retention.
type TrackerConfig struct {
	RetentionDays int    `mapstructure:"retentionDays"`
	DBPath        string `mapstructure:"dbPath"`
}

// Config is the fully validated, loaded-once configuration object.
type Config struct {
	SourceHost             SourceHostConfig             `mapstructure:"sourceHost"`
	IssueTracker           IssueTrackerConfig           `mapstructure:"issueTracker"`
	Teams                  []Team                       `mapstructure:"teams"`
	Dashboard              DashboardConfig              `mapstructure:"dashboard"`
	PerformanceWeights     PerformanceWeights           `mapstructure:"performanceWeights"`
	Cache                  CacheConfig                  `mapstructure:"cache"`
	Delivery               DeliveryConfig               `mapstructure:"delivery"`
	ReleaseClassification  ReleaseClassificationConfig  `mapstructure:"releaseClassification"`
	Pools                  PoolSizesConfig              `mapstructure:"pools"`
	Tracker                TrackerConfig                `mapstructure:"tracker"`
	TimeOffsetDays         int                          `mapstructure:"timeOffsetDays"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dashboard.port", 8080)
	v.SetDefault("dashboard.debug", false)
	v.SetDefault("dashboard.enableHsts", false)
	v.SetDefault("dashboard.rateLimiting.enabled", true)
	v.SetDefault("dashboard.rateLimiting.defaultLimit", 20.0)
	v.SetDefault("dashboard.refusePartialResults", false)
	v.SetDefault("cache.backend", "file")
	v.SetDefault("cache.memoryMaxBytes", int64(256*1024*1024))
	v.SetDefault("cache.ttlSeconds", 3600)
	v.SetDefault("cache.evictionPolicy", "lru")
	v.SetDefault("cache.diskDir", "./cache-artifacts")
	v.SetDefault("cache.maxArtifacts", 100)
	v.SetDefault("issueTracker.pagination.enabled", true)
	v.SetDefault("issueTracker.pagination.batchSize", 50)
	v.SetDefault("issueTracker.pagination.fetchChangelogForLarge", false)
	v.SetDefault("issueTracker.pagination.maxRetries", 3)
	v.SetDefault("issueTracker.pagination.retryDelaySeconds", 5)
	v.SetDefault("issueTracker.pagination.largeBatchSize", 1000)
	v.SetDefault("pools.teams", 3)
	v.SetDefault("pools.reposPerTeam", 5)
	v.SetDefault("pools.personsPerTeam", 8)
	v.SetDefault("tracker.retentionDays", 30)
	v.SetDefault("tracker.dbPath", "./tracker.db")
	v.SetDefault("timeOffsetDays", 0)
}

// Load reads configuration from the given file path (if non-empty),
// environment variables prefixed ENGINEMETRICS_, and the supplied CLI
// overrides, in increasing precedence order: defaults < file < env < CLI.
// Any violation of the invariants in §6/§9 of the requirements aborts with
// a ConfigError; nothing is coerced silently.
func Load(configPath string, cliOverrides map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ENGINEMETRICS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errkind.New(errkind.ConfigError, "config.Load", fmt.Errorf("reading %s: %w", configPath, err))
		}
	}

	for k, val := range cliOverrides {
		v.Set(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errkind.New(errkind.ConfigError, "config.Load", fmt.Errorf("unmarshal: %w", err))
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate enforces the invariants the requirements bind at config-load
// time: no built-in hugeThreshold default, explicit blast-radius,
// non-negative time offsets, and the weight-sum/range invariant.
func validate(cfg *Config) error {
	v := newValidator()

	if cfg.IssueTracker.Pagination.HugeThreshold <= 0 {
		v.fail("issueTracker.pagination.hugeThreshold is required and must be positive")
	}
	if cfg.IssueTracker.Pagination.BatchSize <= 0 {
		v.fail("issueTracker.pagination.batchSize must be positive")
	}
	if cfg.Delivery.IncidentBlastRadiusHours <= 0 {
		v.fail("delivery.incidentBlastRadiusHours is required and must be positive")
	}
	if cfg.TimeOffsetDays < 0 {
		v.fail("timeOffsetDays must not be negative")
	}
	for name, env := range cfg.IssueTracker.Environments {
		if env.TimeOffsetDays < 0 {
			v.fail(fmt.Sprintf("issueTracker.environments.%s.timeOffsetDays must not be negative", name))
		}
	}
	for _, rule := range cfg.ReleaseClassification.Rules {
		if rule.Pattern == "" || rule.Environment == "" {
			v.fail("releaseClassification.rules entries require both pattern and environment")
		}
	}

	sum := cfg.PerformanceWeights.Sum()
	if sum < 0.99 || sum > 1.01 {
		v.fail(fmt.Sprintf("performanceWeights must sum to 1.0 +/- 0.01, got %.4f", sum))
	}
	for _, w := range cfg.PerformanceWeights.Each() {
		if w < 0 || w > 1 {
			v.fail("performanceWeights entries must each be in [0, 1]")
		}
	}

	if cfg.Cache.Backend != "file" && cfg.Cache.Backend != "redis" {
		v.fail("cache.backend must be 'file' or 'redis'")
	}
	if cfg.Cache.EvictionPolicy != "lru" && cfg.Cache.EvictionPolicy != "ttl" {
		v.fail("cache.evictionPolicy must be 'lru' or 'ttl'")
	}

	if !v.isValid() {
		return errkind.New(errkind.ConfigError, "config.validate", fmt.Errorf("%s", v.errorString()))
	}
	return nil
}

// validator accumulates configuration validation failures so that Load
// reports every violation at once rather than the first one encountered.
type validator struct {
	errors []string
}

func newValidator() *validator { return &validator{} }

func (v *validator) fail(msg string) { v.errors = append(v.errors, msg) }

func (v *validator) isValid() bool { return len(v.errors) == 0 }

func (v *validator) errorString() string { return strings.Join(v.errors, "; ") }
