package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/devlens/enginemetrics/collector"
	"github.com/devlens/enginemetrics/config"
	"github.com/devlens/enginemetrics/issuetracker"
	"github.com/devlens/enginemetrics/model"
	"github.com/devlens/enginemetrics/sourcehost"
)

// buildClients constructs the one source-host and one issue-tracker
// session shared by an entire collection job, applying the named
// environment's server/offset override when one is configured.
func buildClients(cfg *config.Config, env model.Environment, log *logrus.Entry) (collector.Clients, error) {
	server := cfg.IssueTracker.Server
	timeOffset := cfg.TimeOffsetDays
	if envCfg, ok := cfg.IssueTracker.Environments[string(env)]; ok {
		if envCfg.Server != "" {
			server = envCfg.Server
		}
		timeOffset = envCfg.TimeOffsetDays
	}

	sh, err := sourcehost.New(sourcehost.Config{
		Token:          cfg.SourceHost.Token,
		Organization:   cfg.SourceHost.Organization,
		BaseURL:        cfg.SourceHost.BaseURL,
		TimeOffsetDays: timeOffset,
	}, log.WithField("component", "sourcehost"))
	if err != nil {
		return collector.Clients{}, fmt.Errorf("sourcehost client: %w", err)
	}

	it, err := issuetracker.New(issuetracker.Config{
		Server:         server,
		Username:       cfg.IssueTracker.Username,
		APIToken:       cfg.IssueTracker.APIToken,
		VerifySSL:      cfg.IssueTracker.VerifySSL,
		TimeOffsetDays: timeOffset,
		Pagination: issuetracker.Pagination{
			BatchSize:              cfg.IssueTracker.Pagination.BatchSize,
			HugeThreshold:          cfg.IssueTracker.Pagination.HugeThreshold,
			FetchChangelogForLarge: cfg.IssueTracker.Pagination.FetchChangelogForLarge,
			MaxRetries:             cfg.IssueTracker.Pagination.MaxRetries,
			RetryDelay:             time.Duration(cfg.IssueTracker.Pagination.RetryDelaySeconds) * time.Second,
			LargeBatchSize:         cfg.IssueTracker.Pagination.LargeBatchSize,
		},
	}, log.WithField("component", "issuetracker"))
	if err != nil {
		return collector.Clients{}, fmt.Errorf("issue-tracker client: %w", err)
	}

	return collector.Clients{SourceHost: sh, IssueTracker: it}, nil
}

// attachFixVersions populates each TeamRecordSet's FixVersions from the
// issue tracker's release list for the first entry of
// issueTracker.projectKeys (the same key for every team), used by
// metricskernel's issue-keyed DORA lead-time attribution.
func attachFixVersions(ctx context.Context, clients collector.Clients, cfg *config.Config, teams []config.Team, results []model.TeamRecordSet) {
	if len(cfg.IssueTracker.ProjectKeys) == 0 {
		return
	}
	projectKey := cfg.IssueTracker.ProjectKeys[0]
	for i, team := range teams {
		members := make([]string, 0, len(team.Members))
		for _, m := range team.Members {
			members = append(members, m.IssueTrackerLogin)
		}
		fixVersions, err := clients.IssueTracker.CollectReleases(ctx, projectKey, members)
		if err != nil {
			continue
		}
		results[i].FixVersions = fixVersions
	}
}
