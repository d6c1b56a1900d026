// Package collector implements the collection orchestrator (C3): fan-out
// across teams -> repositories and teams -> members under three bounded
// worker pools, deterministic output ordering, and cooperative
// cancellation. A single source-host and issue-tracker client instance
// is shared by every worker in a job so C1's internal rate-limit pacing
// sees the whole job's request volume, per spec.md §4.3.
package collector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/devlens/enginemetrics/config"
	"github.com/devlens/enginemetrics/issuetracker"
	"github.com/devlens/enginemetrics/model"
	"github.com/devlens/enginemetrics/releaseclass"
	"github.com/devlens/enginemetrics/sourcehost"
	"github.com/devlens/enginemetrics/workerpool"
)

// Clients bundles the two shared upstream sessions for one collection
// job. The orchestrator never creates a client per team or per repo.
type Clients struct {
	SourceHost   *sourcehost.Client
	IssueTracker *issuetracker.Client
}

// Orchestrator drives collection across the configured fan-out plan.
type Orchestrator struct {
	pools     config.PoolSizesConfig
	classifier *releaseclass.Classifier
	log       *logrus.Entry
}

// New constructs an Orchestrator with the given bounded-pool sizes
// (defaults 3/5/8 for teams/repos-per-team/persons-per-team when zero)
// and the compiled release-classification rule set.
func New(pools config.PoolSizesConfig, classifier *releaseclass.Classifier, log *logrus.Entry) *Orchestrator {
	if pools.Teams <= 0 {
		pools.Teams = 3
	}
	if pools.ReposPerTeam <= 0 {
		pools.ReposPerTeam = 5
	}
	if pools.PersonsPerTeam <= 0 {
		pools.PersonsPerTeam = 8
	}
	return &Orchestrator{pools: pools, classifier: classifier, log: log}
}

// CollectTeam assembles one TeamRecordSet for team, fanning out across
// its repositories (bounded by ReposPerTeam) and its members (bounded by
// PersonsPerTeam). stop, when closed, aborts outstanding workers
// cooperatively; in-flight requests are allowed to finish or time out
// and whatever was collected is returned as a partial result.
func (o *Orchestrator) CollectTeam(ctx context.Context, clients Clients, team config.Team, window model.Window, env model.Environment, stop <-chan struct{}) (model.TeamRecordSet, error) {
	rs := model.TeamRecordSet{Team: team.Name, Window: window, Environment: env}
	var mu sync.Mutex
	var firstErr error
	partial := false

	recordErr := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		partial = true
		if firstErr == nil {
			firstErr = err
		}
	}

	repoTasks := make([]func(), 0, len(team.Repositories))
	for _, repoSpec := range team.Repositories {
		repoSpec := repoSpec
		repoTasks = append(repoTasks, func() {
			select {
			case <-stop:
				return
			default:
			}
			owner, repo := splitRepo(repoSpec)
			prs, reviews, commits, releases, err := clients.SourceHost.CollectRepositoryMetrics(ctx, owner, repo, window)
			mu.Lock()
			rs.PullRequests = append(rs.PullRequests, prs...)
			rs.Reviews = append(rs.Reviews, reviews...)
			rs.Commits = append(rs.Commits, commits...)
			rs.Releases = append(rs.Releases, releases...)
			mu.Unlock()
			recordErr(err)
		})
	}
	workerpool.Run(o.pools.ReposPerTeam, repoTasks)

	memberTasks := make([]func(), 0, len(team.Members))
	for _, member := range team.Members {
		member := member
		memberTasks = append(memberTasks, func() {
			select {
			case <-stop:
				return
			default:
			}
			jql := fmt.Sprintf(`assignee = "%s"`, member.IssueTrackerLogin)
			res, err := clients.IssueTracker.CollectIssues(ctx, jql, window)
			mu.Lock()
			rs.Issues = append(rs.Issues, res.Issues...)
			mu.Unlock()
			recordErr(err)
		})
	}
	workerpool.Run(o.pools.PersonsPerTeam, memberTasks)

	for i := range rs.Releases {
		rs.Releases[i].Environment = o.classifier.Classify(rs.Releases[i].Tag)
	}

	dedupeAndSort(&rs)
	rs.Partial = partial
	return rs, firstErr
}

// Run collects every team, bounded by the Teams pool size, and returns
// one TeamRecordSet per team in the same order as teams.
func (o *Orchestrator) Run(ctx context.Context, clients Clients, teams []config.Team, window model.Window, env model.Environment, stop <-chan struct{}) []model.TeamRecordSet {
	results := make([]model.TeamRecordSet, len(teams))
	tasks := make([]func(), len(teams))
	for i, team := range teams {
		i, team := i, team
		tasks[i] = func() {
			rs, err := o.CollectTeam(ctx, clients, team, window, env, stop)
			if err != nil {
				o.log.WithField("team", team.Name).WithError(err).Warn("team collection partial")
			}
			results[i] = rs
		}
	}
	workerpool.Run(o.pools.Teams, tasks)
	return results
}

func splitRepo(spec string) (owner, repo string) {
	for i := len(spec) - 1; i >= 0; i-- {
		if spec[i] == '/' {
			return spec[:i], spec[i+1:]
		}
	}
	return "", spec
}

// dedupeAndSort removes duplicate PRs arising from overlapping queries
// and sorts every slice deterministically per spec.md §4.3, so downstream
// metrics are stable across runs regardless of worker completion order.
func dedupeAndSort(rs *model.TeamRecordSet) {
	seen := make(map[string]bool, len(rs.PullRequests))
	deduped := rs.PullRequests[:0]
	for _, pr := range rs.PullRequests {
		key := pr.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, pr)
	}
	rs.PullRequests = deduped

	sort.Slice(rs.PullRequests, func(i, j int) bool {
		a, b := rs.PullRequests[i], rs.PullRequests[j]
		if a.Repository.String() != b.Repository.String() {
			return a.Repository.String() < b.Repository.String()
		}
		return a.ID < b.ID
	})
	sort.Slice(rs.Reviews, func(i, j int) bool {
		a, b := rs.Reviews[i], rs.Reviews[j]
		if a.PRKey != b.PRKey {
			return a.PRKey < b.PRKey
		}
		if !a.SubmittedAt.Equal(b.SubmittedAt) {
			return a.SubmittedAt.Before(b.SubmittedAt)
		}
		return a.ReviewerLogin < b.ReviewerLogin
	})
	sort.Slice(rs.Commits, func(i, j int) bool { return rs.Commits[i].SHA < rs.Commits[j].SHA })
	sort.Slice(rs.Issues, func(i, j int) bool { return rs.Issues[i].Key < rs.Issues[j].Key })
	sort.Slice(rs.Releases, func(i, j int) bool { return rs.Releases[i].PublishedAt.Before(rs.Releases[j].PublishedAt) })
}
