// Package metricskernel computes TeamMetrics/PersonMetrics from a
// TeamRecordSet. All computations are pure functions of the input; the
// Kernel itself holds only configuration (incident definition, blast
// radius), never mutable state, per spec.md §9's note against the
// source's base-calculator-plus-mixins design: this is a single struct
// with its PR, DORA (including the incident-based indicators) and trend
// computations split across kernel_pr.go, kernel_dora.go and
// kernel_trends.go rather than modeled as inheritance.
package metricskernel

import (
	"sort"

	"github.com/devlens/enginemetrics/model"
)

// Config is the Kernel's tunable behavior, resolving the Open Questions
// bound in SPEC_FULL.md §9.
type Config struct {
	IncidentBlastRadiusHours int
	IncidentIssueType        string
	IncidentLabel            string
}

// Kernel computes TeamMetrics from a TeamRecordSet. It never raises for
// missing inputs — see insufficient-data/not-applicable sentinels in
// model.MetricValue — but structural errors in the input are the
// caller's responsibility to avoid (records are closed structs, not
// untyped maps, so there is no parse step here).
type Kernel struct {
	cfg Config
}

// New constructs a Kernel.
func New(cfg Config) *Kernel { return &Kernel{cfg: cfg} }

// Compute derives a full TeamMetrics from rs.
func (k *Kernel) Compute(rs model.TeamRecordSet) model.TeamMetrics {
	tm := model.TeamMetrics{Team: rs.Team, Window: rs.Window, Environment: rs.Environment}
	if rs.Partial {
		tm.Status = "partial"
	}

	k.computePRMetrics(rs, &tm)
	tm.Reviews = k.computeReviewMetrics(rs)
	tm.Contributors = k.computeContributorMetrics(rs)
	tm.Delivery = k.computeDelivery(rs)

	return tm
}

// ComputePerson derives a PersonMetrics for login restricted to rs's
// records.
func (k *Kernel) ComputePerson(rs model.TeamRecordSet, login string) model.PersonMetrics {
	filtered := filterForPerson(rs, login)
	tm := k.Compute(filtered)

	pm := model.PersonMetrics{
		Login: login, Team: rs.Team, Window: rs.Window, Environment: rs.Environment,
		PRCount: tm.PRCount, MergedCount: tm.MergedCount, MergeRate: tm.MergeRate,
		CycleTime: tm.CycleTime, ReviewCount: tm.Reviews.Count,
		Delivery: tm.Delivery, Status: tm.Status,
	}
	for _, c := range tm.Contributors {
		if c.Login == login {
			pm.CommitCount = c.CommitCount
			pm.Additions = c.Additions
			pm.Deletions = c.Deletions
		}
	}
	for _, iss := range filtered.Issues {
		if iss.ResolvedAt != nil {
			pm.CompletedIssues++
		}
	}
	return pm
}

func filterForPerson(rs model.TeamRecordSet, login string) model.TeamRecordSet {
	out := model.TeamRecordSet{Team: rs.Team, Window: rs.Window, Environment: rs.Environment, Partial: rs.Partial}
	for _, pr := range rs.PullRequests {
		if pr.AuthorLogin == login {
			out.PullRequests = append(out.PullRequests, pr)
		}
	}
	for _, r := range rs.Reviews {
		if r.ReviewerLogin == login {
			out.Reviews = append(out.Reviews, r)
		}
	}
	for _, c := range rs.Commits {
		if c.AuthorLogin == login {
			out.Commits = append(out.Commits, c)
		}
	}
	for _, iss := range rs.Issues {
		if iss.Assignee == login {
			out.Issues = append(out.Issues, iss)
		}
	}
	out.Releases = rs.Releases
	return out
}

// topReviewers stable-sorts reviewer tallies by count desc, then login asc.
func topReviewers(tallies map[string]int) []model.ReviewerTally {
	out := make([]model.ReviewerTally, 0, len(tallies))
	for login, count := range tallies {
		out = append(out, model.ReviewerTally{Login: login, Count: count})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Login < out[j].Login
	})
	return out
}
