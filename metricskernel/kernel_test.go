package metricskernel

import (
	"testing"
	"time"

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

func ptr(t time.Time) *time.Time { return &t }

func TestComputePRMetrics_CycleTimeOnlyCountsMerged(t *testing.T) {
	k := New(Config{})
	rs := model.TeamRecordSet{
		Team:   "payments",
		Window: model.Window{Since: mustTime("2026-01-01T00:00:00Z"), Until: mustTime("2026-02-01T00:00:00Z")},
		PullRequests: []model.PullRequest{
			{ID: "1", Repository: model.RepoRef{Owner: "o", Name: "r"}, CreatedAt: mustTime("2026-01-01T00:00:00Z"), MergedAt: ptr(mustTime("2026-01-02T00:00:00Z")), Merged: true, Additions: 5, Deletions: 5},
			{ID: "2", Repository: model.RepoRef{Owner: "o", Name: "r"}, CreatedAt: mustTime("2026-01-05T00:00:00Z"), ClosedAt: ptr(mustTime("2026-01-06T00:00:00Z")), Merged: false},
			{ID: "3", Repository: model.RepoRef{Owner: "o", Name: "r"}, CreatedAt: mustTime("2026-01-10T00:00:00Z")},
		},
	}

	tm := k.Compute(rs)

	require.True(t, tm.CycleTime.Mean.IsFinite())
	assert.InDelta(t, 24, tm.CycleTime.Mean.Value, 0.01)
	assert.Equal(t, 3, tm.PRCount)
	assert.Equal(t, 1, tm.MergedCount)
	assert.Equal(t, 1, tm.ClosedUnmerged)
	assert.Equal(t, 1, tm.OpenInWindow)
	require.True(t, tm.MergeRate.IsFinite())
	assert.InDelta(t, 1.0/3, tm.MergeRate.Value, 0.001)
}

func TestComputePRMetrics_NoMergedPRsIsInsufficientData(t *testing.T) {
	k := New(Config{})
	rs := model.TeamRecordSet{
		Window: model.Window{Since: mustTime("2026-01-01T00:00:00Z"), Until: mustTime("2026-02-01T00:00:00Z")},
		PullRequests: []model.PullRequest{
			{ID: "1", CreatedAt: mustTime("2026-01-10T00:00:00Z")},
		},
	}

	tm := k.Compute(rs)

	assert.False(t, tm.CycleTime.Mean.IsFinite())
	assert.Equal(t, model.MetricInsufficientData, tm.CycleTime.Mean.State)
}

func TestComputeReviewMetrics_TopReviewersStableSort(t *testing.T) {
	k := New(Config{})
	rs := model.TeamRecordSet{
		Reviews: []model.Review{
			{ReviewerLogin: "bob", SubmittedAt: mustTime("2026-01-01T00:00:00Z")},
			{ReviewerLogin: "alice", SubmittedAt: mustTime("2026-01-01T00:00:00Z")},
			{ReviewerLogin: "alice", SubmittedAt: mustTime("2026-01-02T00:00:00Z")},
			{ReviewerLogin: "carl", SubmittedAt: mustTime("2026-01-03T00:00:00Z")},
			{ReviewerLogin: "carl", SubmittedAt: mustTime("2026-01-04T00:00:00Z")},
		},
	}

	rm := k.computeReviewMetrics(rs)

	require.Len(t, rm.TopReviewers, 3)
	// alice and carl tie at count 2; login asc breaks the tie.
	assert.Equal(t, "alice", rm.TopReviewers[0].Login)
	assert.Equal(t, "carl", rm.TopReviewers[1].Login)
	assert.Equal(t, "bob", rm.TopReviewers[2].Login)
}

func TestComputeDelivery_DeploymentFrequencyCountsProductionOnly(t *testing.T) {
	k := New(Config{IncidentBlastRadiusHours: 24})
	window := model.Window{Since: mustTime("2026-01-01T00:00:00Z"), Until: mustTime("2026-01-11T00:00:00Z")}
	rs := model.TeamRecordSet{
		Window: window,
		Releases: []model.Release{
			{Tag: "v1", Repository: model.RepoRef{Owner: "o", Name: "r"}, PublishedAt: mustTime("2026-01-02T00:00:00Z"), Environment: model.EnvProduction},
			{Tag: "v2", Repository: model.RepoRef{Owner: "o", Name: "r"}, PublishedAt: mustTime("2026-01-05T00:00:00Z"), Environment: model.EnvStaging},
		},
	}

	dm := k.computeDelivery(rs)

	require.True(t, dm.DeploymentFrequency.IsFinite())
	// The measurement period narrows to the observed data, 01-02 to 01-05
	// (3 days), and only the production release counts.
	assert.InDelta(t, 1.0/3, dm.DeploymentFrequency.Value, 0.0001)
}

func TestComputeDelivery_EmptyWindowIsNotApplicable(t *testing.T) {
	k := New(Config{})
	rs := model.TeamRecordSet{Window: model.Window{Since: mustTime("2026-01-01T00:00:00Z"), Until: mustTime("2026-01-01T00:00:00Z")}}

	dm := k.computeDelivery(rs)

	assert.Equal(t, model.MetricNotApplicable, dm.DeploymentFrequency.State)
	assert.Equal(t, model.MetricNotApplicable, dm.LeadTimeHours.State)
	assert.Equal(t, model.MetricNotApplicable, dm.ChangeFailureRate.State)
	assert.Equal(t, model.MetricNotApplicable, dm.MTTRHours.State)
	assert.Nil(t, dm.MeasurementPeriod)
}

func TestChangeFailureRate_IncidentWithinBlastRadiusCountsAsFailure(t *testing.T) {
	k := New(Config{IncidentBlastRadiusHours: 24, IncidentIssueType: "Incident"})
	releases := []model.Release{
		{Tag: "v1", PublishedAt: mustTime("2026-01-01T00:00:00Z")},
		{Tag: "v2", PublishedAt: mustTime("2026-01-05T00:00:00Z")},
	}
	incidents := []model.Issue{
		{Key: "INC-1", Type: "Incident", CreatedAt: mustTime("2026-01-01T12:00:00Z")},
	}

	cfr := k.changeFailureRate(releases, incidents)

	require.True(t, cfr.IsFinite())
	assert.InDelta(t, 0.5, cfr.Value, 0.0001)
}

func TestMTTR_RecentIncidentsCappedAtTenNewestFirst(t *testing.T) {
	k := New(Config{})
	var incidents []model.Issue
	for i := 0; i < 12; i++ {
		created := mustTime("2026-01-01T00:00:00Z").AddDate(0, 0, i)
		incidents = append(incidents, model.Issue{
			Key: "INC", CreatedAt: created, ResolvedAt: ptr(created.Add(2 * time.Hour)),
		})
	}

	_, summaries := k.mttr(incidents)

	require.Len(t, summaries, 10)
	assert.True(t, summaries[0].CreatedAt.After(summaries[1].CreatedAt))
}

func TestClassifyLevel_WorstAxisWins(t *testing.T) {
	level := classifyLevel(
		model.Finite(2),    // deployment frequency: elite
		model.Finite(1000), // lead time hours: low
		model.Finite(0.05), // CFR: elite
		model.Finite(0.5),  // MTTR: elite
	)

	assert.Equal(t, model.LevelLow, level)
}
