package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devlens/enginemetrics/config"
	"github.com/devlens/enginemetrics/model"
)

func equalWeights() config.PerformanceWeights {
	return config.PerformanceWeights{
		PRs: 0.1, Reviews: 0.1, Commits: 0.1, CycleTime: 0.1, JiraCompleted: 0.1,
		MergeRate: 0.1, DeploymentFrequency: 0.1, LeadTime: 0.1, ChangeFailureRate: 0.1, MTTR: 0.1,
	}
}

func TestScore_TopPerformerOnAllAxesScoresHundred(t *testing.T) {
	s := New(equalWeights())
	peers := []model.PersonMetrics{
		{Login: "top", PRCount: 10, ReviewCount: 10, CommitCount: 10, CompletedIssues: 10,
			MergeRate: model.Finite(1), CycleTime: model.CycleTimeStats{Mean: model.Finite(1)},
			Delivery: model.DeliveryMetrics{DeploymentFrequency: model.Finite(5), LeadTimeHours: model.Finite(1), ChangeFailureRate: model.Finite(0), MTTRHours: model.Finite(1)}},
		{Login: "bottom", PRCount: 0, ReviewCount: 0, CommitCount: 0, CompletedIssues: 0,
			MergeRate: model.Finite(0), CycleTime: model.CycleTimeStats{Mean: model.Finite(100)},
			Delivery: model.DeliveryMetrics{DeploymentFrequency: model.Finite(0), LeadTimeHours: model.Finite(500), ChangeFailureRate: model.Finite(1), MTTRHours: model.Finite(200)}},
	}

	scored := s.Score(peers)

	require.True(t, scored[0].Score.IsFinite())
	assert.InDelta(t, 100, scored[0].Score.Value, 0.01)
	assert.InDelta(t, 0, scored[1].Score.Value, 0.01)
}

func TestScore_MissingDimensionTreatedAsZero(t *testing.T) {
	s := New(equalWeights())
	peers := []model.PersonMetrics{
		{Login: "a", PRCount: 10, MergeRate: model.InsufficientData()},
		{Login: "b", PRCount: 0, MergeRate: model.Finite(0.5)},
	}

	scored := s.Score(peers)

	// "a" wins PR count dimension but loses the missing mergeRate dimension
	// entirely (scored 0 rather than excluded), so it never reaches 100.
	assert.Less(t, scored[0].Score.Value, 100.0)
}

func TestScore_UniformPeerGroupAllScoreMax(t *testing.T) {
	s := New(equalWeights())
	peers := []model.PersonMetrics{
		{Login: "a", PRCount: 5, MergeRate: model.Finite(0.5)},
		{Login: "b", PRCount: 5, MergeRate: model.Finite(0.5)},
	}

	scored := s.Score(peers)

	assert.Equal(t, scored[0].Score.Value, scored[1].Score.Value)
}
