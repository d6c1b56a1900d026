// Package scorer computes a single 0-100 performance score per person by
// min-max normalizing each of ten dimensions across their peer group and
// combining them with the configured weight vector. Normalization is
// peer-relative by construction: a score is only meaningful alongside
// the peers it was computed against.
package scorer

import (
	"github.com/devlens/enginemetrics/config"
	"github.com/devlens/enginemetrics/model"
)

// dimension extracts one raw scoring input from a PersonMetrics, and
// reports whether lower raw values should score higher (true for
// cycle time, lead time, change-failure-rate, and MTTR).
type dimension struct {
	name       string
	weight     func(w config.PerformanceWeights) float64
	value      func(model.PersonMetrics) (float64, bool)
	lowerBetter bool
}

// volumeDimensions are the activity-count dimensions spec §4.5 allows
// an optional per-team-size normalization on. Delivery dimensions like
// deploymentFrequency are never divided by team size here.
var volumeDimensions = map[string]bool{
	"prs": true, "reviews": true, "commits": true, "jiraCompleted": true,
}

var dimensions = []dimension{
	{name: "prs", weight: func(w config.PerformanceWeights) float64 { return w.PRs }, value: func(p model.PersonMetrics) (float64, bool) { return float64(p.PRCount), true }},
	{name: "reviews", weight: func(w config.PerformanceWeights) float64 { return w.Reviews }, value: func(p model.PersonMetrics) (float64, bool) { return float64(p.ReviewCount), true }},
	{name: "commits", weight: func(w config.PerformanceWeights) float64 { return w.Commits }, value: func(p model.PersonMetrics) (float64, bool) { return float64(p.CommitCount), true }},
	{name: "cycleTime", weight: func(w config.PerformanceWeights) float64 { return w.CycleTime }, value: func(p model.PersonMetrics) (float64, bool) {
		return p.CycleTime.Mean.Value, p.CycleTime.Mean.IsFinite()
	}, lowerBetter: true},
	{name: "jiraCompleted", weight: func(w config.PerformanceWeights) float64 { return w.JiraCompleted }, value: func(p model.PersonMetrics) (float64, bool) { return float64(p.CompletedIssues), true }},
	{name: "mergeRate", weight: func(w config.PerformanceWeights) float64 { return w.MergeRate }, value: func(p model.PersonMetrics) (float64, bool) {
		return p.MergeRate.Value, p.MergeRate.IsFinite()
	}},
	{name: "deploymentFrequency", weight: func(w config.PerformanceWeights) float64 { return w.DeploymentFrequency }, value: func(p model.PersonMetrics) (float64, bool) {
		return p.Delivery.DeploymentFrequency.Value, p.Delivery.DeploymentFrequency.IsFinite()
	}},
	{name: "leadTime", weight: func(w config.PerformanceWeights) float64 { return w.LeadTime }, value: func(p model.PersonMetrics) (float64, bool) {
		return p.Delivery.LeadTimeHours.Value, p.Delivery.LeadTimeHours.IsFinite()
	}, lowerBetter: true},
	{name: "changeFailureRate", weight: func(w config.PerformanceWeights) float64 { return w.ChangeFailureRate }, value: func(p model.PersonMetrics) (float64, bool) {
		return p.Delivery.ChangeFailureRate.Value, p.Delivery.ChangeFailureRate.IsFinite()
	}, lowerBetter: true},
	{name: "mttr", weight: func(w config.PerformanceWeights) float64 { return w.MTTR }, value: func(p model.PersonMetrics) (float64, bool) {
		return p.Delivery.MTTRHours.Value, p.Delivery.MTTRHours.IsFinite()
	}, lowerBetter: true},
}

// Scorer computes peer-normalized weighted scores from a configured
// weight vector.
type Scorer struct {
	weights config.PerformanceWeights
}

// New constructs a Scorer. weights is assumed already validated (sum in
// [0.99, 1.01]) by config.Load.
func New(weights config.PerformanceWeights) *Scorer {
	return &Scorer{weights: weights}
}

// Score assigns a Score field to every entry of peers in place and
// returns the same slice for convenience. Dimensions missing for a
// given person are treated as 0 after normalization, per the closed
// scoring contract; they are never excluded from the weighted sum.
func (s *Scorer) Score(peers []model.PersonMetrics) []model.PersonMetrics {
	if len(peers) == 0 {
		return peers
	}

	teamSizes := make(map[string]int)
	for _, p := range peers {
		teamSizes[p.Team]++
	}
	normalized := make([][]float64, len(dimensions))
	for di, dim := range dimensions {
		raw := make([]float64, len(peers))
		present := make([]bool, len(peers))
		for i, p := range peers {
			v, ok := dim.value(p)
			if n := teamSizes[p.Team]; volumeDimensions[dim.name] && s.weights.NormalizeByTeamSize && n > 0 {
				v = v / float64(n)
			}
			raw[i], present[i] = v, ok
		}
		normalized[di] = minMaxNormalize(raw, present, dim.lowerBetter)
	}

	for i := range peers {
		total := 0.0
		for di, dim := range dimensions {
			total += dim.weight(s.weights) * normalized[di][i]
		}
		peers[i].Score = model.Finite(round1(100 * total))
	}
	return peers
}

// minMaxNormalize scales raw values present in the peer group to [0,1];
// absent dimensions are scored 0. When every present value is equal
// (zero range), all present entries score 1 so a uniformly-performing
// peer group isn't penalized by a degenerate denominator.
func minMaxNormalize(raw []float64, present []bool, lowerBetter bool) []float64 {
	out := make([]float64, len(raw))
	min, max := 0.0, 0.0
	first := true
	for i, ok := range present {
		if !ok {
			continue
		}
		if first {
			min, max = raw[i], raw[i]
			first = false
			continue
		}
		if raw[i] < min {
			min = raw[i]
		}
		if raw[i] > max {
			max = raw[i]
		}
	}
	if first {
		return out // nobody had this dimension; all zero
	}

	for i, ok := range present {
		if !ok {
			continue
		}
		var v float64
		if max == min {
			v = 1
		} else {
			v = (raw[i] - min) / (max - min)
		}
		if lowerBetter {
			v = 1 - v
		}
		out[i] = v
	}
	return out
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
