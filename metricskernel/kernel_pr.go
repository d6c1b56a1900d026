package metricskernel

import (
	"sort"

	"github.com/devlens/enginemetrics/model"
)

// computePRMetrics fills in tm's PR-count, cycle-time, merge-rate, and
// time-to-first-review fields. Cycle time is computed only over merged
// PRs; open or closed-unmerged PRs contribute nothing to the
// distribution but are still counted toward merge rate's denominator.
func (k *Kernel) computePRMetrics(rs model.TeamRecordSet, tm *model.TeamMetrics) {
	reviewsByPR := make(map[string][]model.Review, len(rs.Reviews))
	for _, r := range rs.Reviews {
		reviewsByPR[r.PRKey] = append(reviewsByPR[r.PRKey], r)
	}

	var cycleHours []float64
	buckets := map[model.SizeBucket]int{}
	var firstReviewHours []float64

	for _, pr := range rs.PullRequests {
		tm.PRCount++
		switch {
		case pr.Merged && pr.MergedAt != nil:
			tm.MergedCount++
			hours := pr.MergedAt.Sub(pr.CreatedAt).Hours()
			cycleHours = append(cycleHours, hours)
			buckets[sizeBucketFor(pr.Additions+pr.Deletions)]++
		case !pr.Merged && pr.ClosedAt != nil:
			tm.ClosedUnmerged++
		default:
			tm.OpenInWindow++
		}

		var firstNonAuthor *model.Review
		for i, rv := range reviewsByPR[pr.Key()] {
			if rv.ReviewerLogin == pr.AuthorLogin {
				continue
			}
			if firstNonAuthor == nil || rv.SubmittedAt.Before(firstNonAuthor.SubmittedAt) {
				firstNonAuthor = &reviewsByPR[pr.Key()][i]
			}
		}
		if firstNonAuthor != nil {
			firstReviewHours = append(firstReviewHours, firstNonAuthor.SubmittedAt.Sub(pr.CreatedAt).Hours())
		}
	}

	tm.CycleTime = model.CycleTimeStats{SizeBuckets: buckets}
	if m, ok := mean(cycleHours); ok {
		tm.CycleTime.Mean = model.Finite(m)
	} else {
		tm.CycleTime.Mean = model.InsufficientData()
	}
	if m, ok := median(cycleHours); ok {
		tm.CycleTime.Median = model.Finite(m)
	} else {
		tm.CycleTime.Median = model.InsufficientData()
	}

	denom := tm.MergedCount + tm.ClosedUnmerged + tm.OpenInWindow
	if denom > 0 {
		tm.MergeRate = model.Finite(float64(tm.MergedCount) / float64(denom))
	} else {
		tm.MergeRate = model.InsufficientData()
	}

	if m, ok := mean(firstReviewHours); ok {
		tm.TimeToFirstReview = model.Finite(m)
	} else {
		tm.TimeToFirstReview = model.InsufficientData()
	}
}

// computeReviewMetrics tallies review counts, unique reviewers, and the
// stable-sorted top-reviewers list.
func (k *Kernel) computeReviewMetrics(rs model.TeamRecordSet) model.ReviewMetrics {
	tallies := make(map[string]int)
	for _, r := range rs.Reviews {
		tallies[r.ReviewerLogin]++
	}
	return model.ReviewMetrics{
		Count:           len(rs.Reviews),
		UniqueReviewers: len(tallies),
		TopReviewers:    topReviewers(tallies),
	}
}

// computeContributorMetrics aggregates per-author commit counts,
// additions/deletions, and a daily histogram keyed by UTC author-date.
func (k *Kernel) computeContributorMetrics(rs model.TeamRecordSet) []model.ContributorMetrics {
	byAuthor := make(map[string]*model.ContributorMetrics)
	var order []string
	for _, c := range rs.Commits {
		cm, ok := byAuthor[c.AuthorLogin]
		if !ok {
			cm = &model.ContributorMetrics{Login: c.AuthorLogin, DailyHistogram: map[string]int{}}
			byAuthor[c.AuthorLogin] = cm
			order = append(order, c.AuthorLogin)
		}
		cm.CommitCount++
		cm.Additions += c.Additions
		cm.Deletions += c.Deletions
		cm.DailyHistogram[dayISO(c.AuthorDate)]++
	}

	out := make([]model.ContributorMetrics, 0, len(order))
	for _, login := range order {
		out = append(out, *byAuthor[login])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Login < out[j].Login })
	return out
}
