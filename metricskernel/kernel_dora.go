package metricskernel

import (
	"sort"
	"time"

	"github.com/devlens/enginemetrics/model"
)

// computeDelivery derives the four DORA indicators, their weekly trends,
// the recent-incidents list, and the overall performance level. Every
// indicator independently falls back to InsufficientData/NotApplicable
// when its underlying events are absent; a team with production
// releases but no incidents gets a deployment frequency and a change
// failure rate of 0 (no release was followed by an incident). CFR is
// not-applicable only when there are no production releases.
func (k *Kernel) computeDelivery(rs model.TeamRecordSet) model.DeliveryMetrics {
	var dm model.DeliveryMetrics

	period, hasData := intersectWithObservedData(rs)
	if !hasData || !period.Since.Before(period.Until) {
		dm.DeploymentFrequency = model.NotApplicable()
		dm.LeadTimeHours = model.NotApplicable()
		dm.ChangeFailureRate = model.NotApplicable()
		dm.MTTRHours = model.NotApplicable()
		return dm
	}
	dm.MeasurementPeriod = &period

	prodReleases := make([]model.Release, 0, len(rs.Releases))
	for _, r := range rs.Releases {
		if r.Environment == model.EnvProduction && period.Contains(r.PublishedAt) {
			prodReleases = append(prodReleases, r)
		}
	}
	sort.Slice(prodReleases, func(i, j int) bool { return prodReleases[i].PublishedAt.Before(prodReleases[j].PublishedAt) })

	days := period.Until.Sub(period.Since).Hours() / 24
	if days > 0 {
		dm.DeploymentFrequency = model.Finite(float64(len(prodReleases)) / days)
	} else {
		dm.DeploymentFrequency = model.InsufficientData()
	}

	leadHours := k.attributeLeadTimes(rs, prodReleases)
	if m, ok := median(leadHours); ok {
		dm.LeadTimeHours = model.Finite(m)
	} else {
		dm.LeadTimeHours = model.InsufficientData()
	}

	incidents := k.incidentIssues(rs)
	dm.ChangeFailureRate = k.changeFailureRate(prodReleases, incidents)
	dm.MTTRHours, dm.RecentIncidents = k.mttr(incidents)

	dm.DeploymentFrequencyTrend = k.deploymentFrequencyTrend(period, prodReleases)
	dm.LeadTimeTrend = k.leadTimeTrend(period, prodReleases, rs)
	dm.ChangeFailureRateTrend = k.changeFailureRateTrend(period, prodReleases, incidents)
	dm.MTTRTrend = k.mttrTrend(period, incidents)

	dm.Level = classifyLevel(dm.DeploymentFrequency, dm.LeadTimeHours, dm.ChangeFailureRate, dm.MTTRHours)
	return dm
}

// intersectWithObservedData narrows rs.Window to the span actually
// covered by releases and PRs, so a configured window wider than the
// data collected (or a team with no delivery activity at all) never
// inflates deployment frequency or reports a measurement period with
// no events in it. Reports hasData=false when there is nothing to
// intersect against.
func intersectWithObservedData(rs model.TeamRecordSet) (model.Window, bool) {
	var earliest, latest time.Time
	seen := false
	observe := func(t time.Time) {
		if !seen || t.Before(earliest) {
			earliest = t
		}
		if !seen || t.After(latest) {
			latest = t
		}
		seen = true
	}
	for _, r := range rs.Releases {
		observe(r.PublishedAt)
	}
	for _, pr := range rs.PullRequests {
		observe(pr.CreatedAt)
		if pr.MergedAt != nil {
			observe(*pr.MergedAt)
		}
	}
	if !seen {
		return model.Window{}, false
	}

	period := rs.Window
	if earliest.After(period.Since) {
		period.Since = earliest
	}
	if latest.Before(period.Until) {
		period.Until = latest
	}
	return period, true
}

// attributeLeadTimes resolves each production release to the PRs it
// shipped: first by matching the PR's issue keys against a fix-version
// sharing the release's tag, falling back to merged-in-window time
// attribution for PRs no fix-version claims. Negative lead times
// (clock skew, backdated releases) are discarded rather than reported.
func (k *Kernel) attributeLeadTimes(rs model.TeamRecordSet, prodReleases []model.Release) []float64 {
	fixVersionIssues := make(map[string]map[string]bool, len(rs.FixVersions))
	for _, fv := range rs.FixVersions {
		set := make(map[string]bool, len(fv.IssueKeys))
		for _, key := range fv.IssueKeys {
			set[key] = true
		}
		fixVersionIssues[fv.Name] = set
	}

	attributed := make(map[string]bool, len(rs.PullRequests))
	var hours []float64

	prByRepo := make(map[string][]model.PullRequest)
	for _, pr := range rs.PullRequests {
		if !pr.Merged || pr.MergedAt == nil {
			continue
		}
		prByRepo[pr.Repository.String()] = append(prByRepo[pr.Repository.String()], pr)
	}

	for _, rel := range prodReleases {
		issueSet, hasFixVersion := fixVersionIssues[rel.Tag]
		if !hasFixVersion {
			issueSet, hasFixVersion = fixVersionIssues[rel.Name]
		}
		if hasFixVersion {
			for _, pr := range prByRepo[rel.Repository.String()] {
				if attributed[pr.Key()] {
					continue
				}
				for _, ik := range pr.IssueKeys {
					if issueSet[ik] {
						attributed[pr.Key()] = true
						if h := rel.PublishedAt.Sub(*pr.MergedAt).Hours(); h >= 0 {
							hours = append(hours, h)
						}
						break
					}
				}
			}
		}
	}

	sort.Slice(prodReleases, func(i, j int) bool { return prodReleases[i].PublishedAt.Before(prodReleases[j].PublishedAt) })
	prevByRepo := make(map[string]time.Time)
	for _, rel := range prodReleases {
		repo := rel.Repository.String()
		windowStart, hasPrev := prevByRepo[repo]
		for _, pr := range prByRepo[repo] {
			if attributed[pr.Key()] {
				continue
			}
			merged := *pr.MergedAt
			if merged.After(rel.PublishedAt) {
				continue
			}
			if hasPrev && !merged.After(windowStart) {
				continue
			}
			attributed[pr.Key()] = true
			if h := rel.PublishedAt.Sub(*pr.MergedAt).Hours(); h >= 0 {
				hours = append(hours, h)
			}
		}
		prevByRepo[repo] = rel.PublishedAt
	}

	return hours
}

// incidentIssues filters rs.Issues to those matching the configured
// incident definition (issue type or label).
func (k *Kernel) incidentIssues(rs model.TeamRecordSet) []model.Issue {
	var out []model.Issue
	for _, iss := range rs.Issues {
		if k.cfg.IncidentIssueType != "" && string(iss.Type) == k.cfg.IncidentIssueType {
			out = append(out, iss)
			continue
		}
		if k.cfg.IncidentLabel != "" {
			for _, label := range iss.Labels {
				if label == k.cfg.IncidentLabel {
					out = append(out, iss)
					break
				}
			}
		}
	}
	return out
}

// changeFailureRate is the fraction of production releases followed by
// an incident within the configured blast-radius window.
func (k *Kernel) changeFailureRate(prodReleases []model.Release, incidents []model.Issue) model.MetricValue {
	if len(prodReleases) == 0 {
		return model.NotApplicable()
	}
	radius := time.Duration(k.cfg.IncidentBlastRadiusHours) * time.Hour
	failed := 0
	for _, rel := range prodReleases {
		for _, inc := range incidents {
			if !inc.CreatedAt.Before(rel.PublishedAt) && inc.CreatedAt.Before(rel.PublishedAt.Add(radius)) {
				failed++
				break
			}
		}
	}
	return model.Finite(float64(failed) / float64(len(prodReleases)))
}

// mttr returns the median time-to-resolve across resolved incidents and
// the most recent 10 as an IncidentSummary list (newest first).
func (k *Kernel) mttr(incidents []model.Issue) (model.MetricValue, []model.IncidentSummary) {
	var durations []float64
	var summaries []model.IncidentSummary
	for _, inc := range incidents {
		if inc.ResolvedAt == nil {
			continue
		}
		d := inc.ResolvedAt.Sub(inc.CreatedAt).Hours()
		if d < 0 {
			continue
		}
		durations = append(durations, d)
		summaries = append(summaries, model.IncidentSummary{
			Key: inc.Key, CreatedAt: inc.CreatedAt, ResolvedAt: *inc.ResolvedAt, DurationHours: d,
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].CreatedAt.After(summaries[j].CreatedAt) })
	if len(summaries) > 10 {
		summaries = summaries[:10]
	}
	m, ok := median(durations)
	if !ok {
		return model.InsufficientData(), summaries
	}
	return model.Finite(m), summaries
}

func classifyLevel(freq, lead, cfr, mttr model.MetricValue) model.PerformanceLevel {
	axes := []model.PerformanceLevel{
		levelForFrequency(freq),
		levelForLeadTime(lead),
		levelForCFR(cfr),
		levelForMTTR(mttr),
	}
	worst := model.LevelElite
	for _, l := range axes {
		if rank(l) < rank(worst) {
			worst = l
		}
	}
	return worst
}

func rank(l model.PerformanceLevel) int {
	switch l {
	case model.LevelElite:
		return 3
	case model.LevelHigh:
		return 2
	case model.LevelMedium:
		return 1
	default:
		return 0
	}
}

func levelForFrequency(v model.MetricValue) model.PerformanceLevel {
	if !v.IsFinite() {
		return model.LevelLow
	}
	perDay := v.Value
	switch {
	case perDay >= 1:
		return model.LevelElite
	case perDay >= 1.0/7:
		return model.LevelHigh
	case perDay >= 1.0/30:
		return model.LevelMedium
	default:
		return model.LevelLow
	}
}

func levelForLeadTime(v model.MetricValue) model.PerformanceLevel {
	if !v.IsFinite() {
		return model.LevelLow
	}
	h := v.Value
	switch {
	case h < 24:
		return model.LevelElite
	case h < 24*7:
		return model.LevelHigh
	case h < 24*30:
		return model.LevelMedium
	default:
		return model.LevelLow
	}
}

func levelForCFR(v model.MetricValue) model.PerformanceLevel {
	if !v.IsFinite() {
		return model.LevelLow
	}
	switch {
	case v.Value <= 0.15:
		return model.LevelElite
	case v.Value <= 0.30:
		return model.LevelHigh
	case v.Value <= 0.45:
		return model.LevelMedium
	default:
		return model.LevelLow
	}
}

func levelForMTTR(v model.MetricValue) model.PerformanceLevel {
	if !v.IsFinite() {
		return model.LevelLow
	}
	h := v.Value
	switch {
	case h < 1:
		return model.LevelElite
	case h < 24:
		return model.LevelHigh
	case h < 24*7:
		return model.LevelMedium
	default:
		return model.LevelLow
	}
}
