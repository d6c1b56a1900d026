package metricskernel

import (
	"time"

	"github.com/devlens/enginemetrics/model"
)

// weekStarts enumerates the ISO week-start dates covering period.
func weekStarts(period model.Window) []string {
	var out []string
	// Step from the Monday of the first week so a partial last week is
	// not skipped.
	cursor, _ := time.Parse("2006-01-02", weekStartISO(period.Since))
	for cursor.Before(period.Until) {
		out = append(out, weekStartISO(cursor))
		cursor = cursor.AddDate(0, 0, 7)
	}
	if len(out) == 0 {
		out = append(out, weekStartISO(period.Since))
	}
	return out
}

// deploymentFrequencyTrend reports one finite value per week: the count
// of production releases that week divided by 7. Zero releases in a
// week is a real observation, not a missing one, so every week in the
// period gets a finite point.
func (k *Kernel) deploymentFrequencyTrend(period model.Window, prodReleases []model.Release) []model.TrendPoint {
	counts := make(map[string]int)
	for _, r := range prodReleases {
		counts[weekStartISO(r.PublishedAt)]++
	}
	var out []model.TrendPoint
	for _, wk := range weekStarts(period) {
		v := model.Finite(float64(counts[wk]) / 7)
		out = append(out, model.TrendPoint{WeekStart: wk, Value: &v})
	}
	return out
}

// leadTimeTrend reports the median lead time among PRs whose attributed
// release published that week; weeks with no releases get a nil value.
func (k *Kernel) leadTimeTrend(period model.Window, prodReleases []model.Release, rs model.TeamRecordSet) []model.TrendPoint {
	byWeek := make(map[string][]float64)
	for _, r := range prodReleases {
		wk := weekStartISO(r.PublishedAt)
		byWeek[wk] = append(byWeek[wk], k.attributeLeadTimes(rs, []model.Release{r})...)
	}
	var out []model.TrendPoint
	for _, wk := range weekStarts(period) {
		if m, ok := median(byWeek[wk]); ok {
			v := model.Finite(m)
			out = append(out, model.TrendPoint{WeekStart: wk, Value: &v})
		} else {
			out = append(out, model.TrendPoint{WeekStart: wk, Value: nil})
		}
	}
	return out
}

// changeFailureRateTrend reports, per week, the failure rate among
// releases published that week; weeks with no releases get nil.
func (k *Kernel) changeFailureRateTrend(period model.Window, prodReleases []model.Release, incidents []model.Issue) []model.TrendPoint {
	byWeek := make(map[string][]model.Release)
	for _, r := range prodReleases {
		wk := weekStartISO(r.PublishedAt)
		byWeek[wk] = append(byWeek[wk], r)
	}
	var out []model.TrendPoint
	for _, wk := range weekStarts(period) {
		releases := byWeek[wk]
		if len(releases) == 0 {
			out = append(out, model.TrendPoint{WeekStart: wk, Value: nil})
			continue
		}
		cfr := k.changeFailureRate(releases, incidents)
		out = append(out, model.TrendPoint{WeekStart: wk, Value: &cfr})
	}
	return out
}

// mttrTrend reports, per week, the median resolve time among incidents
// created that week; weeks with no resolved incidents get nil.
func (k *Kernel) mttrTrend(period model.Window, incidents []model.Issue) []model.TrendPoint {
	byWeek := make(map[string][]float64)
	for _, inc := range incidents {
		if inc.ResolvedAt == nil {
			continue
		}
		d := inc.ResolvedAt.Sub(inc.CreatedAt).Hours()
		if d < 0 {
			continue
		}
		byWeek[weekStartISO(inc.CreatedAt)] = append(byWeek[weekStartISO(inc.CreatedAt)], d)
	}
	var out []model.TrendPoint
	for _, wk := range weekStarts(period) {
		if m, ok := median(byWeek[wk]); ok {
			v := model.Finite(m)
			out = append(out, model.TrendPoint{WeekStart: wk, Value: &v})
		} else {
			out = append(out, model.TrendPoint{WeekStart: wk, Value: nil})
		}
	}
	return out
}
