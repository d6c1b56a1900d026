package model

import "time"

// Window is an absolute, half-open date range: [Since, Until).
type Window struct {
	Since time.Time `json:"since"`
	Until time.Time `json:"until"`
}

// Contains reports whether t falls in the window, inclusive on Since,
// exclusive on Until.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Since) && t.Before(w.Until)
}

// Intersect returns the intersection of two windows and whether it is
// non-empty.
func (w Window) Intersect(o Window) (Window, bool) {
	since := w.Since
	if o.Since.After(since) {
		since = o.Since
	}
	until := w.Until
	if o.Until.Before(until) {
		until = o.Until
	}
	if !since.Before(until) {
		return Window{}, false
	}
	return Window{Since: since, Until: until}, true
}

// TeamRecordSet is the raw collected data for one team, restricted to an
// absolute date window. Constructed once per collection job by the
// orchestrator and discarded once TeamMetrics has been derived.
type TeamRecordSet struct {
	Team        string        `json:"team"`
	Window      Window        `json:"window"`
	Environment Environment   `json:"environment"`
	PullRequests []PullRequest `json:"pullRequests"`
	Reviews      []Review      `json:"reviews"`
	Commits      []Commit      `json:"commits"`
	Releases     []Release     `json:"releases"`
	Issues       []Issue       `json:"issues"`
	FixVersions  []FixVersion  `json:"fixVersions"`
	// Partial is set when any upstream page/query for the team returned an
	// error; the record set is still usable but incomplete.
	Partial bool `json:"partial"`
}

// SizeBucket is the closed set of PR-size classifications.
type SizeBucket string

const (
	SizeXS SizeBucket = "xs"
	SizeS  SizeBucket = "s"
	SizeM  SizeBucket = "m"
	SizeL  SizeBucket = "l"
	SizeXL SizeBucket = "xl"
)

// CycleTimeStats summarizes the merged-PR cycle-time distribution.
type CycleTimeStats struct {
	Mean         MetricValue            `json:"mean"`
	Median       MetricValue            `json:"median"`
	SizeBuckets  map[SizeBucket]int     `json:"sizeBuckets"`
}

// ReviewMetrics summarizes review activity for a team or person.
type ReviewMetrics struct {
	Count          int            `json:"count"`
	UniqueReviewers int           `json:"uniqueReviewers"`
	TopReviewers   []ReviewerTally `json:"topReviewers"`
}

// ReviewerTally is one entry of the top-reviewers list.
type ReviewerTally struct {
	Login string `json:"login"`
	Count int    `json:"count"`
}

// ContributorMetrics summarizes commit activity for one author.
type ContributorMetrics struct {
	Login         string         `json:"login"`
	CommitCount   int            `json:"commitCount"`
	Additions     int            `json:"additions"`
	Deletions     int            `json:"deletions"`
	DailyHistogram map[string]int `json:"dailyHistogram"` // key: YYYY-MM-DD UTC
}

// PerformanceLevel is the closed DORA performance classification.
type PerformanceLevel string

const (
	LevelElite  PerformanceLevel = "elite"
	LevelHigh   PerformanceLevel = "high"
	LevelMedium PerformanceLevel = "medium"
	LevelLow    PerformanceLevel = "low"
)

// TrendPoint is one (week-start, value) observation. Value is nil for
// weeks with no observations.
type TrendPoint struct {
	WeekStart string       `json:"weekStart"` // ISO date
	Value     *MetricValue `json:"value"`
}

// DeliveryMetrics holds the four DORA indicators plus their trends and
// the overall performance level.
type DeliveryMetrics struct {
	DeploymentFrequency MetricValue  `json:"deploymentFrequency"`
	LeadTimeHours        MetricValue  `json:"leadTimeHours"`
	ChangeFailureRate    MetricValue  `json:"changeFailureRate"`
	MTTRHours            MetricValue  `json:"mttrHours"`
	Level                PerformanceLevel `json:"level"`

	DeploymentFrequencyTrend []TrendPoint `json:"deploymentFrequencyTrend"`
	LeadTimeTrend            []TrendPoint `json:"leadTimeTrend"`
	ChangeFailureRateTrend   []TrendPoint `json:"changeFailureRateTrend"`
	MTTRTrend                []TrendPoint `json:"mttrTrend"`

	RecentIncidents []IncidentSummary `json:"recentIncidents"`

	// MeasurementPeriod is the intersected window actually used; nil when
	// the intersection was empty (all four metrics then not-applicable).
	MeasurementPeriod *Window `json:"measurementPeriod,omitempty"`
}

// IncidentSummary is one row of the MTTR recent-10 list.
type IncidentSummary struct {
	Key          string    `json:"key"`
	CreatedAt    time.Time `json:"createdAt"`
	ResolvedAt   time.Time `json:"resolvedAt"`
	DurationHours float64  `json:"durationHours"`
}

// TeamMetrics is the full computed metric structure for one team.
type TeamMetrics struct {
	Team        string  `json:"team"`
	Window      Window  `json:"window"`
	Environment Environment `json:"environment"`

	PRCount       int         `json:"prCount"`
	MergedCount   int         `json:"mergedCount"`
	ClosedUnmerged int        `json:"closedUnmerged"`
	OpenInWindow  int         `json:"openInWindow"`
	MergeRate     MetricValue `json:"mergeRate"`
	CycleTime     CycleTimeStats `json:"cycleTime"`
	TimeToFirstReview MetricValue `json:"timeToFirstReviewHours"`

	Reviews      ReviewMetrics        `json:"reviews"`
	Contributors []ContributorMetrics `json:"contributors"`

	Delivery DeliveryMetrics `json:"delivery"`

	Status string `json:"status,omitempty"` // "partial" when source data was partial
}

// PersonMetrics is TeamMetrics' shape restricted to one contributor, plus
// a performance score.
type PersonMetrics struct {
	Login  string `json:"login"`
	Team   string `json:"team"`
	Window Window `json:"window"`
	Environment Environment `json:"environment"`

	PRCount     int            `json:"prCount"`
	MergedCount int            `json:"mergedCount"`
	MergeRate   MetricValue    `json:"mergeRate"`
	CycleTime   CycleTimeStats `json:"cycleTime"`

	ReviewCount int `json:"reviewCount"`
	CommitCount int `json:"commitCount"`
	Additions   int `json:"additions"`
	Deletions   int `json:"deletions"`

	CompletedIssues int `json:"completedIssues"`

	Delivery DeliveryMetrics `json:"delivery"`

	Score MetricValue `json:"score"`

	Status string `json:"status,omitempty"`
}

// ComparisonRow projects a TeamMetrics to a common schema for cross-team
// display.
type ComparisonRow struct {
	Team                string      `json:"team"`
	PRCount              int         `json:"prCount"`
	MergeRate            MetricValue `json:"mergeRate"`
	DeploymentFrequency  MetricValue `json:"deploymentFrequency"`
	LeadTimeHours        MetricValue `json:"leadTimeHours"`
	ChangeFailureRate    MetricValue `json:"changeFailureRate"`
	MTTRHours            MetricValue `json:"mttrHours"`
	Level                PerformanceLevel `json:"level"`
}

// ComparisonView is the list of ComparisonRow entries served by the
// comparison export/API endpoints.
type ComparisonView struct {
	Window      Window          `json:"window"`
	Environment Environment     `json:"environment"`
	Rows        []ComparisonRow `json:"rows"`
}

// NewComparisonView projects a slice of TeamMetrics into a ComparisonView.
func NewComparisonView(window Window, env Environment, teams []TeamMetrics) ComparisonView {
	rows := make([]ComparisonRow, 0, len(teams))
	for _, t := range teams {
		rows = append(rows, ComparisonRow{
			Team:                t.Team,
			PRCount:             t.PRCount,
			MergeRate:           t.MergeRate,
			DeploymentFrequency: t.Delivery.DeploymentFrequency,
			LeadTimeHours:       t.Delivery.LeadTimeHours,
			ChangeFailureRate:   t.Delivery.ChangeFailureRate,
			MTTRHours:           t.Delivery.MTTRHours,
			Level:               t.Delivery.Level,
		})
	}
	return ComparisonView{Window: window, Environment: env, Rows: rows}
}
