// Package model defines the closed record structs collected from the
// source-host and issue-tracker upstreams, and the derived aggregates
// computed over them. Raw records are produced only by the collectors and
// are never mutated after ingest.
package model

import "time"

// RepoRef identifies a repository within a source-host organization.
type RepoRef struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

func (r RepoRef) String() string { return r.Owner + "/" + r.Name }

// PullRequest is a collected pull request.
type PullRequest struct {
	ID           string     `json:"id"`
	Repository   RepoRef    `json:"repository"`
	Number       int        `json:"number"`
	AuthorLogin  string     `json:"authorLogin"`
	Title        string     `json:"title"`
	Body         string     `json:"body"`
	CreatedAt    time.Time  `json:"createdAt"`
	MergedAt     *time.Time `json:"mergedAt,omitempty"`
	ClosedAt     *time.Time `json:"closedAt,omitempty"`
	Merged       bool       `json:"merged"`
	Additions    int        `json:"additions"`
	Deletions    int        `json:"deletions"`
	ChangedFiles int        `json:"changedFiles"`
	CommitSHAs   []string   `json:"commitShas,omitempty"`
	IssueKeys    []string   `json:"issueKeys,omitempty"`
}

// Key returns the (repository, id) uniqueness key for dedup at ingest.
func (p PullRequest) Key() string { return p.Repository.String() + "#" + p.ID }

// ReviewState is the closed set of review states reported by the
// source-host.
type ReviewState string

const (
	ReviewApproved         ReviewState = "APPROVED"
	ReviewChangesRequested ReviewState = "CHANGES_REQUESTED"
	ReviewCommented        ReviewState = "COMMENTED"
	ReviewDismissed        ReviewState = "DISMISSED"
)

// Review is a collected PR review.
type Review struct {
	PRKey         string      `json:"prKey"`
	ReviewerLogin string      `json:"reviewerLogin"`
	State         ReviewState `json:"state"`
	SubmittedAt   time.Time   `json:"submittedAt"`
}

// Commit is a collected commit.
type Commit struct {
	SHA            string    `json:"sha"`
	Repository     RepoRef   `json:"repository"`
	AuthorLogin    string    `json:"authorLogin"`
	AuthorDate     time.Time `json:"authorDate"`
	Additions      int       `json:"additions"`
	Deletions      int       `json:"deletions"`
	PRKey          string    `json:"prKey,omitempty"`
}

// Environment is the derived classification of a Release's deployment
// target.
type Environment string

const (
	EnvProduction Environment = "production"
	EnvStaging    Environment = "staging"
	EnvOther      Environment = "other"
)

// Release is a collected release/tag.
type Release struct {
	Tag         string      `json:"tag"`
	Name        string      `json:"name"`
	Repository  RepoRef     `json:"repository"`
	PublishedAt time.Time   `json:"publishedAt"`
	Prerelease  bool        `json:"prerelease"`
	Environment Environment `json:"environment"`
}

// IssueType is the loose type tag reported by the issue-tracker.
type IssueType string

// IssueTransition records a status-transition event on an issue.
type IssueTransition struct {
	From string    `json:"from"`
	To   string    `json:"to"`
	At   time.Time `json:"at"`
}

// Issue is a collected issue-tracker issue.
type Issue struct {
	Key         string            `json:"key"`
	Type        IssueType         `json:"type"`
	Status      string            `json:"status"`
	Assignee    string            `json:"assignee,omitempty"`
	Reporter    string            `json:"reporter,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	ResolvedAt  *time.Time        `json:"resolvedAt,omitempty"`
	Transitions []IssueTransition `json:"transitions,omitempty"`
	FixVersions []string          `json:"fixVersions,omitempty"`
	Labels      []string          `json:"labels,omitempty"`
	Priority    string            `json:"priority,omitempty"`
	// ChangelogApproximated marks that Transitions were not available
	// (huge-threshold path) and StatusAt falls back to current Status.
	ChangelogApproximated bool `json:"changelogApproximated,omitempty"`
}

// StatusAt derives the issue's status at time t from its transition log,
// falling back to the current stored status if there is no transition
// with At <= t (or no transitions at all).
func (i Issue) StatusAt(t time.Time) string {
	status := i.Status
	var latest time.Time
	found := false
	for _, tr := range i.Transitions {
		if !tr.At.After(t) {
			if !found || tr.At.After(latest) {
				latest = tr.At
				status = tr.To
				found = true
			}
		}
	}
	return status
}

// FixVersion is a release-train version tracked by the issue-tracker.
type FixVersion struct {
	Name        string    `json:"name"`
	Released    bool      `json:"released"`
	ReleaseDate time.Time `json:"releaseDate"`
	IssueKeys   []string  `json:"issueKeys"`
}
