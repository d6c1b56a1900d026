package sourcehost

import (
	"context"
	"strings"
	"time"

	"github.com/devlens/enginemetrics/model"
)

// repositoryQuery batches pull-request, review, commit and release pages
// for one repository in a single document, paginated by an opaque
// cursor per spec.md §4.1. Empty or fully-out-of-window pages terminate
// traversal.
const repositoryQuery = `
query RepositoryMetrics($owner: String!, $repo: String!, $first: Int!, $after: String) {
  repository(owner: $owner, name: $repo) {
    pullRequests(first: $first, after: $after, orderBy: {field: UPDATED_AT, direction: DESC}) {
      pageInfo { hasNextPage endCursor }
      nodes {
        id number title body createdAt mergedAt closedAt merged
        additions deletions changedFiles
        author { login }
        commits(first: 100) { nodes { commit { oid } } }
        reviews(first: 100) {
          nodes { state submittedAt author { login } }
        }
      }
    }
    releases(first: $first, after: $after, orderBy: {field: CREATED_AT, direction: DESC}) {
      pageInfo { hasNextPage endCursor }
      nodes { tagName name publishedAt isPrerelease }
    }
  }
}`

type prNode struct {
	ID           string     `json:"id"`
	Number       int        `json:"number"`
	Title        string     `json:"title"`
	Body         string     `json:"body"`
	CreatedAt    time.Time  `json:"createdAt"`
	MergedAt     *time.Time `json:"mergedAt"`
	ClosedAt     *time.Time `json:"closedAt"`
	Merged       bool       `json:"merged"`
	Additions    int        `json:"additions"`
	Deletions    int        `json:"deletions"`
	ChangedFiles int        `json:"changedFiles"`
	Author       struct {
		Login string `json:"login"`
	} `json:"author"`
	Commits struct {
		Nodes []struct {
			Commit struct {
				OID string `json:"oid"`
			} `json:"commit"`
		} `json:"nodes"`
	} `json:"commits"`
	Reviews struct {
		Nodes []struct {
			State       string    `json:"state"`
			SubmittedAt time.Time `json:"submittedAt"`
			Author      struct {
				Login string `json:"login"`
			} `json:"author"`
		} `json:"nodes"`
	} `json:"reviews"`
}

type releaseNode struct {
	TagName      string    `json:"tagName"`
	Name         string    `json:"name"`
	PublishedAt  time.Time `json:"publishedAt"`
	IsPrerelease bool      `json:"isPrerelease"`
}

type pageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

type repositoryQueryData struct {
	Repository struct {
		PullRequests struct {
			PageInfo pageInfo `json:"pageInfo"`
			Nodes    []prNode `json:"nodes"`
		} `json:"pullRequests"`
		Releases struct {
			PageInfo pageInfo      `json:"pageInfo"`
			Nodes    []releaseNode `json:"nodes"`
		} `json:"releases"`
	} `json:"repository"`
}

// issueKeysFrom extracts uppercase PROJECT-123-style issue keys from a
// PR's title, body, or (by convention) branch-derived title text.
func issueKeysFrom(title, body string) []string {
	text := title + " " + body
	var keys []string
	seen := map[string]bool{}
	var cur strings.Builder
	flushIfKey := func() {
		s := cur.String()
		cur.Reset()
		if isIssueKey(s) && !seen[s] {
			seen[s] = true
			keys = append(keys, s)
		}
	}
	for _, r := range text {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' {
			cur.WriteRune(r)
		} else {
			flushIfKey()
		}
	}
	flushIfKey()
	return keys
}

func isIssueKey(s string) bool {
	dash := strings.IndexByte(s, '-')
	if dash <= 0 || dash == len(s)-1 {
		return false
	}
	prefix, suffix := s[:dash], s[dash+1:]
	for _, r := range prefix {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func reviewState(s string) model.ReviewState {
	switch s {
	case "APPROVED":
		return model.ReviewApproved
	case "CHANGES_REQUESTED":
		return model.ReviewChangesRequested
	case "DISMISSED":
		return model.ReviewDismissed
	default:
		return model.ReviewCommented
	}
}

// CollectRepositoryMetrics returns all PRs whose mergedAt falls in
// window, with their reviews and commit refs, plus all releases whose
// publishedAt falls in window, per spec.md §4.1.
func (c *Client) CollectRepositoryMetrics(ctx context.Context, owner, repo string, window model.Window) ([]model.PullRequest, []model.Review, []model.Commit, []model.Release, error) {
	shifted := c.shiftWindow(window)
	ref := model.RepoRef{Owner: owner, Name: repo}

	var prs []model.PullRequest
	var reviews []model.Review
	var commits []model.Commit
	var releases []model.Release

	cursor := ""
	for {
		var data repositoryQueryData
		vars := map[string]any{"owner": owner, "repo": repo, "first": c.pageSize, "after": nilIfEmpty(cursor)}
		if err := c.doQuery(ctx, repositoryQuery, vars, &data); err != nil {
			return prs, reviews, commits, releases, &PartialResultError{
				Collected: model.TeamRecordSet{PullRequests: prs, Reviews: reviews, Commits: commits, Releases: releases, Partial: true},
				Cause:     err,
			}
		}

		page := data.Repository.PullRequests
		if len(page.Nodes) == 0 {
			break
		}
		anyInWindow := false
		for _, n := range page.Nodes {
			if n.MergedAt == nil || !shifted.Contains(*n.MergedAt) {
				continue
			}
			anyInWindow = true
			pr := model.PullRequest{
				ID: n.ID, Repository: ref, Number: n.Number, AuthorLogin: n.Author.Login,
				Title: n.Title, Body: n.Body, CreatedAt: n.CreatedAt, MergedAt: n.MergedAt,
				ClosedAt: n.ClosedAt, Merged: n.Merged, Additions: n.Additions,
				Deletions: n.Deletions, ChangedFiles: n.ChangedFiles,
				IssueKeys: issueKeysFrom(n.Title, n.Body),
			}
			for _, cn := range n.Commits.Nodes {
				pr.CommitSHAs = append(pr.CommitSHAs, cn.Commit.OID)
			}
			prs = append(prs, pr)
			for _, rn := range n.Reviews.Nodes {
				reviews = append(reviews, model.Review{
					PRKey: pr.Key(), ReviewerLogin: rn.Author.Login,
					State: reviewState(rn.State), SubmittedAt: rn.SubmittedAt,
				})
			}
		}
		if !page.PageInfo.HasNextPage || !anyInWindow {
			break
		}
		cursor = page.PageInfo.EndCursor

		select {
		case <-ctx.Done():
			return prs, reviews, commits, releases, ctx.Err()
		default:
		}
	}

	cursor = ""
	for {
		var data repositoryQueryData
		vars := map[string]any{"owner": owner, "repo": repo, "first": c.pageSize, "after": nilIfEmpty(cursor)}
		if err := c.doQuery(ctx, repositoryQuery, vars, &data); err != nil {
			return prs, reviews, commits, releases, &PartialResultError{
				Collected: model.TeamRecordSet{PullRequests: prs, Reviews: reviews, Commits: commits, Releases: releases, Partial: true},
				Cause:     err,
			}
		}
		page := data.Repository.Releases
		if len(page.Nodes) == 0 {
			break
		}
		anyInWindow := false
		for _, n := range page.Nodes {
			if !shifted.Contains(n.PublishedAt) {
				continue
			}
			anyInWindow = true
			releases = append(releases, model.Release{
				Tag: n.TagName, Name: n.Name, Repository: ref,
				PublishedAt: n.PublishedAt, Prerelease: n.IsPrerelease,
			})
		}
		if !page.PageInfo.HasNextPage || !anyInWindow {
			break
		}
		cursor = page.PageInfo.EndCursor
	}

	return prs, reviews, commits, releases, nil
}

// CollectPersonMetrics returns the subset of PRs/Reviews/Commits
// authored-by or reviewed-by login, restricted to window.
func (c *Client) CollectPersonMetrics(ctx context.Context, owner, repo, login string, window model.Window) ([]model.PullRequest, []model.Review, []model.Commit, error) {
	prs, reviews, commits, _, err := c.CollectRepositoryMetrics(ctx, owner, repo, window)
	var myPRs []model.PullRequest
	var myReviews []model.Review
	var myCommits []model.Commit
	for _, pr := range prs {
		if pr.AuthorLogin == login {
			myPRs = append(myPRs, pr)
		}
	}
	for _, r := range reviews {
		if r.ReviewerLogin == login {
			myReviews = append(myReviews, r)
		}
	}
	for _, cm := range commits {
		if cm.AuthorLogin == login {
			myCommits = append(myCommits, cm)
		}
	}
	return myPRs, myReviews, myCommits, err
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
