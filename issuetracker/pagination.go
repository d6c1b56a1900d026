package issuetracker

import (
	"context"
	"time"

	"github.com/devlens/enginemetrics/errkind"
	"github.com/devlens/enginemetrics/model"
)

// strategy is the resolved batch size / changelog / retry plan for one
// collection call, chosen from the count N per spec.md §4.2's table.
type strategy struct {
	batchSize       int
	fetchChangelog  bool
	countUnavailable bool
}

// planFor resolves N against the client's configured hugeThreshold.
// Threshold comparison is >=: N == hugeThreshold is "huge".
func (c *Client) planFor(n int) strategy {
	p := c.cfg.Pagination
	switch {
	case n <= p.BatchSize:
		return strategy{batchSize: p.BatchSize, fetchChangelog: true}
	case n < p.HugeThreshold:
		return strategy{batchSize: p.BatchSize, fetchChangelog: true}
	default: // n >= hugeThreshold
		return strategy{batchSize: p.LargeBatchSize, fetchChangelog: p.FetchChangelogForLarge}
	}
}

// CollectResult is the outcome of CollectIssues: the issues gathered so
// far, whether the collection is a partial result (retries exhausted
// mid-page), and whether the changelog was approximated (huge-threshold
// path, status-at-time reconstructed from current status only).
type CollectResult struct {
	Issues               []model.Issue
	Partial              bool
	ChangelogExpanded    bool
	CountUnavailable     bool
	Count                int
}

// CollectIssues runs the count-query-first adaptive pagination strategy
// of spec.md §4.2 against jql. window is not applied to the query: the
// issues returned are exactly those jql matches, and the client's time
// offset has no effect here.
func (c *Client) CollectIssues(ctx context.Context, jql string, window model.Window) (CollectResult, error) {
	shifted := c.shiftWindow(window)
	_ = shifted // window filtering is expressed in jql by the caller; kept for symmetry with C1's post-filter shape

	countCtx, cancel := context.WithTimeout(ctx, c.cfg.CountTimeout)
	countResp, err := c.doSearch(countCtx, searchRequest{JQL: jql, StartAt: 0, MaxResults: 0})
	cancel()

	var plan strategy
	var n int
	countUnavailable := false
	if err != nil {
		// Count-query fallback: proceed with batch=large, changelog=no.
		countUnavailable = true
		c.log.Warn("count unavailable")
		plan = strategy{batchSize: c.cfg.Pagination.LargeBatchSize, fetchChangelog: false}
	} else {
		n = countResp.Total
		plan = c.planFor(n)
	}

	if n == 0 && !countUnavailable {
		return CollectResult{Issues: nil, ChangelogExpanded: plan.fetchChangelog, Count: 0}, nil
	}

	var issues []model.Issue
	fetched := 0
	startAt := 0
	for {
		page, partial, err := c.fetchBatchWithRetry(ctx, jql, startAt, plan.batchSize, plan.fetchChangelog)
		for _, w := range page {
			issues = append(issues, toIssue(w, !plan.fetchChangelog))
		}
		fetched += len(page)
		if err != nil && !partial {
			// Non-transient failure: surface it instead of reporting a partial result.
			return CollectResult{Issues: issues, ChangelogExpanded: plan.fetchChangelog, CountUnavailable: countUnavailable, Count: n}, err
		}
		if err != nil || partial {
			return CollectResult{Issues: issues, Partial: true, ChangelogExpanded: plan.fetchChangelog, CountUnavailable: countUnavailable, Count: n}, nil
		}
		if len(page) == 0 {
			break
		}
		if !countUnavailable && fetched >= n {
			break
		}
		if countUnavailable && len(page) < plan.batchSize {
			break
		}
		startAt += plan.batchSize
	}

	return CollectResult{Issues: issues, ChangelogExpanded: plan.fetchChangelog, CountUnavailable: countUnavailable, Count: n}, nil
}

// fetchBatchWithRetry fetches one [startAt, startAt+batchSize) page,
// retrying transient failures with retryDelay*2^(attempt-1) backoff up
// to maxRetries attempts. Non-transient errors surface immediately.
func (c *Client) fetchBatchWithRetry(ctx context.Context, jql string, startAt, batchSize int, changelog bool) ([]issueWire, bool, error) {
	expand := []string(nil)
	if changelog {
		expand = []string{"changelog"}
	}

	delay := c.cfg.Pagination.RetryDelay
	for attempt := 1; attempt <= c.cfg.Pagination.MaxRetries; attempt++ {
		resp, err := c.doSearch(ctx, searchRequest{JQL: jql, StartAt: startAt, MaxResults: batchSize, Expand: expand})
		if err == nil {
			return resp.Issues, false, nil
		}
		if !isTransient(err) {
			return nil, false, err
		}
		if attempt == c.cfg.Pagination.MaxRetries {
			return nil, true, err
		}
		select {
		case <-ctx.Done():
			return nil, true, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, true, nil
}

func isTransient(err error) bool {
	return errkind.Is(err, errkind.UpstreamTransient)
}
