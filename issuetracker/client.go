// Package issuetracker implements the issue-tracker upstream client (C2):
// a JQL/REST client whose hardest problem is fetching a potentially very
// large filter result set without triggering gateway timeouts. Strategy,
// thresholds and retry envelope follow spec.md §4.2 exactly.
package issuetracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/devlens/enginemetrics/errkind"
	"github.com/devlens/enginemetrics/model"
)

// Pagination mirrors config.PaginationConfig's fields needed by the
// client, kept as a separate type so issuetracker does not import
// config (the dependency points the other way).
type Pagination struct {
	BatchSize              int
	HugeThreshold          int
	FetchChangelogForLarge bool
	MaxRetries             int
	RetryDelay             time.Duration
	LargeBatchSize         int
}

// Config configures a Client.
type Config struct {
	Server         string
	Username       string
	APIToken       string
	VerifySSL      bool
	TimeOffsetDays int
	Pagination     Pagination
	HTTPClient     *http.Client
	Timeout        time.Duration
	CountTimeout   time.Duration
}

// Client is a single authenticated JQL/REST session.
type Client struct {
	cfg  Config
	http *http.Client
	log  *logrus.Entry
}

// New constructs a Client. HugeThreshold must be a positive, explicit
// value — there is no built-in default per the Open Question resolution
// in SPEC_FULL.md §9.
func New(cfg Config, log *logrus.Entry) (*Client, error) {
	if cfg.TimeOffsetDays < 0 {
		return nil, errkind.New(errkind.ConfigError, "issuetracker.New", fmt.Errorf("timeOffsetDays must not be negative, got %d", cfg.TimeOffsetDays))
	}
	if cfg.Pagination.HugeThreshold <= 0 {
		return nil, errkind.New(errkind.ConfigError, "issuetracker.New", fmt.Errorf("pagination.hugeThreshold is required"))
	}
	if cfg.Pagination.BatchSize <= 0 {
		return nil, errkind.New(errkind.ConfigError, "issuetracker.New", fmt.Errorf("pagination.batchSize must be positive"))
	}
	if cfg.Pagination.MaxRetries <= 0 {
		cfg.Pagination.MaxRetries = 3
	}
	if cfg.Pagination.RetryDelay <= 0 {
		cfg.Pagination.RetryDelay = 5 * time.Second
	}
	if cfg.Pagination.LargeBatchSize <= 0 {
		cfg.Pagination.LargeBatchSize = 1000
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if cfg.CountTimeout == 0 {
		cfg.CountTimeout = 10 * time.Second
	}
	return &Client{cfg: cfg, http: httpClient, log: log}, nil
}

func (c *Client) shiftWindow(w model.Window) model.Window {
	offset := time.Duration(c.cfg.TimeOffsetDays) * 24 * time.Hour
	return model.Window{Since: w.Since.Add(-offset), Until: w.Until.Add(-offset)}
}

// searchRequest is the JQL search request body.
type searchRequest struct {
	JQL           string   `json:"jql"`
	StartAt       int      `json:"startAt"`
	MaxResults    int      `json:"maxResults"`
	Fields        []string `json:"fields,omitempty"`
	Expand        []string `json:"expand,omitempty"`
	CountOnly     bool     `json:"-"`
}

type issueWire struct {
	Key    string `json:"key"`
	Fields struct {
		IssueType struct{ Name string } `json:"issuetype"`
		Status    struct{ Name string } `json:"status"`
		Assignee  *struct{ Name string } `json:"assignee"`
		Reporter  *struct{ Name string } `json:"reporter"`
		Created   time.Time  `json:"created"`
		Resolved  *time.Time `json:"resolutiondate"`
		Labels    []string   `json:"labels"`
		Priority  *struct{ Name string } `json:"priority"`
		FixVersions []struct {
			Name string `json:"name"`
		} `json:"fixVersions"`
	} `json:"fields"`
	Changelog *struct {
		Histories []struct {
			Created time.Time `json:"created"`
			Items   []struct {
				Field      string `json:"field"`
				FromString string `json:"fromString"`
				ToString   string `json:"toString"`
			} `json:"items"`
		} `json:"histories"`
	} `json:"changelog,omitempty"`
}

type searchResponse struct {
	Total  int         `json:"total"`
	Issues []issueWire `json:"issues"`
}

func toIssue(w issueWire, changelogApproximated bool) model.Issue {
	iss := model.Issue{
		Key:                   w.Key,
		Type:                  model.IssueType(w.Fields.IssueType.Name),
		Status:                w.Fields.Status.Name,
		CreatedAt:             w.Fields.Created,
		ResolvedAt:            w.Fields.Resolved,
		Labels:                w.Fields.Labels,
		ChangelogApproximated: changelogApproximated,
	}
	if w.Fields.Assignee != nil {
		iss.Assignee = w.Fields.Assignee.Name
	}
	if w.Fields.Reporter != nil {
		iss.Reporter = w.Fields.Reporter.Name
	}
	if w.Fields.Priority != nil {
		iss.Priority = w.Fields.Priority.Name
	}
	for _, fv := range w.Fields.FixVersions {
		iss.FixVersions = append(iss.FixVersions, fv.Name)
	}
	if w.Changelog != nil {
		for _, h := range w.Changelog.Histories {
			for _, item := range h.Items {
				if item.Field == "status" {
					iss.Transitions = append(iss.Transitions, model.IssueTransition{
						From: item.FromString, To: item.ToString, At: h.Created,
					})
				}
			}
		}
	}
	return iss
}

func (c *Client) doSearch(ctx context.Context, req searchRequest) (*searchResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errkind.New(errkind.Internal, "issuetracker.doSearch", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Server+"/rest/api/2/search", bytes.NewReader(body))
	if err != nil {
		return nil, errkind.New(errkind.Internal, "issuetracker.doSearch", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.cfg.Username, c.cfg.APIToken)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errkind.New(errkind.UpstreamTransient, "issuetracker.doSearch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, errkind.New(errkind.UpstreamPermanent, "issuetracker.doSearch", fmt.Errorf("authentication failed: status %d", resp.StatusCode))
	}
	if resp.StatusCode == http.StatusBadRequest {
		return nil, errkind.New(errkind.UpstreamPermanent, "issuetracker.doSearch", fmt.Errorf("malformed JQL: status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusRequestTimeout {
		return nil, errkind.New(errkind.UpstreamTransient, "issuetracker.doSearch", fmt.Errorf("server error: status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, errkind.New(errkind.UpstreamPermanent, "issuetracker.doSearch", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errkind.New(errkind.UpstreamTransient, "issuetracker.doSearch", err)
	}
	var sr searchResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return nil, errkind.New(errkind.Internal, "issuetracker.doSearch", fmt.Errorf("decode: %w", err))
	}
	return &sr, nil
}
