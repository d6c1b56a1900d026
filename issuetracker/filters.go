package issuetracker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/devlens/enginemetrics/errkind"
	"github.com/devlens/enginemetrics/model"
)

// Filter is a saved search resolved to its JQL.
type Filter struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	JQL  string `json:"jql"`
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Server+path, nil)
	if err != nil {
		return errkind.New(errkind.Internal, "issuetracker.get", err)
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.APIToken)

	delay := c.cfg.Pagination.RetryDelay
	var lastErr error
	for attempt := 1; attempt <= c.cfg.Pagination.MaxRetries; attempt++ {
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = errkind.New(errkind.UpstreamTransient, "issuetracker.get", err)
		} else {
			defer resp.Body.Close()
			switch {
			case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
				return errkind.New(errkind.UpstreamPermanent, "issuetracker.get", fmt.Errorf("auth failed: %d", resp.StatusCode))
			case resp.StatusCode == http.StatusNotFound:
				return errkind.New(errkind.NotFound, "issuetracker.get", fmt.Errorf("not found: %s", path))
			case resp.StatusCode >= 500:
				lastErr = errkind.New(errkind.UpstreamTransient, "issuetracker.get", fmt.Errorf("server error: %d", resp.StatusCode))
			case resp.StatusCode >= 400:
				return errkind.New(errkind.UpstreamPermanent, "issuetracker.get", fmt.Errorf("status %d", resp.StatusCode))
			default:
				raw, err := io.ReadAll(resp.Body)
				if err != nil {
					return errkind.New(errkind.UpstreamTransient, "issuetracker.get", err)
				}
				return json.Unmarshal(raw, out)
			}
		}
		if attempt == c.cfg.Pagination.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return lastErr
}

// ListUserFilters returns the caller's saved filters.
func (c *Client) ListUserFilters(ctx context.Context) ([]Filter, error) {
	var filters []Filter
	err := c.get(ctx, "/rest/api/2/filter/favourite", &filters)
	return filters, err
}

// SearchFilters finds saved filters matching term.
func (c *Client) SearchFilters(ctx context.Context, term string) ([]Filter, error) {
	var result struct {
		Values []Filter `json:"values"`
	}
	err := c.get(ctx, "/rest/api/2/filter/search?filterName="+term, &result)
	return result.Values, err
}

// GetFilterJql resolves a saved filter id to its JQL string.
func (c *Client) GetFilterJql(ctx context.Context, id string) (string, error) {
	var f Filter
	if err := c.get(ctx, "/rest/api/2/filter/"+id, &f); err != nil {
		return "", err
	}
	return f.JQL, nil
}

type fixVersionWire struct {
	Name        string     `json:"name"`
	Released    bool       `json:"released"`
	ReleaseDate *time.Time `json:"releaseDate"`
}

// CollectReleases enumerates fix-versions for projectKey and, for each
// released version, the issues contributed by teamMembers.
func (c *Client) CollectReleases(ctx context.Context, projectKey string, teamMembers []string) ([]model.FixVersion, error) {
	var versions []fixVersionWire
	if err := c.get(ctx, "/rest/api/2/project/"+projectKey+"/versions", &versions); err != nil {
		return nil, err
	}

	var result []model.FixVersion
	for _, v := range versions {
		if !v.Released {
			continue
		}
		fv := model.FixVersion{Name: v.Name, Released: true}
		if v.ReleaseDate != nil {
			fv.ReleaseDate = *v.ReleaseDate
		}

		jql := fmt.Sprintf(`project = %s AND fixVersion = "%s"`, projectKey, v.Name)
		if len(teamMembers) > 0 {
			jql += " AND (" + joinAssignee(teamMembers) + ")"
		}
		res, err := c.CollectIssues(ctx, jql, model.Window{Since: time.Unix(0, 0), Until: time.Now().AddDate(100, 0, 0)})
		if err != nil {
			return result, err
		}
		for _, iss := range res.Issues {
			fv.IssueKeys = append(fv.IssueKeys, iss.Key)
		}
		result = append(result, fv)
	}
	return result, nil
}

func joinAssignee(members []string) string {
	out := ""
	for i, m := range members {
		if i > 0 {
			out += " OR "
		}
		out += fmt.Sprintf(`assignee = "%s"`, m)
	}
	return out
}
