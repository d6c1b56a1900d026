package httpapi

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/devlens/enginemetrics/cache"
	"github.com/devlens/enginemetrics/model"
)

// formatCSV and formatJSON are the closed set of supported export formats.
const (
	formatCSV  = "csv"
	formatJSON = "json"
)

func metadataEnvelope(art cache.Artifact, rangeSpec string, env model.Environment) map[string]any {
	return map[string]any{
		"generatedAt": art.Header.CreatedAt,
		"rangeSpec":   rangeSpec,
		"environment": env,
	}
}

func loadArtifact(c echo.Context, deps Dependencies) (cache.Artifact, string, model.Environment, error) {
	rangeSpec, env, err := rangeEnv(c, deps.DefaultEnv)
	if err != nil {
		return cache.Artifact{}, "", "", err
	}
	key := cache.Key(rangeSpec, env, deps.DefaultEnv)
	art, found, err := deps.Cache.Get(c.Request().Context(), key)
	if err != nil {
		return cache.Artifact{}, "", "", echo.NewHTTPError(http.StatusInternalServerError, "cache read failed")
	}
	if !found {
		return cache.Artifact{}, "", "", echo.NewHTTPError(http.StatusNotFound, "no artifact for range/env")
	}
	return art, rangeSpec, env, nil
}

func metricValueString(m model.MetricValue) string {
	if !m.IsFinite() {
		return string(m.State)
	}
	return strconv.FormatFloat(m.Value, 'f', -1, 64)
}

func exportTeamHandler(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		art, rangeSpec, env, err := loadArtifact(c, deps)
		if err != nil {
			return err
		}
		teamName := c.Param("teamName")
		var found *model.TeamMetrics
		for i, tm := range art.Payload.Teams {
			if tm.Team == teamName {
				found = &art.Payload.Teams[i]
				break
			}
		}
		if found == nil {
			return echo.NewHTTPError(http.StatusNotFound, "team not found in artifact")
		}

		switch c.Param("format") {
		case formatJSON:
			return c.JSON(http.StatusOK, map[string]any{
				"team":     found,
				"metadata": metadataEnvelope(art, rangeSpec, env),
			})
		case formatCSV:
			rows := [][]string{
				{"team", "prCount", "mergedCount", "closedUnmerged", "openInWindow", "mergeRate",
					"cycleTimeMean", "cycleTimeMedian", "timeToFirstReviewHours",
					"deploymentFrequency", "leadTimeHours", "changeFailureRate", "mttrHours", "level"},
				{
					found.Team,
					strconv.Itoa(found.PRCount),
					strconv.Itoa(found.MergedCount),
					strconv.Itoa(found.ClosedUnmerged),
					strconv.Itoa(found.OpenInWindow),
					metricValueString(found.MergeRate),
					metricValueString(found.CycleTime.Mean),
					metricValueString(found.CycleTime.Median),
					metricValueString(found.TimeToFirstReview),
					metricValueString(found.Delivery.DeploymentFrequency),
					metricValueString(found.Delivery.LeadTimeHours),
					metricValueString(found.Delivery.ChangeFailureRate),
					metricValueString(found.Delivery.MTTRHours),
					string(found.Delivery.Level),
				},
			}
			return writeCSV(c, fmt.Sprintf("team-%s.csv", teamName), rows)
		default:
			return echo.NewHTTPError(http.StatusBadRequest, "unsupported format")
		}
	}
}

func exportPersonHandler(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		art, rangeSpec, env, err := loadArtifact(c, deps)
		if err != nil {
			return err
		}
		login := c.Param("login")
		var found *model.PersonMetrics
		for i, pm := range art.Payload.Persons {
			if pm.Login == login {
				found = &art.Payload.Persons[i]
				break
			}
		}
		if found == nil {
			return echo.NewHTTPError(http.StatusNotFound, "person not found in artifact")
		}

		switch c.Param("format") {
		case formatJSON:
			return c.JSON(http.StatusOK, map[string]any{
				"person":   found,
				"metadata": metadataEnvelope(art, rangeSpec, env),
			})
		case formatCSV:
			rows := [][]string{
				{"login", "team", "prCount", "mergedCount", "mergeRate", "reviewCount", "commitCount",
					"additions", "deletions", "completedIssues", "score"},
				{
					found.Login,
					found.Team,
					strconv.Itoa(found.PRCount),
					strconv.Itoa(found.MergedCount),
					metricValueString(found.MergeRate),
					strconv.Itoa(found.ReviewCount),
					strconv.Itoa(found.CommitCount),
					strconv.Itoa(found.Additions),
					strconv.Itoa(found.Deletions),
					strconv.Itoa(found.CompletedIssues),
					metricValueString(found.Score),
				},
			}
			return writeCSV(c, fmt.Sprintf("person-%s.csv", login), rows)
		default:
			return echo.NewHTTPError(http.StatusBadRequest, "unsupported format")
		}
	}
}

func exportComparisonHandler(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		art, rangeSpec, env, err := loadArtifact(c, deps)
		if err != nil {
			return err
		}

		switch c.Param("format") {
		case formatJSON:
			return c.JSON(http.StatusOK, map[string]any{
				"comparison": art.Payload.Comparison,
				"metadata":   metadataEnvelope(art, rangeSpec, env),
			})
		case formatCSV:
			rows := [][]string{
				{"team", "prCount", "mergeRate", "deploymentFrequency", "leadTimeHours", "changeFailureRate", "mttrHours", "level"},
			}
			for _, row := range art.Payload.Comparison.Rows {
				rows = append(rows, []string{
					row.Team,
					strconv.Itoa(row.PRCount),
					metricValueString(row.MergeRate),
					metricValueString(row.DeploymentFrequency),
					metricValueString(row.LeadTimeHours),
					metricValueString(row.ChangeFailureRate),
					metricValueString(row.MTTRHours),
					string(row.Level),
				})
			}
			return writeCSV(c, "comparison.csv", rows)
		default:
			return echo.NewHTTPError(http.StatusBadRequest, "unsupported format")
		}
	}
}

func exportTeamMembersHandler(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		art, rangeSpec, env, err := loadArtifact(c, deps)
		if err != nil {
			return err
		}
		teamName := c.Param("teamName")
		members := make([]model.PersonMetrics, 0)
		for _, pm := range art.Payload.Persons {
			if pm.Team == teamName {
				members = append(members, pm)
			}
		}
		if len(members) == 0 {
			return echo.NewHTTPError(http.StatusNotFound, "no members found for team")
		}

		switch c.Param("format") {
		case formatJSON:
			return c.JSON(http.StatusOK, map[string]any{
				"members":  members,
				"metadata": metadataEnvelope(art, rangeSpec, env),
			})
		case formatCSV:
			rows := [][]string{
				{"login", "team", "prCount", "mergedCount", "mergeRate", "reviewCount", "commitCount", "score"},
			}
			for _, pm := range members {
				rows = append(rows, []string{
					pm.Login, pm.Team,
					strconv.Itoa(pm.PRCount), strconv.Itoa(pm.MergedCount),
					metricValueString(pm.MergeRate),
					strconv.Itoa(pm.ReviewCount), strconv.Itoa(pm.CommitCount),
					metricValueString(pm.Score),
				})
			}
			return writeCSV(c, fmt.Sprintf("team-members-%s.csv", teamName), rows)
		default:
			return echo.NewHTTPError(http.StatusBadRequest, "unsupported format")
		}
	}
}

func writeCSV(c echo.Context, filename string, rows [][]string) error {
	c.Response().Header().Set(echo.HeaderContentType, "text/csv")
	c.Response().Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Response().WriteHeader(http.StatusOK)
	w := csv.NewWriter(c.Response())
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
