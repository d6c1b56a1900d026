package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/devlens/enginemetrics/cache"
	"github.com/devlens/enginemetrics/config"
	"github.com/devlens/enginemetrics/eventbus"
	"github.com/devlens/enginemetrics/model"
	"github.com/devlens/enginemetrics/tracker"
)

// RegisterRoutes wires spec.md §6's full route table against deps.
func RegisterRoutes(e *echo.Echo, deps Dependencies) {
	e.GET("/api/health", healthHandler(deps))

	e.GET("/api/metrics", getMetricsHandler(deps))
	e.GET("/api/refresh", refreshHandler(deps))
	e.GET("/api/jobs/:id", jobStatusHandler(deps))
	e.POST("/api/reload-cache", reloadCacheHandler(deps))

	e.GET("/api/cache/stats", cacheStatsHandler(deps))
	e.POST("/api/cache/clear", cacheClearHandler(deps))
	e.POST("/api/cache/warm", cacheWarmHandler(deps))

	e.GET("/api/export/team/:teamName/:format", exportTeamHandler(deps))
	e.GET("/api/export/person/:login/:format", exportPersonHandler(deps))
	e.GET("/api/export/comparison/:format", exportComparisonHandler(deps))
	e.GET("/api/export/team-members/:teamName/:format", exportTeamMembersHandler(deps))

	e.POST("/api/settings/weights", updateWeightsHandler(deps))

	e.GET("/metrics/api/overview", trackerOverviewHandler(deps))
	e.GET("/metrics/api/slow-routes", trackerSlowRoutesHandler(deps))
	e.GET("/metrics/api/route-trend", trackerRouteTrendHandler(deps))
	e.GET("/metrics/api/cache-effectiveness", trackerCacheEffectivenessHandler(deps))
	e.GET("/metrics/api/health-score", trackerHealthScoreHandler(deps))
	e.POST("/metrics/api/rotate", trackerRotateHandler(deps))
}

func healthHandler(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "healthy",
			"version": ServiceVersion(),
		})
	}
}

// rangeEnv extracts and validates the range/env query parameters shared
// by most read routes.
func rangeEnv(c echo.Context, defaultEnv model.Environment) (rangeSpec string, env model.Environment, err error) {
	rangeSpec = c.QueryParam("range")
	if rangeSpec == "" || !cache.ValidRangeSpec(rangeSpec) {
		return "", "", echo.NewHTTPError(http.StatusBadRequest, "invalid range")
	}
	env = defaultEnv
	if e := c.QueryParam("env"); e != "" {
		env = model.Environment(e)
	}
	return rangeSpec, env, nil
}

func getMetricsHandler(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		rangeSpec, env, err := rangeEnv(c, deps.DefaultEnv)
		if err != nil {
			return err
		}
		key := cache.Key(rangeSpec, env, deps.DefaultEnv)

		art, found, err := deps.Cache.Get(c.Request().Context(), key)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "cache read failed")
		}
		if !found {
			return echo.NewHTTPError(http.StatusNotFound, "no artifact for range/env")
		}
		c.Response().Header().Set("X-Cache", "HIT")

		return c.JSON(http.StatusOK, map[string]any{
			"teams":      art.Payload.Teams,
			"persons":    art.Payload.Persons,
			"comparison": art.Payload.Comparison,
			"metadata": map[string]any{
				"generatedAt": art.Header.CreatedAt,
				"rangeSpec":   rangeSpec,
				"environment": env,
			},
		})
	}
}

func refreshHandler(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		rangeSpec, env, err := rangeEnv(c, deps.DefaultEnv)
		if err != nil {
			return err
		}
		jobID := uuid.NewString()
		if deps.Refresh != nil {
			jobID = deps.Refresh(c.Request().Context(), rangeSpec, env)
		}
		if deps.Bus != nil {
			deps.Bus.Publish(eventbus.ManualRefresh, eventbus.Payload{RangeSpec: rangeSpec, Environment: string(env)})
		}
		return c.JSON(http.StatusAccepted, map[string]string{"jobId": jobID})
	}
}

func jobStatusHandler(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		if deps.Jobs == nil {
			return echo.NewHTTPError(http.StatusNotFound, "job tracking not configured")
		}
		job := deps.Jobs.Get(c.Param("id"))
		if job == nil {
			return echo.NewHTTPError(http.StatusNotFound, "unknown job id")
		}
		return c.JSON(http.StatusOK, job)
	}
}

func reloadCacheHandler(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		rangeSpec, env, err := rangeEnv(c, deps.DefaultEnv)
		if err != nil {
			return err
		}
		key := cache.Key(rangeSpec, env, deps.DefaultEnv)
		_, found, err := deps.Cache.Get(c.Request().Context(), key)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "cache read failed")
		}
		if !found {
			return echo.NewHTTPError(http.StatusNotFound, "no artifact to reload")
		}
		return c.NoContent(http.StatusOK)
	}
}

func cacheStatsHandler(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, deps.Cache.Stats())
	}
}

func cacheClearHandler(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		n := deps.Cache.ClearMemory()
		return c.JSON(http.StatusOK, map[string]int{"cleared": n})
	}
}

func cacheWarmHandler(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body struct {
			Keys []string `json:"keys"`
		}
		if err := c.Bind(&body); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
		}
		if err := deps.Cache.Warm(c.Request().Context(), body.Keys); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "warm failed")
		}
		if deps.Bus != nil {
			deps.Bus.Publish(eventbus.CacheWarmed, eventbus.Payload{})
		}
		return c.NoContent(http.StatusOK)
	}
}

func updateWeightsHandler(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		var weights config.PerformanceWeights
		if err := c.Bind(&weights); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
		}
		if deps.UpdateWeights == nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "weights update not configured")
		}
		if err := deps.UpdateWeights(weights); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if deps.Bus != nil {
			deps.Bus.Publish(eventbus.ConfigChanged, eventbus.Payload{Scope: "performanceWeights"})
		}
		return c.NoContent(http.StatusOK)
	}
}

func trackerOverviewHandler(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		hs, err := deps.Tracker.ComputeHealthScore(7)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "tracker read failed")
		}
		return c.JSON(http.StatusOK, hs)
	}
}

func trackerSlowRoutesHandler(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		routes, err := deps.Tracker.GetSlowestRoutes(10, 7)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "tracker read failed")
		}
		return c.JSON(http.StatusOK, routes)
	}
}

func trackerRouteTrendHandler(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		route := c.QueryParam("route")
		if route == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "route is required")
		}
		points, err := deps.Tracker.GetHourlyMetrics(route, 7)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "tracker read failed")
		}
		return c.JSON(http.StatusOK, points)
	}
}

func trackerCacheEffectivenessHandler(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, deps.Cache.Stats())
	}
}

func trackerHealthScoreHandler(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		hs, err := deps.Tracker.ComputeHealthScore(1)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "tracker read failed")
		}
		return c.JSON(http.StatusOK, hs)
	}
}

func trackerRotateHandler(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		days := 90
		n, err := deps.Tracker.Rotate(days)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "rotate failed")
		}
		return c.JSON(http.StatusOK, map[string]int{"deleted": n})
	}
}

// RequestTrackingMiddleware records one tracker.Row per served request,
// after the handler has resolved a status code.
func RequestTrackingMiddleware(deps Dependencies) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if deps.Tracker == nil {
				return err
			}

			status := c.Response().Status
			errorTag := ""
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
				errorTag = http.StatusText(status)
			} else if err != nil {
				status = http.StatusInternalServerError
				errorTag = "internal"
			}

			row := tracker.Row{
				Timestamp:  start,
				Route:      c.Path(),
				Method:     c.Request().Method,
				DurationMs: float64(time.Since(start).Microseconds()) / 1000,
				StatusCode: status,
				CacheHit:   c.Response().Header().Get("X-Cache") == "HIT",
				ErrorTag:   errorTag,
			}
			_ = deps.Tracker.Record(row)
			return err
		}
	}
}
