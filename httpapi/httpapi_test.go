package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devlens/enginemetrics/cache"
	"github.com/devlens/enginemetrics/config"
	"github.com/devlens/enginemetrics/httpapi/auth"
	"github.com/devlens/enginemetrics/model"
)

func testCache(t *testing.T) *cache.Cache {
	t.Helper()
	store, err := cache.NewFileStore(t.TempDir())
	require.NoError(t, err)
	log := logrus.NewEntry(logrus.New())
	return cache.New(cache.Config{MaxBytes: 1 << 20}, store, log)
}

func seedArtifact(t *testing.T, c *cache.Cache, rangeSpec string, env model.Environment) {
	t.Helper()
	art := cache.NewArtifact(rangeSpec, env, cache.Payload{
		Teams: []model.TeamMetrics{{Team: "payments"}},
	}, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, c.Set(context.Background(), cache.Key(rangeSpec, env, model.EnvProduction), art))
}

func testDeps(t *testing.T) Dependencies {
	t.Helper()
	return Dependencies{
		Cache:      testCache(t),
		DefaultEnv: model.EnvProduction,
		Log:        logrus.NewEntry(logrus.New()),
	}
}

func TestHealthHandler(t *testing.T) {
	e := echoFor(t, testDeps(t))
	rec := request(e, http.MethodGet, "/api/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestGetMetricsHandler_MissingArtifact(t *testing.T) {
	e := echoFor(t, testDeps(t))
	rec := request(e, http.MethodGet, "/api/metrics?range=90d")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetMetricsHandler_InvalidRange(t *testing.T) {
	e := echoFor(t, testDeps(t))
	rec := request(e, http.MethodGet, "/api/metrics?range=bogus!!")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMetricsHandler_Hit(t *testing.T) {
	deps := testDeps(t)
	seedArtifact(t, deps.Cache, "90d", model.EnvProduction)

	e := echoFor(t, deps)
	rec := request(e, http.MethodGet, "/api/metrics?range=90d")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Contains(t, rec.Body.String(), "payments")
}

func TestRefreshHandler_WithoutRefresher(t *testing.T) {
	e := echoFor(t, testDeps(t))
	rec := request(e, http.MethodGet, "/api/refresh?range=90d")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "jobId")
}

func TestJobStatusHandler_NoTracker(t *testing.T) {
	e := echoFor(t, testDeps(t))
	rec := request(e, http.MethodGet, "/api/jobs/does-not-exist")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateWeightsHandler_RejectsBadBody(t *testing.T) {
	deps := testDeps(t)
	deps.UpdateWeights = func(w config.PerformanceWeights) error { return nil }
	e := echoFor(t, deps)

	rec := requestBody(e, http.MethodPost, "/api/settings/weights", "not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateWeightsHandler_RejectsNonSummingWeights(t *testing.T) {
	deps := testDeps(t)
	deps.UpdateWeights = func(w config.PerformanceWeights) error {
		if w.Sum() < 0.99 || w.Sum() > 1.01 {
			return assert.AnError
		}
		return nil
	}
	e := echoFor(t, deps)

	rec := requestBody(e, http.MethodPost, "/api/settings/weights", `{"prs":0.1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateWeightsHandler_Accepted(t *testing.T) {
	deps := testDeps(t)
	var applied config.PerformanceWeights
	deps.UpdateWeights = func(w config.PerformanceWeights) error {
		applied = w
		return nil
	}
	e := echoFor(t, deps)

	body := `{"prs":0.5,"reviews":0.5}`
	rec := requestBody(e, http.MethodPost, "/api/settings/weights", body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.5, applied.PRs)
}

func TestInputValidationMiddleware_RejectsBadTeamName(t *testing.T) {
	e := echoFor(t, testDeps(t))
	rec := request(e, http.MethodGet, "/api/export/team/bad!team/csv")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInputValidationMiddleware_RejectsBadLogin(t *testing.T) {
	e := echoFor(t, testDeps(t))
	rec := request(e, http.MethodGet, "/api/export/person/not%20valid!/csv")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBasicAuthMiddleware_RequiresCredentialsWhenEnabled(t *testing.T) {
	deps := testDeps(t)
	cfg := ServerConfigFrom(config.DashboardConfig{
		Port: 8080,
		Auth: config.AuthConfig{
			Enabled: true,
			Users:   []config.AuthUser{{Username: "admin", PasswordHashPbkdf2Sha256: mustHash(t, "correct horse")}},
		},
	})
	e := NewEchoServer(cfg, deps)

	rec := request(e, http.MethodGet, "/api/health")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
}

func TestBasicAuthMiddleware_AcceptsValidCredentials(t *testing.T) {
	deps := testDeps(t)
	cfg := ServerConfigFrom(config.DashboardConfig{
		Port: 8080,
		Auth: config.AuthConfig{
			Enabled: true,
			Users:   []config.AuthUser{{Username: "admin", PasswordHashPbkdf2Sha256: mustHash(t, "correct horse")}},
		},
	})
	e := NewEchoServer(cfg, deps)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.SetBasicAuth("admin", "correct horse")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBasicAuthMiddleware_DisabledIsNoOp(t *testing.T) {
	e := echoFor(t, testDeps(t))
	rec := request(e, http.MethodGet, "/api/health")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	e := echoFor(t, testDeps(t))
	rec := request(e, http.MethodGet, "/api/health")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestRequestTrackingMiddleware_NoOpWithoutTracker(t *testing.T) {
	deps := testDeps(t)
	e := echoFor(t, deps)
	request(e, http.MethodGet, "/api/health")
	// Tracker is nil here; the middleware must no-op rather than panic.
}

func echoFor(t *testing.T, deps Dependencies) http.Handler {
	t.Helper()
	cfg := ServerConfigFrom(config.DashboardConfig{Port: 8080})
	return NewEchoServer(cfg, deps)
}

func request(e http.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func requestBody(e http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	return hash
}
