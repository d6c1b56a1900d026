// Package httpapi assembles C9: the dashboard's Echo server, its
// middleware chain (rate-limit -> auth -> input-validate -> route, the
// order spec.md §4.9 mandates), the route table of spec.md §6, and the
// CSV/JSON export serializers. Server assembly follows
// NewEchoServer's shape (logger, recover, body-limit, CORS, request-id,
// then rate-limit), generalized with the two middlewares the teacher's
// server package didn't need: Basic Auth and path-segment validation.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/devlens/enginemetrics/config"
)

// ServerConfig is the subset of config.Config the HTTP surface needs.
type ServerConfig struct {
	Port                 int
	Debug                bool
	EnableHSTS           bool
	Auth                 config.AuthConfig
	RateLimiting         config.RateLimitingConfig
	RefusePartialResults bool
	ReadTimeout          time.Duration
	WriteTimeout         time.Duration
	ShutdownTimeout      time.Duration
}

// ServerConfigFrom adapts a config.DashboardConfig into a ServerConfig
// with the timeouts the teacher's DefaultServerConfig used.
func ServerConfigFrom(d config.DashboardConfig) ServerConfig {
	return ServerConfig{
		Port: d.Port, Debug: d.Debug, EnableHSTS: d.EnableHSTS,
		Auth: d.Auth, RateLimiting: d.RateLimiting, RefusePartialResults: d.RefusePartialResults,
		ReadTimeout: 30 * time.Second, WriteTimeout: 30 * time.Second, ShutdownTimeout: 10 * time.Second,
	}
}

// NewEchoServer builds an Echo instance with the standard middleware
// chain and every route of spec.md §6 registered against deps.
func NewEchoServer(cfg ServerConfig, deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = cfg.Debug
	e.HTTPErrorHandler = CustomHTTPErrorHandler

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "[${time_rfc3339}] ${status} ${method} ${uri} (${latency_human})\n",
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("2M"))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost},
	}))
	e.Use(middleware.RequestID())
	e.Use(SecurityHeadersMiddleware(cfg.EnableHSTS))

	if cfg.RateLimiting.Enabled {
		limit := cfg.RateLimiting.DefaultLimit
		if limit <= 0 {
			limit = 20
		}
		e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(limit))))
	}

	e.Use(BasicAuthMiddleware(BasicAuthConfig{Enabled: cfg.Auth.Enabled, Users: cfg.Auth.Users}))
	e.Use(InputValidationMiddleware())
	e.Use(RequestTrackingMiddleware(deps))

	RegisterRoutes(e, deps)
	return e
}

// SecurityHeadersMiddleware sets the response headers spec.md §6 requires,
// adding HSTS only when enabled.
func SecurityHeadersMiddleware(hsts bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "SAMEORIGIN")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Content-Security-Policy", "default-src 'self'")
			if hsts {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			return next(c)
		}
	}
}

// ErrorResponse is the JSON body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// CustomHTTPErrorHandler never leaks a stack trace: every failure
// becomes a terse {error: code} JSON body.
func CustomHTTPErrorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	message := "internal error"
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if msg, ok := he.Message.(string); ok {
			message = msg
		}
	}
	if c.Response().Committed {
		return
	}
	if sendErr := c.JSON(code, ErrorResponse{Error: message}); sendErr != nil {
		c.Logger().Error(sendErr)
	}
}

// StartServer runs e until ctx is cancelled, then shuts it down
// gracefully within cfg.ShutdownTimeout.
func StartServer(ctx context.Context, e *echo.Echo, cfg ServerConfig) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- e.StartServer(srv) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	}
}
