package httpapi

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/devlens/enginemetrics/config"
	"github.com/devlens/enginemetrics/httpapi/auth"
)

// BasicAuthConfig configures the Basic-Auth middleware.
type BasicAuthConfig struct {
	Enabled bool
	Users   []config.AuthUser // Username + PasswordHashPbkdf2Sha256
	Realm   string
}

// BasicAuthMiddleware enforces HTTP Basic Auth against the configured
// user list, verifying with pbkdf2-sha256 in constant time. When
// Enabled is false the middleware is a no-op, matching
// dashboard.auth.enabled.
func BasicAuthMiddleware(cfg BasicAuthConfig) echo.MiddlewareFunc {
	realm := cfg.Realm
	if realm == "" {
		realm = "enginemetrics"
	}
	users := make(map[string]string, len(cfg.Users))
	for _, u := range cfg.Users {
		users[u.Username] = u.PasswordHashPbkdf2Sha256
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !cfg.Enabled {
				return next(c)
			}

			header := c.Request().Header.Get("Authorization")
			username, password, ok := parseBasicAuth(header)
			if !ok {
				return unauthorized(c, realm)
			}

			hash, known := users[username]
			if !known || auth.ValidatePassword(password, hash) != nil {
				return unauthorized(c, realm)
			}

			c.Set("username", username)
			return next(c)
		}
	}
}

func parseBasicAuth(header string) (username, password string, ok bool) {
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(header[len(prefix):])
	if err != nil {
		return "", "", false
	}
	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func unauthorized(c echo.Context, realm string) error {
	c.Response().Header().Set("WWW-Authenticate", `Basic realm="`+realm+`"`)
	return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
}

// AuthenticatedUser returns the username set by BasicAuthMiddleware, or
// empty string if the request was not authenticated.
func AuthenticatedUser(c echo.Context) string {
	username, _ := c.Get("username").(string)
	return username
}
