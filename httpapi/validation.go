package httpapi

import (
	"net/http"
	"regexp"

	"github.com/labstack/echo/v4"
)

var (
	teamNameRe = regexp.MustCompile(`^[A-Za-z0-9 ._-]{1,100}$`)
	loginRe    = regexp.MustCompile(`^[A-Za-z0-9._-]{1,39}$`)
)

// InputValidationMiddleware rejects requests whose :teamName or :login
// path parameters don't match spec.md §6's regexes, before the route
// handler ever sees them.
func InputValidationMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if team := c.Param("teamName"); team != "" && !teamNameRe.MatchString(team) {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid team name")
			}
			if login := c.Param("login"); login != "" && !loginRe.MatchString(login) {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid login")
			}
			return next(c)
		}
	}
}
