package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// publicPaths bypass authentication: liveness, readiness and the metrics
// scrape endpoint.
var publicPaths = map[string]bool{
	"/health":       true,
	"/health/ready": true,
	"/metrics":      true,
}

// Skipper reports whether the request should skip authentication.
func Skipper(c echo.Context) bool {
	return IsPublicPath(c.Request().URL.Path)
}

func IsPublicPath(path string) bool {
	return publicPaths[strings.TrimSuffix(path, "/")] || publicPaths[path]
}

// Skip wraps an auth middleware so public paths are served without an actor.
func Skip(mw echo.MiddlewareFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		guarded := mw(next)
		return func(c echo.Context) error {
			if Skipper(c) {
				return next(c)
			}
			return guarded(c)
		}
	}
}
