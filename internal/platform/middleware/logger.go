package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Logger writes one line per request. 4xx responses log at warn, 5xx at
// error.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil && !c.Response().Committed {
				// echo's error handler runs after this middleware.
				status = http.StatusInternalServerError
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			var evt *zerolog.Event
			switch {
			case status >= 500:
				evt = logger.Error().Err(err)
			case status >= 400:
				evt = logger.Warn().Err(err)
			default:
				evt = logger.Info()
			}
			withRequest(evt, c).
				Int("status", status).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("request")
			return err
		}
	}
}

// withRequest tags a log event with the request id, the authenticated
// actor and the matched route, so /claims/CLM-00001 and /claims/CLM-00002
// group under /api/v1/claims/:refNumber.
func withRequest(evt *zerolog.Event, c echo.Context) *zerolog.Event {
	rid, _ := c.Get("request_id").(string)
	actorID, _ := c.Get("actor_id").(string)
	return evt.
		Str("request_id", rid).
		Str("actor_id", actorID).
		Str("method", c.Request().Method).
		Str("route", c.Path()).
		Str("path", c.Request().URL.Path)
}
