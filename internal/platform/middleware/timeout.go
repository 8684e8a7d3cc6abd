package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout puts a deadline on the request context. The handler runs
// on the calling goroutine, so it has returned before echo reuses the
// context. A handler that fails once the deadline has passed gets a 504
// unless it already started writing.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if timeout <= 0 {
				return next(c)
			}
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if err == nil || c.Response().Committed {
				return err
			}
			// Handlers often map a cancelled query to a 500 before it gets
			// here, so the context decides.
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return errTimeout
			}
			return err
		}
	}
}

var errTimeout = echo.NewHTTPError(http.StatusGatewayTimeout, "request processing exceeded the allowed time limit")
