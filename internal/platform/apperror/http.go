package apperror

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// HTTP converts a service error into an echo HTTP error. Unclassified errors
// become a generic 500 so storage details never reach the client.
func HTTP(err error) error {
	if err == nil {
		return nil
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	var ae *Error
	if errors.As(err, &ae) {
		return echo.NewHTTPError(ae.Status(), ae)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}

// Handler returns an echo.HTTPErrorHandler that renders classified errors as
// JSON and logs server-side failures.
func Handler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		he, ok := HTTP(err).(*echo.HTTPError)
		if !ok {
			he = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
		}

		if he.Code >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).Str("request_id", rid).Str("path", c.Request().URL.Path).Msg("request failed")
		}

		var body interface{}
		switch m := he.Message.(type) {
		case *Error:
			body = m
		case string:
			body = map[string]string{"message": m}
		default:
			body = map[string]interface{}{"message": m}
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(he.Code)
			return
		}
		_ = c.JSON(he.Code, body)
	}
}
