package middleware

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/islandmassage/booking/internal/platform/auth"
)

// Logger writes one event per request. Handler errors are rendered here so
// the logged status matches what the client received. Successful requests
// to a quiet prefix (health probes) are logged at debug.
func Logger(logger zerolog.Logger, quiet ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}
			logRequest(logger, c, start, err, quiet)
			return nil
		}
	}
}

func logRequest(logger zerolog.Logger, c echo.Context, start time.Time, err error, quiet []string) {
	req := c.Request()
	status := c.Response().Status

	var evt *zerolog.Event
	switch {
	case status >= 500:
		evt = logger.Error().Err(err)
	case status >= 400:
		evt = logger.Warn().Err(err)
	case hasPrefix(req.URL.Path, quiet):
		evt = logger.Debug()
	default:
		evt = logger.Info()
	}

	// The request context is replaced by the auth middleware, so read it
	// after the handler chain has run.
	ctx := req.Context()
	if uid := auth.UserIDFromContext(ctx); uid != "" {
		evt = evt.Str("user_id", uid)
	}
	if roles := auth.RolesFromContext(ctx); len(roles) > 0 {
		evt = evt.Strs("roles", roles)
	}
	if id := c.Param("id"); id != "" {
		evt = evt.Str("resource_id", id)
	}
	rid, _ := c.Get(requestIDKey).(string)

	evt.
		Str("request_id", rid).
		Str("method", req.Method).
		Str("route", c.Path()).
		Str("path", req.URL.Path).
		Int("status", status).
		Int64("bytes_out", c.Response().Size).
		Dur("latency", time.Since(start)).
		Str("remote_ip", c.RealIP()).
		Msg("request")
}

func hasPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
