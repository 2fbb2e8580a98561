package middleware

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitForCtx blocks like a slow repository call until ctx ends.
func waitForCtx(c echo.Context) error {
	select {
	case <-time.After(5 * time.Second):
		return c.NoContent(http.StatusOK)
	case <-c.Request().Context().Done():
		return fmt.Errorf("list bookings: %w", c.Request().Context().Err())
	}
}

func TestRequestTimeout(t *testing.T) {
	tests := []struct {
		name     string
		timeout  time.Duration
		path     string
		handler  echo.HandlerFunc
		wantCode int
	}{
		{"within deadline", 5 * time.Second, "/api/v1/services", okHandler, 0},
		{"wrapped deadline error", 20 * time.Millisecond, "/api/v1/customer/bookings", waitForCtx, http.StatusGatewayTimeout},
		{"handler ignores deadline", 20 * time.Millisecond, "/api/v1/bookings", func(c echo.Context) error {
			<-c.Request().Context().Done()
			return nil
		}, http.StatusGatewayTimeout},
		{"handler error kept", 5 * time.Second, "/api/v1/bookings/b-1", func(c echo.Context) error {
			return echo.NewHTTPError(http.StatusNotFound, "booking not found")
		}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newCtx(http.MethodGet, tt.path)
			err := RequestTimeout(tt.timeout)(tt.handler)(c)
			if tt.wantCode == 0 {
				require.NoError(t, err)
				return
			}
			var httpErr *echo.HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, tt.wantCode, httpErr.Code)
		})
	}
}

func TestRequestTimeout_NoDeadline(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		path    string
	}{
		{"skipped prefix", 20 * time.Millisecond, "/health/db"},
		{"disabled", 0, "/api/v1/bookings"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newCtx(http.MethodGet, tt.path)
			err := RequestTimeout(tt.timeout, "/health")(func(c echo.Context) error {
				_, ok := c.Request().Context().Deadline()
				assert.False(t, ok)
				return nil
			})(c)
			require.NoError(t, err)
		})
	}
}

func TestRequestTimeout_CallerCancellationIsNotTimeout(t *testing.T) {
	c, _ := newCtx(http.MethodGet, "/api/v1/bookings")
	ctx, cancel := context.WithCancel(c.Request().Context())
	c.SetRequest(c.Request().WithContext(ctx))
	cancel()

	err := RequestTimeout(time.Second)(func(c echo.Context) error {
		return c.Request().Context().Err()
	})(c)
	assert.ErrorIs(t, err, context.Canceled)
}
