package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type healthBody struct {
	Status string                 `json:"status"`
	Checks map[string]checkResult `json:"checks"`
}

func runHealth(t *testing.T, checks ...Check) (int, healthBody) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health/db", nil), rec)

	require.NoError(t, HealthHandler(checks...)(c))
	var body healthBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func up(context.Context) error { return nil }

func TestHealthHandler_AllHealthy(t *testing.T) {
	code, body := runHealth(t,
		Check{Name: "database", Ping: up, Details: func() any { return map[string]int{"idle_conns": 3} }},
		Check{Name: "redis", Ping: up},
	)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "ok", body.Checks["redis"].Status)
	assert.Equal(t, map[string]any{"idle_conns": float64(3)}, body.Checks["database"].Details)
}

func TestHealthHandler_OneFailing(t *testing.T) {
	down := func(context.Context) error { return errors.New("connection refused") }
	code, body := runHealth(t,
		Check{Name: "database", Ping: up},
		Check{Name: "redis", Ping: down, Details: func() any { return "unused" }},
	)

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "down", body.Checks["redis"].Status)
	assert.Equal(t, "connection refused", body.Checks["redis"].Error)
	assert.Nil(t, body.Checks["redis"].Details)
	assert.Equal(t, "ok", body.Checks["database"].Status)
}

func TestHealthHandler_ChecksRunConcurrently(t *testing.T) {
	slow := func(ctx context.Context) error {
		select {
		case <-time.After(100 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	start := time.Now()
	code, _ := runHealth(t,
		Check{Name: "database", Ping: slow},
		Check{Name: "redis", Ping: slow},
		Check{Name: "kafka", Ping: slow},
	)

	assert.Equal(t, http.StatusOK, code)
	assert.Less(t, time.Since(start), 250*time.Millisecond)
}
