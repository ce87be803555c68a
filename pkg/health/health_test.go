package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error { return nil }

func failing(context.Context) error { return errors.New("connection refused") }

func get(t *testing.T, c *Checker, path string) (int, Response) {
	t.Helper()
	mux := http.NewServeMux()
	c.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestLiveness(t *testing.T) {
	code, body := get(t, NewChecker("dev"), "/health/live")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusHealthy, body.Status)
	assert.Equal(t, "dev", body.Version)
}

func TestReadiness_NotReady(t *testing.T) {
	code, body := get(t, NewChecker("dev"), "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, StatusUnhealthy, body.Checks["startup"].Status)
}

func TestReadiness(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		c := NewChecker("dev")
		c.AddCheck("postgres", ok, true)
		c.AddCheck("redis", ok, false)
		c.SetReady(true)

		code, body := get(t, c, "/health/ready")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, StatusHealthy, body.Status)
		assert.Len(t, body.Checks, 2)
	})

	t.Run("cache down degrades", func(t *testing.T) {
		c := NewChecker("dev")
		c.AddCheck("postgres", ok, true)
		c.AddCheck("redis", failing, false)
		c.SetReady(true)

		code, body := get(t, c, "/health/ready")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, StatusDegraded, body.Status)
		assert.Equal(t, "connection refused", body.Checks["redis"].Message)
	})

	t.Run("store down is unhealthy", func(t *testing.T) {
		c := NewChecker("dev")
		c.AddCheck("postgres", failing, true)
		c.AddCheck("redis", failing, false)
		c.SetReady(true)

		code, body := get(t, c, "/health/ready")
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, StatusUnhealthy, body.Status)
	})
}

func TestOverallStatus(t *testing.T) {
	assert.Equal(t, StatusHealthy, OverallStatus(nil))
	assert.Equal(t, StatusDegraded, OverallStatus(map[string]CheckResult{"a": {Status: StatusDegraded}}))
	assert.Equal(t, StatusUnhealthy, OverallStatus(map[string]CheckResult{
		"a": {Status: StatusDegraded},
		"b": {Status: StatusUnhealthy},
	}))
}
