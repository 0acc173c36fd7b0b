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

func up(context.Context) ComponentHealth       { return ComponentHealth{Status: StatusUp} }
func degraded(context.Context) ComponentHealth { return ComponentHealth{Status: StatusDegraded} }

func TestRunWorstStatusWins(t *testing.T) {
	c := NewChecker()
	c.Register("postgres", up)
	assert.Equal(t, StatusUp, c.Run(context.Background()).Status)

	c.Register("redis", degraded)
	assert.Equal(t, StatusDegraded, c.Run(context.Background()).Status)

	c.Register("kafka", PingCheck(func(context.Context) error { return errors.New("dial tcp: refused") }))
	report := c.Run(context.Background())
	assert.Equal(t, StatusDown, report.Status)
	assert.Equal(t, "dial tcp: refused", report.Components["kafka"].Message)
	assert.Len(t, report.Components, 3)
}

func TestSelfHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChecker().SelfHandler()(rec, httptest.NewRequest(http.MethodGet, "/api/health/self", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"OK"}`, rec.Body.String())
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("postgres", PingCheck(func(context.Context) error { return nil }))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/api/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"READY"}`, rec.Body.String())

	c.Register("kafka", PingCheck(func(context.Context) error { return errors.New("down") }))
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/api/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"UNHEALTHY"}`, rec.Body.String())
}

func TestHealthHandlerReturnsReport(t *testing.T) {
	c := NewChecker()
	c.Register("postgres", up)

	rec := httptest.NewRecorder()
	c.HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/api/health/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusUp, report.Status)
	assert.Contains(t, report.Components, "postgres")
}
