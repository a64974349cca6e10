package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constant(status Status) Check {
	return func(context.Context) ComponentHealth { return ComponentHealth{Status: status} }
}

func TestRun_WorstStatusWins(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]Status
		want   Status
	}{
		{"empty", nil, StatusUp},
		{"all up", map[string]Status{"a": StatusUp, "b": StatusUp}, StatusUp},
		{"degraded", map[string]Status{"a": StatusUp, "b": StatusDegraded}, StatusDegraded},
		{"down", map[string]Status{"a": StatusDegraded, "b": StatusDown}, StatusDown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			for name, s := range tt.checks {
				c.Register(name, constant(s))
			}
			report := c.Run(context.Background())
			assert.Equal(t, tt.want, report.Status)
		})
	}
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("scenarios", constant(StatusUp))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	c.Register("scenarios", constant(StatusDegraded))
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusDegraded, report.Components["scenarios"].Status)
}
