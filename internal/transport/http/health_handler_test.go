package http

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macrosynergy/internal/infrastructure"
	"macrosynergy/internal/services"
)

type stubHealth struct {
	ready services.HealthStatus
}

func (s stubHealth) HealthCheck(context.Context) services.HealthStatus {
	return services.HealthStatus{Status: "ok", Version: "v1.0.0-test", Runtime: &infrastructure.RuntimeStats{Goroutines: 8}}
}

func (s stubHealth) ReadinessCheck(context.Context) services.HealthStatus { return s.ready }

func (s stubHealth) LivenessCheck(context.Context) services.HealthStatus {
	return services.HealthStatus{Status: "alive"}
}

func (s stubHealth) Version() map[string]interface{} {
	return map[string]interface{}{"version": "v1.0.0-test"}
}

func TestHealthHandler(t *testing.T) {
	ready := services.HealthStatus{Status: "ready", Services: map[string]services.ServiceHealth{
		"store": {Status: "ready"},
	}}
	degraded := services.HealthStatus{Status: "degraded", Services: map[string]services.ServiceHealth{
		"store":     {Status: "ready"},
		"dataquery": {Status: "degraded", Message: "heartbeat failed"},
	}}
	notReady := services.HealthStatus{Status: "not_ready", Services: map[string]services.ServiceHealth{
		"store": {Status: "not_ready", Message: "connection refused"},
	}}

	tests := []struct {
		name       string
		readiness  services.HealthStatus
		handler    func(h *HealthHandler) http.HandlerFunc
		wantCode   int
		wantStatus string
	}{
		{"health ready", ready, func(h *HealthHandler) http.HandlerFunc { return h.HealthCheck }, http.StatusOK, "ok"},
		{"health degraded", degraded, func(h *HealthHandler) http.HandlerFunc { return h.HealthCheck }, http.StatusOK, "degraded"},
		{"health not ready", notReady, func(h *HealthHandler) http.HandlerFunc { return h.HealthCheck }, http.StatusServiceUnavailable, "not_ready"},
		{"ready probe", ready, func(h *HealthHandler) http.HandlerFunc { return h.ReadinessCheck }, http.StatusOK, "ready"},
		{"ready probe failing", notReady, func(h *HealthHandler) http.HandlerFunc { return h.ReadinessCheck }, http.StatusServiceUnavailable, "not_ready"},
		{"live probe", notReady, func(h *HealthHandler) http.HandlerFunc { return h.LivenessCheck }, http.StatusOK, "alive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(stubHealth{ready: tt.readiness}, testLogger())
			rec := do(t, tt.handler(h), http.MethodGet, "/health", "")

			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantStatus, decode(t, rec)["status"])
		})
	}

	t.Run("health includes runtime and services", func(t *testing.T) {
		h := NewHealthHandler(stubHealth{ready: degraded}, testLogger())
		body := decode(t, do(t, http.HandlerFunc(h.HealthCheck), http.MethodGet, "/health", ""))
		assert.Contains(t, body, "runtime")
		svcs, ok := body["services"].(map[string]interface{})
		require.True(t, ok)
		assert.Contains(t, svcs, "dataquery")
	})

	t.Run("version", func(t *testing.T) {
		h := NewHealthHandler(stubHealth{}, testLogger())
		body := decode(t, do(t, http.HandlerFunc(h.Version), http.MethodGet, "/version", ""))
		assert.Equal(t, "v1.0.0-test", body["version"])
	})
}
