// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/arena/pkg/metrics"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	started time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{started: time.Now()}
}

type healthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// HandleHealth handles GET /healthz requests.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Uptime: time.Since(h.started).Round(time.Second).String(),
	})
}

// MetricsHandler serves the Prometheus registry.
func (h *HealthHandler) MetricsHandler() http.Handler {
	// Use our custom metrics registry to serve metrics
	return promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})
}
