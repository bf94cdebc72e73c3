// Package handlers provides HTTP request handlers for the gvmbridge API.
// This file implements health check and liveness endpoints.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/anstrom/gvmbridge/internal/logging"
	"github.com/anstrom/gvmbridge/internal/registry"
)

// StorePinger defines the interface for registry store health checking.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// Timeout constants.
const (
	dependencyTimeout = 3 * time.Second
)

// Status constants.
const (
	StatusHealthy       = "healthy"
	StatusUnhealthy     = "unhealthy"
	StatusNotConfigured = "not configured"
)

// HealthHandler handles health check and status endpoints.
type HealthHandler struct {
	registry  *registry.Registry
	store     StorePinger
	logger    *logging.Logger
	startTime time.Time
}

// NewHealthHandler creates a new health handler. The store is optional;
// without one the store check reports "not configured".
func NewHealthHandler(reg *registry.Registry, store StorePinger) *HealthHandler {
	return &HealthHandler{
		registry:  reg,
		store:     store,
		logger:    logging.Default().WithComponent("api").WithFields("handler", "health"),
		startTime: time.Now(),
	}
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status      string            `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Uptime      string            `json:"uptime"`
	ActiveScans int               `json:"active_scans"`
	TotalScans  int               `json:"total_scans"`
	Checks      map[string]string `json:"checks"`
}

// LivenessResponse represents a simple liveness check response.
type LivenessResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
}

// Liveness handles GET /api/v1/liveness - process-is-up check.
func (h *HealthHandler) Liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startTime).String(),
	})
}

// Health handles GET /api/v1/health - dependency-aware health check.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := StatusHealthy

	if h.store == nil {
		checks["store"] = StatusNotConfigured
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), dependencyTimeout)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			h.logger.Error("Store health check failed", "error", err)
			checks["store"] = StatusUnhealthy
			status = StatusUnhealthy
		} else {
			checks["store"] = StatusHealthy
		}
	}

	httpStatus := http.StatusOK
	if status == StatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:      status,
		Timestamp:   time.Now().UTC(),
		Uptime:      time.Since(h.startTime).String(),
		ActiveScans: len(h.registry.Active()),
		TotalScans:  h.registry.Count(),
		Checks:      checks,
	})
}
