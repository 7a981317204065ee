package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/prohmpiriya/ticket-inventory/internal/dto"
)

// HealthChecker is a backend that can report whether it is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	service  string
	backends map[string]HealthChecker
	timeout  time.Duration
}

// NewHealthHandler creates a new HealthHandler. Nil backends are reported as not configured.
func NewHealthHandler(service string, backends map[string]HealthChecker) *HealthHandler {
	if backends == nil {
		backends = map[string]HealthChecker{}
	}
	return &HealthHandler{
		service:  service,
		backends: backends,
		timeout:  5 * time.Second,
	}
}

// Health returns a simple health check (liveness)
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, dto.HealthResponse{
		Status:  "healthy",
		Service: h.service,
	})
}

// Ready returns a readiness check (readiness)
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.backends))
	for name := range h.backends {
		names = append(names, name)
	}
	sort.Strings(names)

	components := make(map[string]string, len(names))
	allHealthy := true
	for _, name := range names {
		backend := h.backends[name]
		if backend == nil {
			components[name] = "not configured"
			continue
		}
		if err := backend.HealthCheck(ctx); err != nil {
			components[name] = "unhealthy: " + err.Error()
			allHealthy = false
			continue
		}
		components[name] = "healthy"
	}

	resp := dto.HealthResponse{
		Service:  h.service,
		Backends: components,
	}
	if allHealthy {
		resp.Status = "ready"
		c.JSON(http.StatusOK, resp)
		return
	}
	resp.Status = "not ready"
	c.JSON(http.StatusServiceUnavailable, resp)
}
