package monitoring

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Check probes one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

type checkResult struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency"`
}

// HealthChecker aggregates dependency probes behind /health and /ready.
// Liveness always answers ok while the process runs; readiness runs every
// registered probe with a short deadline.
type HealthChecker struct {
	mu      sync.RWMutex
	checks  map[string]Check
	timeout time.Duration
	started time.Time
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks:  make(map[string]Check),
		timeout: 2 * time.Second,
		started: time.Now().UTC(),
	}
}

func (h *HealthChecker) Register(name string, check Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// LivenessHandler answers ok whenever the process is able to serve HTTP.
func (h *HealthChecker) LivenessHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(h.started).String(),
	})
}

// ReadinessHandler runs every probe and reports 503 when any fails.
func (h *HealthChecker) ReadinessHandler(c *gin.Context) {
	h.mu.RLock()
	checks := make(map[string]Check, len(h.checks))
	for name, check := range h.checks {
		checks[name] = check
	}
	h.mu.RUnlock()

	results := make(map[string]checkResult, len(checks))
	healthy := true
	for name, check := range checks {
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
		start := time.Now()
		err := check(ctx)
		cancel()

		result := checkResult{Status: "ok", Latency: time.Since(start).String()}
		if err != nil {
			healthy = false
			result.Status = "failed"
			result.Error = err.Error()
		}
		results[name] = result
	}

	status := http.StatusOK
	overall := "ready"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	c.JSON(status, gin.H{"status": overall, "checks": results})
}
