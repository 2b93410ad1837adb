package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/turtacn/SMARTSexplore/pkg/types/graph"
)

// HealthChecker is one dependency probed by /readyz.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckFunc adapts a ping function to HealthChecker.
type CheckFunc struct {
	Component string
	Fn        func(ctx context.Context) error
}

func (c CheckFunc) Name() string                    { return c.Component }
func (c CheckFunc) Check(ctx context.Context) error { return c.Fn(ctx) }

type HealthHandler struct {
	checkers []HealthChecker
	version  string
	startAt  time.Time
	timeout  time.Duration
}

func NewHealthHandler(version string, checkers ...HealthChecker) *HealthHandler {
	return &HealthHandler{
		checkers: checkers,
		version:  version,
		startAt:  time.Now(),
		timeout:  5 * time.Second,
	}
}

// Liveness handles GET /healthz. It never touches dependencies.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, graph.Health{
		Status: "alive",
		Components: map[string]string{
			"version": h.version,
			"uptime":  time.Since(h.startAt).Truncate(time.Second).String(),
		},
	})
}

// Readiness handles GET /readyz: 200 when every checker passes, 503
// otherwise.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	components, healthy := h.checkAll(ctx)
	if healthy {
		writeJSON(w, http.StatusOK, graph.Health{Status: "ready", Components: components})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, graph.Health{Status: "not_ready", Components: components})
}

// checkAll runs the checkers concurrently.
func (h *HealthHandler) checkAll(ctx context.Context) (map[string]string, bool) {
	results := make(map[string]string, len(h.checkers))
	healthy := true
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, checker := range h.checkers {
		wg.Add(1)
		go func(c HealthChecker) {
			defer wg.Done()
			status := "healthy"
			if err := c.Check(ctx); err != nil {
				status = "unhealthy: " + err.Error()
			}
			mu.Lock()
			defer mu.Unlock()
			results[c.Name()] = status
			if status != "healthy" {
				healthy = false
			}
		}(checker)
	}
	wg.Wait()
	return results, healthy
}
