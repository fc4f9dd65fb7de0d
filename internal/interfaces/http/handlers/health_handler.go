package handlers

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// readinessTimeout bounds one round of dependency checks.
const readinessTimeout = 5 * time.Second

// Checker reports the health of one backing dependency.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

type checkFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func (c checkFunc) Name() string                    { return c.name }
func (c checkFunc) Check(ctx context.Context) error { return c.fn(ctx) }

// NewCheck adapts a named function to the Checker interface, so callers can
// register a dependency ping without declaring a type.
func NewCheck(name string, fn func(ctx context.Context) error) Checker {
	return checkFunc{name: name, fn: fn}
}

// HealthHandler serves the Kubernetes-style liveness and readiness probes.
type HealthHandler struct {
	checkers []Checker
	version  string
	started  time.Time
}

// NewHealthHandler returns a HealthHandler probing the given dependencies.
func NewHealthHandler(version string, checkers ...Checker) *HealthHandler {
	return &HealthHandler{
		checkers: checkers,
		version:  version,
		started:  time.Now(),
	}
}

// LivenessResponse is the body of GET /healthz.
type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ComponentStatus is one dependency's result within a readiness check.
type ComponentStatus struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ReadinessResponse is the body of GET /readyz.
type ReadinessResponse struct {
	Status     string            `json:"status"`
	Components []ComponentStatus `json:"components,omitempty"`
}

// Liveness handles GET /healthz. It only confirms the process runs and never
// touches a dependency.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{
		Status:  "alive",
		Version: h.version,
		Uptime:  time.Since(h.started).Truncate(time.Second).String(),
	})
}

// Readiness handles GET /readyz. All registered dependencies are checked
// concurrently; any failure answers 503 with the per-component breakdown.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if len(h.checkers) == 0 {
		writeJSON(w, http.StatusOK, ReadinessResponse{Status: "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	components := h.checkAll(ctx)

	ready := true
	for _, c := range components {
		if c.Status != "up" {
			ready = false
			break
		}
	}

	resp := ReadinessResponse{Status: "ready", Components: components}
	status := http.StatusOK
	if !ready {
		resp.Status = "not_ready"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// checkAll probes every dependency concurrently. Each goroutine owns one
// result slot, so no locking is needed; a failing check never cancels the
// others.
func (h *HealthHandler) checkAll(ctx context.Context) []ComponentStatus {
	components := make([]ComponentStatus, len(h.checkers))
	var g errgroup.Group
	for i, checker := range h.checkers {
		i, checker := i, checker
		g.Go(func() error {
			start := time.Now()
			err := checker.Check(ctx)
			cs := ComponentStatus{
				Name:    checker.Name(),
				Status:  "up",
				Latency: time.Since(start).Truncate(time.Microsecond).String(),
			}
			if err != nil {
				cs.Status = "down"
				cs.Error = err.Error()
			}
			components[i] = cs
			return nil
		})
	}
	_ = g.Wait()
	return components
}
