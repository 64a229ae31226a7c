// Package health provides liveness and readiness probe endpoints.
//
// Checks run on demand when the probe endpoint is hit, each with its own
// timeout. Readiness additionally requires the service to be manually marked
// ready, so a shutting-down process can drain traffic before closing.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc probes a single component. It returns nil when the component is
// healthy.
type CheckFunc func(ctx context.Context) error

type check struct {
	name    string
	timeout time.Duration
	fn      CheckFunc
}

// Health holds registered liveness and readiness checks for a service.
type Health struct {
	ready atomic.Bool

	mu        sync.RWMutex
	liveness  []check
	readiness []check
}

// New creates a Health registry. The service starts not ready; call
// SetReady(true) after initialization completes.
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a check that decides whether the process is
// alive. A failing liveness check usually means the process should be
// restarted.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, check{name: name, timeout: timeout, fn: fn})
}

// AddReadinessCheck registers a check that decides whether the service can
// accept traffic, such as database connectivity.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, check{name: name, timeout: timeout, fn: fn})
}

// SetReady flips the manual readiness gate. Call with false during graceful
// shutdown to fail the readiness probe before the listener closes.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves the liveness probe. 200 when every liveness check
// passes, 503 with per-check failures otherwise.
func (h *Health) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	checks := make([]check, len(h.liveness))
	copy(checks, h.liveness)
	h.mu.RUnlock()

	writeResponse(w, runChecks(r.Context(), checks))
}

// ReadyEndpoint serves the readiness probe. 200 only when the service has
// been marked ready and every readiness check passes.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	checks := make([]check, len(h.readiness))
	copy(checks, h.readiness)
	h.mu.RUnlock()

	failures := runChecks(r.Context(), checks)
	if !h.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	writeResponse(w, failures)
}

func runChecks(ctx context.Context, checks []check) map[string]string {
	failures := make(map[string]string)
	for _, c := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := c.fn(checkCtx)
		cancel()
		if err != nil {
			failures[c.name] = err.Error()
		}
	}
	return failures
}

func writeResponse(w http.ResponseWriter, failures map[string]string) {
	resp := statusResponse{Status: "ok"}
	code := http.StatusOK
	if len(failures) > 0 {
		resp.Status = "unhealthy"
		resp.Checks = failures
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
