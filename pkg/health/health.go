// Package health serves liveness and readiness probes for the worker.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

const checkTimeout = 5 * time.Second

type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type Response struct {
	Status     Status                 `json:"status"`
	Version    string                 `json:"version,omitempty"`
	Uptime     string                 `json:"uptime,omitempty"`
	Checks     map[string]CheckResult `json:"checks,omitempty"`
	ReportedAt time.Time              `json:"reported_at"`
}

// CheckFunc probes one dependency
type CheckFunc func(ctx context.Context) error

type check struct {
	fn       CheckFunc
	critical bool
}

// Checker aggregates dependency checks. A failing critical check makes the
// worker unhealthy; a failing non-critical one only degrades it.
type Checker struct {
	mu        sync.RWMutex
	checks    map[string]check
	ready     bool
	startTime time.Time
	version   string
}

func NewChecker(version string) *Checker {
	return &Checker{
		checks:    make(map[string]check),
		startTime: time.Now(),
		version:   version,
	}
}

// AddCheck registers a dependency check under name
func (c *Checker) AddCheck(name string, fn CheckFunc, critical bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check{fn: fn, critical: critical}
}

func (c *Checker) SetReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = ready
}

func (c *Checker) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Liveness reports that the process is up
func (c *Checker) Liveness(rw http.ResponseWriter, _ *http.Request) {
	writeJSON(rw, http.StatusOK, Response{
		Status:     StatusHealthy,
		Version:    c.version,
		Uptime:     c.uptime(),
		ReportedAt: time.Now(),
	})
}

// Readiness reports whether batches can be processed
func (c *Checker) Readiness(rw http.ResponseWriter, r *http.Request) {
	if !c.IsReady() {
		writeJSON(rw, http.StatusServiceUnavailable, Response{
			Status:     StatusUnhealthy,
			Version:    c.version,
			ReportedAt: time.Now(),
			Checks: map[string]CheckResult{
				"startup": {Status: StatusUnhealthy, Message: "worker is still starting up"},
			},
		})
		return
	}

	checks := c.Run(r.Context())
	overall := OverallStatus(checks)

	statusCode := http.StatusOK
	if overall == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(rw, statusCode, Response{
		Status:     overall,
		Version:    c.version,
		Uptime:     c.uptime(),
		Checks:     checks,
		ReportedAt: time.Now(),
	})
}

// Register mounts the probes on mux
func (c *Checker) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health/live", c.Liveness)
	mux.HandleFunc("/health/ready", c.Readiness)
}

// Run executes every registered check
func (c *Checker) Run(ctx context.Context) map[string]CheckResult {
	c.mu.RLock()
	checks := make(map[string]check, len(c.checks))
	for name, ch := range c.checks {
		checks[name] = ch
	}
	c.mu.RUnlock()

	results := make(map[string]CheckResult, len(checks))
	for name, ch := range checks {
		results[name] = runCheck(ctx, ch)
	}
	return results
}

func runCheck(ctx context.Context, ch check) CheckResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := ch.fn(ctx); err != nil {
		status := StatusDegraded
		if ch.critical {
			status = StatusUnhealthy
		}
		return CheckResult{
			Status:  status,
			Message: err.Error(),
			Latency: time.Since(start).String(),
		}
	}

	return CheckResult{
		Status:  StatusHealthy,
		Latency: time.Since(start).String(),
	}
}

// OverallStatus is the worst status among checks
func OverallStatus(checks map[string]CheckResult) Status {
	hasDegraded := false
	for _, check := range checks {
		switch check.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			hasDegraded = true
		}
	}
	if hasDegraded {
		return StatusDegraded
	}
	return StatusHealthy
}

func (c *Checker) uptime() string {
	return time.Since(c.startTime).Round(time.Second).String()
}

func writeJSON(rw http.ResponseWriter, status int, body Response) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(body)
}
