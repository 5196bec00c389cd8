// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/olegiv/natours-go/internal/cache"
	"github.com/olegiv/natours-go/internal/docstore"
	"github.com/olegiv/natours-go/internal/version"
)

// Pinger is implemented by collaborators that can report their reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	store     docstore.Store
	cache     cache.Cache
	startTime time.Time
	timeout   time.Duration
}

// NewHealthHandler creates a new health handler. c may be nil.
func NewHealthHandler(store docstore.Store, c cache.Cache) *HealthHandler {
	return &HealthHandler{
		store:     store,
		cache:     c,
		startTime: time.Now(),
		timeout:   2 * time.Second,
	}
}

// HealthStatus represents the overall health status.
type HealthStatus struct {
	Status    string           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Uptime    string           `json:"uptime"`
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks"`
	System    *SystemInfo      `json:"system,omitempty"`
}

// Check represents a single health check result.
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// SystemInfo contains runtime information.
type SystemInfo struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutines"`
	NumCPU       int    `json:"num_cpus"`
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]Check{"store": h.check(r.Context(), h.store)}
	if p, ok := h.cache.(Pinger); ok {
		checks["cache"] = h.check(r.Context(), p)
	}

	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Version:   version.Short(),
		Checks:    checks,
	}
	for _, c := range checks {
		if c.Status != "healthy" {
			status.Status = "degraded"
		}
	}
	if r.URL.Query().Get("verbose") == "true" {
		status.System = &SystemInfo{
			GoVersion:    runtime.Version(),
			NumGoroutine: runtime.NumGoroutine(),
			NumCPU:       runtime.NumCPU(),
		}
	}

	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, code, status)
}

// Liveness handles GET /health/live.
func (h *HealthHandler) Liveness(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (h *HealthHandler) check(ctx context.Context, p Pinger) Check {
	if p == nil {
		return Check{Status: "unhealthy", Message: "not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	if err := p.Ping(ctx); err != nil {
		return Check{Status: "unhealthy", Message: err.Error()}
	}
	return Check{Status: "healthy", Latency: time.Since(start).String()}
}
