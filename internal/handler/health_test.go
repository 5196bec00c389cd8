// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/olegiv/natours-go/internal/cache"
	"github.com/olegiv/natours-go/internal/docstore"
)

// downStore is a store whose Ping always fails.
type downStore struct {
	*docstore.MemoryStore
}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

// pingCache is a memory cache that reports its reachability.
type pingCache struct {
	*cache.Memory
	err error
}

func (c pingCache) Ping(context.Context) error { return c.err }

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) HealthStatus {
	t.Helper()
	var status HealthStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	return status
}

func TestHealth(t *testing.T) {
	mem := cache.NewMemory(cache.MemoryOptions{DefaultTTL: time.Minute})
	t.Cleanup(func() { _ = mem.Close() })

	tests := []struct {
		name       string
		store      docstore.Store
		cache      cache.Cache
		wantCode   int
		wantStatus string
		wantChecks int
	}{
		{"healthy store", docstore.NewMemoryStore(), mem, http.StatusOK, "healthy", 1},
		{"store down", downStore{docstore.NewMemoryStore()}, nil, http.StatusServiceUnavailable, "degraded", 1},
		{"cache pinged", docstore.NewMemoryStore(), pingCache{Memory: mem}, http.StatusOK, "healthy", 2},
		{"cache down", docstore.NewMemoryStore(), pingCache{Memory: mem, err: errors.New("timeout")}, http.StatusServiceUnavailable, "degraded", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.store, tt.cache)
			w := httptest.NewRecorder()
			h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}
			status := decodeHealth(t, w)
			if status.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", status.Status, tt.wantStatus)
			}
			if len(status.Checks) != tt.wantChecks {
				t.Errorf("checks = %v", status.Checks)
			}
			if status.System != nil {
				t.Error("system info should only be present with verbose=true")
			}
		})
	}
}

func TestHealthVerbose(t *testing.T) {
	h := NewHealthHandler(docstore.NewMemoryStore(), nil)
	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/health?verbose=true", nil))

	status := decodeHealth(t, w)
	if status.System == nil || status.System.GoVersion == "" {
		t.Errorf("system = %+v", status.System)
	}
	if status.Version == "" {
		t.Error("version should be set")
	}
}

func TestLiveness(t *testing.T) {
	h := NewHealthHandler(nil, nil)
	w := httptest.NewRecorder()
	h.Liveness(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body["status"] != "alive" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestHealthNilStore(t *testing.T) {
	h := NewHealthHandler(nil, nil)
	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}
