// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

// Responses caches the JSON payload of single-document reads keyed by
// collection and id. A nil *Responses is a disabled cache.
type Responses struct {
	cache Cache
	ttl   time.Duration
}

// NewResponses wraps c. A non-positive ttl disables caching and returns nil.
func NewResponses(c Cache, ttl time.Duration) *Responses {
	if c == nil || ttl <= 0 {
		return nil
	}
	return &Responses{cache: c, ttl: ttl}
}

// Key returns the cache key of a document.
func Key(collection, id string) string {
	return collection + ":" + id
}

// Get returns the cached payload, if any.
func (r *Responses) Get(ctx context.Context, collection, id string) (json.RawMessage, bool) {
	if r == nil {
		return nil, false
	}
	data, err := r.cache.Get(ctx, Key(collection, id))
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			slog.Warn("cache read failed", "collection", collection, "id", id, "error", err)
		}
		return nil, false
	}
	return data, true
}

// Put stores v encoded as JSON. Failures are logged, never returned.
func (r *Responses) Put(ctx context.Context, collection, id string, v any) {
	if r == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("cache encode failed", "collection", collection, "id", id, "error", err)
		return
	}
	if err := r.cache.Set(ctx, Key(collection, id), data, r.ttl); err != nil {
		slog.Warn("cache write failed", "collection", collection, "id", id, "error", err)
	}
}

// Invalidate drops the cached payload of a document.
func (r *Responses) Invalidate(ctx context.Context, collection, id string) {
	if r == nil {
		return
	}
	if err := r.cache.Delete(ctx, Key(collection, id)); err != nil {
		slog.Warn("cache invalidation failed", "collection", collection, "id", id, "error", err)
	}
}

// InvalidateCollection drops every cached payload of a collection.
func (r *Responses) InvalidateCollection(ctx context.Context, collection string) {
	if r == nil {
		return
	}
	if err := r.cache.DeleteByPrefix(ctx, collection+":"); err != nil {
		slog.Warn("cache invalidation failed", "collection", collection, "error", err)
	}
}

// Flush removes every cached payload.
func (r *Responses) Flush(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return r.cache.Clear(ctx)
}
