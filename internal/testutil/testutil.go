// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package testutil provides shared test helpers for the natours project.
package testutil

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/olegiv/natours-go/internal/auth"
	"github.com/olegiv/natours-go/internal/docstore"
	"github.com/olegiv/natours-go/internal/model"
)

// TestHashCost keeps bcrypt fast in tests.
const TestHashCost = 4

// TestLogger creates a silent test logger that only outputs warnings and errors.
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

// TestLoggerSilent creates a completely silent test logger (error level only).
func TestLoggerSilent() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a Clock reading start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current reading.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// MemoryCatalog opens every resource on a fresh in-memory store. A nil
// clock uses time.Now.
func MemoryCatalog(t *testing.T, hasher *auth.Hasher, clock *Clock) (*model.Catalog, *docstore.MemoryStore) {
	t.Helper()
	now := time.Now
	if clock != nil {
		now = clock.Now
	}
	if hasher == nil {
		hasher = auth.NewHasher(TestHashCost)
	}

	store := docstore.NewMemoryStore()
	store.SetClock(now)
	catalog, err := model.OpenCatalog(context.Background(), store,
		model.NewTours(),
		model.NewUsers(model.UserOptions{Hasher: hasher, Now: now}),
		model.NewReviews(),
		model.NewEvents(),
	)
	if err != nil {
		t.Fatalf("OpenCatalog: %v", err)
	}
	return catalog, store
}

// TourDoc returns the required fields of a valid tour.
func TourDoc(name string, price float64, difficulty string) docstore.Document {
	return docstore.Document{
		"name":         name,
		"duration":     5.0,
		"maxGroupSize": 10.0,
		"difficulty":   difficulty,
		"price":        price,
		"summary":      "A tour",
		"imageCover":   "cover.jpg",
	}
}

// InsertTour stores a tour after running its create stages.
func InsertTour(t *testing.T, catalog *model.Catalog, doc docstore.Document) docstore.Document {
	t.Helper()
	if err := catalog.Resource(model.Tours).Create(doc); err != nil {
		t.Fatalf("Create tour: %v", err)
	}
	saved, err := catalog.Collection(model.Tours).Insert(context.Background(), doc)
	if err != nil {
		t.Fatalf("Insert tour: %v", err)
	}
	return saved
}
