// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package service holds the business operations behind the HTTP handlers:
// authentication and the credential lifecycle, user self-service, review
// rating recomputation and tour analytics.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/olegiv/natours-go/internal/docstore"
	"github.com/olegiv/natours-go/internal/model"
)

// EventService records audit events in the events collection.
type EventService struct {
	events docstore.Collection
	now    func() time.Time
}

// NewEventService creates a new EventService. A nil collection disables it.
func NewEventService(events docstore.Collection) *EventService {
	return &EventService{events: events, now: time.Now}
}

// LogEvent creates a new event entry. Failures are logged and returned.
func (s *EventService) LogEvent(ctx context.Context, level, category, message, userID, ipAddress string, metadata map[string]any) error {
	if s == nil || s.events == nil {
		return nil
	}

	meta := make(map[string]any, len(metadata)+2)
	for k, v := range metadata {
		meta[k] = v
	}
	if userID != "" {
		meta["user_id"] = userID
	}
	if ipAddress != "" {
		meta["ip"] = ipAddress
	}

	_, err := s.events.Insert(ctx, docstore.Document{
		"level":                 level,
		"category":              category,
		"message":               message,
		"metadata":              meta,
		docstore.FieldCreatedAt: s.now().UTC(),
	})
	if err != nil {
		slog.Error("failed to record event", "message", message, "error", err)
		return err
	}
	return nil
}

// LogAuthEvent records an authentication event.
func (s *EventService) LogAuthEvent(ctx context.Context, level, message, userID, ipAddress string, metadata map[string]any) error {
	return s.LogEvent(ctx, level, model.EventCategoryAuth, message, userID, ipAddress, metadata)
}

// Recent returns the newest events, optionally narrowed to a category.
func (s *EventService) Recent(ctx context.Context, category string, limit int64) ([]docstore.Document, error) {
	if s == nil || s.events == nil {
		return nil, nil
	}
	f := docstore.Filter{}
	if category != "" {
		f["category"] = category
	}
	return s.events.Find(ctx, docstore.Query{
		Filter: f,
		Sort:   []docstore.SortField{{Field: docstore.FieldCreatedAt, Desc: true}},
		Limit:  limit,
	})
}
