// Package logging provides a slog handler that mirrors warnings and errors
// into the events collection for later review.
package logging

import (
	"context"
	"log/slog"
	"strings"

	"github.com/olegiv/natours-go/internal/docstore"
	"github.com/olegiv/natours-go/internal/model"
)

// EventLogHandler is a slog.Handler that wraps another handler and also writes
// WARN and ERROR level logs to the events collection.
type EventLogHandler struct {
	inner  slog.Handler
	events docstore.Collection
	level  slog.Level // Minimum level to forward to the events collection (default: WARN)
	attrs  []slog.Attr
	group  string
}

// NewEventLogHandler creates a new EventLogHandler that wraps the given handler.
// Logs at WARN level and above will be written to both the wrapped handler and events.
func NewEventLogHandler(inner slog.Handler, events docstore.Collection) *EventLogHandler {
	return NewEventLogHandlerWithLevel(inner, events, slog.LevelWarn)
}

// NewEventLogHandlerWithLevel creates a new EventLogHandler with a custom minimum level.
func NewEventLogHandlerWithLevel(inner slog.Handler, events docstore.Collection, level slog.Level) *EventLogHandler {
	return &EventLogHandler{
		inner:  inner,
		events: events,
		level:  level,
	}
}

// Enabled implements slog.Handler.
func (h *EventLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *EventLogHandler) Handle(ctx context.Context, r slog.Record) error {
	// Always forward to the inner handler first
	if err := h.inner.Handle(ctx, r); err != nil {
		return err
	}

	if r.Level >= h.level {
		h.writeEvent(r)
	}

	return nil
}

// WithAttrs implements slog.Handler.
func (h *EventLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := h.clone()
	c.inner = h.inner.WithAttrs(attrs)
	for _, a := range attrs {
		c.attrs = append(c.attrs, h.qualify(a))
	}
	return c
}

// WithGroup implements slog.Handler.
func (h *EventLogHandler) WithGroup(name string) slog.Handler {
	c := h.clone()
	c.inner = h.inner.WithGroup(name)
	if name != "" {
		c.group = h.qualifyKey(name)
	}
	return c
}

func (h *EventLogHandler) clone() *EventLogHandler {
	return &EventLogHandler{
		inner:  h.inner,
		events: h.events,
		level:  h.level,
		attrs:  append([]slog.Attr(nil), h.attrs...),
		group:  h.group,
	}
}

func (h *EventLogHandler) qualifyKey(key string) string {
	if h.group == "" {
		return key
	}
	return h.group + "." + key
}

func (h *EventLogHandler) qualify(a slog.Attr) slog.Attr {
	return slog.Attr{Key: h.qualifyKey(a.Key), Value: a.Value}
}

// writeEvent stores a log record. A background context is used so the event
// is recorded even when the request that logged it has been cancelled.
func (h *EventLogHandler) writeEvent(r slog.Record) {
	all := append([]slog.Attr(nil), h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		all = append(all, h.qualify(a))
		return true
	})

	doc := docstore.Document{
		"level":    slogLevelToEventLevel(r.Level),
		"category": extractCategory(r.Message, all),
		"message":  r.Message,
		"metadata": extractMetadata(all),
	}
	if !r.Time.IsZero() {
		doc[docstore.FieldCreatedAt] = r.Time.UTC()
	}
	_, _ = h.events.Insert(context.Background(), doc)
}

// slogLevelToEventLevel converts a slog.Level to an event level.
func slogLevelToEventLevel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return model.EventLevelError
	case level >= slog.LevelWarn:
		return model.EventLevelWarning
	default:
		return model.EventLevelInfo
	}
}

// extractCategory uses a "category" attribute when present and otherwise
// infers one from the message.
func extractCategory(message string, attrs []slog.Attr) string {
	for _, a := range attrs {
		if a.Key == "category" {
			return a.Value.String()
		}
	}

	msg := strings.ToLower(message)
	switch {
	case strings.Contains(msg, "auth") || strings.Contains(msg, "login") ||
		strings.Contains(msg, "token") || strings.Contains(msg, "password"):
		return model.EventCategoryAuth
	case strings.Contains(msg, "review") || strings.Contains(msg, "rating"):
		return model.EventCategoryReview
	case strings.Contains(msg, "mail") || strings.Contains(msg, "email"):
		return model.EventCategoryMail
	case strings.Contains(msg, "cache"):
		return model.EventCategoryCache
	default:
		return model.EventCategorySystem
	}
}

// extractMetadata collects attributes into a map of strings.
func extractMetadata(attrs []slog.Attr) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, a := range attrs {
		if a.Key == "category" {
			continue
		}
		out[a.Key] = a.Value.Resolve().String()
	}
	return out
}
