// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"net/http"
	"strconv"

	"github.com/olegiv/natours-go/internal/apperr"
	"github.com/olegiv/natours-go/internal/handler"
	"github.com/olegiv/natours-go/internal/model"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// ListEvents handles GET /events: the newest entries of the event log,
// optionally narrowed with ?category= and bounded with ?limit=.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit := int64(defaultEventLimit)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 {
			h.errors.Write(w, r, apperr.Validationf("Invalid limit: %s", raw))
			return
		}
		limit = min(n, maxEventLimit)
	}

	events, err := h.opts.Events.Recent(r.Context(), r.URL.Query().Get("category"), limit)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	res := h.opts.Catalog.Resource(model.Events)
	for i, ev := range events {
		events[i] = res.Present(ev)
	}
	handler.WriteList(w, events)
}
