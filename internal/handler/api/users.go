// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/natours-go/internal/apperr"
	"github.com/olegiv/natours-go/internal/handler"
	"github.com/olegiv/natours-go/internal/middleware"
)

// MsgUseSignup answers POST /users.
const MsgUseSignup = "This route is not defined! Please use /signup instead"

// GetMe handles GET /users/me as a get-by-id of the current user.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		rctx.URLParams.Add("id", middleware.GetUserID(r))
	}
	h.users.Get(w, r)
}

// UpdateMe handles PATCH /users/updateMe.
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	body, err := handler.DecodeBody(r)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	user, err := h.opts.Profiles.UpdateMe(r.Context(), middleware.GetUserID(r), body)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	handler.WriteData(w, http.StatusOK, "user", user)
}

// DeleteMe handles DELETE /users/deleteMe.
func (h *Handler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	if err := h.opts.Profiles.DeleteMe(r.Context(), middleware.GetUserID(r)); err != nil {
		h.errors.Write(w, r, err)
		return
	}
	handler.WriteNoContent(w)
}

// CreateUser handles POST /users, which is replaced by signup.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	h.errors.Write(w, r, &apperr.Error{Kind: apperr.KindUnexpected, Message: MsgUseSignup})
}
