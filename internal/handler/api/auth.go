// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"net/http"
	"time"

	"github.com/olegiv/natours-go/internal/handler"
	"github.com/olegiv/natours-go/internal/middleware"
	"github.com/olegiv/natours-go/internal/model"
	"github.com/olegiv/natours-go/internal/service"
)

// loggedOutValue replaces the session cookie on logout.
const loggedOutValue = "loggedout"

// Signup handles POST /users/signup.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	body, err := handler.DecodeBody(r)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	s, err := h.opts.Auth.Signup(r.Context(), body, baseURL(r)+"/me")
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	h.sendSession(w, r, http.StatusCreated, s)
}

// Login handles POST /users/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	body, err := handler.DecodeBody(r)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	s, err := h.opts.Auth.Login(r.Context(), stringField(body, model.FieldEmail), stringField(body, model.FieldPassword), r.RemoteAddr)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	h.sendSession(w, r, http.StatusOK, s)
}

// Logout handles GET /users/logout by overwriting the session cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.cookie(r, loggedOutValue, 10*time.Second))
	handler.WriteJSON(w, http.StatusOK, handler.Envelope{Status: handler.StatusSuccess})
}

// ForgotPassword handles POST /users/forgotPassword.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	body, err := handler.DecodeBody(r)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	resetURL := func(token string) string {
		return baseURL(r) + "/api/v1/users/resetPassword/" + token
	}
	if err := h.opts.Auth.ForgotPassword(r.Context(), stringField(body, model.FieldEmail), resetURL); err != nil {
		h.errors.Write(w, r, err)
		return
	}
	handler.WriteMessage(w, service.MsgResetTokenEmailed)
}

// ResetPassword handles PATCH /users/resetPassword/{token}.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	body, err := handler.DecodeBody(r)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	s, err := h.opts.Auth.ResetPassword(r.Context(), urlParam(r, "token"),
		stringField(body, model.FieldPassword), stringField(body, model.FieldPasswordConfirm))
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	h.sendSession(w, r, http.StatusOK, s)
}

// UpdateMyPassword handles PATCH /users/updateMyPassword.
func (h *Handler) UpdateMyPassword(w http.ResponseWriter, r *http.Request) {
	body, err := handler.DecodeBody(r)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	s, err := h.opts.Auth.UpdatePassword(r.Context(), middleware.GetUserID(r),
		stringField(body, "passwordCurrent"),
		stringField(body, model.FieldPassword),
		stringField(body, model.FieldPasswordConfirm))
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	h.sendSession(w, r, http.StatusOK, s)
}

// sendSession sets the session cookie and answers with the token and user.
func (h *Handler) sendSession(w http.ResponseWriter, r *http.Request, status int, s *service.Session) {
	http.SetCookie(w, h.cookie(r, s.Token, h.opts.CookieTTL))
	handler.WriteJSON(w, status, handler.Envelope{
		Status: handler.StatusSuccess,
		Token:  s.Token,
		Data:   map[string]any{"user": s.User},
	})
}

func (h *Handler) cookie(r *http.Request, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     middleware.CookieName,
		Value:    value,
		Path:     "/",
		Expires:  h.opts.Now().Add(ttl),
		HttpOnly: true,
		Secure:   h.opts.SecureCookie || r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
	}
}
