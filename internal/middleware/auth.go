// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package middleware provides HTTP middleware for authentication,
// authorization, request hardening and cross-origin protection.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/olegiv/natours-go/internal/apperr"
	"github.com/olegiv/natours-go/internal/auth"
	"github.com/olegiv/natours-go/internal/docstore"
	"github.com/olegiv/natours-go/internal/handler"
	"github.com/olegiv/natours-go/internal/model"
	"github.com/olegiv/natours-go/internal/service"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

// ContextKeyUser holds the authenticated user document.
const ContextKeyUser ContextKey = "user"

// CookieName is the session cookie.
const CookieName = "jwt"

// Authenticator resolves a session token to its active user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (docstore.Document, error)
}

// Auth builds the authentication middlewares.
type Auth struct {
	authn  Authenticator
	errors handler.Errors
}

// NewAuth creates the authentication middlewares.
func NewAuth(authn Authenticator, errs handler.Errors) *Auth {
	return &Auth{authn: authn, errors: errs}
}

// Protect rejects requests without a valid session. Page requests are
// redirected to the landing page instead.
func (a *Auth) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := a.authn.Authenticate(r.Context(), TokenFromRequest(r))
		if err != nil {
			if isPageRequest(r) {
				http.Redirect(w, r, "/", http.StatusSeeOther)
				return
			}
			a.errors.Write(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// IsLoggedIn attaches the user when the session is valid and otherwise
// continues without one. It never rejects.
func (a *Auth) IsLoggedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := TokenFromRequest(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		user, err := a.authn.Authenticate(r.Context(), token)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// RestrictTo allows only users whose role is in roles. It must run after Protect.
func (a *Auth) RestrictTo(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUser(r)
			if user == nil {
				a.errors.Write(w, r, apperr.Unauthenticated(service.MsgNotLoggedIn))
				return
			}
			role := user.String(model.FieldRole)
			if !auth.IsAuthorized(role, roles...) {
				slog.Warn("access denied",
					"status", http.StatusForbidden,
					"method", r.Method,
					"path", r.URL.Path,
					"user_id", user.ID(),
					"user_role", role,
					"allowed_roles", strings.Join(roles, ","),
				)
				a.errors.Write(w, r, apperr.Forbidden(service.MsgForbidden))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TokenFromRequest returns the session token from the jwt cookie, a lenient
// parse of the raw Cookie header, or a Bearer Authorization header.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	for _, header := range r.Header.Values("Cookie") {
		for _, part := range strings.Split(header, ";") {
			name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
			if ok && name == CookieName && value != "" {
				return strings.Trim(value, `"`)
			}
		}
	}
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

// isPageRequest reports whether r comes from a browser page outside the API.
func isPageRequest(r *http.Request) bool {
	return !strings.HasPrefix(r.URL.Path, "/api/") && strings.Contains(r.Header.Get("Accept"), "text/html")
}

// WithUser returns ctx carrying user.
func WithUser(ctx context.Context, user docstore.Document) context.Context {
	return context.WithValue(ctx, ContextKeyUser, user)
}

// GetUser retrieves the current user from the request context.
// Returns nil if no user is in context.
func GetUser(r *http.Request) docstore.Document {
	user, _ := r.Context().Value(ContextKeyUser).(docstore.Document)
	return user
}

// GetUserID returns the current user's ID, or "" if there is none.
func GetUserID(r *http.Request) string {
	if user := GetUser(r); user != nil {
		return user.ID()
	}
	return ""
}
