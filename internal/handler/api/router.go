// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/olegiv/natours-go/internal/auth"
	"github.com/olegiv/natours-go/internal/handler"
	"github.com/olegiv/natours-go/internal/middleware"
)

// RouterConfig configures the middleware stack around the API.
type RouterConfig struct {
	Development    bool
	Port           int
	TrustedOrigins []string
	// CSRFKey is the 32-byte key of the CSRF cookie.
	CSRFKey []byte
	// RequestTimeout bounds each request. Zero disables it.
	RequestTimeout time.Duration
	// Health is mounted on /health when set.
	Health *handler.HealthHandler
	// Quiet disables request logging.
	Quiet bool
}

// NewRouter mounts every API route on a chi router.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	if !cfg.Quiet {
		r.Use(chimw.Logger)
	}
	r.Use(chimw.Recoverer)
	r.Use(chimw.StripSlashes)
	r.Use(chimw.Compress(5))
	r.Use(chimw.GetHead)
	r.Use(middleware.SecurityHeaders(middleware.DefaultSecurityHeadersConfig(cfg.Development)))
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout, h.errors))
	}

	r.NotFound(h.errors.NotFound)
	r.MethodNotAllowed(h.errors.MethodNotAllowed)

	if cfg.Health != nil {
		r.Get("/health", cfg.Health.Health)
		r.Get("/health/live", cfg.Health.Liveness)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.SanitizeBody(middleware.MaxBodyBytes, h.errors))
		r.Use(middleware.CSRF(middleware.DefaultCSRFConfig(cfg.CSRFKey, cfg.Development, cfg.Port, cfg.TrustedOrigins)))

		r.Route("/tours", h.tourRoutes)
		r.Route("/users", h.userRoutes)
		r.Route("/reviews", h.reviewRoutes)
		r.Route("/events", func(r chi.Router) {
			r.Use(h.gate.Protect, h.gate.RestrictTo(auth.RoleAdmin))
			r.Get("/", h.ListEvents)
			r.Get("/{id}", h.events.Get)
		})
	})

	return r
}

func (h *Handler) tourRoutes(r chi.Router) {
	staff := h.gate.RestrictTo(auth.RoleAdmin, auth.RoleLeadGuide)

	r.With(AliasTopTours).Get("/top-5-cheap", h.tours.List)
	r.Get("/tour-stats", h.TourStats)
	r.With(h.gate.Protect, h.gate.RestrictTo(auth.RoleAdmin, auth.RoleLeadGuide, auth.RoleGuide)).
		Get("/monthly-plan/{year}", h.MonthlyPlan)
	r.Get("/tours-within/{distance}/center/{latlng}/unit/{unit}", h.ToursWithin)
	r.Get("/distances/{latlng}/unit/{unit}", h.Distances)

	r.Get("/", h.tours.List)
	r.With(h.gate.Protect, staff).Post("/", h.tours.Create)

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.tours.Get)
		r.With(h.gate.Protect, staff).Patch("/", h.tours.Update)
		r.With(h.gate.Protect, staff).Delete("/", h.tours.Delete)

		r.Route("/reviews", func(r chi.Router) {
			r.Use(h.gate.Protect)
			r.Get("/", h.tourReviews.List)
			r.With(h.gate.RestrictTo(auth.RoleUser)).Post("/", h.tourReviews.Create)
		})
	})
}

func (h *Handler) userRoutes(r chi.Router) {
	r.Post("/signup", h.Signup)
	r.Post("/login", h.Login)
	r.Get("/logout", h.Logout)
	r.Post("/forgotPassword", h.ForgotPassword)
	r.Patch("/resetPassword/{token}", h.ResetPassword)

	r.Group(func(r chi.Router) {
		r.Use(h.gate.Protect)

		r.Patch("/updateMyPassword", h.UpdateMyPassword)
		r.Get("/me", h.GetMe)
		r.Patch("/updateMe", h.UpdateMe)
		r.Delete("/deleteMe", h.DeleteMe)

		r.Group(func(r chi.Router) {
			r.Use(h.gate.RestrictTo(auth.RoleAdmin))

			r.Get("/", h.users.List)
			r.Post("/", h.CreateUser)
			r.Get("/{id}", h.users.Get)
			r.Patch("/{id}", h.users.Update)
			r.Delete("/{id}", h.users.Delete)
		})
	})
}

func (h *Handler) reviewRoutes(r chi.Router) {
	r.Use(h.gate.Protect)
	authors := h.gate.RestrictTo(auth.RoleUser, auth.RoleAdmin)

	r.Get("/", h.reviews.List)
	r.With(h.gate.RestrictTo(auth.RoleUser)).Post("/", h.reviews.Create)
	r.Get("/{id}", h.reviews.Get)
	r.With(authors).Patch("/{id}", h.reviews.Update)
	r.With(authors).Delete("/{id}", h.reviews.Delete)
}
