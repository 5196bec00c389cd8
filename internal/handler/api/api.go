// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package api provides the REST API handlers for tours, users and reviews.
package api

import (
	"net/http"
	"time"

	"github.com/olegiv/natours-go/internal/cache"
	"github.com/olegiv/natours-go/internal/handler"
	"github.com/olegiv/natours-go/internal/middleware"
	"github.com/olegiv/natours-go/internal/model"
	"github.com/olegiv/natours-go/internal/service"
)

// Options holds the dependencies of the API handlers.
type Options struct {
	Catalog   *model.Catalog
	Auth      *service.AuthService
	Profiles  *service.UserService
	Tours     *service.TourService
	Ratings   *service.RatingService
	Events    *service.EventService
	Responses *cache.Responses

	// CookieTTL is the lifetime of the session cookie.
	CookieTTL time.Duration
	// SecureCookie marks the session cookie Secure regardless of the request.
	SecureCookie bool
	Development  bool
	// Now is used for cookie expiry. Defaults to time.Now.
	Now func() time.Time
}

// Handler holds shared dependencies for all API handlers.
type Handler struct {
	opts   Options
	errors handler.Errors
	gate   *middleware.Auth

	tours       *Factory
	users       *Factory
	reviews     *Factory
	tourReviews *Factory
	events      *Factory
}

// NewHandler creates the API handlers.
func NewHandler(opts Options) *Handler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	errs := handler.Errors{Development: opts.Development}
	h := &Handler{
		opts:   opts,
		errors: errs,
		gate:   middleware.NewAuth(opts.Auth, errs),
	}

	h.tours = NewFactory(opts.Catalog, model.Tours, errs, WithCache(opts.Responses))
	h.users = NewFactory(opts.Catalog, model.Users, errs, WithCache(opts.Responses))
	h.reviews = NewFactory(opts.Catalog, model.Reviews, errs,
		WithBodyDefaults(setTourUserIDs("")),
		WithAfterWrite(opts.Ratings.AfterReviewWrite),
	)
	// Reviews nested under /tours/{id}/reviews.
	h.tourReviews = NewFactory(opts.Catalog, model.Reviews, errs,
		WithListScope("id", model.FieldTour),
		WithBodyDefaults(setTourUserIDs("id")),
		WithAfterWrite(opts.Ratings.AfterReviewWrite),
	)
	h.events = NewFactory(opts.Catalog, model.Events, errs)
	return h
}

// Gate returns the authentication middlewares.
func (h *Handler) Gate() *middleware.Auth {
	return h.gate
}

// Errors returns the error translator.
func (h *Handler) Errors() handler.Errors {
	return h.errors
}

// setTourUserIDs defaults the tour of a review to the route parameter
// tourParam, when set, and its author to the current user.
func setTourUserIDs(tourParam string) func(r *http.Request, body map[string]any) {
	return func(r *http.Request, body map[string]any) {
		if _, ok := body[model.FieldTour]; !ok && tourParam != "" {
			if tourID := urlParam(r, tourParam); tourID != "" {
				body[model.FieldTour] = tourID
			}
		}
		if _, ok := body[model.FieldUser]; !ok {
			if userID := middleware.GetUserID(r); userID != "" {
				body[model.FieldUser] = userID
			}
		}
	}
}

// stringField returns body[key] when it is a string.
func stringField(body map[string]any, key string) string {
	s, _ := body[key].(string)
	return s
}

// baseURL returns the scheme and host the request was addressed to.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
