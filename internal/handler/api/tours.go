// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"net/http"

	"github.com/olegiv/natours-go/internal/docstore"
	"github.com/olegiv/natours-go/internal/handler"
	"github.com/olegiv/natours-go/internal/query"
	"github.com/olegiv/natours-go/internal/service"
)

// AliasTopTours presets the query of the five best cheap tours.
func AliasTopTours(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		q.Set(query.ParamLimit, "5")
		q.Set(query.ParamSort, "-ratingsAverage,price")
		q.Set(query.ParamFields, "name,price,ratingsAverage,summary,difficulty")
		r.URL.RawQuery = q.Encode()
		next.ServeHTTP(w, r)
	})
}

// TourStats handles GET /tours/tour-stats.
func (h *Handler) TourStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.opts.Tours.Stats(r.Context())
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	handler.WriteData(w, http.StatusOK, "stats", stats)
}

// MonthlyPlan handles GET /tours/monthly-plan/{year}.
func (h *Handler) MonthlyPlan(w http.ResponseWriter, r *http.Request) {
	year, err := service.ParseYear(urlParam(r, "year"))
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	plan, err := h.opts.Tours.MonthlyPlan(r.Context(), year)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	handler.WriteData(w, http.StatusOK, "plan", plan)
}

// ToursWithin handles GET /tours/tours-within/{distance}/center/{latlng}/unit/{unit}.
func (h *Handler) ToursWithin(w http.ResponseWriter, r *http.Request) {
	distance, err := service.ParseDistance(urlParam(r, "distance"))
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	center, unit, ok := h.geoParams(w, r)
	if !ok {
		return
	}
	tours, err := h.opts.Tours.Within(r.Context(), distance, center, unit)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	handler.WriteList(w, tours)
}

// Distances handles GET /tours/distances/{latlng}/unit/{unit}.
func (h *Handler) Distances(w http.ResponseWriter, r *http.Request) {
	center, unit, ok := h.geoParams(w, r)
	if !ok {
		return
	}
	distances, err := h.opts.Tours.Distances(r.Context(), center, unit)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	handler.WriteData(w, http.StatusOK, "data", distances)
}

// geoParams parses the latlng and unit path parameters. On failure the
// error response is already written.
func (h *Handler) geoParams(w http.ResponseWriter, r *http.Request) (docstore.Point, string, bool) {
	center, err := service.ParseLatLng(urlParam(r, "latlng"))
	if err != nil {
		h.errors.Write(w, r, err)
		return docstore.Point{}, "", false
	}
	unit, err := service.ParseUnit(urlParam(r, "unit"))
	if err != nil {
		h.errors.Write(w, r, err)
		return docstore.Point{}, "", false
	}
	return center, unit, true
}
