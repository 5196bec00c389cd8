// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/olegiv/natours-go/internal/apperr"
	"github.com/olegiv/natours-go/internal/docstore"
	"github.com/olegiv/natours-go/internal/model"
)

// Distance units.
const (
	UnitMiles      = "mi"
	UnitKilometers = "km"
)

// Earth radius in the supported units, used to turn a distance into radians.
const (
	earthRadiusMiles      = 3963.2
	earthRadiusKilometers = 6378.1
)

// MsgBadLatLng rejects a malformed center point.
const MsgBadLatLng = "Please provide latitutr and longitude in the format lat,lng."

// TourService runs the analytic and geospatial tour queries.
type TourService struct {
	tours    docstore.Collection
	resource *model.Resource
}

// NewTourService creates a TourService.
func NewTourService(tours docstore.Collection, resource *model.Resource) *TourService {
	return &TourService{tours: tours, resource: resource}
}

// Stats groups well-rated tours by difficulty.
func (s *TourService) Stats(ctx context.Context) ([]docstore.Document, error) {
	return s.tours.Aggregate(ctx, s.resource.ScopedPipeline(docstore.Pipeline{
		docstore.Match{Filter: docstore.Filter{"ratingsAverage": map[string]any{"$gte": 4.5}}},
		docstore.Group{
			Key: docstore.GroupKey{Field: "difficulty", Op: docstore.KeyUpper},
			Accumulators: []docstore.Accumulator{
				{Name: "numTours", Op: docstore.AccSum},
				{Name: "numRatings", Op: docstore.AccSum, Field: "ratingsQuantity"},
				{Name: "avgRating", Op: docstore.AccAvg, Field: "ratingsAverage"},
				{Name: "avgPrice", Op: docstore.AccAvg, Field: "price"},
				{Name: "minPrice", Op: docstore.AccMin, Field: "price"},
				{Name: "maxPrice", Op: docstore.AccMax, Field: "price"},
			},
		},
		docstore.SortBy{Fields: []docstore.SortField{{Field: "avgPrice"}}},
	}))
}

// MonthlyPlan counts tour starts per month of year, busiest month first.
func (s *TourService) MonthlyPlan(ctx context.Context, year int) ([]docstore.Document, error) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)

	plan, err := s.tours.Aggregate(ctx, s.resource.ScopedPipeline(docstore.Pipeline{
		docstore.Unwind{Path: "startDates"},
		docstore.Match{Filter: docstore.Filter{"startDates": map[string]any{"$gte": from, "$lte": to}}},
		docstore.Group{
			Key: docstore.GroupKey{Field: "startDates", Op: docstore.KeyMonth},
			Accumulators: []docstore.Accumulator{
				{Name: "numTourStarts", Op: docstore.AccSum},
				{Name: "tours", Op: docstore.AccPush, Field: "name"},
			},
		},
		docstore.SortBy{Fields: []docstore.SortField{{Field: "numTourStarts", Desc: true}, {Field: docstore.FieldID}}},
		docstore.Limit{N: 12},
	}))
	if err != nil {
		return nil, err
	}
	for _, d := range plan {
		d["month"] = d[docstore.FieldID]
		delete(d, docstore.FieldID)
	}
	return plan, nil
}

// Within returns the tours starting within distance of center.
func (s *TourService) Within(ctx context.Context, distance float64, center docstore.Point, unit string) ([]docstore.Document, error) {
	radius := distance / earthRadiusKilometers
	if unit == UnitMiles {
		radius = distance / earthRadiusMiles
	}
	docs, err := s.tours.Find(ctx, docstore.Query{
		Filter: s.resource.Scoped(docstore.Filter{"startLocation": docstore.WithinSphere(center, radius)}),
	})
	if err != nil {
		return nil, err
	}
	for i, d := range docs {
		docs[i] = s.resource.Present(d)
	}
	return docs, nil
}

// Distances returns every tour with its distance from center in unit,
// nearest first.
func (s *TourService) Distances(ctx context.Context, center docstore.Point, unit string) ([]docstore.Document, error) {
	multiplier := 0.001
	if unit == UnitMiles {
		multiplier = 0.000621371
	}
	return s.tours.Aggregate(ctx, s.resource.ScopedPipeline(docstore.Pipeline{
		docstore.GeoNear{
			Near:          center,
			Key:           "startLocation",
			DistanceField: "distance",
			Multiplier:    multiplier,
		},
		docstore.Project{Projection: docstore.Projection{Include: []string{"name", "distance"}}},
	}))
}

// ParseLatLng parses a "lat,lng" path segment.
func ParseLatLng(s string) (docstore.Point, error) {
	lat, lng, ok := strings.Cut(s, ",")
	if !ok {
		return docstore.Point{}, apperr.Validation(MsgBadLatLng)
	}
	la, errLat := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	ln, errLng := strconv.ParseFloat(strings.TrimSpace(lng), 64)
	if errLat != nil || errLng != nil || la < -90 || la > 90 || ln < -180 || ln > 180 {
		return docstore.Point{}, apperr.Validation(MsgBadLatLng)
	}
	return docstore.Point{Lng: ln, Lat: la}, nil
}

// ParseDistance parses a positive distance path segment.
func ParseDistance(s string) (float64, error) {
	d, err := strconv.ParseFloat(s, 64)
	if err != nil || d <= 0 {
		return 0, apperr.Validationf("Invalid distance: %s", s)
	}
	return d, nil
}

// ParseYear parses a four-digit year path segment.
func ParseYear(s string) (int, error) {
	y, err := strconv.Atoi(s)
	if err != nil || y < 1000 || y > 9999 {
		return 0, apperr.Validationf("Invalid year: %s", s)
	}
	return y, nil
}

// ParseUnit validates a distance unit.
func ParseUnit(s string) (string, error) {
	switch s {
	case UnitMiles, UnitKilometers:
		return s, nil
	}
	return "", apperr.Validationf("Invalid unit: %s. Use %s or %s", s, UnitMiles, UnitKilometers)
}
