// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package docstore

import (
	"fmt"
	"math"
)

// EarthRadiusMeters is the sphere radius used for distance calculations.
const EarthRadiusMeters = 6378100.0

// Point is a longitude/latitude pair.
type Point struct {
	Lng float64
	Lat float64
}

// GeoJSON returns the point as a GeoJSON object.
func (p Point) GeoJSON() map[string]any {
	return map[string]any{"type": "Point", "coordinates": []any{p.Lng, p.Lat}}
}

// WithinSphere builds a $geoWithin/$centerSphere condition. radius is in radians.
func WithinSphere(center Point, radius float64) map[string]any {
	return map[string]any{
		"$geoWithin": map[string]any{
			"$centerSphere": []any{[]any{center.Lng, center.Lat}, radius},
		},
	}
}

// pointOf extracts a Point from a GeoJSON value.
func pointOf(v any) (Point, bool) {
	m, ok := asMap(v)
	if !ok {
		return Point{}, false
	}
	return pointFromCoords(m["coordinates"])
}

func pointFromCoords(v any) (Point, bool) {
	switch c := v.(type) {
	case []any:
		if len(c) != 2 {
			return Point{}, false
		}
		lng, ok1 := toFloat(c[0])
		lat, ok2 := toFloat(c[1])
		return Point{Lng: lng, Lat: lat}, ok1 && ok2
	case []float64:
		if len(c) != 2 {
			return Point{}, false
		}
		return Point{Lng: c[0], Lat: c[1]}, true
	}
	return Point{}, false
}

// angularDistance returns the great-circle distance between a and b in radians.
func angularDistance(a, b Point) float64 {
	lat1, lat2 := a.Lat*math.Pi/180, b.Lat*math.Pi/180
	dLat := lat2 - lat1
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func withinSphere(val, operand any) (bool, error) {
	spec, ok := asMap(operand)
	if !ok {
		return false, fmt.Errorf("%w: $geoWithin expects a shape", ErrInvalidFilter)
	}
	sphere, ok := spec["$centerSphere"].([]any)
	if !ok || len(sphere) != 2 {
		return false, fmt.Errorf("%w: only $centerSphere is supported", ErrInvalidFilter)
	}
	center, ok := pointFromCoords(sphere[0])
	if !ok {
		return false, fmt.Errorf("%w: invalid $centerSphere center", ErrInvalidFilter)
	}
	radius, ok := toFloat(sphere[1])
	if !ok {
		return false, fmt.Errorf("%w: invalid $centerSphere radius", ErrInvalidFilter)
	}

	p, ok := pointOf(val)
	if !ok {
		return false, nil
	}
	return angularDistance(center, p) <= radius, nil
}
