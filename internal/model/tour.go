// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"unicode/utf8"

	"github.com/olegiv/natours-go/internal/docstore"
	"github.com/olegiv/natours-go/internal/util"
)

// Collection names.
const (
	Tours   = "tours"
	Users   = "users"
	Reviews = "reviews"
	Events  = "events"
)

// Tour difficulties.
const (
	DifficultyEasy      = "easy"
	DifficultyMedium    = "medium"
	DifficultyDifficult = "difficult"
)

// Difficulties lists the valid tour difficulties.
var Difficulties = []string{DifficultyEasy, DifficultyMedium, DifficultyDifficult}

// Tour rating defaults, also used when the last review is removed.
const (
	DefaultRatingsAverage  = 4.5
	DefaultRatingsQuantity = 0
)

const (
	tourNameMin = 10
	tourNameMax = 40
)

var tourNamePattern = regexp.MustCompile(`^[A-Za-z ]+$`)

// NewTours returns the tours resource.
func NewTours() *Resource {
	return &Resource{
		Definition: docstore.Definition{
			Name: Tours,
			Schema: docstore.Schema{
				"name":            docstore.KindString,
				"slug":            docstore.KindString,
				"duration":        docstore.KindNumber,
				"maxGroupSize":    docstore.KindNumber,
				"difficulty":      docstore.KindString,
				"ratingsAverage":  docstore.KindNumber,
				"ratingsQuantity": docstore.KindNumber,
				"price":           docstore.KindNumber,
				"priceDiscount":   docstore.KindNumber,
				"summary":         docstore.KindString,
				"description":     docstore.KindString,
				"imageCover":      docstore.KindString,
				"images":          docstore.KindStrings,
				"startDates":      docstore.KindDates,
				"secretTour":      docstore.KindBool,
				"startLocation":   docstore.KindObject,
				"locations":       docstore.KindObjects,
				"guides":          docstore.KindRefs,
			},
			Indexes: []docstore.Index{
				{Fields: []docstore.SortField{{Field: "name"}}, Unique: true},
				{Fields: []docstore.SortField{{Field: "price"}, {Field: "ratingsAverage", Desc: true}}},
				{Fields: []docstore.SortField{{Field: "slug"}}},
				{Fields: []docstore.SortField{{Field: "startLocation"}}, Geo: true},
			},
		},
		Writable: []string{
			"name", "duration", "maxGroupSize", "difficulty", "ratingsAverage",
			"ratingsQuantity", "price", "priceDiscount", "summary", "description",
			"imageCover", "images", "startDates", "secretTour", "startLocation",
			"locations", "guides",
		},
		Scope:      docstore.Filter{"secretTour": map[string]any{"$ne": true}},
		MultiValue: []string{"duration", "ratingsQuantity", "ratingsAverage", "maxGroupSize", "difficulty", "price"},
		Populate: []Populate{{
			Field:      "guides",
			Collection: Users,
			Projection: docstore.Projection{Exclude: []string{docstore.FieldVersion, "passwordChangedAt"}},
		}},
		Virtuals:  []Virtual{{Name: "reviews", Collection: Reviews, ForeignField: "tour"}},
		Normalize: normalizeTour,
		Validate:  validateTour,
		Prepare:   prepareTour,
		Decorate:  decorateTour,
	}
}

// RoundRating rounds a rating average to one decimal.
func RoundRating(v float64) float64 {
	return math.Round(v*10) / 10
}

func normalizeTour(doc docstore.Document, creating bool) {
	trimFields(doc, "name", "summary", "description")
	if avg, ok := doc.Float("ratingsAverage"); ok {
		doc["ratingsAverage"] = RoundRating(avg)
	}
	if loc, ok := doc["startLocation"].(map[string]any); ok {
		if _, hasType := loc["type"]; !hasType {
			loc["type"] = "Point"
		}
	}
	if locs, ok := doc["locations"].([]any); ok {
		for _, item := range locs {
			if loc, isMap := item.(map[string]any); isMap {
				if _, hasType := loc["type"]; !hasType {
					loc["type"] = "Point"
				}
			}
		}
	}
	if !creating {
		return
	}
	setDefault(doc, "ratingsAverage", DefaultRatingsAverage)
	setDefault(doc, "ratingsQuantity", float64(DefaultRatingsQuantity))
	setDefault(doc, "secretTour", false)
}

func validateTour(doc, _ docstore.Document) error {
	var v Violations

	if !present(doc, "name") {
		v.Add("name", "A tour must have a name")
	} else {
		name := doc.String("name")
		if n := utf8.RuneCountInString(name); n < tourNameMin || n > tourNameMax {
			v.Add("name", fmt.Sprintf("A tour name must have %d to %d characters", tourNameMin, tourNameMax))
		} else if !tourNamePattern.MatchString(name) {
			v.Add("name", "Tour name must only contain characters")
		}
	}
	if !present(doc, "duration") {
		v.Add("duration", "A tour must have a duration")
	}
	if !present(doc, "maxGroupSize") {
		v.Add("maxGroupSize", "A tour must have a group size")
	}
	if !present(doc, "difficulty") {
		v.Add("difficulty", "A tour must have a difficulty")
	} else if !slices.Contains(Difficulties, doc.String("difficulty")) {
		v.Add("difficulty", "Difficulty is either: easy, medium, difficult")
	}
	if avg, ok := doc.Float("ratingsAverage"); ok && (avg < 1 || avg > 5) {
		v.Add("ratingsAverage", "Rating must be between 1.0 and 5.0")
	}
	price, hasPrice := doc.Float("price")
	if !hasPrice {
		v.Add("price", "A tour must have a price")
	}
	if discount, ok := doc.Float("priceDiscount"); ok && hasPrice && (discount < 0 || discount > price) {
		v.Add("priceDiscount", fmt.Sprintf("Discount price %s should be below the regular price", strconv.FormatFloat(discount, 'f', -1, 64)))
	}
	if !present(doc, "summary") {
		v.Add("summary", "A tour must have a summary")
	}
	if !present(doc, "imageCover") {
		v.Add("imageCover", "A tour must have a cover image")
	}
	if loc, ok := doc["startLocation"].(map[string]any); ok && loc["type"] != "Point" {
		v.Add("startLocation", "Location type must be Point")
	}
	if locs, ok := doc["locations"].([]any); ok {
		for _, item := range locs {
			if loc, isMap := item.(map[string]any); !isMap || loc["type"] != "Point" {
				v.Add("locations", "Location type must be Point")
			}
		}
	}

	return v.Err()
}

func prepareTour(changes, _ docstore.Document) error {
	if name, ok := changes["name"].(string); ok {
		changes["slug"] = util.Slugify(name)
	}
	return nil
}

func decorateTour(doc docstore.Document) {
	withID(doc)
	if d, ok := doc.Float("duration"); ok {
		doc["durationWeeks"] = d / 7
	}
}
