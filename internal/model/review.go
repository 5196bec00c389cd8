// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"github.com/olegiv/natours-go/internal/docstore"
)

// Review fields.
const (
	FieldReview = "review"
	FieldRating = "rating"
	FieldTour   = "tour"
	FieldUser   = "user"
)

// NewReviews returns the reviews resource. A user may review a tour once.
func NewReviews() *Resource {
	return &Resource{
		Definition: docstore.Definition{
			Name: Reviews,
			Schema: docstore.Schema{
				FieldReview: docstore.KindString,
				FieldRating: docstore.KindNumber,
				FieldTour:   docstore.KindRef,
				FieldUser:   docstore.KindRef,
			},
			Indexes: []docstore.Index{
				{Fields: []docstore.SortField{{Field: FieldTour}, {Field: FieldUser}}, Unique: true},
			},
		},
		Writable:   []string{FieldReview, FieldRating, FieldTour, FieldUser},
		MultiValue: []string{FieldRating},
		Populate: []Populate{{
			Field:      FieldUser,
			Collection: Users,
			Projection: docstore.Projection{Include: []string{"name", "photo"}},
		}},
		Validate: validateReview,
		Decorate: withID,
	}
}

func validateReview(doc, _ docstore.Document) error {
	var v Violations
	if !present(doc, FieldReview) {
		v.Add(FieldReview, "Review can not be empty")
	}
	if rating, ok := doc.Float(FieldRating); ok && (rating < 1 || rating > 5) {
		v.Add(FieldRating, "Rating must be in range between 1 and 5")
	}
	if !present(doc, FieldTour) {
		v.Add(FieldTour, "Review must belong to a tour.")
	}
	if !present(doc, FieldUser) {
		v.Add(FieldUser, "Review must belong to a user.")
	}
	return v.Err()
}
