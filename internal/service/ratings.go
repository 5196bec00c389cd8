// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/olegiv/natours-go/internal/cache"
	"github.com/olegiv/natours-go/internal/docstore"
	"github.com/olegiv/natours-go/internal/model"
)

// Rating holds the aggregate rating fields of a tour.
type Rating struct {
	Quantity float64
	Average  float64
}

// RatingService keeps the denormalized rating fields of tours in line with
// their reviews.
type RatingService struct {
	reviews docstore.Collection
	tours   docstore.Collection
	cache   *cache.Responses
}

// NewRatingService creates a RatingService. responses may be nil.
func NewRatingService(reviews, tours docstore.Collection, responses *cache.Responses) *RatingService {
	return &RatingService{reviews: reviews, tours: tours, cache: responses}
}

// Compute aggregates the reviews of a tour. A tour without reviews gets the
// default rating.
func (s *RatingService) Compute(ctx context.Context, tourID string) (Rating, error) {
	stats, err := s.reviews.Aggregate(ctx, docstore.Pipeline{
		docstore.Match{Filter: docstore.Filter{model.FieldTour: tourID}},
		docstore.Group{
			Key: docstore.GroupKey{Field: model.FieldTour},
			Accumulators: []docstore.Accumulator{
				{Name: "nRating", Op: docstore.AccSum},
				{Name: "avgRating", Op: docstore.AccAvg, Field: model.FieldRating},
			},
		},
	})
	if err != nil {
		return Rating{}, fmt.Errorf("aggregating ratings of tour %s: %w", tourID, err)
	}
	if len(stats) == 0 {
		return Rating{Quantity: model.DefaultRatingsQuantity, Average: model.DefaultRatingsAverage}, nil
	}
	return ratingOf(stats[0]), nil
}

// Recompute writes the aggregate rating of a tour. A deleted tour is skipped.
func (s *RatingService) Recompute(ctx context.Context, tourID string) error {
	r, err := s.Compute(ctx, tourID)
	if err != nil {
		return err
	}
	if err := s.write(ctx, tourID, r); err != nil && !docstore.IsNotFound(err) {
		return err
	}
	return nil
}

// AfterReviewWrite recomputes the ratings of the tours referenced by the
// previous and current versions of a review. prev is nil on create, cur is
// nil on delete. Failures are logged and never returned.
func (s *RatingService) AfterReviewWrite(ctx context.Context, prev, cur docstore.Document) {
	seen := map[string]bool{}
	for _, d := range []docstore.Document{prev, cur} {
		id := d.String(model.FieldTour)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if err := s.Recompute(ctx, id); err != nil {
			slog.Error("rating recompute failed", "tour_id", id, "error", err)
		}
	}
}

// ReconcileAll recomputes every tour whose stored rating drifted from its
// reviews and returns the number of tours updated.
func (s *RatingService) ReconcileAll(ctx context.Context) (int, error) {
	stats, err := s.reviews.Aggregate(ctx, docstore.Pipeline{
		docstore.Group{
			Key: docstore.GroupKey{Field: model.FieldTour},
			Accumulators: []docstore.Accumulator{
				{Name: "nRating", Op: docstore.AccSum},
				{Name: "avgRating", Op: docstore.AccAvg, Field: model.FieldRating},
			},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("aggregating ratings: %w", err)
	}
	want := make(map[string]Rating, len(stats))
	for _, st := range stats {
		if id, ok := st[docstore.FieldID].(string); ok {
			want[id] = ratingOf(st)
		}
	}

	tours, err := s.tours.Find(ctx, docstore.Query{
		Projection: docstore.Projection{Include: []string{"ratingsQuantity", "ratingsAverage"}},
	})
	if err != nil {
		return 0, fmt.Errorf("listing tours: %w", err)
	}

	updated := 0
	for _, t := range tours {
		r, ok := want[t.ID()]
		if !ok {
			r = Rating{Quantity: model.DefaultRatingsQuantity, Average: model.DefaultRatingsAverage}
		}
		qty, _ := t.Float("ratingsQuantity")
		avg, _ := t.Float("ratingsAverage")
		if qty == r.Quantity && avg == r.Average {
			continue
		}
		if err := s.write(ctx, t.ID(), r); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

func (s *RatingService) write(ctx context.Context, tourID string, r Rating) error {
	_, err := s.tours.FindByIDAndUpdate(ctx, tourID, docstore.Document{
		"ratingsQuantity": r.Quantity,
		"ratingsAverage":  r.Average,
	})
	if err != nil {
		return fmt.Errorf("updating rating of tour %s: %w", tourID, err)
	}
	s.cache.Invalidate(ctx, model.Tours, tourID)
	return nil
}

func ratingOf(st docstore.Document) Rating {
	n, _ := st.Float("nRating")
	avg, _ := st.Float("avgRating")
	return Rating{Quantity: n, Average: model.RoundRating(avg)}
}
