// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package scheduler

import (
	"context"
	"fmt"

	"github.com/olegiv/natours-go/internal/model"
)

// ReconcileJob is the name of the rating reconciliation job.
const ReconcileJob = "reconcile-ratings"

// RatingReconciler recomputes the rating aggregates of every tour.
type RatingReconciler interface {
	ReconcileAll(ctx context.Context) (int, error)
}

// EventLogger records system events.
type EventLogger interface {
	LogEvent(ctx context.Context, level, category, message, userID, ipAddress string, metadata map[string]any) error
}

// AddReconciler registers the rating reconciliation job on schedule. Each
// run that fixes at least one tour is recorded in events when set.
func (s *Scheduler) AddReconciler(schedule string, ratings RatingReconciler, events EventLogger) error {
	return s.Add(ReconcileJob, schedule, func(ctx context.Context) error {
		fixed, err := ratings.ReconcileAll(ctx)
		if err != nil {
			return fmt.Errorf("reconciling ratings: %w", err)
		}
		if fixed == 0 {
			return nil
		}

		s.logger.Info("tour ratings reconciled", "tours", fixed)
		if events != nil {
			if err := events.LogEvent(ctx, model.EventLevelInfo, model.EventCategorySystem,
				"Tour ratings reconciled", "", "", map[string]any{"tours": fixed}); err != nil {
				s.logger.Warn("failed to log reconcile event", "error", err)
			}
		}
		return nil
	})
}
