// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/olegiv/natours-go/internal/docstore"
	"github.com/olegiv/natours-go/internal/model"
)

// RatingReconciler recomputes tour rating aggregates after reviews are loaded.
type RatingReconciler interface {
	ReconcileAll(ctx context.Context) (int, error)
}

// ImportOptions configures an import.
type ImportOptions struct {
	// DryRun prepares every document without writing.
	DryRun bool
	// StopOnError aborts at the first rejected document.
	StopOnError bool
}

// Importer loads data files into the catalog.
type Importer struct {
	catalog *model.Catalog
	ratings RatingReconciler
	logger  *slog.Logger
}

// NewImporter creates an Importer. ratings may be nil.
func NewImporter(catalog *model.Catalog, ratings RatingReconciler, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{catalog: catalog, ratings: ratings, logger: logger}
}

// ImportDir imports the collection files found in dir. Tours and reviews
// are validated like API writes; users skip validation so that plain
// passwords are hashed without a confirmation.
func (i *Importer) ImportDir(ctx context.Context, dir string, opts ImportOptions) (*Result, error) {
	result := newResult(uuid.NewString(), opts.DryRun)
	logger := i.logger.With("batch", result.Batch)

	for _, name := range Collections {
		docs, err := readFile(filepath.Join(dir, FileName(name)))
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("data file missing, skipping", "collection", name)
			continue
		}
		if err != nil {
			return result, err
		}
		if err := i.importDocs(ctx, name, docs, opts, result); err != nil {
			return result, err
		}
		logger.Info("collection imported", "collection", name, "documents", result.Counts[name])
	}

	if !opts.DryRun && i.ratings != nil && result.Counts[model.Reviews] > 0 {
		if _, err := i.ratings.ReconcileAll(ctx); err != nil {
			return result, fmt.Errorf("reconciling ratings: %w", err)
		}
	}
	return result, nil
}

func (i *Importer) importDocs(ctx context.Context, name string, docs []docstore.Document, opts ImportOptions, result *Result) error {
	resource, coll := i.catalog.Resource(name), i.catalog.Collection(name)
	if resource == nil || coll == nil {
		return fmt.Errorf("collection %s is not in the catalog", name)
	}

	for idx, doc := range docs {
		id := doc.ID()
		prepare := resource.Create
		if name == model.Users {
			prepare = resource.Seed
		}

		err := prepare(doc)
		if err == nil && !opts.DryRun {
			_, err = coll.Insert(ctx, doc)
		}
		if err != nil {
			result.addError(name, idx, id, err)
			if opts.StopOnError {
				return fmt.Errorf("importing %s[%d]: %w", name, idx, err)
			}
			continue
		}
		result.Counts[name]++
	}
	return nil
}

// DeleteAll removes every document of the transferred collections.
func (i *Importer) DeleteAll(ctx context.Context) (map[string]int64, error) {
	removed := make(map[string]int64, len(Collections))
	for _, name := range Collections {
		coll := i.catalog.Collection(name)
		if coll == nil {
			return removed, fmt.Errorf("collection %s is not in the catalog", name)
		}
		n, err := coll.DeleteMany(ctx, docstore.Filter{})
		if err != nil {
			return removed, fmt.Errorf("deleting %s: %w", name, err)
		}
		removed[name] = n
		i.logger.Info("collection deleted", "collection", name, "documents", n)
	}
	return removed, nil
}

func readFile(path string) ([]docstore.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var docs []docstore.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return docs, nil
}
