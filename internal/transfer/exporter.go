// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package transfer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/olegiv/natours-go/internal/docstore"
	"github.com/olegiv/natours-go/internal/model"
)

// Exporter dumps the catalog into data files.
type Exporter struct {
	catalog *model.Catalog
	logger  *slog.Logger
	now     func() time.Time
}

// NewExporter creates an Exporter.
func NewExporter(catalog *model.Catalog, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{catalog: catalog, logger: logger, now: time.Now}
}

// ExportDir writes one file per collection and a manifest into dir.
// Documents are written as the API presents them, so password hashes and
// reset tokens never leave the store. Deactivated users are included.
func (e *Exporter) ExportDir(ctx context.Context, dir string) (*Manifest, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}

	m := &Manifest{
		Version:    ExportVersion,
		Batch:      uuid.NewString(),
		ExportedAt: e.now().UTC(),
		Counts:     make(map[string]int, len(Collections)),
	}
	for _, name := range Collections {
		resource, coll := e.catalog.Resource(name), e.catalog.Collection(name)
		if resource == nil || coll == nil {
			return nil, fmt.Errorf("collection %s is not in the catalog", name)
		}
		docs, err := coll.Find(ctx, docstore.Query{
			Sort: []docstore.SortField{{Field: docstore.FieldID}},
		})
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}

		out := make([]docstore.Document, len(docs))
		for i, d := range docs {
			out[i] = exported(resource, d)
		}
		if err := writeJSON(filepath.Join(dir, FileName(name)), out); err != nil {
			return nil, err
		}
		m.Counts[name] = len(out)
		e.logger.Info("collection exported", "collection", name, "documents", len(out), "batch", m.Batch)
	}

	if err := writeJSON(filepath.Join(dir, ManifestFile), m); err != nil {
		return nil, err
	}
	return m, nil
}

// exported presents d without the fields the presenter derives.
func exported(r *model.Resource, d docstore.Document) docstore.Document {
	out := r.Present(d)
	delete(out, "id")
	delete(out, "durationWeeks")
	if active, ok := d[model.FieldActive]; ok && r.IsHidden(model.FieldActive) {
		out[model.FieldActive] = active
	}
	return out
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}
