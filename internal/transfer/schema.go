// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package transfer loads, wipes and dumps the development data set.
package transfer

import (
	"time"

	"github.com/olegiv/natours-go/internal/model"
)

// ExportVersion is the current version of the export format.
const ExportVersion = "1.0"

// ManifestFile is written next to the collection files by an export.
const ManifestFile = "manifest.json"

// Collections lists the transferred collections in import order: reviews
// reference tours and users.
var Collections = []string{model.Tours, model.Users, model.Reviews}

// FileName returns the data file of a collection.
func FileName(collection string) string {
	return collection + ".json"
}

// Manifest describes an export.
type Manifest struct {
	Version    string         `json:"version"`
	Batch      string         `json:"batch"`
	ExportedAt time.Time      `json:"exported_at"`
	Counts     map[string]int `json:"counts"`
}

// Result summarizes an import.
type Result struct {
	Batch  string
	DryRun bool
	Counts map[string]int
	Errors []Error
}

// Error is a document that could not be imported.
type Error struct {
	Collection string
	Index      int
	ID         string
	Message    string
}

func newResult(batch string, dryRun bool) *Result {
	return &Result{Batch: batch, DryRun: dryRun, Counts: make(map[string]int, len(Collections))}
}

func (r *Result) addError(collection string, index int, id string, err error) {
	r.Errors = append(r.Errors, Error{Collection: collection, Index: index, ID: id, Message: err.Error()})
}

// Total returns the number of imported documents.
func (r *Result) Total() int {
	n := 0
	for _, c := range r.Counts {
		n += c
	}
	return n
}
