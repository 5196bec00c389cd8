// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package model defines the application's resources: the tours, users,
// reviews and events collections together with their schemas, validation
// rules, pre-save stages, read scopes and reference expansion.
package model

import (
	"slices"
	"strings"

	"github.com/olegiv/natours-go/internal/apperr"
	"github.com/olegiv/natours-go/internal/docstore"
)

// Populate expands a reference field with documents from another collection.
type Populate struct {
	Field      string
	Collection string
	Projection docstore.Projection
}

// Virtual attaches child documents whose ForeignField references the parent.
type Virtual struct {
	Name         string
	Collection   string
	ForeignField string
}

// Resource describes one collection and the explicit stages applied to
// documents on their way in and out of the store.
type Resource struct {
	docstore.Definition

	// Writable lists the fields accepted from request bodies.
	Writable []string
	// Hidden fields are removed from every presented document.
	Hidden []string
	// Scope is applied to every read.
	Scope docstore.Filter
	// MultiValue fields may repeat in a query string.
	MultiValue []string

	Populate []Populate
	// Virtuals are expanded on single-document reads only.
	Virtuals []Virtual

	// Normalize applies setters and, when creating, defaults.
	Normalize func(changes docstore.Document, creating bool)
	// Validate checks the merged document; changes holds the written fields.
	Validate func(doc, changes docstore.Document) error
	// Prepare runs pre-save stages on changes; prev is nil on create.
	Prepare func(changes, prev docstore.Document) error
	// Decorate adds derived read-only fields.
	Decorate func(doc docstore.Document)
}

// Accept keeps the writable fields of a request body.
func (r *Resource) Accept(body map[string]any) docstore.Document {
	out := docstore.Document{}
	for _, f := range r.Writable {
		if v, ok := body[f]; ok {
			out[f] = v
		}
	}
	return out
}

// Scoped returns f narrowed by the resource scope. Scope conditions win.
func (r *Resource) Scoped(f docstore.Filter) docstore.Filter {
	out := docstore.Filter{}
	for k, v := range f {
		out[k] = v
	}
	for k, v := range r.Scope {
		out[k] = v
	}
	return out
}

// ScopedPipeline prepends the read scope to an aggregation. A leading
// $geoNear stage carries the scope in its own query instead.
func (r *Resource) ScopedPipeline(p docstore.Pipeline) docstore.Pipeline {
	if len(r.Scope) == 0 {
		return p
	}
	if len(p) > 0 {
		if geo, ok := p[0].(docstore.GeoNear); ok {
			geo.Query = r.Scoped(geo.Query)
			return append(docstore.Pipeline{geo}, p[1:]...)
		}
	}
	return append(docstore.Pipeline{docstore.Match{Filter: r.Scoped(nil)}}, p...)
}

// Present strips hidden and internal fields and adds derived ones.
func (r *Resource) Present(doc docstore.Document) docstore.Document {
	if doc == nil {
		return nil
	}
	out := doc.Clone()
	delete(out, docstore.FieldVersion)
	for _, f := range r.Hidden {
		delete(out, f)
	}
	if r.Decorate != nil {
		r.Decorate(out)
	}
	return out
}

// Create runs the create stages over a new document.
func (r *Resource) Create(doc docstore.Document) error {
	if err := r.Schema.CastDocument(doc); err != nil {
		return err
	}
	if r.Normalize != nil {
		r.Normalize(doc, true)
	}
	if r.Validate != nil {
		if err := r.Validate(doc, doc); err != nil {
			return err
		}
	}
	if r.Prepare != nil {
		return r.Prepare(doc, nil)
	}
	return nil
}

// Seed runs the create stages over an imported document without
// validating it.
func (r *Resource) Seed(doc docstore.Document) error {
	if err := r.Schema.CastDocument(doc); err != nil {
		return err
	}
	if r.Normalize != nil {
		r.Normalize(doc, true)
	}
	if r.Prepare != nil {
		return r.Prepare(doc, nil)
	}
	return nil
}

// Update runs the update stages over changes to prev. Validation sees the
// merged document.
func (r *Resource) Update(changes, prev docstore.Document) error {
	if err := r.Schema.CastDocument(changes); err != nil {
		return err
	}
	if r.Normalize != nil {
		r.Normalize(changes, false)
	}
	if r.Validate != nil {
		merged := prev.Clone()
		for k, v := range changes {
			merged[k] = v
		}
		if err := r.Validate(merged, changes); err != nil {
			return err
		}
	}
	if r.Prepare != nil {
		return r.Prepare(changes, prev)
	}
	return nil
}

// IsHidden reports whether field is never presented.
func (r *Resource) IsHidden(field string) bool {
	return slices.Contains(r.Hidden, field)
}

// Violations collects field validation messages in the order they were found.
type Violations struct {
	fields map[string]string
	order  []string
}

// Add records a message for field. Only the first message per field is kept.
func (v *Violations) Add(field, msg string) {
	if v.fields == nil {
		v.fields = map[string]string{}
	}
	if _, ok := v.fields[field]; ok {
		return
	}
	v.fields[field] = msg
	v.order = append(v.order, field)
}

// Err returns a validation error, or nil when nothing was recorded.
func (v *Violations) Err() error {
	if len(v.order) == 0 {
		return nil
	}
	msgs := make([]string, len(v.order))
	for i, f := range v.order {
		msgs[i] = v.fields[f]
	}
	return apperr.Validation("Invalid input data. " + strings.Join(msgs, ". ")).WithFields(v.fields)
}

func present(doc docstore.Document, field string) bool {
	v, ok := doc[field]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return strings.TrimSpace(s) != ""
	}
	return true
}

func trimFields(doc docstore.Document, fields ...string) {
	for _, f := range fields {
		if s, ok := doc[f].(string); ok {
			doc[f] = strings.TrimSpace(s)
		}
	}
}

func setDefault(doc docstore.Document, field string, v any) {
	if _, ok := doc[field]; !ok {
		doc[field] = v
	}
}

// withID mirrors _id as id for resources exposing virtuals.
func withID(doc docstore.Document) {
	if id := doc.ID(); id != "" {
		doc["id"] = id
	}
}
