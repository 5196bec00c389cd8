// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package docstore is the document store collaborator: named collections of
// schemaless documents with find/insert/update/delete/aggregate operations.
// Two backends implement it: MongoDB for deployments and an in-memory store
// for tests and local development.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Reserved document fields.
const (
	FieldID        = "_id"
	FieldVersion   = "__v"
	FieldCreatedAt = "createdAt"
)

// ErrNotFound is returned when no document matches.
var ErrNotFound = errors.New("docstore: document not found")

// ErrInvalidFilter is returned for filters the store cannot interpret.
var ErrInvalidFilter = errors.New("docstore: invalid filter")

// CastError reports a value that cannot be converted to its field's kind.
type CastError struct {
	Field string
	Value any
}

func (e *CastError) Error() string {
	return fmt.Sprintf("Invalid %s: %v", e.Field, e.Value)
}

// DuplicateKeyError reports a unique index violation.
type DuplicateKeyError struct {
	Collection string
	Fields     []string
	Value      string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("docstore: duplicate key in %s (%s): %s", e.Collection, strings.Join(e.Fields, ","), e.Value)
}

// Document is a single stored record.
type Document map[string]any

// ID returns the document identifier, or "" if unset.
func (d Document) ID() string {
	s, _ := d[FieldID].(string)
	return s
}

// String returns the string value of key.
func (d Document) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// Float returns the numeric value of key.
func (d Document) Float(key string) (float64, bool) {
	return toFloat(d[key])
}

// Bool returns the boolean value of key; missing keys are false.
func (d Document) Bool(key string) bool {
	b, _ := d[key].(bool)
	return b
}

// Time returns the time value of key.
func (d Document) Time(key string) (time.Time, bool) {
	t, ok := d[key].(time.Time)
	return t, ok
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return cloneValue(map[string]any(d)).(map[string]any)
}

// Filter selects documents. Keys are field paths; values are either literal
// values (equality) or operator maps such as {"$gte": 5}.
type Filter map[string]any

// SortField orders results by one field.
type SortField struct {
	Field string
	Desc  bool
}

// String renders the field in "-field" notation.
func (s SortField) String() string {
	if s.Desc {
		return "-" + s.Field
	}
	return s.Field
}

// Projection selects fields. Include, when non-empty, keeps only the listed
// fields plus the identifier; Exclude removes fields.
type Projection struct {
	Include []string
	Exclude []string
}

// IsZero reports whether the projection selects everything.
func (p Projection) IsZero() bool {
	return len(p.Include) == 0 && len(p.Exclude) == 0
}

// Query is a single find request.
type Query struct {
	Filter     Filter
	Sort       []SortField
	Projection Projection
	Skip       int64
	Limit      int64
}

// Index describes a collection index.
type Index struct {
	Fields []SortField
	Unique bool
	// Geo marks a 2dsphere index on the (single) field.
	Geo bool
}

// Definition names a collection, its field kinds and its indexes.
type Definition struct {
	Name    string
	Schema  Schema
	Indexes []Index
}

// Collection is a handle to one named collection.
type Collection interface {
	Name() string
	Schema() Schema
	Find(ctx context.Context, q Query) ([]Document, error)
	FindOne(ctx context.Context, f Filter, p Projection) (Document, error)
	FindByID(ctx context.Context, id string, p Projection) (Document, error)
	Insert(ctx context.Context, doc Document) (Document, error)
	// FindByIDAndUpdate sets the given fields (nil values unset them) and
	// returns the updated document.
	FindByIDAndUpdate(ctx context.Context, id string, set Document) (Document, error)
	FindByIDAndDelete(ctx context.Context, id string) (Document, error)
	Aggregate(ctx context.Context, p Pipeline) ([]Document, error)
	Count(ctx context.Context, f Filter) (int64, error)
	DeleteMany(ctx context.Context, f Filter) (int64, error)
}

// Store opens collections on a backend.
type Store interface {
	Collection(ctx context.Context, def Definition) (Collection, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// IsNotFound reports whether err is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// splitUpdate separates fields to set from fields to unset.
func splitUpdate(set Document) (Document, []string) {
	toSet := Document{}
	var toUnset []string
	for k, v := range set {
		if k == FieldID {
			continue
		}
		if v == nil {
			toUnset = append(toUnset, k)
			continue
		}
		toSet[k] = v
	}
	return toSet, toUnset
}
