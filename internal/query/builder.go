// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package query turns an untrusted HTTP query string into a structured
// document store query.
//
// A Builder narrows a base query in four independent steps (Filter, Sort,
// LimitFields, Paginate) which may be chained in any order:
//
//	q, err := query.New(r.URL.Query()).Filter().Sort().LimitFields().Paginate().Build()
package query

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/olegiv/natours-go/internal/apperr"
	"github.com/olegiv/natours-go/internal/docstore"
)

// Reserved control parameters.
const (
	ParamPage   = "page"
	ParamLimit  = "limit"
	ParamSort   = "sort"
	ParamFields = "fields"
)

// Defaults applied when the corresponding parameter is absent or malformed.
const (
	DefaultPage  = 1
	DefaultLimit = 100
)

// DefaultSort orders newest first.
var DefaultSort = []docstore.SortField{{Field: docstore.FieldCreatedAt, Desc: true}}

// hiddenFromSelection can never be requested through the fields parameter.
const hiddenFromSelection = "password"

// comparisons maps the accepted suffixes to store operators.
var comparisons = map[string]string{
	"gte": "$gte",
	"gt":  "$gt",
	"lte": "$lte",
	"lt":  "$lt",
}

var reserved = map[string]bool{
	ParamPage:   true,
	ParamLimit:  true,
	ParamSort:   true,
	ParamFields: true,
}

// Option configures a Builder.
type Option func(*Builder)

// WithBase sets filter conditions that always apply. They take precedence
// over conditions parsed from the query string.
func WithBase(f docstore.Filter) Option {
	return func(b *Builder) {
		for k, v := range f {
			b.base[k] = v
		}
	}
}

// WithMultiValue lists fields whose repeated parameters are combined into
// an $in condition. Any other repeated parameter keeps its last value.
func WithMultiValue(fields ...string) Option {
	return func(b *Builder) {
		for _, f := range fields {
			b.multi[f] = true
		}
	}
}

// Builder accumulates a docstore.Query from request parameters.
type Builder struct {
	params *node
	base   docstore.Filter
	multi  map[string]bool
	q      docstore.Query
	err    error
}

// New creates a Builder over params. Without any narrowing step the
// resulting query matches the base filter only.
func New(params url.Values, opts ...Option) *Builder {
	b := &Builder{
		params: parseParams(params),
		base:   docstore.Filter{},
		multi:  map[string]bool{},
	}
	for _, opt := range opts {
		opt(b)
	}
	b.q.Filter = docstore.Filter{}
	for k, v := range b.base {
		b.q.Filter[k] = v
	}
	return b
}

// Filter applies every non-reserved parameter as a condition. Mappings made
// only of comparison suffixes become operators; mappings without any are
// kept as literal equality values. Mixing both is a validation error.
func (b *Builder) Filter() *Builder {
	if b.err != nil {
		return b
	}
	f := docstore.Filter{}
	for _, key := range b.params.order {
		if reserved[key] {
			continue
		}
		n := b.params.children[key]
		if n.isLeaf() {
			f[key] = b.leafCondition(key, n)
			continue
		}
		cond, err := mappingCondition(key, n)
		if err != nil {
			b.err = err
			return b
		}
		f[key] = cond
	}
	for k, v := range b.base {
		f[k] = v
	}
	b.q.Filter = f
	return b
}

func (b *Builder) leafCondition(key string, n *node) any {
	if b.multi[key] && len(n.values) > 1 {
		in := make([]any, len(n.values))
		for i, v := range n.values {
			in[i] = v
		}
		return map[string]any{"$in": in}
	}
	return n.last()
}

func mappingCondition(key string, n *node) (any, error) {
	known, unknown := 0, 0
	for _, name := range n.order {
		if _, ok := comparisons[name]; ok && n.children[name].isLeaf() {
			known++
		} else {
			unknown++
		}
	}
	if known > 0 && unknown > 0 {
		return nil, apperr.Validationf("Invalid query operator for field %s", key)
	}

	if unknown == 0 {
		ops := make(map[string]any, known)
		for _, name := range n.order {
			ops[comparisons[name]] = n.children[name].last()
		}
		return ops, nil
	}
	return literal(n), nil
}

// literal renders a node tree as a plain nested equality value.
func literal(n *node) any {
	if n.isLeaf() {
		return n.last()
	}
	out := make(map[string]any, len(n.children))
	for _, name := range n.order {
		out[name] = literal(n.children[name])
	}
	return out
}

// Sort applies the comma separated sort parameter. Fields prefixed with "-"
// sort descending. Without a sort parameter results are newest first.
func (b *Builder) Sort() *Builder {
	if b.err != nil {
		return b
	}
	var fields []docstore.SortField
	if n, ok := b.params.children[ParamSort]; ok && n.isLeaf() {
		for _, part := range splitList(n.last()) {
			desc := strings.HasPrefix(part, "-")
			name := strings.TrimPrefix(part, "-")
			if name == "" || strings.HasPrefix(name, "$") {
				continue
			}
			fields = append(fields, docstore.SortField{Field: name, Desc: desc})
		}
	}
	if len(fields) == 0 {
		fields = append(fields, DefaultSort...)
	}
	b.q.Sort = withTieBreak(fields)
	return b
}

// withTieBreak appends the identifier so equal keys page deterministically.
func withTieBreak(fields []docstore.SortField) []docstore.SortField {
	for _, f := range fields {
		if f.Field == docstore.FieldID {
			return fields
		}
	}
	return append(fields, docstore.SortField{Field: docstore.FieldID})
}

// LimitFields applies the comma separated fields parameter as a projection.
// Fields prefixed with "-" are excluded instead. The password field is never
// selectable and the version field is always excluded.
func (b *Builder) LimitFields() *Builder {
	if b.err != nil {
		return b
	}
	p := docstore.Projection{Exclude: []string{docstore.FieldVersion}}
	if n, ok := b.params.children[ParamFields]; ok && n.isLeaf() {
		for _, part := range splitList(n.last()) {
			if name, excluded := strings.CutPrefix(part, "-"); excluded {
				if name != "" && name != docstore.FieldVersion {
					p.Exclude = append(p.Exclude, name)
				}
				continue
			}
			if part == hiddenFromSelection || part == docstore.FieldVersion || strings.HasPrefix(part, "$") {
				continue
			}
			p.Include = append(p.Include, part)
		}
	}
	b.q.Projection = p
	return b
}

// Paginate applies page and limit. Values that are not positive integers
// fall back to the defaults. A page whose offset overflows is clamped past
// the end of any collection.
func (b *Builder) Paginate() *Builder {
	if b.err != nil {
		return b
	}
	page := positive(b.params.children[ParamPage], DefaultPage)
	limit := positive(b.params.children[ParamLimit], DefaultLimit)
	if page-1 > math.MaxInt64/limit {
		b.q.Skip = math.MaxInt64
	} else {
		b.q.Skip = (page - 1) * limit
	}
	b.q.Limit = limit
	return b
}

func positive(n *node, def int64) int64 {
	if n == nil || !n.isLeaf() {
		return def
	}
	v, err := strconv.ParseInt(strings.TrimSpace(n.last()), 10, 64)
	if err != nil || v < 1 {
		return def
	}
	return v
}

// Build returns the accumulated query, or the first error from a narrowing step.
func (b *Builder) Build() (docstore.Query, error) {
	if b.err != nil {
		return docstore.Query{}, b.err
	}
	return b.q, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
