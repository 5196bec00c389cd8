// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package docstore

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Kind is the stored type of a field.
type Kind int

// Field kinds.
const (
	KindAny Kind = iota
	KindString
	KindNumber
	KindBool
	KindDate
	KindRef
	KindStrings
	KindDates
	KindRefs
	KindObject
	KindObjects
)

// Element returns the element kind of an array kind, or the kind itself.
func (k Kind) Element() Kind {
	switch k {
	case KindStrings:
		return KindString
	case KindDates:
		return KindDate
	case KindRefs:
		return KindRef
	case KindObjects:
		return KindObject
	default:
		return k
	}
}

// IsArray reports whether the kind holds a list.
func (k Kind) IsArray() bool {
	return k == KindStrings || k == KindDates || k == KindRefs || k == KindObjects
}

// Schema maps top-level field names to kinds.
type Schema map[string]Kind

// KindOf returns the kind of a field path. Unknown fields are KindAny.
func (s Schema) KindOf(path string) Kind {
	switch path {
	case FieldID:
		return KindRef
	case FieldCreatedAt:
		return KindDate
	case FieldVersion:
		return KindNumber
	}
	if k, ok := s[path]; ok {
		return k
	}
	return KindAny
}

// Has reports whether the schema declares field.
func (s Schema) Has(field string) bool {
	if field == FieldID || field == FieldCreatedAt {
		return true
	}
	_, ok := s[field]
	return ok
}

// dateLayouts are the accepted textual date formats, most specific first.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02,15:04",
	"2006-01-02",
	"2006-01",
	"2006",
}

// CastValue converts v to the kind's stored representation.
func CastValue(kind Kind, field string, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if kind.IsArray() {
		elem := kind.Element()
		items, ok := v.([]any)
		if !ok {
			if ss, isStrings := v.([]string); isStrings {
				items = make([]any, len(ss))
				for i, s := range ss {
					items[i] = s
				}
			} else {
				items = []any{v}
			}
		}
		out := make([]any, len(items))
		for i, item := range items {
			c, err := CastValue(elem, field, item)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	}

	switch kind {
	case KindString:
		switch x := v.(type) {
		case string:
			return x, nil
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64), nil
		case int, int64, bool:
			return fmt.Sprint(x), nil
		}
	case KindNumber:
		switch x := v.(type) {
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err == nil {
				return f, nil
			}
		default:
			if f, ok := toFloat(v); ok {
				return f, nil
			}
		}
	case KindBool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			b, err := strconv.ParseBool(x)
			if err == nil {
				return b, nil
			}
		}
	case KindDate:
		switch x := v.(type) {
		case time.Time:
			return x, nil
		case string:
			for _, layout := range dateLayouts {
				if t, err := time.Parse(layout, x); err == nil {
					return t.UTC(), nil
				}
			}
		case float64:
			return time.UnixMilli(int64(x)).UTC(), nil
		}
	case KindRef:
		if s, ok := v.(string); ok {
			if _, err := bson.ObjectIDFromHex(s); err == nil {
				return s, nil
			}
		}
	default:
		return v, nil
	}
	return nil, &CastError{Field: field, Value: v}
}

// CastDocument converts every declared field of doc to its kind in place.
func (s Schema) CastDocument(doc Document) error {
	for k, v := range doc {
		kind := s.KindOf(k)
		if kind == KindAny || v == nil {
			continue
		}
		c, err := CastValue(kind, k, v)
		if err != nil {
			return err
		}
		doc[k] = c
	}
	return nil
}

// CastFilter returns a copy of f with values converted to field kinds.
// Operator operands are cast individually; literal sub-documents are kept.
func (s Schema) CastFilter(f Filter) (Filter, error) {
	out := make(Filter, len(f))
	for key, cond := range f {
		if key == "$or" || key == "$and" {
			clauses, ok := cond.([]Filter)
			if !ok {
				return nil, fmt.Errorf("%w: %s expects a list of filters", ErrInvalidFilter, key)
			}
			cast := make([]Filter, len(clauses))
			for i, c := range clauses {
				cf, err := s.CastFilter(c)
				if err != nil {
					return nil, err
				}
				cast[i] = cf
			}
			out[key] = cast
			continue
		}
		if strings.HasPrefix(key, "$") {
			return nil, fmt.Errorf("%w: unknown top-level operator %s", ErrInvalidFilter, key)
		}

		kind := s.KindOf(key).Element()
		c, err := castCondition(kind, key, cond)
		if err != nil {
			return nil, err
		}
		out[key] = c
	}
	return out, nil
}

func castCondition(kind Kind, field string, cond any) (any, error) {
	m, isMap := asMap(cond)
	if !isMap {
		return CastValue(kind, field, cond)
	}

	switch operatorKeys(m) {
	case opsNone:
		return cond, nil
	case opsMixed:
		return nil, fmt.Errorf("%w: %s mixes operators and fields", ErrInvalidFilter, field)
	}

	out := make(map[string]any, len(m))
	for op, operand := range m {
		switch op {
		case "$in", "$nin":
			items, ok := operand.([]any)
			if !ok {
				return nil, fmt.Errorf("%w: %s expects a list", ErrInvalidFilter, op)
			}
			cast := make([]any, len(items))
			for i, item := range items {
				c, err := CastValue(kind, field, item)
				if err != nil {
					return nil, err
				}
				cast[i] = c
			}
			out[op] = cast
		case "$exists":
			b, err := CastValue(KindBool, field, operand)
			if err != nil {
				return nil, err
			}
			out[op] = b
		case "$eq", "$ne", "$gt", "$gte", "$lt", "$lte":
			c, err := CastValue(kind, field, operand)
			if err != nil {
				return nil, err
			}
			out[op] = c
		case "$geoWithin":
			out[op] = operand
		default:
			return nil, fmt.Errorf("%w: unsupported operator %s", ErrInvalidFilter, op)
		}
	}
	return out, nil
}

type opsClass int

const (
	opsNone opsClass = iota
	opsAll
	opsMixed
)

func operatorKeys(m map[string]any) opsClass {
	ops, fields := 0, 0
	for k := range m {
		if strings.HasPrefix(k, "$") {
			ops++
		} else {
			fields++
		}
	}
	switch {
	case ops == 0:
		return opsNone
	case fields == 0:
		return opsAll
	default:
		return opsMixed
	}
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Document:
		return map[string]any(m), true
	case Filter:
		return map[string]any(m), true
	}
	return nil, false
}
