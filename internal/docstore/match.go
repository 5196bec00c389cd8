// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package docstore

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Matches reports whether doc satisfies f. Filter values must already be cast.
func Matches(doc Document, f Filter) (bool, error) {
	for key, cond := range f {
		switch key {
		case "$or", "$and":
			clauses, _ := cond.([]Filter)
			some, all := false, true
			for _, c := range clauses {
				ok, err := Matches(doc, c)
				if err != nil {
					return false, err
				}
				some = some || ok
				all = all && ok
			}
			if key == "$or" && !some || key == "$and" && !all {
				return false, nil
			}
			continue
		}

		val, present := lookup(doc, key)
		ok, err := matchCondition(val, present, cond)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func matchCondition(val any, present bool, cond any) (bool, error) {
	m, isMap := asMap(cond)
	if !isMap {
		return equalsOrContains(val, cond), nil
	}

	switch operatorKeys(m) {
	case opsNone:
		return equalsOrContains(val, cond), nil
	case opsMixed:
		return false, ErrInvalidFilter
	}

	for op, operand := range m {
		var ok bool
		switch op {
		case "$eq":
			ok = equalsOrContains(val, operand)
		case "$ne":
			ok = !equalsOrContains(val, operand)
		case "$gt", "$gte", "$lt", "$lte":
			ok = present && compareOp(val, op, operand)
		case "$in", "$nin":
			items, _ := operand.([]any)
			found := false
			for _, item := range items {
				if equalsOrContains(val, item) {
					found = true
					break
				}
			}
			ok = found == (op == "$in")
		case "$exists":
			want, _ := operand.(bool)
			ok = present == want
		case "$geoWithin":
			var err error
			ok, err = withinSphere(val, operand)
			if err != nil {
				return false, err
			}
		default:
			return false, fmt.Errorf("%w: unsupported operator %s", ErrInvalidFilter, op)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// compareOp applies a range operator; arrays match if any element does.
func compareOp(val any, op string, operand any) bool {
	if items, ok := val.([]any); ok {
		for _, item := range items {
			if compareOp(item, op, operand) {
				return true
			}
		}
		return false
	}

	c, ok := compareSameType(val, operand)
	if !ok {
		return false
	}
	switch op {
	case "$gt":
		return c > 0
	case "$gte":
		return c >= 0
	case "$lt":
		return c < 0
	default:
		return c <= 0
	}
}

// equalsOrContains implements field equality, including array membership.
func equalsOrContains(val, want any) bool {
	if want == nil {
		return val == nil
	}
	if items, ok := val.([]any); ok {
		if _, wantList := want.([]any); wantList && valuesEqual(val, want) {
			return true
		}
		for _, item := range items {
			if valuesEqual(item, want) {
				return true
			}
		}
		return false
	}
	return valuesEqual(val, want)
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !valuesEqual(x[i], y[i]) {
				return false
			}
		}
		return true
	}
	ma, okA := asMap(a)
	mb, okB := asMap(b)
	if okA && okB {
		if len(ma) != len(mb) {
			return false
		}
		for k, v := range ma {
			w, ok := mb[k]
			if !ok || !valuesEqual(v, w) {
				return false
			}
		}
		return true
	}
	return false
}

// compareSameType orders two values of the same comparable type.
func compareSameType(a, b any) (int, bool) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case time.Time:
		y, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return x.Compare(y), true
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

// typeRank follows the store's cross-type sort order.
func typeRank(v any) int {
	if v == nil {
		return 0
	}
	if _, ok := toFloat(v); ok {
		return 1
	}
	switch v.(type) {
	case string:
		return 2
	case map[string]any, Document:
		return 3
	case []any:
		return 4
	case bool:
		return 5
	case time.Time:
		return 6
	}
	return 7
}

func sortCompare(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	c, _ := compareSameType(a, b)
	return c
}

// SortDocuments orders docs in place by fields.
func SortDocuments(docs []Document, fields []SortField) {
	if len(fields) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			a, _ := lookup(docs[i], f.Field)
			b, _ := lookup(docs[j], f.Field)
			c := sortCompare(a, b)
			if c == 0 {
				continue
			}
			if f.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// projectDoc applies p to a copy of doc.
func projectDoc(doc Document, p Projection) Document {
	if len(p.Include) > 0 {
		out := Document{}
		if id, ok := doc[FieldID]; ok {
			out[FieldID] = id
		}
		for _, f := range p.Include {
			if v, ok := doc[f]; ok {
				out[f] = cloneValue(v)
			}
		}
		for _, f := range p.Exclude {
			delete(out, f)
		}
		return out
	}
	out := doc.Clone()
	for _, f := range p.Exclude {
		delete(out, f)
	}
	return out
}

// lookup resolves a dotted path.
func lookup(doc Document, path string) (any, bool) {
	if v, ok := doc[path]; ok {
		return v, true
	}
	if !strings.Contains(path, ".") {
		return nil, false
	}
	var cur any = map[string]any(doc)
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = cloneValue(item)
		}
		return out
	case Document:
		return Document(cloneValue(map[string]any(x)).(map[string]any))
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = cloneValue(item)
		}
		return out
	}
	return v
}
