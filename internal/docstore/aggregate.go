// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package docstore

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Pipeline is an ordered list of aggregation stages.
type Pipeline []Stage

// Stage is one aggregation step.
type Stage interface {
	stageName() string
}

// Match keeps documents satisfying Filter.
type Match struct {
	Filter Filter
}

// Unwind emits one document per element of the array at Path.
type Unwind struct {
	Path string
}

// KeyOp transforms the grouping field.
type KeyOp int

// Group key transforms.
const (
	KeyValue KeyOp = iota
	KeyUpper
	KeyMonth
)

// GroupKey selects the grouping value. An empty Field groups everything together.
type GroupKey struct {
	Field string
	Op    KeyOp
}

// AccOp is an accumulator function.
type AccOp int

// Accumulators.
const (
	AccSum AccOp = iota
	AccAvg
	AccMin
	AccMax
	AccPush
)

// Accumulator computes output field Name over input Field. AccSum with an
// empty Field counts documents.
type Accumulator struct {
	Name  string
	Op    AccOp
	Field string
}

// Group collapses documents sharing a key. Output documents carry the key in _id.
type Group struct {
	Key          GroupKey
	Accumulators []Accumulator
}

// SortBy orders documents.
type SortBy struct {
	Fields []SortField
}

// Limit truncates the stream.
type Limit struct {
	N int64
}

// Project reshapes documents.
type Project struct {
	Projection Projection
}

// GeoNear must be the first stage. It orders documents by distance from
// Near on the Key field and stores the distance (meters times Multiplier)
// in DistanceField.
type GeoNear struct {
	Near          Point
	Key           string
	DistanceField string
	Multiplier    float64
	Query         Filter
}

func (Match) stageName() string   { return "$match" }
func (Unwind) stageName() string  { return "$unwind" }
func (Group) stageName() string   { return "$group" }
func (SortBy) stageName() string  { return "$sort" }
func (Limit) stageName() string   { return "$limit" }
func (Project) stageName() string { return "$project" }
func (GeoNear) stageName() string { return "$geoNear" }

// castPipeline casts the filters of Match and GeoNear stages.
func castPipeline(s Schema, p Pipeline) (Pipeline, error) {
	out := make(Pipeline, len(p))
	for i, st := range p {
		switch x := st.(type) {
		case Match:
			f, err := s.CastFilter(x.Filter)
			if err != nil {
				return nil, err
			}
			out[i] = Match{Filter: f}
		case GeoNear:
			if i != 0 {
				return nil, fmt.Errorf("%w: $geoNear must be the first stage", ErrInvalidFilter)
			}
			if x.Query != nil {
				f, err := s.CastFilter(x.Query)
				if err != nil {
					return nil, err
				}
				x.Query = f
			}
			out[i] = x
		default:
			out[i] = st
		}
	}
	return out, nil
}

// runPipeline evaluates a cast pipeline over docs.
func runPipeline(docs []Document, p Pipeline) ([]Document, error) {
	cur := docs
	for _, st := range p {
		var err error
		switch x := st.(type) {
		case Match:
			cur, err = filterDocs(cur, x.Filter)
		case Unwind:
			cur = unwindDocs(cur, strings.TrimPrefix(x.Path, "$"))
		case Group:
			cur = groupDocs(cur, x)
		case SortBy:
			SortDocuments(cur, x.Fields)
		case Limit:
			if x.N >= 0 && int64(len(cur)) > x.N {
				cur = cur[:x.N]
			}
		case Project:
			for i, d := range cur {
				cur[i] = projectDoc(d, x.Projection)
			}
		case GeoNear:
			cur, err = geoNearDocs(cur, x)
		default:
			err = fmt.Errorf("%w: unsupported stage %s", ErrInvalidFilter, st.stageName())
		}
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

func filterDocs(docs []Document, f Filter) ([]Document, error) {
	var out []Document
	for _, d := range docs {
		ok, err := Matches(d, f)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func unwindDocs(docs []Document, path string) []Document {
	var out []Document
	for _, d := range docs {
		items, ok := d[path].([]any)
		if !ok {
			continue
		}
		for _, item := range items {
			c := d.Clone()
			c[path] = cloneValue(item)
			out = append(out, c)
		}
	}
	return out
}

type groupState struct {
	key    any
	sums   map[string]float64
	counts map[string]int
	values map[string]any
	pushes map[string][]any
}

func groupKeyOf(d Document, k GroupKey) any {
	if k.Field == "" {
		return nil
	}
	v, _ := lookup(d, strings.TrimPrefix(k.Field, "$"))
	switch k.Op {
	case KeyUpper:
		if s, ok := v.(string); ok {
			return strings.ToUpper(s)
		}
		return ""
	case KeyMonth:
		if t, ok := v.(time.Time); ok {
			return float64(t.UTC().Month())
		}
		return nil
	}
	return v
}

func groupDocs(docs []Document, g Group) []Document {
	var order []*groupState
	byKey := map[string]*groupState{}

	for _, d := range docs {
		key := groupKeyOf(d, g.Key)
		id := fmt.Sprintf("%T:%v", key, key)
		st, ok := byKey[id]
		if !ok {
			st = &groupState{
				key:    key,
				sums:   map[string]float64{},
				counts: map[string]int{},
				values: map[string]any{},
				pushes: map[string][]any{},
			}
			byKey[id] = st
			order = append(order, st)
		}

		for _, acc := range g.Accumulators {
			if acc.Op == AccSum && acc.Field == "" {
				st.sums[acc.Name]++
				continue
			}
			v, present := lookup(d, strings.TrimPrefix(acc.Field, "$"))
			switch acc.Op {
			case AccSum, AccAvg:
				if f, ok := toFloat(v); ok {
					st.sums[acc.Name] += f
					st.counts[acc.Name]++
				}
			case AccMin, AccMax:
				if !present || v == nil {
					continue
				}
				prev, seen := st.values[acc.Name]
				c := sortCompare(v, prev)
				if !seen || (acc.Op == AccMin && c < 0) || (acc.Op == AccMax && c > 0) {
					st.values[acc.Name] = v
				}
			case AccPush:
				if present {
					st.pushes[acc.Name] = append(st.pushes[acc.Name], cloneValue(v))
				}
			}
		}
	}

	out := make([]Document, 0, len(order))
	for _, st := range order {
		d := Document{FieldID: st.key}
		for _, acc := range g.Accumulators {
			switch acc.Op {
			case AccSum:
				d[acc.Name] = st.sums[acc.Name]
			case AccAvg:
				if n := st.counts[acc.Name]; n > 0 {
					d[acc.Name] = st.sums[acc.Name] / float64(n)
				} else {
					d[acc.Name] = nil
				}
			case AccMin, AccMax:
				d[acc.Name] = st.values[acc.Name]
			case AccPush:
				items := st.pushes[acc.Name]
				if items == nil {
					items = []any{}
				}
				d[acc.Name] = items
			}
		}
		out = append(out, d)
	}
	return out
}

func geoNearDocs(docs []Document, g GeoNear) ([]Document, error) {
	type withDist struct {
		doc  Document
		dist float64
	}
	mult := g.Multiplier
	if mult == 0 {
		mult = 1
	}

	var hits []withDist
	for _, d := range docs {
		if g.Query != nil {
			ok, err := Matches(d, g.Query)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		v, _ := lookup(d, g.Key)
		p, ok := pointOf(v)
		if !ok {
			continue
		}
		meters := angularDistance(g.Near, p) * EarthRadiusMeters
		hits = append(hits, withDist{doc: d, dist: meters})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })

	out := make([]Document, len(hits))
	for i, h := range hits {
		c := h.doc.Clone()
		c[g.DistanceField] = h.dist * mult
		out[i] = c
	}
	return out, nil
}
