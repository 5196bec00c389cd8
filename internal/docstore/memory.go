// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package docstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// MemoryStore is a thread-safe in-memory Store. Documents are copied on the
// way in and out so callers never share state with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
	now         func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]*memoryCollection),
		now:         time.Now,
	}
}

// SetClock overrides the time source used for createdAt defaults.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Collection returns the named collection, creating it on first use.
func (s *MemoryStore) Collection(_ context.Context, def Definition) (Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collections[def.Name]; ok {
		c.def = def
		return c, nil
	}
	c := &memoryCollection{store: s, def: def}
	s.collections[def.Name] = c
	return c, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Close drops all data.
func (s *MemoryStore) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections = make(map[string]*memoryCollection)
	return nil
}

type memoryCollection struct {
	store *MemoryStore
	def   Definition
	docs  []Document
}

func (c *memoryCollection) Name() string   { return c.def.Name }
func (c *memoryCollection) Schema() Schema { return c.def.Schema }

func (c *memoryCollection) Find(ctx context.Context, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := c.def.Schema.CastFilter(q.Filter)
	if err != nil {
		return nil, err
	}

	c.store.mu.RLock()
	matched, err := filterDocs(c.docs, f)
	if err != nil {
		c.store.mu.RUnlock()
		return nil, err
	}
	out := make([]Document, len(matched))
	for i, d := range matched {
		out[i] = d.Clone()
	}
	c.store.mu.RUnlock()

	SortDocuments(out, q.Sort)

	if q.Skip > 0 {
		if q.Skip >= int64(len(out)) {
			out = out[:0]
		} else {
			out = out[q.Skip:]
		}
	}
	if q.Limit > 0 && int64(len(out)) > q.Limit {
		out = out[:q.Limit]
	}

	if !q.Projection.IsZero() {
		for i, d := range out {
			out[i] = projectDoc(d, q.Projection)
		}
	}
	return out, nil
}

func (c *memoryCollection) FindOne(ctx context.Context, f Filter, p Projection) (Document, error) {
	docs, err := c.Find(ctx, Query{Filter: f, Projection: p, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs[0], nil
}

func (c *memoryCollection) FindByID(ctx context.Context, id string, p Projection) (Document, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	return c.FindOne(ctx, Filter{FieldID: id}, p)
}

func (c *memoryCollection) Insert(ctx context.Context, doc Document) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d := doc.Clone()
	if d == nil {
		d = Document{}
	}
	if err := c.def.Schema.CastDocument(d); err != nil {
		return nil, err
	}

	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	if d.ID() == "" {
		d[FieldID] = bson.NewObjectID().Hex()
	}
	if _, ok := d[FieldCreatedAt]; !ok {
		d[FieldCreatedAt] = c.store.now().UTC()
	}
	d[FieldVersion] = 0

	if c.indexOf(d.ID()) >= 0 {
		return nil, &DuplicateKeyError{Collection: c.def.Name, Fields: []string{FieldID}, Value: d.ID()}
	}
	if err := c.checkUnique(d, -1); err != nil {
		return nil, err
	}

	c.docs = append(c.docs, d)
	return d.Clone(), nil
}

func (c *memoryCollection) FindByIDAndUpdate(ctx context.Context, id string, set Document) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validID(id); err != nil {
		return nil, err
	}
	toSet, toUnset := splitUpdate(set.Clone())
	if err := c.def.Schema.CastDocument(toSet); err != nil {
		return nil, err
	}

	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	i := c.indexOf(id)
	if i < 0 {
		return nil, ErrNotFound
	}
	merged := c.docs[i].Clone()
	for k, v := range toSet {
		merged[k] = v
	}
	for _, k := range toUnset {
		delete(merged, k)
	}
	if err := c.checkUnique(merged, i); err != nil {
		return nil, err
	}

	c.docs[i] = merged
	return merged.Clone(), nil
}

func (c *memoryCollection) FindByIDAndDelete(ctx context.Context, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validID(id); err != nil {
		return nil, err
	}

	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	i := c.indexOf(id)
	if i < 0 {
		return nil, ErrNotFound
	}
	removed := c.docs[i]
	c.docs = append(c.docs[:i], c.docs[i+1:]...)
	return removed, nil
}

func (c *memoryCollection) Aggregate(ctx context.Context, p Pipeline) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cast, err := castPipeline(c.def.Schema, p)
	if err != nil {
		return nil, err
	}

	c.store.mu.RLock()
	docs := make([]Document, len(c.docs))
	for i, d := range c.docs {
		docs[i] = d.Clone()
	}
	c.store.mu.RUnlock()

	out, err := runPipeline(docs, cast)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Document{}
	}
	return out, nil
}

func (c *memoryCollection) Count(ctx context.Context, f Filter) (int64, error) {
	docs, err := c.Find(ctx, Query{Filter: f})
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

func (c *memoryCollection) DeleteMany(ctx context.Context, f Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cast, err := c.def.Schema.CastFilter(f)
	if err != nil {
		return 0, err
	}

	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	kept := c.docs[:0]
	var removed int64
	for _, d := range c.docs {
		ok, err := Matches(d, cast)
		if err != nil {
			return 0, err
		}
		if ok {
			removed++
			continue
		}
		kept = append(kept, d)
	}
	c.docs = kept
	return removed, nil
}

func (c *memoryCollection) indexOf(id string) int {
	for i, d := range c.docs {
		if d.ID() == id {
			return i
		}
	}
	return -1
}

// checkUnique enforces unique indexes; documents missing an indexed field are skipped.
func (c *memoryCollection) checkUnique(d Document, self int) error {
	for _, idx := range c.def.Indexes {
		if !idx.Unique {
			continue
		}
		key, ok := indexKey(d, idx)
		if !ok {
			continue
		}
		for i, other := range c.docs {
			if i == self {
				continue
			}
			otherKey, ok := indexKey(other, idx)
			if ok && valuesEqual(key, otherKey) {
				fields := make([]string, len(idx.Fields))
				vals := make([]string, len(key))
				for j, f := range idx.Fields {
					fields[j] = f.Field
					vals[j] = fmt.Sprint(key[j])
				}
				return &DuplicateKeyError{Collection: c.def.Name, Fields: fields, Value: strings.Join(vals, ", ")}
			}
		}
	}
	return nil
}

func indexKey(d Document, idx Index) ([]any, bool) {
	key := make([]any, len(idx.Fields))
	for i, f := range idx.Fields {
		v, ok := lookup(d, f.Field)
		if !ok || v == nil {
			return nil, false
		}
		key[i] = v
	}
	return key, true
}

func validID(id string) error {
	if _, err := bson.ObjectIDFromHex(id); err != nil {
		return &CastError{Field: FieldID, Value: id}
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
