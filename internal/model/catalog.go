// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"context"
	"fmt"

	"github.com/olegiv/natours-go/internal/docstore"
)

// Catalog holds the opened collection of every resource.
type Catalog struct {
	resources   map[string]*Resource
	collections map[string]docstore.Collection
}

// OpenCatalog opens a collection for each resource on store.
func OpenCatalog(ctx context.Context, store docstore.Store, resources ...*Resource) (*Catalog, error) {
	c := &Catalog{
		resources:   make(map[string]*Resource, len(resources)),
		collections: make(map[string]docstore.Collection, len(resources)),
	}
	for _, r := range resources {
		coll, err := store.Collection(ctx, r.Definition)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", r.Name, err)
		}
		c.resources[r.Name] = r
		c.collections[r.Name] = coll
	}
	return c, nil
}

// Resource returns the named resource, or nil.
func (c *Catalog) Resource(name string) *Resource {
	return c.resources[name]
}

// Collection returns the named collection, or nil.
func (c *Catalog) Collection(name string) docstore.Collection {
	return c.collections[name]
}

// Expand replaces reference fields of docs with the referenced documents
// and, when virtuals is set, attaches virtual child lists. Documents are
// modified in place; referenced documents are presented by their own resource.
func (c *Catalog) Expand(ctx context.Context, r *Resource, docs []docstore.Document, virtuals bool) error {
	for _, p := range r.Populate {
		if err := c.populate(ctx, p, docs); err != nil {
			return err
		}
	}
	if !virtuals {
		return nil
	}
	for _, v := range r.Virtuals {
		if err := c.attach(ctx, v, docs); err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalog) populate(ctx context.Context, p Populate, docs []docstore.Document) error {
	target, coll := c.resources[p.Collection], c.collections[p.Collection]
	if target == nil || coll == nil {
		return fmt.Errorf("populating %s: unknown collection %s", p.Field, p.Collection)
	}

	var ids []any
	seen := map[string]bool{}
	for _, d := range docs {
		for _, id := range refIDs(d[p.Field]) {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}

	found, err := coll.Find(ctx, docstore.Query{
		Filter:     target.Scoped(docstore.Filter{docstore.FieldID: map[string]any{"$in": ids}}),
		Projection: p.Projection,
	})
	if err != nil {
		return fmt.Errorf("populating %s: %w", p.Field, err)
	}
	byID := make(map[string]docstore.Document, len(found))
	for _, f := range found {
		byID[f.ID()] = target.Present(f)
	}

	for _, d := range docs {
		switch v := d[p.Field].(type) {
		case string:
			if ref, ok := byID[v]; ok {
				d[p.Field] = ref
			} else {
				d[p.Field] = nil
			}
		case []any:
			out := make([]any, 0, len(v))
			for _, item := range v {
				if id, ok := item.(string); ok {
					if ref, found := byID[id]; found {
						out = append(out, ref)
					}
				}
			}
			d[p.Field] = out
		}
	}
	return nil
}

func (c *Catalog) attach(ctx context.Context, v Virtual, docs []docstore.Document) error {
	child, coll := c.resources[v.Collection], c.collections[v.Collection]
	if child == nil || coll == nil {
		return fmt.Errorf("attaching %s: unknown collection %s", v.Name, v.Collection)
	}
	for _, d := range docs {
		items, err := coll.Find(ctx, docstore.Query{Filter: child.Scoped(docstore.Filter{v.ForeignField: d.ID()})})
		if err != nil {
			return fmt.Errorf("attaching %s: %w", v.Name, err)
		}
		if err := c.Expand(ctx, child, items, false); err != nil {
			return err
		}
		list := make([]any, len(items))
		for i, item := range items {
			list[i] = child.Present(item)
		}
		d[v.Name] = list
	}
	return nil
}

func refIDs(v any) []string {
	switch x := v.(type) {
	case string:
		return []string{x}
	case []any:
		var out []string
		for _, item := range x {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
