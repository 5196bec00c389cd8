// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/natours-go/internal/cache"
	"github.com/olegiv/natours-go/internal/docstore"
	"github.com/olegiv/natours-go/internal/handler"
	"github.com/olegiv/natours-go/internal/model"
	"github.com/olegiv/natours-go/internal/query"
)

// AfterWrite runs after a successful write. prev is nil on create and cur is
// nil on delete.
type AfterWrite func(ctx context.Context, prev, cur docstore.Document)

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithListScope narrows List to documents whose field equals the URL parameter param.
func WithListScope(param, field string) FactoryOption {
	return func(f *Factory) {
		f.listScope[param] = field
	}
}

// WithAfterWrite registers a hook run after create, update and delete.
func WithAfterWrite(fn AfterWrite) FactoryOption {
	return func(f *Factory) {
		f.afterWrite = append(f.afterWrite, fn)
	}
}

// WithBodyDefaults registers a function that may fill in a create body.
func WithBodyDefaults(fn func(r *http.Request, body map[string]any)) FactoryOption {
	return func(f *Factory) {
		f.bodyDefaults = append(f.bodyDefaults, fn)
	}
}

// WithCache caches get-by-id responses. A nil cache disables it.
func WithCache(c *cache.Responses) FactoryOption {
	return func(f *Factory) {
		f.cache = c
	}
}

// Factory produces the CRUD handlers of one resource.
type Factory struct {
	catalog  *model.Catalog
	resource *model.Resource
	coll     docstore.Collection
	errors   handler.Errors
	cache    *cache.Responses

	listScope    map[string]string
	bodyDefaults []func(r *http.Request, body map[string]any)
	afterWrite   []AfterWrite
}

// NewFactory creates the handlers for the named resource of catalog.
func NewFactory(catalog *model.Catalog, name string, errs handler.Errors, opts ...FactoryOption) *Factory {
	f := &Factory{
		catalog:   catalog,
		resource:  catalog.Resource(name),
		coll:      catalog.Collection(name),
		errors:    errs,
		listScope: map[string]string{},
	}
	if f.resource == nil || f.coll == nil {
		panic(fmt.Sprintf("api: resource %q is not in the catalog", name))
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// List handles GET on the collection.
func (f *Factory) List(w http.ResponseWriter, r *http.Request) {
	base := docstore.Filter{}
	for param, field := range f.listScope {
		if v := urlParam(r, param); v != "" {
			base[field] = v
		}
	}

	q, err := query.New(r.URL.Query(),
		query.WithBase(f.resource.Scoped(base)),
		query.WithMultiValue(f.resource.MultiValue...),
	).Filter().Sort().LimitFields().Paginate().Build()
	if err != nil {
		f.errors.Write(w, r, err)
		return
	}

	docs, err := f.coll.Find(r.Context(), q)
	if err != nil {
		f.errors.Write(w, r, err)
		return
	}
	if err := f.catalog.Expand(r.Context(), f.resource, docs, false); err != nil {
		f.errors.Write(w, r, err)
		return
	}
	for i, d := range docs {
		docs[i] = f.resource.Present(d)
	}
	handler.WriteList(w, docs)
}

// Get handles GET on a single document, expanding references and virtuals.
func (f *Factory) Get(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if raw, ok := f.cache.Get(r.Context(), f.coll.Name(), id); ok {
		handler.WriteData(w, http.StatusOK, "data", raw)
		return
	}

	doc, err := f.findVisible(r.Context(), id)
	if err != nil {
		f.errors.Write(w, r, err)
		return
	}
	docs := []docstore.Document{doc}
	if err := f.catalog.Expand(r.Context(), f.resource, docs, true); err != nil {
		f.errors.Write(w, r, err)
		return
	}

	out := f.resource.Present(docs[0])
	f.cache.Put(r.Context(), f.coll.Name(), id, out)
	handler.WriteData(w, http.StatusOK, "data", out)
}

// Create handles POST on the collection.
func (f *Factory) Create(w http.ResponseWriter, r *http.Request) {
	body, err := handler.DecodeBody(r)
	if err != nil {
		f.errors.Write(w, r, err)
		return
	}
	for _, fn := range f.bodyDefaults {
		fn(r, body)
	}

	doc := f.resource.Accept(body)
	if err := f.resource.Create(doc); err != nil {
		f.errors.Write(w, r, err)
		return
	}
	saved, err := f.coll.Insert(r.Context(), doc)
	if err != nil {
		f.errors.Write(w, r, err)
		return
	}

	f.written(r.Context(), nil, saved)
	handler.WriteData(w, http.StatusCreated, "data", f.resource.Present(saved))
}

// Update handles PATCH on a single document. Validation sees the merged document.
func (f *Factory) Update(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	body, err := handler.DecodeBody(r)
	if err != nil {
		f.errors.Write(w, r, err)
		return
	}

	prev, err := f.findVisible(r.Context(), id)
	if err != nil {
		f.errors.Write(w, r, err)
		return
	}

	changes := f.resource.Accept(body)
	updated := prev
	if len(changes) > 0 {
		if err := f.resource.Update(changes, prev); err != nil {
			f.errors.Write(w, r, err)
			return
		}
		if updated, err = f.coll.FindByIDAndUpdate(r.Context(), id, changes); err != nil {
			f.errors.Write(w, r, err)
			return
		}
		f.written(r.Context(), prev, updated)
	}

	handler.WriteData(w, http.StatusOK, "data", f.resource.Present(updated))
}

// Delete handles DELETE on a single document.
func (f *Factory) Delete(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if _, err := f.findVisible(r.Context(), id); err != nil {
		f.errors.Write(w, r, err)
		return
	}

	removed, err := f.coll.FindByIDAndDelete(r.Context(), id)
	if err != nil {
		f.errors.Write(w, r, err)
		return
	}

	f.written(r.Context(), removed, nil)
	handler.WriteNoContent(w)
}

// findVisible loads a document by id within the resource scope.
func (f *Factory) findVisible(ctx context.Context, id string) (docstore.Document, error) {
	return f.coll.FindOne(ctx, f.resource.Scoped(docstore.Filter{docstore.FieldID: id}), docstore.Projection{})
}

func (f *Factory) written(ctx context.Context, prev, cur docstore.Document) {
	id := cur.ID()
	if cur == nil {
		id = prev.ID()
	}
	f.cache.Invalidate(ctx, f.coll.Name(), id)
	for _, fn := range f.afterWrite {
		fn(ctx, prev, cur)
	}
}

func urlParam(r *http.Request, key string) string {
	return chi.URLParam(r, key)
}
