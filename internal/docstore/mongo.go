// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package docstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// MongoStore is a Store backed by a MongoDB database.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	now    func() time.Time

	mu          sync.Mutex
	collections map[string]*mongoCollection
}

// NewMongoStore connects to uri and verifies the connection.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}
	return &MongoStore{
		client:      client,
		db:          client.Database(database),
		now:         time.Now,
		collections: make(map[string]*mongoCollection),
	}, nil
}

// Collection returns a handle to the named collection and ensures its
// indexes exist. Indexes are created once per store.
func (s *MongoStore) Collection(ctx context.Context, def Definition) (Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collections[def.Name]; ok {
		return c, nil
	}

	coll := s.db.Collection(def.Name)
	for _, idx := range def.Indexes {
		keys := bson.D{}
		for _, f := range idx.Fields {
			switch {
			case idx.Geo:
				keys = append(keys, bson.E{Key: f.Field, Value: "2dsphere"})
			case f.Desc:
				keys = append(keys, bson.E{Key: f.Field, Value: -1})
			default:
				keys = append(keys, bson.E{Key: f.Field, Value: 1})
			}
		}
		model := mongo.IndexModel{Keys: keys}
		if idx.Unique {
			model.Options = options.Index().SetUnique(true)
		}
		if _, err := coll.Indexes().CreateOne(ctx, model); err != nil {
			return nil, fmt.Errorf("creating index on %s: %w", def.Name, err)
		}
	}

	c := &mongoCollection{store: s, def: def, coll: coll}
	s.collections[def.Name] = c
	return c, nil
}

// Ping checks the primary is reachable.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Drop removes the whole database. Used by tests.
func (s *MongoStore) Drop(ctx context.Context) error {
	s.mu.Lock()
	s.collections = make(map[string]*mongoCollection)
	s.mu.Unlock()
	return s.db.Drop(ctx)
}

type mongoCollection struct {
	store *MongoStore
	def   Definition
	coll  *mongo.Collection
}

func (c *mongoCollection) Name() string   { return c.def.Name }
func (c *mongoCollection) Schema() Schema { return c.def.Schema }

func (c *mongoCollection) Find(ctx context.Context, q Query) ([]Document, error) {
	filter, err := c.filter(q.Filter)
	if err != nil {
		return nil, err
	}

	opts := options.Find()
	if len(q.Sort) > 0 {
		opts.SetSort(sortSpec(q.Sort))
	}
	if !q.Projection.IsZero() {
		opts.SetProjection(projectionSpec(q.Projection))
	}
	if q.Skip > 0 {
		opts.SetSkip(q.Skip)
	}
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}

	cur, err := c.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, c.translate(err)
	}
	var raw []bson.M
	if err := cur.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("reading %s: %w", c.def.Name, err)
	}
	return fromBSONList(raw), nil
}

func (c *mongoCollection) FindOne(ctx context.Context, f Filter, p Projection) (Document, error) {
	filter, err := c.filter(f)
	if err != nil {
		return nil, err
	}
	opts := options.FindOne()
	if !p.IsZero() {
		opts.SetProjection(projectionSpec(p))
	}
	var raw bson.M
	if err := c.coll.FindOne(ctx, filter, opts).Decode(&raw); err != nil {
		return nil, c.translate(err)
	}
	return fromBSON(raw), nil
}

func (c *mongoCollection) FindByID(ctx context.Context, id string, p Projection) (Document, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	return c.FindOne(ctx, Filter{FieldID: id}, p)
}

func (c *mongoCollection) Insert(ctx context.Context, doc Document) (Document, error) {
	d := doc.Clone()
	if d == nil {
		d = Document{}
	}
	if err := c.def.Schema.CastDocument(d); err != nil {
		return nil, err
	}
	if d.ID() == "" {
		d[FieldID] = bson.NewObjectID().Hex()
	}
	if _, ok := d[FieldCreatedAt]; !ok {
		d[FieldCreatedAt] = c.store.now().UTC()
	}
	d[FieldVersion] = 0

	if _, err := c.coll.InsertOne(ctx, c.toBSON(d)); err != nil {
		return nil, c.translate(err)
	}
	return d, nil
}

func (c *mongoCollection) FindByIDAndUpdate(ctx context.Context, id string, set Document) (Document, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	toSet, toUnset := splitUpdate(set.Clone())
	if err := c.def.Schema.CastDocument(toSet); err != nil {
		return nil, err
	}
	if len(toSet) == 0 && len(toUnset) == 0 {
		return c.FindByID(ctx, id, Projection{})
	}

	update := bson.M{}
	if len(toSet) > 0 {
		update["$set"] = c.toBSON(toSet)
	}
	if len(toUnset) > 0 {
		unset := bson.M{}
		for _, k := range toUnset {
			unset[k] = ""
		}
		update["$unset"] = unset
	}

	oid, _ := bson.ObjectIDFromHex(id)
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var raw bson.M
	if err := c.coll.FindOneAndUpdate(ctx, bson.M{FieldID: oid}, update, opts).Decode(&raw); err != nil {
		return nil, c.translate(err)
	}
	return fromBSON(raw), nil
}

func (c *mongoCollection) FindByIDAndDelete(ctx context.Context, id string) (Document, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	oid, _ := bson.ObjectIDFromHex(id)
	var raw bson.M
	if err := c.coll.FindOneAndDelete(ctx, bson.M{FieldID: oid}).Decode(&raw); err != nil {
		return nil, c.translate(err)
	}
	return fromBSON(raw), nil
}

func (c *mongoCollection) Aggregate(ctx context.Context, p Pipeline) ([]Document, error) {
	cast, err := castPipeline(c.def.Schema, p)
	if err != nil {
		return nil, err
	}
	stages := make([]bson.D, 0, len(cast))
	for _, st := range cast {
		s, err := c.stage(st)
		if err != nil {
			return nil, err
		}
		stages = append(stages, s)
	}

	cur, err := c.coll.Aggregate(ctx, stages)
	if err != nil {
		return nil, c.translate(err)
	}
	var raw []bson.M
	if err := cur.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("reading %s aggregate: %w", c.def.Name, err)
	}
	return fromBSONList(raw), nil
}

func (c *mongoCollection) Count(ctx context.Context, f Filter) (int64, error) {
	filter, err := c.filter(f)
	if err != nil {
		return 0, err
	}
	n, err := c.coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, c.translate(err)
	}
	return n, nil
}

func (c *mongoCollection) DeleteMany(ctx context.Context, f Filter) (int64, error) {
	filter, err := c.filter(f)
	if err != nil {
		return 0, err
	}
	res, err := c.coll.DeleteMany(ctx, filter)
	if err != nil {
		return 0, c.translate(err)
	}
	return res.DeletedCount, nil
}

func (c *mongoCollection) filter(f Filter) (bson.M, error) {
	cast, err := c.def.Schema.CastFilter(f)
	if err != nil {
		return nil, err
	}
	return c.filterBSON(cast), nil
}

func (c *mongoCollection) filterBSON(f Filter) bson.M {
	out := bson.M{}
	for key, cond := range f {
		if key == "$or" || key == "$and" {
			clauses, _ := cond.([]Filter)
			list := bson.A{}
			for _, cl := range clauses {
				list = append(list, c.filterBSON(cl))
			}
			out[key] = list
			continue
		}
		if c.def.Schema.KindOf(key).Element() != KindRef {
			out[key] = cond
			continue
		}
		m, ok := asMap(cond)
		if !ok {
			out[key] = refToBSON(cond)
			continue
		}
		ops := bson.M{}
		for op, operand := range m {
			ops[op] = refToBSON(operand)
		}
		out[key] = ops
	}
	return out
}

// toBSON converts reference fields from hex strings to ObjectIDs.
func (c *mongoCollection) toBSON(d Document) bson.M {
	out := bson.M{}
	for k, v := range d {
		if c.def.Schema.KindOf(k).Element() == KindRef {
			out[k] = refToBSON(v)
			continue
		}
		out[k] = v
	}
	return out
}

func (c *mongoCollection) stage(st Stage) (bson.D, error) {
	switch x := st.(type) {
	case Match:
		return bson.D{{Key: "$match", Value: c.filterBSON(x.Filter)}}, nil
	case Unwind:
		path := x.Path
		if !strings.HasPrefix(path, "$") {
			path = "$" + path
		}
		return bson.D{{Key: "$unwind", Value: path}}, nil
	case Group:
		group := bson.D{{Key: FieldID, Value: groupKeySpec(x.Key)}}
		for _, acc := range x.Accumulators {
			group = append(group, bson.E{Key: acc.Name, Value: accumulatorSpec(acc)})
		}
		return bson.D{{Key: "$group", Value: group}}, nil
	case SortBy:
		return bson.D{{Key: "$sort", Value: sortSpec(x.Fields)}}, nil
	case Limit:
		return bson.D{{Key: "$limit", Value: x.N}}, nil
	case Project:
		return bson.D{{Key: "$project", Value: projectionSpec(x.Projection)}}, nil
	case GeoNear:
		spec := bson.D{
			{Key: "near", Value: bson.M{"type": "Point", "coordinates": bson.A{x.Near.Lng, x.Near.Lat}}},
			{Key: "distanceField", Value: x.DistanceField},
			{Key: "spherical", Value: true},
		}
		if x.Key != "" {
			spec = append(spec, bson.E{Key: "key", Value: x.Key})
		}
		if x.Multiplier != 0 {
			spec = append(spec, bson.E{Key: "distanceMultiplier", Value: x.Multiplier})
		}
		if x.Query != nil {
			spec = append(spec, bson.E{Key: "query", Value: c.filterBSON(x.Query)})
		}
		return bson.D{{Key: "$geoNear", Value: spec}}, nil
	}
	return nil, fmt.Errorf("%w: unsupported stage %s", ErrInvalidFilter, st.stageName())
}

func (c *mongoCollection) translate(err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return duplicateKeyFrom(c.def.Name, err)
	}
	return fmt.Errorf("%s: %w", c.def.Name, err)
}

var (
	dupKeyPattern   = regexp.MustCompile(`dup key: \{ (.*) \}`)
	dupFieldPattern = regexp.MustCompile(`(\w+): ("(?:[^"\\]|\\.)*"|[^,]+)`)
)

// duplicateKeyFrom extracts the offending fields from an E11000 message.
func duplicateKeyFrom(collection string, err error) *DuplicateKeyError {
	out := &DuplicateKeyError{Collection: collection}
	m := dupKeyPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return out
	}
	var values []string
	for _, fm := range dupFieldPattern.FindAllStringSubmatch(m[1], -1) {
		out.Fields = append(out.Fields, fm[1])
		values = append(values, strings.Trim(strings.TrimSpace(fm[2]), `"`))
	}
	out.Value = strings.Join(values, ", ")
	return out
}

func refToBSON(v any) any {
	switch x := v.(type) {
	case string:
		if oid, err := bson.ObjectIDFromHex(x); err == nil {
			return oid
		}
		return x
	case []any:
		out := make(bson.A, len(x))
		for i, item := range x {
			out[i] = refToBSON(item)
		}
		return out
	}
	return v
}

func sortSpec(fields []SortField) bson.D {
	out := bson.D{}
	for _, f := range fields {
		dir := 1
		if f.Desc {
			dir = -1
		}
		out = append(out, bson.E{Key: f.Field, Value: dir})
	}
	return out
}

// projectionSpec renders p. Inclusion projections cannot carry exclusions
// other than _id, so excluded fields are removed from the include list.
func projectionSpec(p Projection) bson.M {
	out := bson.M{}
	if len(p.Include) > 0 {
		excluded := make(map[string]bool, len(p.Exclude))
		for _, f := range p.Exclude {
			excluded[f] = true
		}
		for _, f := range p.Include {
			if !excluded[f] {
				out[f] = 1
			}
		}
		if excluded[FieldID] {
			out[FieldID] = 0
		}
		return out
	}
	for _, f := range p.Exclude {
		out[f] = 0
	}
	return out
}

func groupKeySpec(k GroupKey) any {
	if k.Field == "" {
		return nil
	}
	field := "$" + strings.TrimPrefix(k.Field, "$")
	switch k.Op {
	case KeyUpper:
		return bson.M{"$toUpper": field}
	case KeyMonth:
		return bson.M{"$month": field}
	}
	return field
}

func accumulatorSpec(acc Accumulator) bson.M {
	if acc.Op == AccSum && acc.Field == "" {
		return bson.M{"$sum": 1}
	}
	field := "$" + strings.TrimPrefix(acc.Field, "$")
	switch acc.Op {
	case AccAvg:
		return bson.M{"$avg": field}
	case AccMin:
		return bson.M{"$min": field}
	case AccMax:
		return bson.M{"$max": field}
	case AccPush:
		return bson.M{"$push": field}
	}
	return bson.M{"$sum": field}
}

func fromBSONList(raw []bson.M) []Document {
	out := make([]Document, len(raw))
	for i, m := range raw {
		out[i] = fromBSON(m)
	}
	return out
}

func fromBSON(m bson.M) Document {
	out := make(Document, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}

// normalize maps driver types onto the plain values the rest of the
// package works with.
func normalize(v any) any {
	switch x := v.(type) {
	case bson.ObjectID:
		return x.Hex()
	case bson.DateTime:
		return x.Time().UTC()
	case int32:
		return int64(x)
	case bson.M:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = normalize(item)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(x))
		for _, e := range x {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = normalize(item)
		}
		return out
	}
	return v
}

var _ Store = (*MongoStore)(nil)
