package docstore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

var testTours = Definition{
	Name: "tours",
	Schema: Schema{
		"name":          KindString,
		"price":         KindNumber,
		"duration":      KindNumber,
		"difficulty":    KindString,
		"secretTour":    KindBool,
		"startDates":    KindDates,
		"startLocation": KindObject,
		"guides":        KindRefs,
	},
	Indexes: []Index{
		{Fields: []SortField{{Field: "name"}}, Unique: true},
		{Fields: []SortField{{Field: "startLocation"}}, Geo: true},
	},
}

// storeFactories returns the backends to run the shared suite against. The
// Mongo backend runs only when NATOURS_TEST_MONGO_URI is set.
func storeFactories(t *testing.T) map[string]func(t *testing.T) Store {
	factories := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
	}
	uri := os.Getenv("NATOURS_TEST_MONGO_URI")
	if uri == "" {
		return factories
	}
	factories["mongo"] = func(t *testing.T) Store {
		ctx := context.Background()
		s, err := NewMongoStore(ctx, uri, "natours_test_"+bson.NewObjectID().Hex())
		if err != nil {
			t.Fatalf("NewMongoStore: %v", err)
		}
		t.Cleanup(func() {
			_ = s.Drop(ctx)
			_ = s.Close(ctx)
		})
		return s
	}
	return factories
}

func seedTours(t *testing.T, c Collection) []Document {
	t.Helper()
	ctx := context.Background()
	input := []Document{
		{
			"name": "The Forest Hiker", "price": "397", "duration": 5, "difficulty": "easy",
			"startDates":    []any{"2021-04-25,10:00", "2021-07-20,10:00"},
			"startLocation": map[string]any{"type": "Point", "coordinates": []any{-118.113491, 34.111745}},
		},
		{
			"name": "The Sea Explorer", "price": 497.0, "duration": 7, "difficulty": "medium",
			"startDates":    []any{"2021-04-10,10:00"},
			"startLocation": map[string]any{"type": "Point", "coordinates": []any{-80.185942, 25.774772}},
		},
		{
			"name": "The Snow Adventurer", "price": 997.0, "duration": 4, "difficulty": "difficult",
			"secretTour": true,
		},
	}
	var out []Document
	for _, d := range input {
		got, err := c.Insert(ctx, d)
		if err != nil {
			t.Fatalf("Insert(%v): %v", d["name"], err)
		}
		out = append(out, got)
	}
	return out
}

func byName(docs []Document) map[string]Document {
	out := make(map[string]Document, len(docs))
	for _, d := range docs {
		out[d.String("name")] = d
	}
	return out
}

func names(docs []Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.String("name")
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestCollection(t *testing.T) {
	for backend, newStore := range storeFactories(t) {
		t.Run(backend, func(t *testing.T) {
			t.Run("insert", func(t *testing.T) { testInsert(t, newStore(t)) })
			t.Run("find", func(t *testing.T) { testFind(t, newStore(t)) })
			t.Run("update delete", func(t *testing.T) { testUpdateDelete(t, newStore(t)) })
			t.Run("aggregate", func(t *testing.T) { testAggregate(t, newStore(t)) })
			t.Run("geo", func(t *testing.T) { testGeo(t, newStore(t)) })
		})
	}
}

func testInsert(t *testing.T, s Store) {
	ctx := context.Background()
	c, err := s.Collection(ctx, testTours)
	if err != nil {
		t.Fatalf("Collection: %v", err)
	}

	docs := seedTours(t, c)
	first := docs[0]
	if _, err := bson.ObjectIDFromHex(first.ID()); err != nil {
		t.Errorf("expected ObjectID hex id, got %q", first.ID())
	}
	if _, ok := first.Time(FieldCreatedAt); !ok {
		t.Error("expected createdAt to be set")
	}
	if v, ok := first.Float(FieldVersion); !ok || v != 0 {
		t.Errorf("expected __v 0, got %v", first[FieldVersion])
	}
	if price, _ := first.Float("price"); price != 397 {
		t.Errorf("expected price cast to 397, got %v", first["price"])
	}

	_, err = c.Insert(ctx, Document{"name": "Bad Price Tour", "price": "cheap"})
	var castErr *CastError
	if !errors.As(err, &castErr) {
		t.Fatalf("expected CastError, got %v", err)
	}
	if castErr.Field != "price" || castErr.Error() != "Invalid price: cheap" {
		t.Errorf("unexpected cast error %q", castErr.Error())
	}

	_, err = c.Insert(ctx, Document{"name": "The Forest Hiker", "price": 1.0})
	var dupErr *DuplicateKeyError
	if !errors.As(err, &dupErr) {
		t.Fatalf("expected DuplicateKeyError, got %v", err)
	}
	if len(dupErr.Fields) != 1 || dupErr.Fields[0] != "name" || dupErr.Value != "The Forest Hiker" {
		t.Errorf("unexpected duplicate key error %+v", dupErr)
	}

	n, err := c.Count(ctx, Filter{})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 documents, got %d", n)
	}
}

func testFind(t *testing.T, s Store) {
	ctx := context.Background()
	c, err := s.Collection(ctx, testTours)
	if err != nil {
		t.Fatalf("Collection: %v", err)
	}
	seeded := seedTours(t, c)

	tests := []struct {
		name   string
		filter Filter
		sort   []SortField
		want   []string
	}{
		{
			name:   "cast comparison",
			filter: Filter{"duration": map[string]any{"$gte": "5"}},
			sort:   []SortField{{Field: "price"}},
			want:   []string{"The Forest Hiker", "The Sea Explorer"},
		},
		{
			name:   "literal equality",
			filter: Filter{"difficulty": "easy"},
			want:   []string{"The Forest Hiker"},
		},
		{
			name:   "descending sort",
			filter: Filter{},
			sort:   []SortField{{Field: "price", Desc: true}},
			want:   []string{"The Snow Adventurer", "The Sea Explorer", "The Forest Hiker"},
		},
		{
			name:   "not equal true",
			filter: Filter{"secretTour": map[string]any{"$ne": true}},
			sort:   []SortField{{Field: "price"}},
			want:   []string{"The Forest Hiker", "The Sea Explorer"},
		},
		{
			name:   "in list",
			filter: Filter{"difficulty": map[string]any{"$in": []any{"easy", "difficult"}}},
			sort:   []SortField{{Field: "price"}},
			want:   []string{"The Forest Hiker", "The Snow Adventurer"},
		},
		{
			name:   "exists",
			filter: Filter{"startLocation": map[string]any{"$exists": false}},
			want:   []string{"The Snow Adventurer"},
		},
		{
			name: "or",
			filter: Filter{"$or": []Filter{
				{"price": map[string]any{"$lt": 400}},
				{"price": map[string]any{"$gt": 900}},
			}},
			sort: []SortField{{Field: "price"}},
			want: []string{"The Forest Hiker", "The Snow Adventurer"},
		},
		{
			name:   "by id",
			filter: Filter{FieldID: seeded[1].ID()},
			want:   []string{"The Sea Explorer"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := c.Find(ctx, Query{Filter: tt.filter, Sort: tt.sort})
			if err != nil {
				t.Fatalf("Find: %v", err)
			}
			if got := names(docs); !equalStrings(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("skip limit", func(t *testing.T) {
		docs, err := c.Find(ctx, Query{Sort: []SortField{{Field: "price"}}, Skip: 1, Limit: 1})
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if got := names(docs); !equalStrings(got, []string{"The Sea Explorer"}) {
			t.Errorf("got %v", got)
		}
	})

	t.Run("projection", func(t *testing.T) {
		docs, err := c.Find(ctx, Query{
			Sort:       []SortField{{Field: "price"}},
			Projection: Projection{Include: []string{"name", "price"}, Exclude: []string{FieldVersion}},
		})
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		for _, d := range docs {
			if len(d) != 3 {
				t.Errorf("expected _id, name and price only, got %v", d)
			}
		}

		excluded, err := c.FindByID(ctx, seeded[0].ID(), Projection{Exclude: []string{FieldVersion, "startDates"}})
		if err != nil {
			t.Fatalf("FindByID: %v", err)
		}
		if _, ok := excluded[FieldVersion]; ok {
			t.Error("expected __v to be excluded")
		}
		if _, ok := excluded["startDates"]; ok {
			t.Error("expected startDates to be excluded")
		}
		if excluded.String("difficulty") != "easy" {
			t.Errorf("expected remaining fields, got %v", excluded)
		}
	})

	t.Run("invalid filters", func(t *testing.T) {
		_, err := c.Find(ctx, Query{Filter: Filter{"duration": map[string]any{"$gte": 5, "foo": 1}}})
		if !errors.Is(err, ErrInvalidFilter) {
			t.Errorf("expected ErrInvalidFilter for mixed map, got %v", err)
		}

		_, err = c.Find(ctx, Query{Filter: Filter{"duration": map[string]any{"$gte": "long"}}})
		var castErr *CastError
		if !errors.As(err, &castErr) {
			t.Errorf("expected CastError, got %v", err)
		}
	})

	t.Run("find by id", func(t *testing.T) {
		_, err := c.FindByID(ctx, "not-an-id", Projection{})
		var castErr *CastError
		if !errors.As(err, &castErr) || castErr.Field != FieldID {
			t.Errorf("expected _id CastError, got %v", err)
		}

		_, err = c.FindByID(ctx, bson.NewObjectID().Hex(), Projection{})
		if !IsNotFound(err) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func testUpdateDelete(t *testing.T, s Store) {
	ctx := context.Background()
	c, err := s.Collection(ctx, testTours)
	if err != nil {
		t.Fatalf("Collection: %v", err)
	}
	seeded := seedTours(t, c)
	id := seeded[0].ID()

	updated, err := c.FindByIDAndUpdate(ctx, id, Document{"price": "450", "startDates": nil})
	if err != nil {
		t.Fatalf("FindByIDAndUpdate: %v", err)
	}
	if price, _ := updated.Float("price"); price != 450 {
		t.Errorf("expected price 450, got %v", updated["price"])
	}
	if _, ok := updated["startDates"]; ok {
		t.Error("expected startDates to be unset")
	}
	if updated.String("name") != "The Forest Hiker" {
		t.Errorf("expected name preserved, got %v", updated["name"])
	}

	_, err = c.FindByIDAndUpdate(ctx, id, Document{"name": "The Sea Explorer"})
	var dupErr *DuplicateKeyError
	if !errors.As(err, &dupErr) {
		t.Errorf("expected DuplicateKeyError on update, got %v", err)
	}

	_, err = c.FindByIDAndUpdate(ctx, bson.NewObjectID().Hex(), Document{"price": 1})
	if !IsNotFound(err) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	removed, err := c.FindByIDAndDelete(ctx, id)
	if err != nil {
		t.Fatalf("FindByIDAndDelete: %v", err)
	}
	if removed.ID() != id {
		t.Errorf("expected removed id %s, got %s", id, removed.ID())
	}
	if _, err := c.FindByIDAndDelete(ctx, id); !IsNotFound(err) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}

	n, err := c.DeleteMany(ctx, Filter{"price": map[string]any{"$gt": 900}})
	if err != nil {
		t.Fatalf("DeleteMany: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deleted, got %d", n)
	}
	left, err := c.Count(ctx, Filter{})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if left != 1 {
		t.Errorf("expected 1 left, got %d", left)
	}
}

func testAggregate(t *testing.T, s Store) {
	ctx := context.Background()
	c, err := s.Collection(ctx, testTours)
	if err != nil {
		t.Fatalf("Collection: %v", err)
	}
	seedTours(t, c)

	stats, err := c.Aggregate(ctx, Pipeline{
		Match{Filter: Filter{"price": map[string]any{"$lt": 900}}},
		Group{
			Key: GroupKey{Field: "difficulty", Op: KeyUpper},
			Accumulators: []Accumulator{
				{Name: "numTours", Op: AccSum},
				{Name: "avgPrice", Op: AccAvg, Field: "price"},
				{Name: "maxPrice", Op: AccMax, Field: "price"},
			},
		},
		SortBy{Fields: []SortField{{Field: "avgPrice"}}},
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 groups, got %d: %v", len(stats), stats)
	}
	if stats[0][FieldID] != "EASY" || stats[1][FieldID] != "MEDIUM" {
		t.Errorf("unexpected group keys %v, %v", stats[0][FieldID], stats[1][FieldID])
	}
	if n, _ := stats[0].Float("numTours"); n != 1 {
		t.Errorf("expected numTours 1, got %v", stats[0]["numTours"])
	}
	if avg, _ := stats[1].Float("avgPrice"); avg != 497 {
		t.Errorf("expected avgPrice 497, got %v", stats[1]["avgPrice"])
	}

	plan, err := c.Aggregate(ctx, Pipeline{
		Unwind{Path: "$startDates"},
		Match{Filter: Filter{"startDates": map[string]any{"$gte": "2021-01-01", "$lte": "2021-12-31"}}},
		Group{
			Key: GroupKey{Field: "startDates", Op: KeyMonth},
			Accumulators: []Accumulator{
				{Name: "numTourStarts", Op: AccSum},
				{Name: "tours", Op: AccPush, Field: "name"},
			},
		},
		SortBy{Fields: []SortField{{Field: "numTourStarts", Desc: true}}},
		Limit{N: 12},
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(plan) != 2 {
		t.Fatalf("expected 2 months, got %v", plan)
	}
	if month, _ := toFloat(plan[0][FieldID]); month != 4 {
		t.Errorf("expected April first, got %v", plan[0][FieldID])
	}
	if n, _ := plan[0].Float("numTourStarts"); n != 2 {
		t.Errorf("expected 2 starts in April, got %v", plan[0]["numTourStarts"])
	}
	if tours, _ := plan[0]["tours"].([]any); len(tours) != 2 {
		t.Errorf("expected 2 tour names, got %v", plan[0]["tours"])
	}

	empty, err := c.Aggregate(ctx, Pipeline{Match{Filter: Filter{"difficulty": "none"}}})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected no results, got %v", empty)
	}
}

func testGeo(t *testing.T, s Store) {
	ctx := context.Background()
	c, err := s.Collection(ctx, testTours)
	if err != nil {
		t.Fatalf("Collection: %v", err)
	}
	seedTours(t, c)
	center := Point{Lng: -118.1, Lat: 34.1}

	within, err := c.Find(ctx, Query{Filter: Filter{"startLocation": WithinSphere(center, 500/6378.1)}})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got := names(within); !equalStrings(got, []string{"The Forest Hiker"}) {
		t.Errorf("expected only the nearby tour, got %v", got)
	}

	near, err := c.Aggregate(ctx, Pipeline{
		GeoNear{Near: center, Key: "startLocation", DistanceField: "distance", Multiplier: 0.001},
		Project{Projection: Projection{Include: []string{"name", "distance"}}},
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if got := names(near); !equalStrings(got, []string{"The Forest Hiker", "The Sea Explorer"}) {
		t.Fatalf("unexpected order %v", got)
	}
	byN := byName(near)
	if d, _ := byN["The Forest Hiker"].Float("distance"); d > 5 {
		t.Errorf("expected nearby distance under 5 km, got %v", d)
	}
	if d, _ := byN["The Sea Explorer"].Float("distance"); d < 3000 || d > 4500 {
		t.Errorf("expected cross-country distance, got %v", d)
	}

	_, err = c.Aggregate(ctx, Pipeline{
		Match{Filter: Filter{}},
		GeoNear{Near: center, Key: "startLocation", DistanceField: "distance"},
	})
	if !errors.Is(err, ErrInvalidFilter) {
		t.Errorf("expected ErrInvalidFilter for late $geoNear, got %v", err)
	}
}

func TestMemoryStore_Isolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return fixed })

	c, err := s.Collection(ctx, testTours)
	if err != nil {
		t.Fatalf("Collection: %v", err)
	}
	input := Document{"name": "The Park Camper", "guides": []any{bson.NewObjectID().Hex()}}
	got, err := c.Insert(ctx, input)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, ok := input[FieldID]; ok {
		t.Error("Insert must not modify the caller's document")
	}
	if created, _ := got.Time(FieldCreatedAt); !created.Equal(fixed) {
		t.Errorf("expected createdAt %v, got %v", fixed, created)
	}

	got["name"] = "Changed"
	again, err := c.FindByID(ctx, got.ID(), Projection{})
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if again.String("name") != "The Park Camper" {
		t.Errorf("expected stored copy to be unchanged, got %v", again["name"])
	}

	_, err = c.Insert(ctx, Document{"name": "The Bad Guide", "guides": []any{"12"}})
	var castErr *CastError
	if !errors.As(err, &castErr) || castErr.Field != "guides" {
		t.Errorf("expected guides CastError, got %v", err)
	}
}

func TestCastValue(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		in      any
		want    any
		wantErr bool
	}{
		{"number from string", KindNumber, "4.5", 4.5, false},
		{"number from int", KindNumber, 3, 3.0, false},
		{"number invalid", KindNumber, "abc", nil, true},
		{"bool from string", KindBool, "true", true, false},
		{"bool invalid", KindBool, "maybe", nil, true},
		{"string from number", KindString, 12.0, "12", false},
		{"date from day", KindDate, "2021-06-19", time.Date(2021, 6, 19, 0, 0, 0, 0, time.UTC), false},
		{"date with comma", KindDate, "2021-06-19,10:00", time.Date(2021, 6, 19, 10, 0, 0, 0, time.UTC), false},
		{"date invalid", KindDate, "soon", nil, true},
		{"ref valid", KindRef, "5c88fa8cf4afda39709c2955", "5c88fa8cf4afda39709c2955", false},
		{"ref invalid", KindRef, "xyz", nil, true},
		{"nil passes", KindNumber, nil, nil, false},
		{"any untouched", KindAny, "5", "5", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CastValue(tt.kind, "field", tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !valuesEqual(got, tt.want) {
				t.Errorf("got %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}

func TestSortDocuments_MixedTypes(t *testing.T) {
	docs := []Document{
		{"v": "b"},
		{"v": 2.0},
		{},
		{"v": "a"},
		{"v": 1.0},
	}
	SortDocuments(docs, []SortField{{Field: "v"}})

	want := []any{nil, 1.0, 2.0, "a", "b"}
	for i, d := range docs {
		if !valuesEqual(d["v"], want[i]) {
			t.Errorf("position %d: got %v, want %v", i, d["v"], want[i])
		}
	}
}

func TestDuplicateKeyFrom(t *testing.T) {
	err := errors.New(`E11000 duplicate key error collection: natours.reviews index: tour_1_user_1 dup key: { tour: ObjectId('5c88fa8cf4afda39709c2955'), user: ObjectId('5c8a1dfa2f8fb814b56fa181') }`)
	got := duplicateKeyFrom("reviews", err)
	if len(got.Fields) != 2 || got.Fields[0] != "tour" || got.Fields[1] != "user" {
		t.Errorf("unexpected fields %v", got.Fields)
	}

	single := duplicateKeyFrom("tours", errors.New(`E11000 duplicate key error collection: natours.tours index: name_1 dup key: { name: "The Forest Hiker" }`))
	if single.Value != "The Forest Hiker" {
		t.Errorf("unexpected value %q", single.Value)
	}
}
