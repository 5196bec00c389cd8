package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/olegiv/natours-go/internal/auth"
	"github.com/olegiv/natours-go/internal/cache"
	"github.com/olegiv/natours-go/internal/docstore"
	"github.com/olegiv/natours-go/internal/mail"
	"github.com/olegiv/natours-go/internal/model"
)

const testSecret = "service-test-secret-with-32-bytes!!"

// testClock is a shared, manually advanced time source.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	ctx       context.Context
	clock     *testClock
	catalog   *model.Catalog
	users     *model.Resource
	hasher    *auth.Hasher
	sessions  *auth.SessionCodec
	outbox    *mail.Outbox
	events    *EventService
	responses *cache.Responses
	auth      *AuthService
	ratings   *RatingService
	profiles  *UserService
	tours     *TourService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	hasher := auth.NewHasher(4)

	users := model.NewUsers(model.UserOptions{Hasher: hasher, Now: clock.Now})
	tours := model.NewTours()
	store := docstore.NewMemoryStore()
	store.SetClock(clock.Now)

	catalog, err := model.OpenCatalog(ctx, store, tours, users, model.NewReviews(), model.NewEvents())
	if err != nil {
		t.Fatalf("OpenCatalog: %v", err)
	}

	sessions := auth.NewSessionCodec(testSecret, 90*24*time.Hour)
	sessions.SetClock(clock.Now)
	outbox := &mail.Outbox{}
	events := NewEventService(catalog.Collection(model.Events))
	events.now = clock.Now

	mem := cache.NewMemory(cache.MemoryOptions{DefaultTTL: time.Hour})
	t.Cleanup(func() { _ = mem.Close() })
	responses := cache.NewResponses(mem, time.Hour)

	return &fixture{
		ctx:       ctx,
		clock:     clock,
		catalog:   catalog,
		users:     users,
		hasher:    hasher,
		sessions:  sessions,
		outbox:    outbox,
		events:    events,
		responses: responses,
		auth: NewAuthService(catalog.Collection(model.Users), users, AuthOptions{
			Sessions: sessions,
			Resets:   auth.NewResetTokens("reset-key-for-tests", 0),
			Hasher:   hasher,
			Mailer:   outbox,
			Events:   events,
			Now:      clock.Now,
		}),
		ratings:  NewRatingService(catalog.Collection(model.Reviews), catalog.Collection(model.Tours), responses),
		profiles: NewUserService(catalog.Collection(model.Users), users, responses),
		tours:    NewTourService(catalog.Collection(model.Tours), tours),
	}
}

// signup creates a user through the auth service.
func (f *fixture) signup(t *testing.T, name, email, password string) *Session {
	t.Helper()
	s, err := f.auth.Signup(f.ctx, map[string]any{
		"name":            name,
		"email":           email,
		"password":        password,
		"passwordConfirm": password,
	}, "http://localhost:3000/me")
	if err != nil {
		t.Fatalf("Signup(%s): %v", email, err)
	}
	return s
}

// insertTour stores a tour after running its create stages.
func (f *fixture) insertTour(t *testing.T, doc docstore.Document) docstore.Document {
	t.Helper()
	r := f.catalog.Resource(model.Tours)
	if err := r.Create(doc); err != nil {
		t.Fatalf("Create tour: %v", err)
	}
	saved, err := f.catalog.Collection(model.Tours).Insert(f.ctx, doc)
	if err != nil {
		t.Fatalf("Insert tour: %v", err)
	}
	return saved
}

func tourDoc(name string, price float64, difficulty string) docstore.Document {
	return docstore.Document{
		"name":         name,
		"duration":     5.0,
		"maxGroupSize": 10.0,
		"difficulty":   difficulty,
		"price":        price,
		"summary":      "A tour",
		"imageCover":   "cover.jpg",
	}
}

// insertReview stores a review and runs the rating hook.
func (f *fixture) insertReview(t *testing.T, tourID, userID string, rating float64) docstore.Document {
	t.Helper()
	doc := docstore.Document{"review": "Nice", "rating": rating, "tour": tourID, "user": userID}
	if err := f.catalog.Resource(model.Reviews).Create(doc); err != nil {
		t.Fatalf("Create review: %v", err)
	}
	saved, err := f.catalog.Collection(model.Reviews).Insert(f.ctx, doc)
	if err != nil {
		t.Fatalf("Insert review: %v", err)
	}
	f.ratings.AfterReviewWrite(f.ctx, nil, saved)
	return saved
}
