package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/olegiv/natours-go/internal/auth"
	"github.com/olegiv/natours-go/internal/cache"
	"github.com/olegiv/natours-go/internal/docstore"
	"github.com/olegiv/natours-go/internal/handler"
	"github.com/olegiv/natours-go/internal/mail"
	"github.com/olegiv/natours-go/internal/model"
	"github.com/olegiv/natours-go/internal/service"
	"github.com/olegiv/natours-go/internal/testutil"
)

const testSecret = "api-test-secret-with-at-least-32-bytes"

var testCSRFKey = []byte("12345678901234567890123456789012")

type testAPI struct {
	router    http.Handler
	catalog   *model.Catalog
	outbox    *mail.Outbox
	responses *cache.Responses
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	hasher := auth.NewHasher(testutil.TestHashCost)
	catalog, store := testutil.MemoryCatalog(t, hasher, nil)

	mem := cache.NewMemory(cache.MemoryOptions{DefaultTTL: time.Hour})
	t.Cleanup(func() { _ = mem.Close() })
	responses := cache.NewResponses(mem, time.Hour)

	outbox := &mail.Outbox{}
	events := service.NewEventService(catalog.Collection(model.Events))
	users := catalog.Collection(model.Users)

	h := NewHandler(Options{
		Catalog: catalog,
		Auth: service.NewAuthService(users, catalog.Resource(model.Users), service.AuthOptions{
			Sessions: auth.NewSessionCodec(testSecret, 24*time.Hour),
			Resets:   auth.NewResetTokens("reset-key-for-tests", 10*time.Minute),
			Hasher:   hasher,
			Mailer:   outbox,
			Events:   events,
		}),
		Profiles:  service.NewUserService(users, catalog.Resource(model.Users), responses),
		Tours:     service.NewTourService(catalog.Collection(model.Tours), catalog.Resource(model.Tours)),
		Ratings:   service.NewRatingService(catalog.Collection(model.Reviews), catalog.Collection(model.Tours), responses),
		Events:    events,
		Responses: responses,
		CookieTTL: 24 * time.Hour,
	})

	return &testAPI{
		router: NewRouter(h, RouterConfig{
			Port:    3000,
			CSRFKey: testCSRFKey,
			Health:  handler.NewHealthHandler(store, mem),
			Quiet:   true,
		}),
		catalog:   catalog,
		outbox:    outbox,
		responses: responses,
	}
}

// do sends a request through the router. A non-empty token is sent as a
// Bearer credential.
func (a *testAPI) do(t *testing.T, method, path string, body any, token string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

// signup registers a user and returns its token and id.
func (a *testAPI) signup(t *testing.T, name, email string) (string, string) {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/v1/users/signup", map[string]any{
		"name":            name,
		"email":           email,
		"password":        "pass1234",
		"passwordConfirm": "pass1234",
	}, "")
	assertStatus(t, rec, http.StatusCreated)
	env := decode(t, rec)
	return env.Token, dataDoc(t, env, "user")["_id"].(string)
}

// signupAs registers a user and grants it role.
func (a *testAPI) signupAs(t *testing.T, role, name, email string) (string, string) {
	t.Helper()
	token, id := a.signup(t, name, email)
	if _, err := a.catalog.Collection(model.Users).FindByIDAndUpdate(context.Background(), id, docstore.Document{model.FieldRole: role}); err != nil {
		t.Fatalf("granting %s: %v", role, err)
	}
	return token, id
}

type envelope struct {
	Status  string                     `json:"status"`
	Token   string                     `json:"token"`
	Results *int                       `json:"results"`
	Data    map[string]json.RawMessage `json:"data"`
	Message string                     `json:"message"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return env
}

func dataDoc(t *testing.T, env envelope, key string) map[string]any {
	t.Helper()
	var doc map[string]any
	if err := json.Unmarshal(env.Data[key], &doc); err != nil {
		t.Fatalf("decoding data.%s: %v", key, err)
	}
	return doc
}

func dataList(t *testing.T, env envelope) []map[string]any {
	t.Helper()
	var docs []map[string]any
	if err := json.Unmarshal(env.Data["data"], &docs); err != nil {
		t.Fatalf("decoding data.data: %v", err)
	}
	return docs
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body %s", rec.Code, want, rec.Body.String())
	}
}

func jwtCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == "jwt" {
			return c
		}
	}
	return nil
}
