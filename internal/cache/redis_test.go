package cache

import (
	"context"
	"os"
	"testing"
	"time"
)

// skipIfNoRedis skips the test unless NATOURS_TEST_REDIS_URL is set.
func skipIfNoRedis(t *testing.T) string {
	t.Helper()
	url := os.Getenv("NATOURS_TEST_REDIS_URL")
	if url == "" {
		t.Skip("Skipping Redis tests: NATOURS_TEST_REDIS_URL not set")
	}
	return url
}

func newTestRedis(t *testing.T) *Redis {
	t.Helper()
	url := skipIfNoRedis(t)

	c, err := NewRedis(context.Background(), RedisOptions{
		URL:            url,
		Prefix:         "natours-test:" + t.Name() + ":",
		DefaultTTL:     time.Minute,
		ConnectTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("failed to create Redis cache: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Clear(context.Background())
		_ = c.Close()
	})
	return c
}

func TestRedis_Basic(t *testing.T) {
	c := newTestRedis(t)
	ctx := context.Background()

	if err := c.Set(ctx, "tours:1", []byte("payload"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := c.Get(ctx, "tours:1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("Get = %q, want payload", got)
	}

	if err := c.Delete(ctx, "tours:1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := c.Get(ctx, "tours:1"); err != ErrCacheMiss {
		t.Errorf("expected ErrCacheMiss, got %v", err)
	}
}

func TestRedis_Expiration(t *testing.T) {
	c := newTestRedis(t)
	ctx := context.Background()

	if err := c.Set(ctx, "short", []byte("v"), 100*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(250 * time.Millisecond)
	if _, err := c.Get(ctx, "short"); err != ErrCacheMiss {
		t.Errorf("expected key to expire, got %v", err)
	}
}

func TestRedis_DeleteByPrefix(t *testing.T) {
	c := newTestRedis(t)
	ctx := context.Background()

	for _, k := range []string{"tours:1", "tours:2", "users:1"} {
		_ = c.Set(ctx, k, []byte(k), 0)
	}
	if err := c.DeleteByPrefix(ctx, "tours:"); err != nil {
		t.Fatalf("DeleteByPrefix failed: %v", err)
	}
	if _, err := c.Get(ctx, "tours:2"); err != ErrCacheMiss {
		t.Error("expected tours:2 to be deleted")
	}
	if _, err := c.Get(ctx, "users:1"); err != nil {
		t.Error("expected users:1 to survive")
	}
	if items := c.Stats().Items; items != 1 {
		t.Errorf("Items = %d, want 1", items)
	}
}

func TestRedis_Close(t *testing.T) {
	url := skipIfNoRedis(t)
	c, err := NewRedis(context.Background(), RedisOptions{URL: url, Prefix: "natours-test-close:"})
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := c.Get(context.Background(), "x"); err != ErrCacheClosed {
		t.Errorf("expected ErrCacheClosed, got %v", err)
	}
	if err := c.Ping(context.Background()); err != ErrCacheClosed {
		t.Errorf("expected ErrCacheClosed from Ping, got %v", err)
	}
}

func TestNewRedis_InvalidURL(t *testing.T) {
	if _, err := NewRedis(context.Background(), RedisOptions{}); err == nil {
		t.Error("expected error for empty URL")
	}
	if _, err := NewRedis(context.Background(), RedisOptions{URL: "http://not-redis"}); err == nil {
		t.Error("expected error for non-redis URL")
	}
}
