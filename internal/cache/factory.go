// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"context"
	"log/slog"
	"net/url"
	"time"
)

// Config selects and configures a cache backend.
type Config struct {
	// RedisURL selects the Redis backend when set; otherwise memory is used.
	RedisURL string
	// Prefix namespaces Redis keys.
	Prefix string

	DefaultTTL      time.Duration
	MaxEntries      int
	CleanupInterval time.Duration
}

// DefaultConfig returns an in-memory configuration.
func DefaultConfig() Config {
	return Config{
		Prefix:          "natours:",
		DefaultTTL:      5 * time.Minute,
		MaxEntries:      10000,
		CleanupInterval: time.Minute,
	}
}

// New creates the backend described by cfg.
func New(ctx context.Context, cfg Config) (Cache, error) {
	if cfg.RedisURL == "" {
		return NewMemory(MemoryOptions{
			DefaultTTL:      cfg.DefaultTTL,
			MaxEntries:      cfg.MaxEntries,
			CleanupInterval: cfg.CleanupInterval,
		}), nil
	}

	c, err := NewRedis(ctx, RedisOptions{
		URL:            cfg.RedisURL,
		Prefix:         cfg.Prefix,
		DefaultTTL:     cfg.DefaultTTL,
		PoolSize:       10,
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    3 * time.Second,
		WriteTimeout:   3 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("using redis cache", "url", SanitizeRedisURL(cfg.RedisURL), "prefix", cfg.Prefix)
	return c, nil
}

// SanitizeRedisURL masks the password of a Redis URL for logging.
func SanitizeRedisURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "[invalid URL]"
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
