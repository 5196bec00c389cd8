// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// knownWeakSecrets contains default/example secrets that must be rejected.
var knownWeakSecrets = []string{
	"my-ultra-secure-and-ultra-long-secret",
	"change-me-to-32-byte-secret-key!",
	"REPLACE_WITH_YOUR_OWN_SECRET_KEY!",
}

// Store backends.
const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	Env        string `env:"NATOURS_ENV" envDefault:"development"`
	LogLevel   string `env:"NATOURS_LOG_LEVEL" envDefault:"info"`
	ServerHost string `env:"NATOURS_SERVER_HOST" envDefault:"localhost"`
	ServerPort int    `env:"NATOURS_SERVER_PORT" envDefault:"3000"`

	// Document store
	Store         string `env:"NATOURS_STORE" envDefault:"mongo"`
	MongoURI      string `env:"NATOURS_MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase string `env:"NATOURS_MONGO_DATABASE" envDefault:"natours"`

	// Credentials
	JWTSecret           string        `env:"NATOURS_JWT_SECRET,required"`
	JWTExpiresIn        time.Duration `env:"NATOURS_JWT_EXPIRES_IN" envDefault:"2160h"`
	JWTCookieExpiresIn  int           `env:"NATOURS_JWT_COOKIE_EXPIRES_IN" envDefault:"90"` // days
	ResetKey            string        `env:"NATOURS_RESET_KEY"`                             // defaults to JWTSecret
	ResetTokenExpiresIn time.Duration `env:"NATOURS_RESET_EXPIRES_IN" envDefault:"10m"`
	BcryptCost          int           `env:"NATOURS_BCRYPT_COST" envDefault:"12"`

	// Cache configuration
	RedisURL    string `env:"NATOURS_REDIS_URL"`                          // Optional Redis URL for shared caching
	CachePrefix string `env:"NATOURS_CACHE_PREFIX" envDefault:"natours:"` // Redis key prefix
	CacheTTL    int    `env:"NATOURS_CACHE_TTL" envDefault:"300"`         // seconds, 0 disables the cache

	// Mail
	SMTPHost     string `env:"NATOURS_SMTP_HOST"`
	SMTPPort     int    `env:"NATOURS_SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"NATOURS_SMTP_USERNAME"`
	SMTPPassword string `env:"NATOURS_SMTP_PASSWORD"`
	MailFrom     string `env:"NATOURS_MAIL_FROM" envDefault:"Natours <hello@natours.io>"`

	// Background jobs
	ReconcileSchedule string `env:"NATOURS_RECONCILE_SCHEDULE" envDefault:"@daily"`

	CSRFTrustedOrigins []string `env:"NATOURS_CSRF_TRUSTED_ORIGINS" envSeparator:","`
}

// IsDevelopment returns true if the application is running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if the application is running in production mode.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// ServerAddr returns the full server address in host:port format.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// UseRedisCache returns true if Redis caching is configured.
func (c Config) UseRedisCache() bool {
	return c.RedisURL != ""
}

// SMTPEnabled returns true if an SMTP relay is configured.
func (c Config) SMTPEnabled() bool {
	return c.SMTPHost != ""
}

// CookieTTL returns the session cookie lifetime.
func (c Config) CookieTTL() time.Duration {
	return time.Duration(c.JWTCookieExpiresIn) * 24 * time.Hour
}

// MinSecretLength is the minimum required length for the JWT signing secret.
const MinSecretLength = 32

// Load parses environment variables and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if len(cfg.JWTSecret) < MinSecretLength {
		return nil, fmt.Errorf("NATOURS_JWT_SECRET must be at least %d bytes long, got %d bytes; "+
			"generate a secure secret with: openssl rand -base64 32",
			MinSecretLength, len(cfg.JWTSecret))
	}

	for _, weak := range knownWeakSecrets {
		if cfg.JWTSecret == weak {
			return nil, fmt.Errorf("NATOURS_JWT_SECRET is a known default value and must not be used; " +
				"generate a secure secret with: openssl rand -base64 32")
		}
	}

	if !hasMinimumEntropy(cfg.JWTSecret) {
		slog.Warn("NATOURS_JWT_SECRET has low character diversity; " +
			"consider generating a random secret with: openssl rand -base64 32")
	}

	if cfg.ResetKey == "" {
		cfg.ResetKey = cfg.JWTSecret
	}

	switch cfg.Store {
	case StoreMongo, StoreMemory:
	default:
		return nil, fmt.Errorf("NATOURS_STORE must be %q or %q, got %q", StoreMongo, StoreMemory, cfg.Store)
	}

	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, fmt.Errorf("NATOURS_BCRYPT_COST must be between 4 and 31, got %d", cfg.BcryptCost)
	}

	if cfg.JWTExpiresIn <= 0 {
		return nil, fmt.Errorf("NATOURS_JWT_EXPIRES_IN must be positive, got %s", cfg.JWTExpiresIn)
	}

	return cfg, nil
}

// hasMinimumEntropy checks that a secret contains at least 3 character classes
// (lowercase, uppercase, digits, special characters).
func hasMinimumEntropy(s string) bool {
	charTypes := 0
	if strings.ContainsAny(s, "abcdefghijklmnopqrstuvwxyz") {
		charTypes++
	}
	if strings.ContainsAny(s, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		charTypes++
	}
	if strings.ContainsAny(s, "0123456789") {
		charTypes++
	}
	if strings.ContainsAny(s, "!@#$%^&*()-_=+[]{}|;:,.<>?/~`'\"\\") {
		charTypes++
	}
	return charTypes >= 3
}
