// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the verified contents of a session token.
type Claims struct {
	Subject  string
	IssuedAt time.Time
}

// SessionCodec issues and verifies HS256 session tokens.
type SessionCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionCodec creates a codec signing with secret and expiring tokens after ttl.
func NewSessionCodec(secret string, ttl time.Duration) *SessionCodec {
	return &SessionCodec{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// SetClock overrides the time source used for issuing and verifying.
func (c *SessionCodec) SetClock(now func() time.Time) {
	c.now = now
}

// TTL returns the token lifetime.
func (c *SessionCodec) TTL() time.Duration {
	return c.ttl
}

// Issue returns a signed token for the principal id.
func (c *SessionCodec) Issue(subject string) (string, error) {
	if subject == "" {
		return "", errors.New("issuing session token: empty subject")
	}

	now := c.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return token, nil
}

// Verify checks the signature and expiry of token. Any failure returns ok=false.
func (c *SessionCodec) Verify(token string) (Claims, bool) {
	if token == "" {
		return Claims{}, false
	}

	var rc jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &rc, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return c.secret, nil
	},
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil || !parsed.Valid {
		return Claims{}, false
	}
	if rc.Subject == "" || rc.IssuedAt == nil {
		return Claims{}, false
	}

	return Claims{Subject: rc.Subject, IssuedAt: rc.IssuedAt.Time}, true
}

// ChangedAfter reports whether a password change at changedAt invalidates a
// token issued at issuedAt. issuedAt has second precision (iat claim), so a
// change recorded at the issuing second rejects the token, while a changedAt
// backdated by one second still admits a token minted right after the change.
func ChangedAfter(changedAt *time.Time, issuedAt time.Time) bool {
	if changedAt == nil || changedAt.IsZero() {
		return false
	}
	return !changedAt.Before(issuedAt)
}
