// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ResetTokenBytes is the amount of randomness in a password-reset token.
const ResetTokenBytes = 32

// DefaultResetTTL is how long an issued reset token stays redeemable.
const DefaultResetTTL = 10 * time.Minute

// ResetTokens issues one-time reset tokens and computes their stored digest.
type ResetTokens struct {
	key []byte
	ttl time.Duration
}

// NewResetTokens creates a reset token scheme keyed by key.
func NewResetTokens(key string, ttl time.Duration) *ResetTokens {
	if ttl <= 0 {
		ttl = DefaultResetTTL
	}
	return &ResetTokens{key: []byte(key), ttl: ttl}
}

// TTL returns the reset token lifetime.
func (r *ResetTokens) TTL() time.Duration {
	return r.ttl
}

// Issue returns a fresh hex-encoded plaintext token and the digest to persist.
func (r *ResetTokens) Issue() (plain, digest string, err error) {
	buf := make([]byte, ResetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generating reset token: %w", err)
	}
	plain = hex.EncodeToString(buf)
	return plain, r.Digest(plain), nil
}

// Digest returns the deterministic keyed digest of a plaintext token.
func (r *ResetTokens) Digest(plain string) string {
	mac := hmac.New(sha256.New, r.key)
	mac.Write([]byte(plain))
	return hex.EncodeToString(mac.Sum(nil))
}
