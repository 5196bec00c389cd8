// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/olegiv/natours-go/internal/handler"
)

// MaxBodyBytes is the largest accepted request body.
const MaxBodyBytes = 10 << 10

// SanitizeBody limits the body to limit bytes and cleans JSON object
// bodies: keys starting with "$" or containing "." are removed and markup is
// stripped from string values other than credentials. Bodies that are not valid JSON pass through
// unchanged for the handler to reject.
func SanitizeBody(limit int64, errs handler.Errors) func(http.Handler) http.Handler {
	policy := bluemonday.StrictPolicy()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}

			raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
			_ = r.Body.Close()
			if err != nil {
				errs.Write(w, r, err)
				return
			}

			var body any
			if json.Unmarshal(raw, &body) == nil {
				if cleaned, err := json.Marshal(sanitizeValue(policy, body)); err == nil {
					raw = cleaned
				}
			}
			r.Body = io.NopCloser(bytes.NewReader(raw))
			r.ContentLength = int64(len(raw))
			next.ServeHTTP(w, r)
		})
	}
}

func sanitizeValue(p *bluemonday.Policy, v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			if unsafeKey(k) {
				continue
			}
			if s, ok := val.(string); ok && credentialKeys[k] {
				out[k] = s
				continue
			}
			out[k] = sanitizeValue(p, val)
		}
		return out
	case []any:
		for i := range x {
			x[i] = sanitizeValue(p, x[i])
		}
		return x
	case string:
		return p.Sanitize(x)
	}
	return v
}

// credentialKeys hold strings compared verbatim, never rendered.
var credentialKeys = map[string]bool{
	"email":           true,
	"password":        true,
	"passwordConfirm": true,
	"passwordCurrent": true,
}

// unsafeKey reports keys a document store would read as operators or paths.
func unsafeKey(k string) bool {
	return strings.HasPrefix(k, "$") || strings.Contains(k, ".")
}
