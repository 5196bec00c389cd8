package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"filippo.io/csrf/gorilla"

	"github.com/olegiv/natours-go/internal/apperr"
	"github.com/olegiv/natours-go/internal/handler"
)

// MsgCrossOrigin rejects a cross-origin state-changing request.
const MsgCrossOrigin = "Cross-origin request rejected"

// CSRFConfig holds configuration for cross-origin request protection.
// filippo.io/csrf/gorilla checks Fetch metadata and Origin headers, so no
// token cookie is involved.
type CSRFConfig struct {
	// AuthKey is accepted for gorilla/csrf API compatibility.
	AuthKey []byte

	// TrustedOrigins are host values (no scheme) allowed to make
	// cross-origin requests.
	TrustedOrigins []string

	Errors handler.Errors
}

// DefaultCSRFConfig returns a CSRFConfig. In development localhost origins
// on port are trusted.
func DefaultCSRFConfig(authKey []byte, isDev bool, port int, trusted []string) CSRFConfig {
	cfg := CSRFConfig{AuthKey: authKey, TrustedOrigins: trusted, Errors: handler.Errors{Development: isDev}}
	if isDev {
		p := strconv.Itoa(port)
		cfg.TrustedOrigins = append(cfg.TrustedOrigins, "localhost:"+p, "127.0.0.1:"+p)
	}
	return cfg
}

// CSRF protects cookie-authenticated requests from cross-site forgery.
// Requests that carry a Bearer token and no session cookie skip the check:
// the browser never attaches that header on its own.
func CSRF(cfg CSRFConfig) func(http.Handler) http.Handler {
	opts := []csrf.Option{
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reason := "unknown"
			if err := csrf.FailureReason(r); err != nil {
				reason = err.Error()
			}
			slog.Warn("CSRF validation failed",
				"reason", reason,
				"method", r.Method,
				"path", r.URL.Path,
				"origin", r.Header.Get("Origin"),
				"sec_fetch_site", r.Header.Get("Sec-Fetch-Site"),
			)
			cfg.Errors.Write(w, r, apperr.Forbidden(MsgCrossOrigin))
		})),
	}
	if len(cfg.TrustedOrigins) > 0 {
		opts = append(opts, csrf.TrustedOrigins(cfg.TrustedOrigins))
	}
	protect := csrf.Protect(cfg.AuthKey, opts...)

	return func(next http.Handler) http.Handler {
		protected := protect(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bearerOnly(r) {
				r = csrf.UnsafeSkipCheck(r)
			}
			protected.ServeHTTP(w, r)
		})
	}
}

func bearerOnly(r *http.Request) bool {
	if _, err := r.Cookie(CookieName); err == nil {
		return false
	}
	scheme, _, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	return ok && strings.EqualFold(scheme, "Bearer")
}
