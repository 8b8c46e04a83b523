package rest

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/pkg/logger"
	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/security"
	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/service"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
)

type AuthOptions struct {
	// If set, the token issuer must match exactly.
	ExpectedIssuer string
}

// AuthMiddleware verifies the bearer token and stores the caller session in
// the request context. Every failure is a plain 401.
func AuthMiddleware(verifier security.AccessTokenVerifier, opt AuthOptions) func(next http.Handler) http.Handler {
	if verifier == nil {
		panic("AuthMiddleware: nil verifier")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, raw, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
			raw = strings.TrimSpace(raw)
			if !ok || !strings.EqualFold(scheme, "Bearer") || raw == "" {
				fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
				return
			}

			claims, err := verifier.VerifyAccessToken(raw)
			if err != nil {
				fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
				return
			}
			if opt.ExpectedIssuer != "" && claims.Issuer != opt.ExpectedIssuer {
				fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
				return
			}

			uid, err := uuid.Parse(strings.TrimSpace(claims.UserID))
			if err != nil {
				fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
				return
			}

			ctx := withSession(r.Context(), service.Session{
				UserID: uid,
				Role:   strings.TrimSpace(claims.Role),
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitMiddleware applies a shared fixed window per client IP through
// Redis. Without a cache it falls back to an in-process limiter.
func RateLimitMiddleware(cache domain.EventCache, limit int, window time.Duration) func(next http.Handler) http.Handler {
	if cache == nil {
		return httprate.LimitByIP(limit, window)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, err := cache.AllowRequest(r.Context(), clientIP(r), limit, window)
			if err != nil {
				logger.WithCtx(r.Context()).Warn().Err(err).Msg("rate limit check failed")
			}
			if !allowed {
				fail(w, r, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP is the RemoteAddr host. Forwarded headers are not trusted here.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cross-Origin-Resource-Policy", "same-site")
		h.Set("Cross-Origin-Opener-Policy", "same-origin")
		// geolocation is sent in the join body, never read by the browser from this origin
		h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=(), usb=()")
		next.ServeHTTP(w, r)
	})
}
