package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/metrics"
	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/security"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
)

type RouterDeps struct {
	// Cache backs the shared rate limiter. Optional.
	Cache     domain.EventCache
	Handler   *Handler
	Verifier  security.AccessTokenVerifier
	JWTIssuer string

	RateLimitEnabled bool
	RateLimit        int
	RateWindow       time.Duration

	DrawLimit  int
	DrawWindow time.Duration

	// Ready reports backing store health for /readyz. Optional.
	Ready func(ctx context.Context) error
}

func NewRouter(d RouterDeps) http.Handler {
	if d.Handler == nil {
		panic("rest.NewRouter: nil handler")
	}
	if d.Verifier == nil {
		panic("rest.NewRouter: nil verifier")
	}
	if d.DrawLimit <= 0 {
		d.DrawLimit = 10
	}
	if d.DrawWindow <= 0 {
		d.DrawWindow = time.Minute
	}

	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(HTTPLogger)
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeaders)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(r.Context()); err != nil {
				fail(w, r, http.StatusServiceUnavailable, "store.unavailable", "not ready", nil)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if d.RateLimitEnabled {
			r.Use(RateLimitMiddleware(d.Cache, d.RateLimit, d.RateWindow))
		}
		r.Use(AuthMiddleware(d.Verifier, AuthOptions{ExpectedIssuer: d.JWTIssuer}))

		// entrant
		r.Post("/events/{eventID}/waitlist", d.Handler.Join)
		r.Delete("/events/{eventID}/waitlist", d.Handler.Leave)
		r.Get("/events/{eventID}/waitlist/me", d.Handler.MyEntry)
		r.Post("/events/{eventID}/invitation", d.Handler.Respond)
		r.Get("/me/waitlists", d.Handler.MyWaitlists)

		// organizer
		r.Put("/events/{eventID}", d.Handler.ConfigureEvent)
		r.Delete("/events/{eventID}", d.Handler.DeleteEvent)
		r.Get("/events/{eventID}/stats", d.Handler.Stats)
		r.Get("/events/{eventID}/entries", d.Handler.Entries)
		r.Post("/events/{eventID}/entries/{entrantID}/revoke", d.Handler.Revoke)
		r.Delete("/events/{eventID}/entries/{entrantID}", d.Handler.Remove)

		r.With(httprate.Limit(d.DrawLimit, d.DrawWindow, httprate.WithKeyFuncs(keyBySession))).
			Post("/events/{eventID}/draws", d.Handler.Draw)
		r.Get("/events/{eventID}/draws", d.Handler.Draws)
		r.Get("/events/{eventID}/draws/{drawID}/verify", d.Handler.VerifyDraw)
	})

	return r
}

// keyBySession limits per caller; it runs after AuthMiddleware.
func keyBySession(r *http.Request) (string, error) {
	if sess, ok := SessionFrom(r.Context()); ok {
		return "user:" + sess.UserID.String(), nil
	}
	return httprate.KeyByIP(r)
}
