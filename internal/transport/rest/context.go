package rest

import (
	"context"

	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/service"
)

type ctxKeySession struct{}

func withSession(ctx context.Context, s service.Session) context.Context {
	return context.WithValue(ctx, ctxKeySession{}, s)
}

// SessionFrom returns the caller session stored by AuthMiddleware.
func SessionFrom(ctx context.Context) (service.Session, bool) {
	s, ok := ctx.Value(ctxKeySession{}).(service.Session)
	return s, ok
}
