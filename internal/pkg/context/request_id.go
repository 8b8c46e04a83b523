package context

import "context"

type requestIDKey struct{}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func GetRequestID(ctx context.Context) string {
	v := ctx.Value(requestIDKey{})
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// TraceID is the request id, or a fixed placeholder for work that did not
// start from an HTTP request.
func TraceID(ctx context.Context) string {
	if rid := GetRequestID(ctx); rid != "" {
		return rid
	}
	return "no-request-id"
}
