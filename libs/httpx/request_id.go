package httpx

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
)

const RequestIDHeader = "X-Request-Id"

func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyRequestID).(string)
	return v
}

// WithRequestID stamps X-Request-Id on outgoing requests, reusing the id in
// the request context when there is one.
func WithRequestID(next http.RoundTripper) http.RoundTripper {
	return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		if r.Header.Get(RequestIDHeader) != "" {
			return next.RoundTrip(r)
		}
		id := RequestIDFromContext(r.Context())
		if id == "" {
			id = uuid.NewString()
		}
		out := r.Clone(ContextWithRequestID(r.Context(), id))
		out.Header.Set(RequestIDHeader, id)
		return next.RoundTrip(out)
	})
}
