package httpx

import (
	"log/slog"
	"net/http"
	"time"

	otelx "github.com/md-rashed-zaman/canchas/libs/otel"
)

// WithAccessLog logs one line per outgoing request.
func WithAccessLog(logger *slog.Logger) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		if logger == nil {
			return next
		}
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			start := time.Now()
			resp, err := next.RoundTrip(r)

			attrs := []any{
				"request_id", requestID(r),
				"trace_id", otelx.TraceID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if err != nil {
				logger.Warn("http request failed", append(attrs, "err", err)...)
				return nil, err
			}
			logger.Info("http request", append(attrs, "status", resp.StatusCode)...)
			return resp, nil
		})
	}
}

func requestID(r *http.Request) string {
	if id := r.Header.Get(RequestIDHeader); id != "" {
		return id
	}
	return RequestIDFromContext(r.Context())
}
