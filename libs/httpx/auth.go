package httpx

import (
	"context"
	"io"
	"net/http"

	"golang.org/x/sync/singleflight"
)

// TokenSource hands out bearer tokens for outgoing requests.
type TokenSource interface {
	// Token returns the current access token, or "" when logged out.
	Token(ctx context.Context) (string, error)
	// Refresh exchanges credentials for a new access token. stale is the
	// token that was just rejected.
	Refresh(ctx context.Context, stale string) (string, error)
}

// WithBearer attaches the current token and, on a 401, refreshes it once and
// retries. Concurrent 401s for the same stale token share a single refresh.
// When the refresh fails the original 401 response is returned.
func WithBearer(ts TokenSource) Middleware {
	var group singleflight.Group
	return func(next http.RoundTripper) http.RoundTripper {
		if ts == nil {
			return next
		}
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			token, err := ts.Token(r.Context())
			if err != nil {
				return nil, err
			}
			if token == "" {
				return next.RoundTrip(r)
			}

			resp, err := next.RoundTrip(withToken(r, token))
			if err != nil || resp.StatusCode != http.StatusUnauthorized {
				return resp, err
			}
			if r.Body != nil && r.Body != http.NoBody && r.GetBody == nil {
				// Body already consumed and cannot be replayed.
				return resp, nil
			}

			v, err, _ := group.Do(token, func() (any, error) {
				return ts.Refresh(r.Context(), token)
			})
			fresh, _ := v.(string)
			if err != nil || fresh == "" {
				return resp, nil
			}

			retry := withToken(r, fresh)
			if r.GetBody != nil {
				body, err := r.GetBody()
				if err != nil {
					return resp, nil
				}
				retry.Body = body
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			return next.RoundTrip(retry)
		})
	}
}

func withToken(r *http.Request, token string) *http.Request {
	out := r.Clone(r.Context())
	out.Header.Set("Authorization", "Bearer "+token)
	return out
}
