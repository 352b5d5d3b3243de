package roundtrip

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
)

// TokenSource returns the current bearer token, or "" when there is none.
type TokenSource func(ctx context.Context) (string, error)

// Bearer attaches "Authorization: Bearer <token>" when src yields a token.
// Requests that already carry an Authorization header are left alone.
func Bearer(src TokenSource) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return Func(func(req *http.Request) (*http.Response, error) {
			if req.Header.Get("Authorization") != "" {
				return next.RoundTrip(req)
			}
			token, err := src(req.Context())
			if err != nil {
				return nil, errors.Wrap(err, "read token")
			}
			if token == "" {
				return next.RoundTrip(req)
			}
			return next.RoundTrip(cloneWithHeader(req, "Authorization", "Bearer "+token))
		})
	}
}
