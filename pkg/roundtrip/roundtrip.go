// Package roundtrip provides composable http.RoundTripper middleware for
// outgoing API requests.
package roundtrip

import "net/http"

// Middleware wraps a RoundTripper.
type Middleware func(next http.RoundTripper) http.RoundTripper

// Func adapts a function to http.RoundTripper.
type Func func(*http.Request) (*http.Response, error)

// RoundTrip implements http.RoundTripper.
func (f Func) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Wrap applies middlewares to rt. The first middleware is the outermost and
// sees the request first.
func Wrap(rt http.RoundTripper, middlewares ...Middleware) http.RoundTripper {
	if rt == nil {
		rt = http.DefaultTransport
	}
	for i := len(middlewares) - 1; i >= 0; i-- {
		rt = middlewares[i](rt)
	}
	return rt
}

// cloneWithHeader returns a shallow copy of req with header key set.
// RoundTrippers must not modify the request they are given.
func cloneWithHeader(req *http.Request, key, value string) *http.Request {
	r := req.Clone(req.Context())
	r.Header.Set(key, value)
	return r
}
