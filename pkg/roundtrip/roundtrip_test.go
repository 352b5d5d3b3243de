package roundtrip

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// recorder captures the last request that reached the end of the chain.
type recorder struct {
	req    *http.Request
	status int
	calls  int
}

func (r *recorder) RoundTrip(req *http.Request) (*http.Response, error) {
	r.req = req
	r.calls++
	status := r.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{StatusCode: status, Body: http.NoBody, Request: req}, nil
}

func newRequest(t *testing.T, ctx context.Context, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	return req
}

func TestWrap_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.RoundTripper) http.RoundTripper {
			return Func(func(req *http.Request) (*http.Response, error) {
				order = append(order, name)
				return next.RoundTrip(req)
			})
		}
	}

	rt := Wrap(&recorder{}, mark("outer"), mark("inner"))
	_, err := rt.RoundTrip(newRequest(t, context.Background(), "http://api.test/orders"))
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestRequestID(t *testing.T) {
	t.Run("generated", func(t *testing.T) {
		rec := &recorder{}
		req := newRequest(t, context.Background(), "http://api.test/orders")

		_, err := Wrap(rec, RequestID()).RoundTrip(req)
		require.NoError(t, err)

		_, err = uuid.Parse(rec.req.Header.Get(HeaderRequestID))
		assert.NoError(t, err)
		assert.Empty(t, req.Header.Get(HeaderRequestID), "caller's request must not be modified")
	})

	t.Run("from context", func(t *testing.T) {
		rec := &recorder{}
		ctx := WithRequestID(context.Background(), "cli-checkout-1")

		_, err := Wrap(rec, RequestID()).RoundTrip(newRequest(t, ctx, "http://api.test/orders"))
		require.NoError(t, err)
		assert.Equal(t, "cli-checkout-1", rec.req.Header.Get(HeaderRequestID))
	})

	t.Run("invalid replaced", func(t *testing.T) {
		rec := &recorder{}
		req := newRequest(t, context.Background(), "http://api.test/orders")
		req.Header.Set(HeaderRequestID, "bad\x01id")

		_, err := Wrap(rec, RequestID()).RoundTrip(req)
		require.NoError(t, err)
		assert.NotEqual(t, "bad\x01id", rec.req.Header.Get(HeaderRequestID))
	})
}

func TestBearer(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		preset string
		want   string
	}{
		{name: "token", token: "abc", want: "Bearer abc"},
		{name: "no token", want: ""},
		{name: "preset header kept", token: "abc", preset: "Bearer other", want: "Bearer other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			src := func(context.Context) (string, error) { return tt.token, nil }
			req := newRequest(t, context.Background(), "http://api.test/auth/me")
			if tt.preset != "" {
				req.Header.Set("Authorization", tt.preset)
			}

			_, err := Wrap(rec, Bearer(src)).RoundTrip(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.req.Header.Get("Authorization"))
		})
	}
}

func TestBearer_SourceError(t *testing.T) {
	rec := &recorder{}
	src := func(context.Context) (string, error) { return "", errors.New("disk full") }

	_, err := Wrap(rec, Bearer(src)).RoundTrip(newRequest(t, context.Background(), "http://api.test/orders"))
	require.Error(t, err)
	assert.Zero(t, rec.calls)
}

func TestLogRequests(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ctx := zctx.Base(context.Background(), zap.New(core))

	rec := &recorder{status: http.StatusBadGateway}
	_, err := Wrap(rec, RequestID(), LogRequests()).RoundTrip(newRequest(t, ctx, "http://api.test/orders/my"))
	require.NoError(t, err)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/orders/my", fields["path"])
	assert.EqualValues(t, http.StatusBadGateway, fields["status"])
	assert.NotEmpty(t, fields["request_id"])
}

func TestThrottle(t *testing.T) {
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	rec := &recorder{}
	rt := Wrap(rec, throttleWithClock(ThrottleConfig{Max: 2, Window: time.Minute}, clock))

	for range 2 {
		_, err := rt.RoundTrip(newRequest(t, context.Background(), "http://api.test/products"))
		require.NoError(t, err)
	}

	_, err := rt.RoundTrip(newRequest(t, context.Background(), "http://api.test/products"))
	var throttled *ThrottledError
	require.ErrorAs(t, err, &throttled)
	assert.Equal(t, "api.test", throttled.Host)
	assert.Equal(t, time.Minute, throttled.RetryAfter)
	assert.Equal(t, 2, rec.calls)

	// Other hosts have their own window.
	_, err = rt.RoundTrip(newRequest(t, context.Background(), "http://cdn.test/img.png"))
	require.NoError(t, err)

	// Two windows later the history is gone.
	now = now.Add(2 * time.Minute)
	_, err = rt.RoundTrip(newRequest(t, context.Background(), "http://api.test/products"))
	require.NoError(t, err)
}

func TestThrottle_Disabled(t *testing.T) {
	rec := &recorder{}
	rt := Wrap(rec, Throttle(ThrottleConfig{}))

	for range 50 {
		_, err := rt.RoundTrip(newRequest(t, context.Background(), "http://api.test/products"))
		require.NoError(t, err)
	}
	assert.Equal(t, 50, rec.calls)
}

func TestRoundTrip_AgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-Auth", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := &http.Client{Transport: Wrap(http.DefaultTransport,
		RequestID(),
		Bearer(func(context.Context) (string, error) { return "tok", nil }),
	)}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, "Bearer tok", resp.Header.Get("X-Seen-Auth"))
}
