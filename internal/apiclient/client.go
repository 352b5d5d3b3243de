// Package apiclient talks to the storefront REST API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/grocery-kart/internal/apierr"
	"github.com/xenking/grocery-kart/pkg/roundtrip"
)

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 1 << 20

// Options configures a Client.
type Options struct {
	// Transport is the innermost transport. Defaults to http.DefaultTransport.
	Transport http.RoundTripper
	// Timeout bounds every request. Zero means 15s.
	Timeout time.Duration
	// Token supplies the bearer token attached to each request.
	Token    roundtrip.TokenSource
	Throttle roundtrip.ThrottleConfig
	Logger   *zap.Logger

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

func (o *Options) setDefaults() {
	if o.Transport == nil {
		o.Transport = http.DefaultTransport
	}
	if o.Timeout == 0 {
		o.Timeout = 15 * time.Second
	}
	if o.Token == nil {
		o.Token = func(context.Context) (string, error) { return "", nil }
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.TracerProvider == nil {
		o.TracerProvider = otel.GetTracerProvider()
	}
	if o.MeterProvider == nil {
		o.MeterProvider = otel.GetMeterProvider()
	}
}

// Client is a low-level JSON client for the API. The typed APIs in this
// package wrap it.
type Client struct {
	base *url.URL
	http *http.Client
	lg   *zap.Logger
}

// New returns a Client for the API rooted at baseURL, e.g.
// "http://localhost:3000/api".
func New(baseURL string, opts Options) (*Client, error) {
	opts.setDefaults()

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("base url %q must be absolute", baseURL)
	}

	rt := roundtrip.Wrap(opts.Transport,
		roundtrip.RequestID(),
		roundtrip.Bearer(opts.Token),
		roundtrip.LogRequests(),
		roundtrip.Throttle(opts.Throttle),
	)
	return &Client{
		base: u,
		http: &http.Client{
			Timeout: opts.Timeout,
			Transport: otelhttp.NewTransport(rt,
				otelhttp.WithTracerProvider(opts.TracerProvider),
				otelhttp.WithMeterProvider(opts.MeterProvider),
			),
		},
		lg: opts.Logger,
	}, nil
}

type request struct {
	method string
	path   string
	query  url.Values
	header http.Header
	body   any
}

// do sends r and decodes a 2xx response into out, which may be nil.
// Non-2xx responses are returned as *apierr.Error.
func (c *Client) do(ctx context.Context, r request, out any) error {
	u := *c.base
	u.Path += r.path
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), body)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	for k, vs := range r.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", r.method, r.path)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return apierr.Parse(resp.StatusCode, data)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s %s", r.method, r.path)
	}
	return nil
}
