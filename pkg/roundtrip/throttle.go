package roundtrip

import (
	"fmt"
	"net/http"
	"sync"
	"time"
)

// ThrottleConfig configures the outgoing sliding window limiter.
type ThrottleConfig struct {
	// Max is the number of requests allowed per window and host. Zero
	// disables throttling.
	Max int
	// Window is the duration of each sliding window.
	Window time.Duration
}

// ThrottledError is returned instead of sending a request that would exceed
// the configured rate.
type ThrottledError struct {
	Host       string
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("roundtrip: request rate to %s exceeded, retry after %s", e.Host, e.RetryAfter.Round(time.Millisecond))
}

// window tracks request counts across two adjacent windows.
type window struct {
	prevCount float64
	currCount float64
	currStart time.Time
}

type throttle struct {
	cfg   ThrottleConfig
	now   func() time.Time
	mu    sync.Mutex
	hosts map[string]*window
}

// allow reports whether a request to host may be sent now and, if not, how
// long until the current window ends.
func (t *throttle) allow(host string, now time.Time) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	w, ok := t.hosts[host]
	if !ok {
		w = &window{currStart: now.Truncate(t.cfg.Window)}
		t.hosts[host] = w
	}

	if elapsed := now.Sub(w.currStart); elapsed >= t.cfg.Window {
		w.prevCount = w.currCount
		if elapsed >= 2*t.cfg.Window {
			w.prevCount = 0
		}
		w.currCount = 0
		w.currStart = now.Truncate(t.cfg.Window)
	}

	// Weight the previous window by how much of it the sliding window still
	// overlaps.
	overlap := 1 - now.Sub(w.currStart).Seconds()/t.cfg.Window.Seconds()
	effective := w.prevCount*max(overlap, 0) + w.currCount
	if effective >= float64(t.cfg.Max) {
		return w.currStart.Add(t.cfg.Window).Sub(now), false
	}
	w.currCount++
	return 0, true
}

// Throttle fails requests locally with *ThrottledError once a host has seen
// cfg.Max requests within the sliding window. Nothing is retried.
func Throttle(cfg ThrottleConfig) Middleware {
	return throttleWithClock(cfg, time.Now)
}

func throttleWithClock(cfg ThrottleConfig, now func() time.Time) Middleware {
	if cfg.Max <= 0 || cfg.Window <= 0 {
		return func(next http.RoundTripper) http.RoundTripper { return next }
	}
	t := &throttle{cfg: cfg, now: now, hosts: make(map[string]*window)}

	return func(next http.RoundTripper) http.RoundTripper {
		return Func(func(req *http.Request) (*http.Response, error) {
			if wait, ok := t.allow(req.URL.Host, t.now()); !ok {
				return nil, &ThrottledError{Host: req.URL.Host, RetryAfter: wait}
			}
			return next.RoundTrip(req)
		})
	}
}
