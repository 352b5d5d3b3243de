// Package health runs one-shot dependency probes.
//
// Every registered check runs concurrently under its own timeout. A check
// that does not return in time is reported as failed with
// context.DeadlineExceeded.
package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// CheckFunc is a health check function. It should return nil if the checked
// component is healthy, or an error describing the problem.
type CheckFunc func(ctx context.Context) error

type check struct {
	name    string
	timeout time.Duration
	fn      CheckFunc
}

// Result is the outcome of one check.
type Result struct {
	Name     string
	Err      error
	Duration time.Duration
}

// Report lists check results in registration order.
type Report []Result

// OK reports whether every check passed.
func (r Report) OK() bool {
	for _, res := range r {
		if res.Err != nil {
			return false
		}
	}
	return true
}

// Checker holds a set of named checks.
type Checker struct {
	mu     sync.Mutex
	checks []check
}

func New() *Checker {
	return &Checker{}
}

// Add registers a check.
func (c *Checker) Add(name string, timeout time.Duration, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, check{name: name, timeout: timeout, fn: fn})
}

// Run executes every check once and waits for all of them.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.Lock()
	checks := append([]check(nil), c.checks...)
	c.mu.Unlock()

	report := make(Report, len(checks))
	var g errgroup.Group
	for i, ch := range checks {
		g.Go(func() error {
			report[i] = ch.run(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return report
}

func (ch check) run(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, ch.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- ch.fn(ctx) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	return Result{Name: ch.name, Err: err, Duration: time.Since(start)}
}
