package health

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passingCheck() CheckFunc {
	return func(_ context.Context) error {
		return nil
	}
}

func failingCheck(msg string) CheckFunc {
	return func(_ context.Context) error {
		return errors.New(msg)
	}
}

func TestRun_AllPassing(t *testing.T) {
	c := New()
	c.Add("check1", time.Second, passingCheck())
	c.Add("check2", time.Second, passingCheck())

	report := c.Run(context.Background())
	require.Len(t, report, 2)
	assert.True(t, report.OK())
	assert.Equal(t, "check1", report[0].Name)
	assert.Equal(t, "check2", report[1].Name)
}

func TestRun_FailingCheck(t *testing.T) {
	c := New()
	c.Add("storage", time.Second, passingCheck())
	c.Add("api", time.Second, failingCheck("connection refused"))

	report := c.Run(context.Background())
	assert.False(t, report.OK())
	assert.NoError(t, report[0].Err)
	assert.EqualError(t, report[1].Err, "connection refused")
}

func TestRun_Timeout(t *testing.T) {
	c := New()
	c.Add("slow", 20*time.Millisecond, func(context.Context) error {
		time.Sleep(time.Second)
		return nil
	})

	start := time.Now()
	report := c.Run(context.Background())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.ErrorIs(t, report[0].Err, context.DeadlineExceeded)
}

func TestRun_ChecksRunConcurrently(t *testing.T) {
	c := New()
	started := make(chan struct{})
	c.Add("first", time.Second, func(ctx context.Context) error {
		select {
		case <-started:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	c.Add("second", time.Second, func(context.Context) error {
		close(started)
		return nil
	})

	assert.True(t, c.Run(context.Background()).OK())
}

func TestRun_Empty(t *testing.T) {
	assert.True(t, New().Run(context.Background()).OK())
}
