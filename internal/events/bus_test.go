package events

import (
	"context"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xenking/grocery-kart/internal/domain/session"
)

func TestBus_PublishWaitsForSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewBus(nil)
	defer func() { require.NoError(t, bus.Close()) }()

	var (
		mu   sync.Mutex
		seen []string
	)
	record := func(name string) Handler {
		return func(_ context.Context, e session.Event) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, name+":"+string(e.Kind))
			return nil
		}
	}
	require.NoError(t, bus.Subscribe(ctx, "cart", record("cart")))
	require.NoError(t, bus.Subscribe(ctx, "orders", record("orders")))

	require.NoError(t, bus.Publish(ctx, session.Event{Kind: session.EventLogout}))

	// No synchronisation beyond Publish returning.
	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"cart:logout", "orders:logout"}, seen)
}

func TestBus_HandlerErrorIsAcked(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	core, logs := observer.New(zap.ErrorLevel)
	bus := NewBus(zap.New(core))
	defer func() { require.NoError(t, bus.Close()) }()

	calls := 0
	require.NoError(t, bus.Subscribe(ctx, "failing", func(context.Context, session.Event) error {
		calls++
		return errors.New("storage unavailable")
	}))

	require.NoError(t, bus.Publish(ctx, session.Event{Kind: session.EventLogin, UserID: 3}))
	require.NoError(t, bus.Publish(ctx, session.Event{Kind: session.EventLogout}))

	assert.Equal(t, 2, calls, "failed events are not redelivered")
	assert.Equal(t, 2, logs.FilterMessage("Handle event").Len())
}

func TestBus_PublishWithoutSubscribers(t *testing.T) {
	bus := NewBus(nil)
	defer func() { require.NoError(t, bus.Close()) }()

	require.NoError(t, bus.Publish(context.Background(), session.Event{Kind: session.EventLogout}))
}

func TestBus_ContextPreserved(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewBus(nil)
	defer func() { require.NoError(t, bus.Close()) }()

	type key struct{}
	var got any
	require.NoError(t, bus.Subscribe(ctx, "ctx", func(ctx context.Context, _ session.Event) error {
		got = ctx.Value(key{})
		return nil
	}))

	require.NoError(t, bus.Publish(context.WithValue(ctx, key{}, "trace-1"), session.Event{Kind: session.EventLogin}))
	assert.Equal(t, "trace-1", got)
}
