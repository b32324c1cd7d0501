package events

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/warren/pkg/broker"
	"github.com/dyluth/warren/pkg/warren"
)

func setupTestBroker(t *testing.T) *broker.Broker {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	b, err := broker.New(&redis.Options{Addr: mr.Addr()}, "test")
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func startService(t *testing.T, b *broker.Broker, name string, eps ...warren.Entrypoint) *warren.Container {
	svc, err := warren.NewService(name)
	require.NoError(t, err)
	for _, ep := range eps {
		svc.Add(ep)
	}
	c := warren.NewContainer(svc, b)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.Stop(ctx)
	})
	return c
}

func TestDispatchAndHandle(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers events to subscribed handlers", func(t *testing.T) {
		b := setupTestBroker(t)

		var mu sync.Mutex
		var payloads []any
		startService(t, b, "listener",
			Handler("orders", "created", "on_created",
				func(ctx context.Context, args map[string]any) (any, error) {
					mu.Lock()
					payloads = append(payloads, args["payload"])
					mu.Unlock()
					return nil, nil
				}))

		d := NewDispatcher(b, "orders")
		require.NoError(t, d.Dispatch(ctx, "created", map[string]any{"id": "42"}))

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(payloads) == 1
		}, 5*time.Second, 10*time.Millisecond)

		mu.Lock()
		payload, ok := payloads[0].(map[string]any)
		mu.Unlock()
		require.True(t, ok)
		assert.Equal(t, "42", payload["id"])
	})

	t.Run("unsubscribed event types are dropped", func(t *testing.T) {
		b := setupTestBroker(t)
		d := NewDispatcher(b, "orders")
		assert.NoError(t, d.Dispatch(ctx, "ignored", "payload"))
	})

	t.Run("interceptor headers become handler context data", func(t *testing.T) {
		b := setupTestBroker(t)

		var mu sync.Mutex
		var contextData map[string]string
		startService(t, b, "listener",
			Handler("orders", "created", "on_created",
				func(ctx context.Context, args map[string]any) (any, error) {
					mu.Lock()
					contextData = warren.FromContext(ctx).ContextData
					mu.Unlock()
					return nil, nil
				}))

		d := NewDispatcher(b, "orders",
			WithDispatchInterceptor(func(next DispatchFunc) DispatchFunc {
				return func(ctx context.Context, info *DispatchInfo) error {
					info.Headers["x-test-trace"] = "abc123"
					return next(ctx, info)
				}
			}))
		require.NoError(t, d.Dispatch(ctx, "created", nil))

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return contextData != nil
		}, 5*time.Second, 10*time.Millisecond)

		mu.Lock()
		assert.Equal(t, "abc123", contextData["x-test-trace"])
		mu.Unlock()
	})

	t.Run("requeues failed events when configured", func(t *testing.T) {
		b := setupTestBroker(t)

		var attempts atomic.Int32
		startService(t, b, "listener",
			Handler("orders", "created", "on_created",
				func(ctx context.Context, args map[string]any) (any, error) {
					if attempts.Add(1) == 1 {
						return nil, assert.AnError
					}
					return nil, nil
				},
				WithRequeueOnError()))

		d := NewDispatcher(b, "orders")
		require.NoError(t, d.Dispatch(ctx, "created", nil))

		require.Eventually(t, func() bool {
			return attempts.Load() >= 2
		}, 5*time.Second, 10*time.Millisecond)
	})
}

func TestBroadcast(t *testing.T) {
	ctx := context.Background()
	b := setupTestBroker(t)

	var received atomic.Int32
	handler := func(ctx context.Context, args map[string]any) (any, error) {
		received.Add(1)
		return nil, nil
	}

	// Two container instances of the same service; each gets its own
	// transient queue, so both receive every event.
	startService(t, b, "listener", Handler("orders", "created", "on_created", handler,
		WithHandlerType(Broadcast)))
	startService(t, b, "listener", Handler("orders", "created", "on_created", handler,
		WithHandlerType(Broadcast)))

	d := NewDispatcher(b, "orders")
	require.NoError(t, d.Dispatch(ctx, "created", nil))

	require.Eventually(t, func() bool {
		return received.Load() == 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSingleton(t *testing.T) {
	ctx := context.Background()
	b := setupTestBroker(t)

	var received atomic.Int32
	handler := func(ctx context.Context, args map[string]any) (any, error) {
		received.Add(1)
		return nil, nil
	}

	// Two different services share one singleton queue; each event goes to
	// exactly one of them.
	startService(t, b, "listener-a", Handler("orders", "created", "on_created", handler,
		WithHandlerType(Singleton)))
	startService(t, b, "listener-b", Handler("orders", "created", "on_created", handler,
		WithHandlerType(Singleton)))

	d := NewDispatcher(b, "orders")
	require.NoError(t, d.Dispatch(ctx, "created", nil))

	require.Eventually(t, func() bool {
		return received.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), received.Load())
}

func TestReliableDelivery(t *testing.T) {
	t.Run("service pool is reliable by default", func(t *testing.T) {
		e := Handler("orders", "created", "m", nil)
		assert.True(t, e.ReliableDelivery())
	})

	t.Run("can be disabled", func(t *testing.T) {
		e := Handler("orders", "created", "m", nil, WithReliableDelivery(false))
		assert.False(t, e.ReliableDelivery())
	})

	t.Run("broadcast is never reliable", func(t *testing.T) {
		e := Handler("orders", "created", "m", nil,
			WithHandlerType(Broadcast), WithReliableDelivery(true))
		assert.False(t, e.ReliableDelivery())
	})
}

func TestExchangeName(t *testing.T) {
	assert.Equal(t, "events-orders", ExchangeName("orders"))
}
