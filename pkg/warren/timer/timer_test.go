package timer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/warren/pkg/warren"
)

func startTimerService(t *testing.T, eps ...warren.Entrypoint) *warren.Container {
	svc, err := warren.NewService("ticker")
	require.NoError(t, err)
	for _, ep := range eps {
		svc.Add(ep)
	}
	c := warren.NewContainer(svc, nil)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.Stop(ctx)
	})
	return c
}

func TestTimer(t *testing.T) {
	t.Run("fires repeatedly", func(t *testing.T) {
		var fired atomic.Int32
		startTimerService(t, Timer("tick", 20*time.Millisecond,
			func(ctx context.Context, args map[string]any) (any, error) {
				fired.Add(1)
				return nil, nil
			}))

		require.Eventually(t, func() bool {
			return fired.Load() >= 3
		}, 5*time.Second, 5*time.Millisecond)
	})

	t.Run("waits one interval by default", func(t *testing.T) {
		var fired atomic.Int32
		startTimerService(t, Timer("tick", time.Hour,
			func(ctx context.Context, args map[string]any) (any, error) {
				fired.Add(1)
				return nil, nil
			}))

		time.Sleep(100 * time.Millisecond)
		assert.Equal(t, int32(0), fired.Load())
	})

	t.Run("eager timers fire immediately", func(t *testing.T) {
		var fired atomic.Int32
		startTimerService(t, Timer("tick", time.Hour,
			func(ctx context.Context, args map[string]any) (any, error) {
				fired.Add(1)
				return nil, nil
			},
			Eager()))

		require.Eventually(t, func() bool {
			return fired.Load() == 1
		}, 5*time.Second, 5*time.Millisecond)
	})

	t.Run("handler errors do not stop the timer", func(t *testing.T) {
		var fired atomic.Int32
		startTimerService(t, Timer("tick", 20*time.Millisecond,
			func(ctx context.Context, args map[string]any) (any, error) {
				fired.Add(1)
				return nil, assert.AnError
			}))

		require.Eventually(t, func() bool {
			return fired.Load() >= 3
		}, 5*time.Second, 5*time.Millisecond)
	})

	t.Run("stop waits for the loop to exit", func(t *testing.T) {
		var fired atomic.Int32
		e := Timer("tick", 10*time.Millisecond,
			func(ctx context.Context, args map[string]any) (any, error) {
				fired.Add(1)
				return nil, nil
			})
		svc, err := warren.NewService("ticker")
		require.NoError(t, err)
		svc.Add(e)
		c := warren.NewContainer(svc, nil)
		require.NoError(t, c.Start(context.Background()))

		require.Eventually(t, func() bool { return fired.Load() >= 1 }, 5*time.Second, 5*time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, c.Stop(ctx))

		// No more firings after stop.
		before := fired.Load()
		time.Sleep(100 * time.Millisecond)
		assert.Equal(t, before, fired.Load())
	})

	t.Run("rejects double start", func(t *testing.T) {
		e := Timer("tick", time.Hour,
			func(ctx context.Context, args map[string]any) (any, error) {
				return nil, nil
			})
		c := startTimerService(t, e)

		err := e.Start(context.Background(), c)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "already started")

		// A stopped timer may be started again.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, e.Stop(ctx))
		require.NoError(t, e.Start(ctx, c))
	})
}

func TestAccessors(t *testing.T) {
	e := Timer("tick", time.Minute, nil, Eager())
	assert.Equal(t, "tick", e.MethodName())
	assert.Equal(t, warren.KindTimer, e.Kind())
	assert.Equal(t, time.Minute, e.Interval())
	assert.True(t, e.IsEager())
}
