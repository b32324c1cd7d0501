package rpc

import (
	"context"
	"errors"
	"strings"
	"sync"
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

// startService runs a service with the given entrypoints on the broker.
func startService(t *testing.T, b *broker.Broker, name string, hooks []warren.WorkerHook, eps ...warren.Entrypoint) *warren.Container {
	svc, err := warren.NewService(name)
	require.NoError(t, err)
	for _, ep := range eps {
		svc.Add(ep)
	}

	opts := []warren.ContainerOption{}
	for _, h := range hooks {
		opts = append(opts, warren.WithWorkerHook(h))
	}
	c := warren.NewContainer(svc, b, opts...)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.Stop(ctx)
	})
	return c
}

func newTestClient(t *testing.T, b *broker.Broker, opts ...ClientOption) *Client {
	client, err := NewClient(context.Background(), b, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		client.Close(ctx)
	})
	return client
}

func upperHandler(ctx context.Context, args map[string]any) (any, error) {
	value, _ := args["value"].(string)
	return strings.ToUpper(value), nil
}

func TestInvoke(t *testing.T) {
	ctx := context.Background()

	t.Run("round-trips a call", func(t *testing.T) {
		b := setupTestBroker(t)
		startService(t, b, "greeter", nil, Method("upper", upperHandler, WithArgNames("value")))
		client := newTestClient(t, b)

		result, err := client.Invoke(ctx, "greeter", "upper", map[string]any{"value": "hi"})
		require.NoError(t, err)
		assert.Equal(t, "HI", result)
	})

	t.Run("serves concurrent calls", func(t *testing.T) {
		b := setupTestBroker(t)
		startService(t, b, "greeter", nil, Method("upper", upperHandler))
		client := newTestClient(t, b)

		var wg sync.WaitGroup
		for _, value := range []string{"a", "b", "c", "d"} {
			wg.Add(1)
			go func(v string) {
				defer wg.Done()
				result, err := client.Invoke(ctx, "greeter", "upper", map[string]any{"value": v})
				assert.NoError(t, err)
				assert.Equal(t, strings.ToUpper(v), result)
			}(value)
		}
		wg.Wait()
	})

	t.Run("handler errors cross the wire", func(t *testing.T) {
		b := setupTestBroker(t)
		startService(t, b, "greeter", nil, Method("fail",
			func(ctx context.Context, args map[string]any) (any, error) {
				return nil, errors.New("database on fire")
			}))
		client := newTestClient(t, b)

		_, err := client.Invoke(ctx, "greeter", "fail", nil)
		require.Error(t, err)

		var remote *RemoteError
		require.ErrorAs(t, err, &remote)
		assert.Equal(t, "Error", remote.Name)
		assert.Contains(t, remote.Message, "database on fire")
	})

	t.Run("unknown service has no route", func(t *testing.T) {
		b := setupTestBroker(t)
		client := newTestClient(t, b)

		_, err := client.Invoke(ctx, "nobody", "upper", nil)
		assert.ErrorIs(t, err, broker.ErrNoRoute)
	})
}

func TestDispatchRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown method", func(t *testing.T) {
		b := setupTestBroker(t)
		hook := &failureRecorder{}
		startService(t, b, "greeter", []warren.WorkerHook{hook}, Method("upper", upperHandler))
		client := newTestClient(t, b)

		_, err := client.Invoke(ctx, "greeter", "missing", nil)
		require.Error(t, err)

		var remote *RemoteError
		require.ErrorAs(t, err, &remote)
		assert.Equal(t, "MethodNotFound", remote.Name)

		failures := hook.snapshot()
		require.Len(t, failures, 1)
		assert.Equal(t, "greeter.missing", failures[0].Name)
		assert.Equal(t, warren.KindRPC, failures[0].Kind)
	})

	t.Run("unexpected argument", func(t *testing.T) {
		b := setupTestBroker(t)
		hook := &failureRecorder{}
		startService(t, b, "greeter", []warren.WorkerHook{hook},
			Method("upper", upperHandler, WithArgNames("value")))
		client := newTestClient(t, b)

		_, err := client.Invoke(ctx, "greeter", "upper", map[string]any{"value": "x", "bogus": 1})
		require.Error(t, err)

		var remote *RemoteError
		require.ErrorAs(t, err, &remote)
		assert.Equal(t, "IncorrectSignature", remote.Name)
		assert.Contains(t, remote.Message, `unexpected argument "bogus"`)
		assert.Len(t, hook.snapshot(), 1)
	})

	t.Run("missing argument", func(t *testing.T) {
		b := setupTestBroker(t)
		startService(t, b, "greeter", nil, Method("upper", upperHandler, WithArgNames("value")))
		client := newTestClient(t, b)

		_, err := client.Invoke(ctx, "greeter", "upper", map[string]any{})
		require.Error(t, err)

		var remote *RemoteError
		require.ErrorAs(t, err, &remote)
		assert.Contains(t, remote.Message, `missing argument "value"`)
	})
}

func TestAsyncCall(t *testing.T) {
	ctx := context.Background()

	t.Run("call then response", func(t *testing.T) {
		b := setupTestBroker(t)
		startService(t, b, "greeter", nil, Method("upper", upperHandler))
		client := newTestClient(t, b)

		call, err := client.CallAsync(ctx, "greeter", "upper", map[string]any{"value": "later"})
		require.NoError(t, err)
		assert.NotEmpty(t, call.CorrelationID())

		result, err := call.Response(ctx)
		require.NoError(t, err)
		assert.Equal(t, "LATER", result)

		// Response is idempotent.
		again, err := call.Response(ctx)
		require.NoError(t, err)
		assert.Equal(t, result, again)
	})

	t.Run("response honours context deadline", func(t *testing.T) {
		b := setupTestBroker(t)
		release := make(chan struct{})
		startService(t, b, "greeter", nil, Method("slow",
			func(ctx context.Context, args map[string]any) (any, error) {
				<-release
				return nil, nil
			}))
		defer close(release)
		client := newTestClient(t, b)

		call, err := client.CallAsync(ctx, "greeter", "slow", nil)
		require.NoError(t, err)

		waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()
		_, err = call.Response(waitCtx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "aborted")
	})
}

// headerObserver injects a header on every call and records outcomes.
type headerObserver struct {
	mu        sync.Mutex
	initiated int
	responses []error
}

func (o *headerObserver) CallInitiated(ctx context.Context, info *CallInfo) context.Context {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.initiated++
	info.Headers["x-test-trace"] = "abc123"
	return ctx
}

func (o *headerObserver) ResponseReceived(ctx context.Context, info *CallInfo, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.responses = append(o.responses, err)
}

func TestCallObserver(t *testing.T) {
	ctx := context.Background()
	b := setupTestBroker(t)

	var mu sync.Mutex
	var seenHeaders map[string]string
	startService(t, b, "greeter", nil, Method("peek",
		func(ctx context.Context, args map[string]any) (any, error) {
			mu.Lock()
			seenHeaders = warren.FromContext(ctx).ContextData
			mu.Unlock()
			return nil, nil
		}))

	obs := &headerObserver{}
	client := newTestClient(t, b, WithCallObserver(obs))

	_, err := client.Invoke(ctx, "greeter", "peek", nil)
	require.NoError(t, err)

	// Injected headers arrive as the worker's context data.
	mu.Lock()
	assert.Equal(t, "abc123", seenHeaders["x-test-trace"])
	mu.Unlock()

	obs.mu.Lock()
	assert.Equal(t, 1, obs.initiated)
	require.Len(t, obs.responses, 1)
	assert.NoError(t, obs.responses[0])
	obs.mu.Unlock()
}

// failureRecorder collects dispatch failures; worker lifecycle is a no-op.
type failureRecorder struct {
	mu       sync.Mutex
	failures []warren.DispatchFailure
}

func (r *failureRecorder) WorkerSetup(ctx context.Context, wc *warren.WorkerContext) context.Context {
	return ctx
}

func (r *failureRecorder) WorkerResult(ctx context.Context, wc *warren.WorkerContext, result any, err error) {
}

func (r *failureRecorder) DispatchFailed(ctx context.Context, failure warren.DispatchFailure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, failure)
}

func (r *failureRecorder) snapshot() []warren.DispatchFailure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]warren.DispatchFailure(nil), r.failures...)
}
