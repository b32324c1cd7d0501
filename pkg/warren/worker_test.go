package warren

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactArgs(t *testing.T) {
	t.Run("replaces sensitive values", func(t *testing.T) {
		args := map[string]any{"user": "alice", "password": "hunter2"}
		out, redacted := RedactArgs(args, []string{"password"})

		assert.True(t, redacted)
		assert.Equal(t, Redacted, out["password"])
		assert.Equal(t, "alice", out["user"])
		// The input map is untouched.
		assert.Equal(t, "hunter2", args["password"])
	})

	t.Run("missing sensitive keys are ignored", func(t *testing.T) {
		out, redacted := RedactArgs(map[string]any{"user": "alice"}, []string{"password"})
		assert.False(t, redacted)
		assert.Equal(t, "alice", out["user"])
	})

	t.Run("nil args give empty map", func(t *testing.T) {
		out, redacted := RedactArgs(nil, []string{"password"})
		assert.False(t, redacted)
		assert.NotNil(t, out)
		assert.Empty(t, out)
	})
}

func TestNewWorkerContext(t *testing.T) {
	ep := &fakeEntrypoint{
		method: "login",
		kind:   KindRPC,
		opts:   NewOptions(WithSensitiveArguments("password")),
	}

	t.Run("redacts recorded args", func(t *testing.T) {
		wc := NewWorkerContext("auth", ep, map[string]any{"password": "hunter2"}, nil)
		assert.Equal(t, Redacted, wc.CallArgs["password"])
		assert.True(t, wc.ArgsRedacted)
		assert.NotEmpty(t, wc.CallID)
		assert.NotNil(t, wc.ContextData)
	})

	t.Run("fresh call IDs per firing", func(t *testing.T) {
		a := NewWorkerContext("auth", ep, nil, nil)
		b := NewWorkerContext("auth", ep, nil, nil)
		assert.NotEqual(t, a.CallID, b.CallID)
	})

	t.Run("no container means no pool stats", func(t *testing.T) {
		wc := NewWorkerContext("auth", ep, nil, nil)
		assert.Equal(t, 0, wc.Running())
		assert.Equal(t, 0, wc.Free())
	})
}

func TestContextData(t *testing.T) {
	ep := &fakeEntrypoint{method: "m", kind: KindRPC}

	t.Run("returns worker context data", func(t *testing.T) {
		wc := NewWorkerContext("svc", ep, nil, map[string]string{"locale": "en"})
		ctx := ContextWithWorker(context.Background(), wc)
		assert.Equal(t, map[string]string{"locale": "en"}, ContextData(ctx))
	})

	t.Run("nil outside workers", func(t *testing.T) {
		assert.Nil(t, ContextData(context.Background()))
		assert.Nil(t, FromContext(context.Background()))
	})
}

func TestEntrypointOptions(t *testing.T) {
	errNotFound := errors.New("not found")

	t.Run("expected errors match with errors.Is", func(t *testing.T) {
		opts := NewOptions(WithExpectedErrors(errNotFound))
		assert.True(t, opts.ErrorExpected(errNotFound))
		wrapped := errors.Join(errors.New("outer"), errNotFound)
		assert.True(t, opts.ErrorExpected(wrapped))
		assert.False(t, opts.ErrorExpected(errors.New("other")))
	})

	t.Run("options accumulate", func(t *testing.T) {
		opts := NewOptions(
			WithSensitiveArguments("password"),
			WithSensitiveArguments("token"),
		)
		assert.Equal(t, []string{"password", "token"}, opts.SensitiveArguments)
	})
}

func TestNewService(t *testing.T) {
	t.Run("accepts valid names", func(t *testing.T) {
		for _, name := range []string{"orders", "order-service", "svc2"} {
			svc, err := NewService(name)
			require.NoError(t, err, name)
			assert.Equal(t, name, svc.Name())
		}
	})

	t.Run("rejects invalid names", func(t *testing.T) {
		for _, name := range []string{"", "Orders", "order_service", "-orders", "svc.name"} {
			_, err := NewService(name)
			assert.Error(t, err, name)
		}
	})

	t.Run("add chains and preserves order", func(t *testing.T) {
		svc, err := NewService("orders")
		require.NoError(t, err)
		a := &fakeEntrypoint{method: "a"}
		b := &fakeEntrypoint{method: "b"}
		svc.Add(a).Add(b)
		require.Len(t, svc.Entrypoints(), 2)
		assert.Equal(t, "a", svc.Entrypoints()[0].MethodName())
	})
}
