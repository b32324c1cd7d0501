package warren

import "context"

// WorkerHook observes the worker lifecycle. The telemetry layer implements
// this to open a span per worker; other implementations (metrics, audit
// logs) follow the same shape.
//
// WorkerSetup runs before the handler and may derive a new context, which
// the handler and all subsequent hooks receive. WorkerResult runs after the
// handler, with whatever it returned. The container guarantees exactly one
// setup and one result call per worker, setup first.
type WorkerHook interface {
	WorkerSetup(ctx context.Context, wc *WorkerContext) context.Context
	WorkerResult(ctx context.Context, wc *WorkerContext, result any, err error)
}

// DispatchFailure describes an inbound invocation that was rejected before
// any worker could fire: an RPC for an unknown method, an RPC with a bad
// signature, or an HTTP request for an unmatched route.
type DispatchFailure struct {
	// Kind is the entrypoint family that rejected the dispatch.
	Kind Kind
	// Name is the would-be span name: "service.method" or an HTTP method.
	Name string
	// Err is the rejection reason.
	Err error
}

// DispatchFailureHook is an optional extension of WorkerHook. Hooks that
// implement it are notified of rejected dispatches, which would otherwise be
// invisible since no worker fires for them.
type DispatchFailureHook interface {
	DispatchFailed(ctx context.Context, failure DispatchFailure)
}
