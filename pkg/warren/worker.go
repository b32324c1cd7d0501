package warren

import (
	"context"

	"github.com/google/uuid"
)

// Redacted replaces the values of sensitive call arguments in worker
// contexts.
const Redacted = "********"

// WorkerContext describes one firing of an entrypoint. It is handed to
// worker hooks and carried on the handler's context.
type WorkerContext struct {
	// ServiceName is the name of the service being invoked.
	ServiceName string
	// Entrypoint is the entrypoint that fired.
	Entrypoint Entrypoint
	// CallArgs are the (possibly redacted) call arguments, recorded for
	// observability. Handlers receive the unredacted values separately.
	CallArgs map[string]any
	// ArgsRedacted reports whether CallArgs had sensitive values replaced.
	ArgsRedacted bool
	// ContextData is the caller metadata received with the invocation:
	// message headers for brokered entrypoints, request headers for HTTP.
	ContextData map[string]string
	// CallID uniquely identifies this firing.
	CallID string

	container *Container
}

// NewWorkerContext builds a worker context for an entrypoint firing,
// applying sensitive-argument redaction to the recorded call args. The
// returned context gets a fresh call ID.
func NewWorkerContext(serviceName string, ep Entrypoint, callArgs map[string]any, contextData map[string]string) *WorkerContext {
	args, redacted := RedactArgs(callArgs, ep.Options().SensitiveArguments)
	if contextData == nil {
		contextData = make(map[string]string)
	}
	return &WorkerContext{
		ServiceName:  serviceName,
		Entrypoint:   ep,
		CallArgs:     args,
		ArgsRedacted: redacted,
		ContextData:  contextData,
		CallID:       uuid.New().String(),
	}
}

// Running reports how many workers the container is currently executing.
func (wc *WorkerContext) Running() int {
	if wc.container == nil {
		return 0
	}
	return wc.container.Running()
}

// Free reports how many worker slots the container has available.
func (wc *WorkerContext) Free() int {
	if wc.container == nil {
		return 0
	}
	return wc.container.Free()
}

// RedactArgs copies args, replacing the values of the named sensitive keys.
// Reports whether any replacement happened. The input map is not modified.
func RedactArgs(args map[string]any, sensitive []string) (map[string]any, bool) {
	if args == nil {
		return map[string]any{}, false
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	redacted := false
	for _, name := range sensitive {
		if _, ok := out[name]; ok {
			out[name] = Redacted
			redacted = true
		}
	}
	return out, redacted
}

type workerContextKey struct{}

// ContextWithWorker attaches a worker context to ctx. The container does
// this before invoking handlers.
func ContextWithWorker(ctx context.Context, wc *WorkerContext) context.Context {
	return context.WithValue(ctx, workerContextKey{}, wc)
}

// FromContext returns the worker context attached to ctx, or nil when ctx
// does not belong to a worker.
func FromContext(ctx context.Context) *WorkerContext {
	wc, _ := ctx.Value(workerContextKey{}).(*WorkerContext)
	return wc
}

// ContextData returns the context data of the worker attached to ctx, or
// nil. Clients use this to forward caller metadata on outbound calls.
func ContextData(ctx context.Context) map[string]string {
	if wc := FromContext(ctx); wc != nil {
		return wc.ContextData
	}
	return nil
}
