package warren

import (
	"context"
	"errors"
)

// Kind identifies the entrypoint family an entrypoint belongs to. The
// telemetry layer selects span adapters by kind.
type Kind string

const (
	KindRPC          Kind = "rpc"
	KindEventHandler Kind = "event_handler"
	KindConsumer     Kind = "consumer"
	KindHTTP         Kind = "http"
	KindTimer        Kind = "timer"
)

// Handler is the service method signature shared by the brokered
// entrypoints. Call arguments arrive as a decoded JSON object; the returned
// value is serialized back to the caller where the entrypoint kind supports
// replies.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Entrypoint is one way a service can be invoked. Implementations live in
// the rpc, events, messaging, web and timer subpackages.
type Entrypoint interface {
	// MethodName is the service method this entrypoint fires.
	MethodName() string
	// Kind reports the entrypoint family.
	Kind() Kind
	// Options returns the shared entrypoint options.
	Options() EntrypointOptions
	// Start begins listening. Firings must go through Container.RunWorker.
	Start(ctx context.Context, c *Container) error
	// Stop halts listening and waits for in-flight deliveries.
	Stop(ctx context.Context) error
}

// EntrypointOptions are the options every entrypoint kind shares.
type EntrypointOptions struct {
	// ExpectedErrors lists errors (matched with errors.Is) that are part of
	// the entrypoint's contract. Expected errors still fail the worker but
	// are not treated as server faults by the telemetry layer.
	ExpectedErrors []error
	// SensitiveArguments names call arguments whose values must be redacted
	// before they are recorded anywhere.
	SensitiveArguments []string
}

// ErrorExpected reports whether err matches one of the expected errors.
func (o EntrypointOptions) ErrorExpected(err error) bool {
	for _, expected := range o.ExpectedErrors {
		if errors.Is(err, expected) {
			return true
		}
	}
	return false
}

// EntrypointOption configures shared entrypoint options.
type EntrypointOption func(*EntrypointOptions)

// WithExpectedErrors marks errors as part of the entrypoint's contract.
func WithExpectedErrors(errs ...error) EntrypointOption {
	return func(o *EntrypointOptions) {
		o.ExpectedErrors = append(o.ExpectedErrors, errs...)
	}
}

// WithSensitiveArguments redacts the named call arguments in worker
// contexts. Handlers still receive the real values.
func WithSensitiveArguments(names ...string) EntrypointOption {
	return func(o *EntrypointOptions) {
		o.SensitiveArguments = append(o.SensitiveArguments, names...)
	}
}

// NewOptions applies opts to a zero options value. Entrypoint constructors
// use this to collect shared options.
func NewOptions(opts ...EntrypointOption) EntrypointOptions {
	var o EntrypointOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
