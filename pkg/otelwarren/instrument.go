package otelwarren

import (
	"context"
	"log"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/dyluth/warren/pkg/otelwarren/scrub"
	"github.com/dyluth/warren/pkg/warren"
)

// instrumentationName identifies this library to tracer providers.
const instrumentationName = "github.com/dyluth/warren/pkg/otelwarren"

// Config controls what the instrumentation records.
type Config struct {
	// TracerProvider supplies the tracer. Defaults to the global provider.
	TracerProvider trace.TracerProvider
	// Propagator injects and extracts trace context on message headers.
	// Defaults to W3C TraceContext + Baggage.
	Propagator propagation.TextMapPropagator
	// SendHeaders records context data and message headers on spans.
	SendHeaders bool
	// SendRequestPayloads records call arguments and published payloads.
	SendRequestPayloads bool
	// SendResponsePayloads records worker results and HTTP response bodies.
	SendResponsePayloads bool
	// TruncateMaxLength caps recorded payload strings. Defaults to
	// DefaultTruncateMaxLength.
	TruncateMaxLength int
	// Scrubbers clean payloads and headers before recording. Defaults to
	// the default scrubber.
	Scrubbers []scrub.Scrubber
	// Adapters overrides the span adapter per entrypoint kind.
	Adapters map[warren.Kind]AdapterFactory
}

// Instrumentor produces spans for warren services. It implements
// warren.WorkerHook (and the dispatch failure extension), so register it on
// containers with warren.WithWorkerHook; wire its observers and
// interceptors into clients.
type Instrumentor struct {
	cfg      Config
	tracer   trace.Tracer
	adapters map[warren.Kind]EntrypointAdapter
	hostname string

	mu     sync.Mutex
	active map[*warren.WorkerContext]*activeWorker
}

type activeWorker struct {
	span    trace.Span
	adapter EntrypointAdapter
}

// New creates an Instrumentor, applying config defaults.
func New(cfg Config) *Instrumentor {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.Propagator == nil {
		cfg.Propagator = propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{}, propagation.Baggage{},
		)
	}
	if cfg.TruncateMaxLength <= 0 {
		cfg.TruncateMaxLength = DefaultTruncateMaxLength
	}
	if cfg.Scrubbers == nil {
		cfg.Scrubbers = []scrub.Scrubber{scrub.NewDefault()}
	}

	factories := map[warren.Kind]AdapterFactory{
		warren.KindRPC:          NewRPCAdapter,
		warren.KindEventHandler: NewEventHandlerAdapter,
		warren.KindConsumer:     NewConsumerAdapter,
		warren.KindHTTP:         NewHTTPAdapter,
		warren.KindTimer:        NewTimerAdapter,
	}
	for kind, factory := range cfg.Adapters {
		factories[kind] = factory
	}

	hostname, _ := os.Hostname()

	i := &Instrumentor{
		cfg:      cfg,
		tracer:   cfg.TracerProvider.Tracer(instrumentationName),
		adapters: make(map[warren.Kind]EntrypointAdapter, len(factories)),
		hostname: hostname,
		active:   make(map[*warren.WorkerContext]*activeWorker),
	}
	for kind, factory := range factories {
		i.adapters[kind] = factory(&i.cfg)
	}
	return i
}

func (i *Instrumentor) adapterFor(kind warren.Kind) EntrypointAdapter {
	if adapter, ok := i.adapters[kind]; ok {
		return adapter
	}
	return NewDefaultAdapter(&i.cfg)
}

// WorkerSetup opens a span for the firing worker. The parent comes from
// trace context carried in the worker's metadata, so brokered workers join
// the publishing side's trace.
func (i *Instrumentor) WorkerSetup(ctx context.Context, wc *warren.WorkerContext) context.Context {
	adapter := i.adapterFor(wc.Entrypoint.Kind())

	parent := i.cfg.Propagator.Extract(ctx, propagation.MapCarrier(adapter.Metadata(wc)))
	ctx, span := i.tracer.Start(parent, adapter.SpanName(wc),
		trace.WithSpanKind(adapter.SpanKind(wc)),
		trace.WithAttributes(attribute.String("hostname", i.hostname)),
	)
	span.SetAttributes(adapter.Attributes(wc)...)

	i.mu.Lock()
	i.active[wc] = &activeWorker{span: span, adapter: adapter}
	i.mu.Unlock()

	return ctx
}

// WorkerResult closes the worker's span, recording the result or error and
// setting the status chosen by the adapter.
func (i *Instrumentor) WorkerResult(ctx context.Context, wc *warren.WorkerContext, result any, err error) {
	i.mu.Lock()
	worker, ok := i.active[wc]
	delete(i.active, wc)
	i.mu.Unlock()
	if !ok {
		// Something went wrong when the span was started; nothing to close.
		log.Printf("[otelwarren] worker result with no active span: %s", wc.CallID)
		return
	}

	if err != nil {
		expected := wc.Entrypoint.Options().ErrorExpected(err)
		worker.span.RecordError(err,
			trace.WithStackTrace(true),
			trace.WithAttributes(
				attribute.Bool("exception.expected", expected),
				attribute.Bool("exception.escaped", true),
			),
		)
	} else {
		worker.span.SetAttributes(worker.adapter.ResultAttributes(wc, result)...)
	}

	code, description := worker.adapter.Status(wc, result, err)
	worker.span.SetStatus(code, description)
	worker.span.End()
}

// DispatchFailed records a SERVER span for an invocation that was rejected
// before any worker could fire (unknown RPC method, bad signature,
// unmatched HTTP route), so the failure is visible in traces.
func (i *Instrumentor) DispatchFailed(ctx context.Context, failure warren.DispatchFailure) {
	_, span := i.tracer.Start(ctx, failure.Name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("hostname", i.hostname)),
	)
	span.SetStatus(codes.Error, failure.Err.Error())
	span.End()
}
