package otelwarren

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/dyluth/warren/pkg/warren"
	"github.com/dyluth/warren/pkg/warren/rpc"
)

// RPCAdapter customises spans for RPC entrypoints: the defaults plus the
// request consumer's broker attributes.
type RPCAdapter struct {
	DefaultAdapter
}

// NewRPCAdapter is the AdapterFactory for RPCAdapter.
func NewRPCAdapter(cfg *Config) EntrypointAdapter {
	return &RPCAdapter{DefaultAdapter{Config: cfg}}
}

// Attributes includes the broker consumer attributes.
func (a *RPCAdapter) Attributes(wc *warren.WorkerContext) []attribute.KeyValue {
	attrs := a.DefaultAdapter.Attributes(wc)
	if provider, ok := wc.Entrypoint.(consumerInfoProvider); ok {
		attrs = append(attrs, consumerAttributes(provider.ConsumerInfo())...)
	}
	return attrs
}

// RPCObserver returns a call observer that opens a CLIENT span when an RPC
// is initiated and closes it when the response is collected. Trace context
// is injected into the call headers so the serving side joins the trace.
func (i *Instrumentor) RPCObserver() rpc.CallObserver {
	return &rpcObserver{
		instrumentor: i,
		spans:        make(map[*rpc.CallInfo]trace.Span),
	}
}

type rpcObserver struct {
	instrumentor *Instrumentor

	mu    sync.Mutex
	spans map[*rpc.CallInfo]trace.Span
}

func (o *rpcObserver) CallInitiated(ctx context.Context, info *rpc.CallInfo) context.Context {
	i := o.instrumentor

	ctx, span := i.tracer.Start(ctx,
		fmt.Sprintf("RPC to %s.%s", info.TargetService, info.TargetMethod),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("warren.rpc.target_service", info.TargetService),
			attribute.String("warren.rpc.target_method", info.TargetMethod),
			attribute.String("warren.rpc.correlation_id", info.CorrelationID),
		),
	)
	i.cfg.Propagator.Inject(ctx, propagation.MapCarrier(info.Headers))

	o.mu.Lock()
	o.spans[info] = span
	o.mu.Unlock()

	return ctx
}

func (o *rpcObserver) ResponseReceived(ctx context.Context, info *rpc.CallInfo, err error) {
	o.mu.Lock()
	span, ok := o.spans[info]
	delete(o.spans, info)
	o.mu.Unlock()
	if !ok {
		return
	}

	// Remote errors are the callee's outcome, already reported on the
	// server span; only transport failures mark the client span.
	var remoteErr *rpc.RemoteError
	if err != nil && !errors.As(err, &remoteErr) {
		span.RecordError(err)
	}
	span.End()
}
