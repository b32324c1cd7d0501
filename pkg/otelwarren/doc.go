// Package otelwarren traces warren services with OpenTelemetry.
//
// # Overview
//
// Every entrypoint firing becomes a span. The span's name, kind,
// attributes and status are determined by the EntrypointAdapter registered
// for the entrypoint's kind; kind-specific adapters are provided for RPC,
// HTTP, event handler, consumer and timer entrypoints, with DefaultAdapter
// covering everything else. Client operations (RPC calls, event dispatch,
// raw publishes) become CLIENT/PRODUCER spans, and trace context is
// injected into message headers so worker spans on the receiving side join
// the caller's trace.
//
// # Wiring
//
// Instrumentation is explicit: the Instrumentor is a worker hook, so it is
// registered on containers, and its interceptors are passed to clients.
//
//	ins := otelwarren.New(otelwarren.Config{SendRequestPayloads: true})
//	c := warren.NewContainer(svc, b, warren.WithWorkerHook(ins))
//	client, err := rpc.NewClient(ctx, b,
//		rpc.WithCallObserver(ins.RPCObserver()),
//		rpc.WithPublishInterceptor(ins.BrokerPublishInterceptor()))
//
// # Payload Capture
//
// Call arguments, results, event payloads and headers are only recorded
// when enabled in Config, and always pass through the configured scrubbers
// and the truncation limit first. Arguments named sensitive on the
// entrypoint arrive already redacted.
package otelwarren
