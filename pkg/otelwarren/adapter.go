package otelwarren

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dyluth/warren/pkg/otelwarren/scrub"
	"github.com/dyluth/warren/pkg/warren"
)

// EntrypointAdapter determines how a worker becomes a span: its name,
// kind, the carrier trace context is extracted from, and its attributes
// and status. One adapter is registered per entrypoint kind; DefaultAdapter
// is used for kinds without a more specific one.
type EntrypointAdapter interface {
	// SpanName returns the name of the worker span.
	SpanName(wc *warren.WorkerContext) string
	// SpanKind returns the kind of the worker span.
	SpanKind(wc *warren.WorkerContext) trace.SpanKind
	// Metadata returns the carrier the parent trace context is extracted
	// from.
	Metadata(wc *warren.WorkerContext) map[string]string
	// Attributes returns the attributes set when the span starts.
	Attributes(wc *warren.WorkerContext) []attribute.KeyValue
	// ResultAttributes returns the attributes describing a successful
	// result.
	ResultAttributes(wc *warren.WorkerContext, result any) []attribute.KeyValue
	// Status returns the span status for the worker outcome.
	Status(wc *warren.WorkerContext, result any, err error) (codes.Code, string)
}

// AdapterFactory builds an adapter with access to the instrumentation
// config.
type AdapterFactory func(cfg *Config) EntrypointAdapter

// DefaultAdapter is the adapter used for entrypoint kinds without a more
// specific one, and the base the kind-specific adapters build on.
type DefaultAdapter struct {
	Config *Config
}

// NewDefaultAdapter is the AdapterFactory for DefaultAdapter.
func NewDefaultAdapter(cfg *Config) EntrypointAdapter {
	return &DefaultAdapter{Config: cfg}
}

// SpanName returns "{service}.{method}".
func (a *DefaultAdapter) SpanName(wc *warren.WorkerContext) string {
	return fmt.Sprintf("%s.%s", wc.ServiceName, wc.Entrypoint.MethodName())
}

// SpanKind returns SERVER.
func (a *DefaultAdapter) SpanKind(wc *warren.WorkerContext) trace.SpanKind {
	return trace.SpanKindServer
}

// Metadata returns the worker's context data.
func (a *DefaultAdapter) Metadata(wc *warren.WorkerContext) map[string]string {
	return wc.ContextData
}

// Attributes combines the common worker attributes with header and call
// argument capture.
func (a *DefaultAdapter) Attributes(wc *warren.WorkerContext) []attribute.KeyValue {
	attrs := a.CommonAttributes(wc)
	attrs = append(attrs, a.HeaderAttributes(wc)...)
	attrs = append(attrs, a.CallArgsAttributes(wc)...)
	return attrs
}

// CommonAttributes describes the worker itself: service, entrypoint and
// worker pool occupancy.
func (a *DefaultAdapter) CommonAttributes(wc *warren.WorkerContext) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("service_name", wc.ServiceName),
		attribute.String("entrypoint_type", string(wc.Entrypoint.Kind())),
		attribute.String("method_name", wc.Entrypoint.MethodName()),
		attribute.String("call_id", wc.CallID),
		attribute.Int("active_workers", wc.Running()),
		attribute.Int("available_workers", wc.Free()),
	}
}

// HeaderAttributes captures the worker's context data, scrubbed, when
// header capture is enabled.
func (a *DefaultAdapter) HeaderAttributes(wc *warren.WorkerContext) []attribute.KeyValue {
	if !a.Config.SendHeaders {
		return nil
	}
	return []attribute.KeyValue{
		attribute.String("context_data", a.Config.serializeScrubbedFull(headersAsAny(wc.ContextData))),
	}
}

// CallArgsAttributes captures the call arguments, scrubbed and truncated,
// when request payload capture is enabled.
func (a *DefaultAdapter) CallArgsAttributes(wc *warren.WorkerContext) []attribute.KeyValue {
	if !a.Config.SendRequestPayloads {
		return nil
	}
	callArgs, truncated := a.Config.serializeScrubbed(wc.CallArgs)
	return []attribute.KeyValue{
		attribute.String("call_args", callArgs),
		attribute.Bool("call_args_truncated", truncated),
		attribute.Bool("call_args_redacted", wc.ArgsRedacted),
	}
}

// ResultAttributes captures the worker result, scrubbed and truncated,
// when response payload capture is enabled.
func (a *DefaultAdapter) ResultAttributes(wc *warren.WorkerContext, result any) []attribute.KeyValue {
	if !a.Config.SendResponsePayloads {
		return nil
	}
	serialized, truncated := a.Config.serializeScrubbed(result)
	return []attribute.KeyValue{
		attribute.String("result", serialized),
		attribute.Bool("result_truncated", truncated),
	}
}

// Status reports ERROR for unexpected worker errors, OK otherwise.
// Expected errors are part of the entrypoint's contract and leave the span
// OK.
func (a *DefaultAdapter) Status(wc *warren.WorkerContext, result any, err error) (codes.Code, string) {
	if err != nil && !wc.Entrypoint.Options().ErrorExpected(err) {
		return codes.Error, err.Error()
	}
	return codes.Ok, ""
}

// headersAsAny converts a header map to the shape scrubbers operate on.
func headersAsAny(headers map[string]string) map[string]any {
	out := make(map[string]any, len(headers))
	for k, v := range headers {
		out[k] = v
	}
	return out
}

// serializeScrubbed scrubs, serializes and truncates a payload value.
func (cfg *Config) serializeScrubbed(value any) (string, bool) {
	return Truncate(SafeSerialize(scrub.Apply(value, cfg.Scrubbers)), cfg.TruncateMaxLength)
}

// serializeScrubbedFull scrubs and serializes without truncation, for
// header capture.
func (cfg *Config) serializeScrubbedFull(value any) string {
	return SafeSerialize(scrub.Apply(value, cfg.Scrubbers))
}
