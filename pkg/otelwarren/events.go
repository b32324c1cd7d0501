package otelwarren

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/dyluth/warren/pkg/broker"
	"github.com/dyluth/warren/pkg/warren"
	"github.com/dyluth/warren/pkg/warren/events"
)

// eventHandlerInfo is implemented by event handler entrypoints.
type eventHandlerInfo interface {
	HandlerType() events.HandlerType
	ReliableDelivery() bool
	RequeueOnError() bool
	ConsumerInfo() broker.ConsumerInfo
}

// EventHandlerAdapter customises spans for event handler entrypoints:
// CONSUMER kind, the handler's delivery configuration and the broker
// consumer attributes.
type EventHandlerAdapter struct {
	DefaultAdapter
}

// NewEventHandlerAdapter is the AdapterFactory for EventHandlerAdapter.
func NewEventHandlerAdapter(cfg *Config) EntrypointAdapter {
	return &EventHandlerAdapter{DefaultAdapter{Config: cfg}}
}

// SpanKind returns CONSUMER.
func (a *EventHandlerAdapter) SpanKind(wc *warren.WorkerContext) trace.SpanKind {
	return trace.SpanKindConsumer
}

// Attributes includes the handler configuration and consumer attributes.
func (a *EventHandlerAdapter) Attributes(wc *warren.WorkerContext) []attribute.KeyValue {
	attrs := a.DefaultAdapter.Attributes(wc)
	if info, ok := wc.Entrypoint.(eventHandlerInfo); ok {
		attrs = append(attrs,
			attribute.String("warren.events.handler_type", string(info.HandlerType())),
			attribute.Bool("warren.events.reliable_delivery", info.ReliableDelivery()),
			attribute.Bool("warren.events.requeue_on_error", info.RequeueOnError()),
		)
		attrs = append(attrs, consumerAttributes(info.ConsumerInfo())...)
	}
	return attrs
}

// DispatchInterceptor returns an events interceptor that wraps each
// dispatch in a PRODUCER span and injects trace context into the event
// headers.
func (i *Instrumentor) DispatchInterceptor() events.DispatchInterceptor {
	return func(next events.DispatchFunc) events.DispatchFunc {
		return func(ctx context.Context, info *events.DispatchInfo) error {
			attrs := []attribute.KeyValue{
				attribute.String("warren.events.exchange", info.Exchange),
				attribute.String("warren.events.event_type", info.EventType),
			}
			if i.cfg.SendRequestPayloads {
				data, truncated := i.cfg.serializeScrubbed(info.Payload)
				attrs = append(attrs,
					attribute.String("warren.events.event_data", data),
					attribute.Bool("warren.events.event_data_truncated", truncated),
				)
			}

			ctx, span := i.tracer.Start(ctx,
				fmt.Sprintf("Dispatch event %s.%s", info.Source, info.EventType),
				trace.WithSpanKind(trace.SpanKindProducer),
				trace.WithAttributes(attrs...),
			)
			defer span.End()

			i.cfg.Propagator.Inject(ctx, propagation.MapCarrier(info.Headers))

			if err := next(ctx, info); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return err
			}
			return nil
		}
	}
}
