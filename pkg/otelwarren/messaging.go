package otelwarren

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/dyluth/warren/pkg/warren"
	"github.com/dyluth/warren/pkg/warren/messaging"
)

// requeueInfo is implemented by consumer entrypoints.
type requeueInfo interface {
	RequeueOnError() bool
}

// ConsumerAdapter customises spans for queue consumer entrypoints.
type ConsumerAdapter struct {
	DefaultAdapter
}

// NewConsumerAdapter is the AdapterFactory for ConsumerAdapter.
func NewConsumerAdapter(cfg *Config) EntrypointAdapter {
	return &ConsumerAdapter{DefaultAdapter{Config: cfg}}
}

// SpanKind returns CONSUMER.
func (a *ConsumerAdapter) SpanKind(wc *warren.WorkerContext) trace.SpanKind {
	return trace.SpanKindConsumer
}

// Attributes includes the requeue setting and consumer attributes.
func (a *ConsumerAdapter) Attributes(wc *warren.WorkerContext) []attribute.KeyValue {
	attrs := a.DefaultAdapter.Attributes(wc)
	if info, ok := wc.Entrypoint.(requeueInfo); ok {
		attrs = append(attrs, attribute.Bool("warren.messaging.requeue_on_error", info.RequeueOnError()))
	}
	if provider, ok := wc.Entrypoint.(consumerInfoProvider); ok {
		attrs = append(attrs, consumerAttributes(provider.ConsumerInfo())...)
	}
	return attrs
}

// PublishInterceptor returns a messaging interceptor that wraps each
// publish in a PRODUCER span and injects trace context into the message
// headers.
func (i *Instrumentor) PublishInterceptor() messaging.PublishInterceptor {
	return func(next messaging.PublishFunc) messaging.PublishFunc {
		return func(ctx context.Context, info *messaging.PublishInfo) error {
			attrs := []attribute.KeyValue{
				attribute.String("warren.messaging.exchange", info.Exchange),
				attribute.String("warren.messaging.routing_key", info.RoutingKey),
			}
			if i.cfg.SendRequestPayloads {
				payload, truncated := i.cfg.serializeScrubbed(info.Payload)
				attrs = append(attrs,
					attribute.String("warren.messaging.payload", payload),
					attribute.Bool("warren.messaging.payload_truncated", truncated),
				)
			}

			ctx, span := i.tracer.Start(ctx, "Publish to "+info.Exchange,
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
