package otelwarren

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dyluth/warren/pkg/broker"
)

// Attribute names for broker publishers and consumers share this prefix.
const brokerPrefix = "warren.broker"

// publisherAttributes describes a publisher and one publish operation.
func publisherAttributes(cfg *Config, p *broker.Publishing) []attribute.KeyValue {
	info := p.Publisher.Info()
	attrs := []attribute.KeyValue{
		attribute.String(brokerPrefix+".url", info.URL),
		attribute.String(brokerPrefix+".exchange", p.Exchange),
		attribute.String(brokerPrefix+".routing_key", p.RoutingKey),
		attribute.String(brokerPrefix+".delivery_mode", string(info.DeliveryMode)),
		attribute.Bool(brokerPrefix+".mandatory", p.Mandatory),
		attribute.Int(brokerPrefix+".priority", info.Priority),
		attribute.String(brokerPrefix+".expiration", info.Expiration.String()),
	}
	if cfg.SendHeaders {
		attrs = append(attrs, attribute.String(
			brokerPrefix+".headers",
			cfg.serializeScrubbedFull(headersAsAny(p.Envelope.Headers)),
		))
	}
	return attrs
}

// consumerAttributes describes the consumer feeding an entrypoint.
func consumerAttributes(info broker.ConsumerInfo) []attribute.KeyValue {
	bindings := make([]string, 0, len(info.Bindings))
	for _, b := range info.Bindings {
		bindings = append(bindings, b.Exchange+":"+b.RoutingKey)
	}
	return []attribute.KeyValue{
		attribute.String(brokerPrefix+".url", info.URL),
		attribute.String(brokerPrefix+".queue", info.Queue),
		attribute.StringSlice(brokerPrefix+".bindings", bindings),
		attribute.Bool(brokerPrefix+".durable", info.Durable),
		attribute.Int(brokerPrefix+".prefetch_count", info.Prefetch),
		attribute.Bool(brokerPrefix+".requeue_on_error", info.RequeueOnError),
	}
}

// consumerInfoProvider is implemented by entrypoints backed by a broker
// consumer.
type consumerInfoProvider interface {
	ConsumerInfo() broker.ConsumerInfo
}

// BrokerPublishInterceptor annotates the current span with the publisher's
// configuration at publish time. Wire it into any client that exposes
// broker publisher options; it complements the span-opening interceptors,
// which remain per client kind.
func (i *Instrumentor) BrokerPublishInterceptor() broker.PublishInterceptor {
	return func(next broker.PublishFunc) broker.PublishFunc {
		return func(ctx context.Context, p *broker.Publishing) error {
			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				span.SetAttributes(publisherAttributes(&i.cfg, p)...)
			}
			return next(ctx, p)
		}
	}
}
