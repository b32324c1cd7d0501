// Package messaging provides raw publish/consume messaging for services
// that need direct control over exchanges and queues, below the typed
// events layer.
package messaging

import (
	"context"

	"github.com/dyluth/warren/pkg/broker"
	"github.com/dyluth/warren/pkg/warren"
)

// messageBody is the wire form of a published payload.
type messageBody struct {
	Payload any `json:"payload"`
}

// PublishInfo describes one publish as seen by interceptors. Interceptors
// may add headers before the message is sent.
type PublishInfo struct {
	Exchange   string
	RoutingKey string
	Payload    any
	Headers    map[string]string
}

// PublishFunc performs a publish.
type PublishFunc func(ctx context.Context, info *PublishInfo) error

// PublishInterceptor wraps payload publishing. The telemetry layer uses
// this to open a producer span and inject trace context.
type PublishInterceptor func(next PublishFunc) PublishFunc

// Publisher publishes payloads to a fixed exchange. Context data from a
// surrounding worker is forwarded in the message headers.
type Publisher struct {
	publisher *broker.Publisher
	publish   PublishFunc
}

// PublisherOption configures a Publisher.
type PublisherOption func(*publisherConfig)

type publisherConfig struct {
	interceptors []PublishInterceptor
	brokerOpts   []broker.PublisherOption
}

// WithPublishInterceptor appends an interceptor to the publish chain.
func WithPublishInterceptor(interceptor PublishInterceptor) PublisherOption {
	return func(cfg *publisherConfig) {
		cfg.interceptors = append(cfg.interceptors, interceptor)
	}
}

// WithPublisherOptions forwards options to the underlying broker publisher.
func WithPublisherOptions(opts ...broker.PublisherOption) PublisherOption {
	return func(cfg *publisherConfig) {
		cfg.brokerOpts = append(cfg.brokerOpts, opts...)
	}
}

// NewPublisher creates a publisher for an exchange.
func NewPublisher(b *broker.Broker, exchange string, opts ...PublisherOption) *Publisher {
	var cfg publisherConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &Publisher{
		publisher: broker.NewPublisher(b, exchange, cfg.brokerOpts...),
	}
	p.publish = p.send
	for i := len(cfg.interceptors) - 1; i >= 0; i-- {
		p.publish = cfg.interceptors[i](p.publish)
	}
	return p
}

// PublisherInfo exposes the underlying publisher's configuration for
// telemetry attributes.
func (p *Publisher) PublisherInfo() broker.PublisherInfo {
	return p.publisher.Info()
}

// Publish sends a payload to the exchange under a routing key.
func (p *Publisher) Publish(ctx context.Context, routingKey string, payload any) error {
	headers := make(map[string]string)
	for k, v := range warren.ContextData(ctx) {
		headers[k] = v
	}

	info := &PublishInfo{
		Exchange:   p.publisher.Exchange(),
		RoutingKey: routingKey,
		Payload:    payload,
		Headers:    headers,
	}
	return p.publish(ctx, info)
}

func (p *Publisher) send(ctx context.Context, info *PublishInfo) error {
	env, err := broker.NewEnvelope(info.Headers, messageBody{Payload: info.Payload})
	if err != nil {
		return err
	}
	return p.publisher.Publish(ctx, info.RoutingKey, env)
}
