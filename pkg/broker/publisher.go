package broker

import (
	"context"
	"fmt"
	"time"
)

// DeliveryMode describes the durability intent of published messages.
// It is advisory on this transport: actual durability is a property of the
// consuming queue. The mode is recorded on publishes so it is visible in
// telemetry.
type DeliveryMode string

const (
	DeliveryTransient DeliveryMode = "transient"
	DeliveryDurable   DeliveryMode = "durable"
)

// Publishing describes one publish operation as seen by interceptors.
// Interceptors may mutate the envelope (headers in particular) before it is
// sent.
type Publishing struct {
	Exchange   string
	RoutingKey string
	Envelope   *Envelope
	Mandatory  bool
	Publisher  *Publisher
}

// PublishFunc performs a publish operation.
type PublishFunc func(ctx context.Context, p *Publishing) error

// PublishInterceptor wraps a publish operation. Each registration wraps the
// chain built so far, so the last registered interceptor runs outermost.
type PublishInterceptor func(next PublishFunc) PublishFunc

// Publisher publishes envelopes to a fixed exchange.
type Publisher struct {
	broker       *Broker
	exchange     string
	deliveryMode DeliveryMode
	mandatory    bool
	priority     int
	expiration   time.Duration
	publish      PublishFunc
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithDeliveryMode sets the advisory delivery mode. Default is durable.
func WithDeliveryMode(mode DeliveryMode) PublisherOption {
	return func(p *Publisher) { p.deliveryMode = mode }
}

// WithMandatory makes publishes fail with ErrNoRoute when no bound queue
// matches the routing key. By default unrouted messages are dropped.
func WithMandatory() PublisherOption {
	return func(p *Publisher) { p.mandatory = true }
}

// WithPriority sets an advisory message priority recorded on publishes.
func WithPriority(priority int) PublisherOption {
	return func(p *Publisher) { p.priority = priority }
}

// WithExpiration sets a TTL on published messages. Expired messages are
// dropped by consumers instead of being delivered.
func WithExpiration(ttl time.Duration) PublisherOption {
	return func(p *Publisher) { p.expiration = ttl }
}

// WithPublishInterceptor appends an interceptor to the publish chain.
func WithPublishInterceptor(interceptor PublishInterceptor) PublisherOption {
	return func(p *Publisher) { p.publish = interceptor(p.publish) }
}

// NewPublisher creates a publisher bound to one exchange.
func NewPublisher(b *Broker, exchange string, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		broker:       b,
		exchange:     exchange,
		deliveryMode: DeliveryDurable,
	}
	p.publish = p.send
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Exchange returns the exchange this publisher targets.
func (p *Publisher) Exchange() string {
	return p.exchange
}

// Info returns the publisher's configuration for telemetry attributes.
func (p *Publisher) Info() PublisherInfo {
	return PublisherInfo{
		URL:          p.broker.URL(),
		Exchange:     p.exchange,
		DeliveryMode: p.deliveryMode,
		Mandatory:    p.mandatory,
		Priority:     p.priority,
		Expiration:   p.expiration,
	}
}

// Publish routes an envelope to every queue bound to the exchange under the
// routing key. Returns ErrNoRoute when the publisher is mandatory and no
// binding matches.
func (p *Publisher) Publish(ctx context.Context, routingKey string, env *Envelope) error {
	publishing := &Publishing{
		Exchange:   p.exchange,
		RoutingKey: routingKey,
		Envelope:   env,
		Mandatory:  p.mandatory,
		Publisher:  p,
	}
	return p.publish(ctx, publishing)
}

// send is the innermost publish: resolve bindings and push to each queue.
func (p *Publisher) send(ctx context.Context, publishing *Publishing) error {
	env := publishing.Envelope
	if p.expiration > 0 {
		env.setExpiry(p.expiration, time.Now())
	}

	payload, err := env.encode()
	if err != nil {
		return err
	}

	queues, err := p.broker.boundQueues(ctx, publishing.Exchange, publishing.RoutingKey)
	if err != nil {
		return err
	}

	if len(queues) == 0 {
		if publishing.Mandatory {
			return fmt.Errorf("%w: exchange %q, routing key %q",
				ErrNoRoute, publishing.Exchange, publishing.RoutingKey)
		}
		return nil
	}

	for _, queue := range queues {
		key := QueueKey(p.broker.namespace, queue)
		if err := p.broker.rdb.LPush(ctx, key, payload).Err(); err != nil {
			return fmt.Errorf("failed to publish to queue %q: %w", queue, err)
		}
	}
	return nil
}

// PublisherInfo is a snapshot of publisher configuration, consumed by the
// telemetry layer when building span attributes.
type PublisherInfo struct {
	URL          string
	Exchange     string
	DeliveryMode DeliveryMode
	Mandatory    bool
	Priority     int
	Expiration   time.Duration
}
