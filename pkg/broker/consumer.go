package broker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// popTimeout bounds each blocking pop. One second is the smallest blocking
// timeout the redis client supports; shorter values get truncated to it.
const popTimeout = time.Second

// Binding ties a consumer's queue to an exchange under a routing key.
type Binding struct {
	Exchange   string
	RoutingKey string
}

// Handler processes one delivered envelope. A non-nil error marks the
// delivery as failed; whether the message is requeued depends on the
// consumer's requeue-on-error setting.
type Handler func(ctx context.Context, env *Envelope) error

// Consumer delivers messages from one queue to a handler. Up to prefetch
// handler invocations run concurrently. The consumer owns its queue's
// lifecycle: transient queues are unbound and deleted on Stop.
type Consumer struct {
	broker         *Broker
	queue          string
	handler        Handler
	bindings       []Binding
	durable        bool
	prefetch       int
	requeueOnError bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithBinding binds the consumer's queue to an exchange under a routing key
// for the lifetime of the consumer (or permanently, if the queue is
// durable). May be repeated.
func WithBinding(exchange, routingKey string) ConsumerOption {
	return func(c *Consumer) {
		c.bindings = append(c.bindings, Binding{Exchange: exchange, RoutingKey: routingKey})
	}
}

// WithTransientQueue deletes the queue and its bindings when the consumer
// stops. Queues are durable by default.
func WithTransientQueue() ConsumerOption {
	return func(c *Consumer) { c.durable = false }
}

// WithPrefetch sets the number of concurrent handler invocations.
// Default is 10.
func WithPrefetch(n int) ConsumerOption {
	return func(c *Consumer) {
		if n > 0 {
			c.prefetch = n
		}
	}
}

// WithRequeueOnError returns failed deliveries to the queue for redelivery.
// By default failed deliveries are dropped.
func WithRequeueOnError() ConsumerOption {
	return func(c *Consumer) { c.requeueOnError = true }
}

// NewConsumer creates a consumer for the given queue.
func NewConsumer(b *Broker, queue string, handler Handler, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		broker:   b,
		queue:    queue,
		handler:  handler,
		durable:  true,
		prefetch: 10,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Queue returns the queue name this consumer reads from.
func (c *Consumer) Queue() string {
	return c.queue
}

// Info returns the consumer's configuration for telemetry attributes.
func (c *Consumer) Info() ConsumerInfo {
	return ConsumerInfo{
		URL:            c.broker.URL(),
		Queue:          c.queue,
		Bindings:       append([]Binding(nil), c.bindings...),
		Durable:        c.durable,
		Prefetch:       c.prefetch,
		RequeueOnError: c.requeueOnError,
	}
}

// Start declares the queue's bindings and begins consuming. It returns once
// the consume loop is running; deliveries happen on background goroutines.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("consumer for queue %q already started", c.queue)
	}

	if err := c.broker.DeclareQueue(ctx, c.queue); err != nil {
		return err
	}
	for _, binding := range c.bindings {
		if err := c.broker.BindQueue(ctx, binding.Exchange, binding.RoutingKey, c.queue); err != nil {
			return err
		}
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.started = true

	go c.consume(loopCtx)
	return nil
}

// Stop halts consumption and waits for in-flight handlers to finish.
// Transient queues are unbound and deleted. Safe to call once per Start.
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil
	}
	c.cancel()
	select {
	case <-c.done:
	case <-ctx.Done():
		return fmt.Errorf("consumer for queue %q did not drain: %w", c.queue, ctx.Err())
	}
	c.started = false

	if !c.durable {
		for _, binding := range c.bindings {
			if err := c.broker.UnbindQueue(ctx, binding.Exchange, binding.RoutingKey, c.queue); err != nil {
				return err
			}
		}
		if err := c.broker.DeleteQueue(ctx, c.queue); err != nil {
			return err
		}
	}
	return nil
}

// consume is the blocking pop loop. Each delivery is handled on its own
// goroutine, gated by a prefetch semaphore.
func (c *Consumer) consume(ctx context.Context) {
	defer close(c.done)

	key := QueueKey(c.broker.namespace, c.queue)
	slots := make(chan struct{}, c.prefetch)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			return
		}

		result, err := c.broker.rdb.BRPop(ctx, popTimeout, key).Result()
		if err != nil {
			<-slots
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			log.Printf("[Consumer %s] pop failed: %v", c.queue, err)
			continue
		}

		// BRPop returns [key, value]
		payload := []byte(result[1])
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-slots }()
			c.deliver(ctx, payload)
		}()
	}
}

func (c *Consumer) deliver(ctx context.Context, payload []byte) {
	env, err := decodeEnvelope(payload)
	if err != nil {
		log.Printf("[Consumer %s] dropping undecodable message: %v", c.queue, err)
		return
	}
	if env.expired(time.Now()) {
		return
	}

	// In-flight deliveries are drained, not cancelled, on Stop.
	handlerCtx := context.WithoutCancel(ctx)
	if err := c.handler(handlerCtx, env); err != nil {
		if !c.requeueOnError {
			return
		}
		// Redeliver behind any pending messages, so a repeatedly failing
		// message rotates through the queue instead of wedging its front.
		key := QueueKey(c.broker.namespace, c.queue)
		if pushErr := c.broker.rdb.LPush(handlerCtx, key, payload).Err(); pushErr != nil {
			log.Printf("[Consumer %s] failed to requeue message: %v", c.queue, pushErr)
		}
	}
}

// ConsumerInfo is a snapshot of consumer configuration, consumed by the
// telemetry layer when building span attributes.
type ConsumerInfo struct {
	URL            string
	Queue          string
	Bindings       []Binding
	Durable        bool
	Prefetch       int
	RequeueOnError bool
}
