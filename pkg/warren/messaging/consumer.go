package messaging

import (
	"context"

	"github.com/dyluth/warren/pkg/broker"
	"github.com/dyluth/warren/pkg/warren"
)

// Queue declares the queue a consumer entrypoint reads from and its
// binding. An empty Exchange leaves the queue unbound; messages then arrive
// only via direct sends.
type Queue struct {
	Name       string
	Exchange   string
	RoutingKey string
}

// ConsumerEntrypoint delivers messages from a declared queue to a service
// method. Create with Consumer and attach to a service.
type ConsumerEntrypoint struct {
	queue   Queue
	method  string
	handler warren.Handler
	requeue bool
	opts    warren.EntrypointOptions

	consumer *broker.Consumer
}

// ConsumerOption configures a consumer entrypoint.
type ConsumerOption func(*ConsumerEntrypoint)

// WithRequeueOnError returns messages to the queue when the handler fails.
func WithRequeueOnError() ConsumerOption {
	return func(e *ConsumerEntrypoint) { e.requeue = true }
}

// WithOptions applies shared entrypoint options.
func WithOptions(opts ...warren.EntrypointOption) ConsumerOption {
	return func(e *ConsumerEntrypoint) {
		for _, opt := range opts {
			opt(&e.opts)
		}
	}
}

// Consumer creates a consumer entrypoint: method handles every message
// arriving on the declared queue.
func Consumer(queue Queue, method string, handler warren.Handler, opts ...ConsumerOption) *ConsumerEntrypoint {
	e := &ConsumerEntrypoint{
		queue:   queue,
		method:  method,
		handler: handler,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MethodName returns the handling method name.
func (e *ConsumerEntrypoint) MethodName() string { return e.method }

// Kind returns warren.KindConsumer.
func (e *ConsumerEntrypoint) Kind() warren.Kind { return warren.KindConsumer }

// Options returns the shared entrypoint options.
func (e *ConsumerEntrypoint) Options() warren.EntrypointOptions { return e.opts }

// RequeueOnError reports whether failed messages are redelivered.
func (e *ConsumerEntrypoint) RequeueOnError() bool { return e.requeue }

// ConsumerInfo exposes the consumer's configuration for telemetry
// attributes. Zero value before Start.
func (e *ConsumerEntrypoint) ConsumerInfo() broker.ConsumerInfo {
	if e.consumer == nil {
		return broker.ConsumerInfo{}
	}
	return e.consumer.Info()
}

// Start declares the queue binding and begins consuming.
func (e *ConsumerEntrypoint) Start(ctx context.Context, c *warren.Container) error {
	consumerOpts := []broker.ConsumerOption{
		broker.WithPrefetch(c.MaxWorkers()),
	}
	if e.queue.Exchange != "" {
		consumerOpts = append(consumerOpts, broker.WithBinding(e.queue.Exchange, e.queue.RoutingKey))
	}
	if e.requeue {
		consumerOpts = append(consumerOpts, broker.WithRequeueOnError())
	}

	e.consumer = broker.NewConsumer(c.Broker(), e.queue.Name, e.handleMessage(c), consumerOpts...)
	return e.consumer.Start(ctx)
}

// Stop halts consumption.
func (e *ConsumerEntrypoint) Stop(ctx context.Context) error {
	if e.consumer == nil {
		return nil
	}
	return e.consumer.Stop(ctx)
}

func (e *ConsumerEntrypoint) handleMessage(c *warren.Container) broker.Handler {
	return func(ctx context.Context, env *broker.Envelope) error {
		var body messageBody
		if err := env.DecodeBody(&body); err != nil {
			return nil
		}

		args := map[string]any{"payload": body.Payload}
		wc := warren.NewWorkerContext(c.ServiceName(), e, args, env.CloneHeaders())
		_, err := c.RunWorker(ctx, wc, func(ctx context.Context) (any, error) {
			return e.handler(ctx, args)
		})
		return err
	}
}
