package events

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dyluth/warren/pkg/broker"
	"github.com/dyluth/warren/pkg/warren"
)

// HandlerEntrypoint subscribes a service method to events of another
// service. Create with Handler and attach to a service.
type HandlerEntrypoint struct {
	source      string
	eventType   string
	method      string
	handler     warren.Handler
	handlerType HandlerType
	reliable    bool
	reliableSet bool
	requeue     bool
	opts        warren.EntrypointOptions

	consumer *broker.Consumer
}

// HandlerOption configures a handler entrypoint.
type HandlerOption func(*HandlerEntrypoint)

// WithHandlerType selects the queue topology. Default is ServicePool.
func WithHandlerType(t HandlerType) HandlerOption {
	return func(e *HandlerEntrypoint) { e.handlerType = t }
}

// WithReliableDelivery controls whether the handler queue survives consumer
// restarts. Defaults to true, except for Broadcast handlers where reliable
// delivery is meaningless and always off.
func WithReliableDelivery(reliable bool) HandlerOption {
	return func(e *HandlerEntrypoint) {
		e.reliable = reliable
		e.reliableSet = true
	}
}

// WithRequeueOnError returns events to the queue when the handler fails.
func WithRequeueOnError() HandlerOption {
	return func(e *HandlerEntrypoint) { e.requeue = true }
}

// WithOptions applies shared entrypoint options.
func WithOptions(opts ...warren.EntrypointOption) HandlerOption {
	return func(e *HandlerEntrypoint) {
		for _, opt := range opts {
			opt(&e.opts)
		}
	}
}

// Handler creates an event handler entrypoint: method on the subscribing
// service handles events of eventType dispatched by source.
func Handler(source, eventType, method string, handler warren.Handler, opts ...HandlerOption) *HandlerEntrypoint {
	e := &HandlerEntrypoint{
		source:      source,
		eventType:   eventType,
		method:      method,
		handler:     handler,
		handlerType: ServicePool,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MethodName returns the handling method name.
func (e *HandlerEntrypoint) MethodName() string { return e.method }

// Kind returns warren.KindEventHandler.
func (e *HandlerEntrypoint) Kind() warren.Kind { return warren.KindEventHandler }

// Options returns the shared entrypoint options.
func (e *HandlerEntrypoint) Options() warren.EntrypointOptions { return e.opts }

// HandlerType returns the configured queue topology.
func (e *HandlerEntrypoint) HandlerType() HandlerType { return e.handlerType }

// ReliableDelivery reports whether the handler queue is durable.
func (e *HandlerEntrypoint) ReliableDelivery() bool {
	if e.handlerType == Broadcast {
		return false
	}
	if e.reliableSet {
		return e.reliable
	}
	return true
}

// RequeueOnError reports whether failed events are redelivered.
func (e *HandlerEntrypoint) RequeueOnError() bool { return e.requeue }

// ConsumerInfo exposes the consumer's configuration for telemetry
// attributes. Zero value before Start.
func (e *HandlerEntrypoint) ConsumerInfo() broker.ConsumerInfo {
	if e.consumer == nil {
		return broker.ConsumerInfo{}
	}
	return e.consumer.Info()
}

// Start declares the handler queue according to the handler type and begins
// consuming.
func (e *HandlerEntrypoint) Start(ctx context.Context, c *warren.Container) error {
	service := c.ServiceName()

	var queue string
	switch e.handlerType {
	case ServicePool:
		queue = poolQueueName(e.source, e.eventType, service, e.method)
	case Broadcast:
		queue = fmt.Sprintf("%s-%s", poolQueueName(e.source, e.eventType, service, e.method), uuid.New().String())
	case Singleton:
		queue = singletonQueueName(e.source, e.eventType)
	default:
		return fmt.Errorf("unknown handler type %q", e.handlerType)
	}

	consumerOpts := []broker.ConsumerOption{
		broker.WithBinding(ExchangeName(e.source), e.eventType),
		broker.WithPrefetch(c.MaxWorkers()),
	}
	if !e.ReliableDelivery() {
		consumerOpts = append(consumerOpts, broker.WithTransientQueue())
	}
	if e.requeue {
		consumerOpts = append(consumerOpts, broker.WithRequeueOnError())
	}

	e.consumer = broker.NewConsumer(c.Broker(), queue, e.handleMessage(c), consumerOpts...)
	return e.consumer.Start(ctx)
}

// Stop halts consumption.
func (e *HandlerEntrypoint) Stop(ctx context.Context) error {
	if e.consumer == nil {
		return nil
	}
	return e.consumer.Stop(ctx)
}

func (e *HandlerEntrypoint) handleMessage(c *warren.Container) broker.Handler {
	return func(ctx context.Context, env *broker.Envelope) error {
		var body eventBody
		if err := env.DecodeBody(&body); err != nil {
			// Undecodable events are dropped, never requeued.
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
