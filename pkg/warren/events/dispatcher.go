package events

import (
	"context"

	"github.com/dyluth/warren/pkg/broker"
	"github.com/dyluth/warren/pkg/warren"
)

// DispatchInfo describes one event dispatch as seen by interceptors.
// Interceptors may add headers before the event is published.
type DispatchInfo struct {
	Source    string
	EventType string
	Exchange  string
	Payload   any
	Headers   map[string]string
}

// DispatchFunc performs a dispatch.
type DispatchFunc func(ctx context.Context, info *DispatchInfo) error

// DispatchInterceptor wraps event dispatch. The telemetry layer uses this
// to open a producer span and inject trace context into the headers.
type DispatchInterceptor func(next DispatchFunc) DispatchFunc

// Dispatcher publishes events on behalf of a source service. It works both
// inside a worker (context data is forwarded automatically) and standalone
// from any process with broker access.
type Dispatcher struct {
	source    string
	publisher *broker.Publisher
	dispatch  DispatchFunc
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*dispatcherConfig)

type dispatcherConfig struct {
	interceptors  []DispatchInterceptor
	publisherOpts []broker.PublisherOption
}

// WithDispatchInterceptor appends an interceptor to the dispatch chain.
func WithDispatchInterceptor(interceptor DispatchInterceptor) DispatcherOption {
	return func(cfg *dispatcherConfig) {
		cfg.interceptors = append(cfg.interceptors, interceptor)
	}
}

// WithPublisherOptions forwards options to the underlying broker publisher.
func WithPublisherOptions(opts ...broker.PublisherOption) DispatcherOption {
	return func(cfg *dispatcherConfig) {
		cfg.publisherOpts = append(cfg.publisherOpts, opts...)
	}
}

// NewDispatcher creates a dispatcher for events of a source service.
func NewDispatcher(b *broker.Broker, source string, opts ...DispatcherOption) *Dispatcher {
	var cfg dispatcherConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	d := &Dispatcher{
		source:    source,
		publisher: broker.NewPublisher(b, ExchangeName(source), cfg.publisherOpts...),
	}
	d.dispatch = d.send
	for i := len(cfg.interceptors) - 1; i >= 0; i-- {
		d.dispatch = cfg.interceptors[i](d.dispatch)
	}
	return d
}

// Source returns the source service name.
func (d *Dispatcher) Source() string {
	return d.source
}

// PublisherInfo exposes the underlying publisher's configuration for
// telemetry attributes.
func (d *Dispatcher) PublisherInfo() broker.PublisherInfo {
	return d.publisher.Info()
}

// Dispatch publishes one event. Events with no subscribed handler are
// dropped silently unless the publisher was made mandatory.
func (d *Dispatcher) Dispatch(ctx context.Context, eventType string, payload any) error {
	headers := make(map[string]string)
	for k, v := range warren.ContextData(ctx) {
		headers[k] = v
	}

	info := &DispatchInfo{
		Source:    d.source,
		EventType: eventType,
		Exchange:  d.publisher.Exchange(),
		Payload:   payload,
		Headers:   headers,
	}
	return d.dispatch(ctx, info)
}

func (d *Dispatcher) send(ctx context.Context, info *DispatchInfo) error {
	env, err := broker.NewEnvelope(info.Headers, eventBody{Payload: info.Payload})
	if err != nil {
		return err
	}
	return d.publisher.Publish(ctx, info.EventType, env)
}
