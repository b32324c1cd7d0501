// Package events provides service-to-service eventing: a Dispatcher that
// publishes typed events from a source service, and a handler entrypoint
// that subscribes other services to them.
//
// Each source service owns one exchange (events-{source}); the event type
// is the routing key. How a handling service's queue is shaped is chosen by
// the handler type: competing consumers per service (ServicePool, the
// default), one queue per container instance (Broadcast), or one queue
// shared by every handling service (Singleton).
package events

import (
	"fmt"
)

// HandlerType selects the queue topology of an event handler.
type HandlerType string

const (
	// ServicePool gives each handling service its own queue; instances of
	// the service compete for events. This is the default.
	ServicePool HandlerType = "service_pool"
	// Broadcast gives every container instance its own transient queue;
	// every instance receives every event.
	Broadcast HandlerType = "broadcast"
	// Singleton uses one queue shared across all handling services; exactly
	// one handler anywhere receives each event.
	Singleton HandlerType = "singleton"
)

// ExchangeName returns the exchange a source service dispatches events to.
func ExchangeName(source string) string {
	return "events-" + source
}

// eventBody is the wire form of a dispatched event.
type eventBody struct {
	Payload any `json:"payload"`
}

func poolQueueName(source, eventType, service, method string) string {
	return fmt.Sprintf("evt-%s-%s--%s.%s", source, eventType, service, method)
}

func singletonQueueName(source, eventType string) string {
	return fmt.Sprintf("evt-%s-%s", source, eventType)
}
