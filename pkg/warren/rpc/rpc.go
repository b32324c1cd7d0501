// Package rpc provides request/reply messaging between services: an
// entrypoint that exposes service methods over the broker, and a client
// that calls them.
//
// Every service with RPC methods consumes one durable queue
// (rpc-{service}). Calls carry a correlation ID and the name of a
// per-client transient reply queue; replies are sent straight to that
// queue. Calls for unknown methods or with mismatched signatures are
// answered with an error reply without firing a worker, and are surfaced to
// worker hooks as dispatch failures.
package rpc

import (
	"encoding/json"
	"fmt"
)

// Exchange is the broker exchange all RPC traffic flows through. Routing
// key is the target service name.
const Exchange = "rpc"

// QueueName returns the request queue for a service.
func QueueName(service string) string {
	return "rpc-" + service
}

// correlationHeader carries the correlation ID on reply envelopes.
const correlationHeader = "x-correlation-id"

// callBody is the wire form of an RPC request.
type callBody struct {
	Method        string         `json:"method"`
	Args          map[string]any `json:"args"`
	CorrelationID string         `json:"correlation_id"`
	ReplyQueue    string         `json:"reply_queue"`
}

// replyBody is the wire form of an RPC reply. Exactly one of Result and
// Error is meaningful.
type replyBody struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RemoteError    `json:"error,omitempty"`
}

func marshalResult(result any) (json.RawMessage, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return raw, nil
}

// RemoteError is an error that crossed the wire from the serving side.
type RemoteError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// MethodNotFoundError reports an RPC for a method the service does not
// expose.
type MethodNotFoundError struct {
	Method string
}

func (e *MethodNotFoundError) Error() string {
	return fmt.Sprintf("unknown method %q", e.Method)
}

// IncorrectSignatureError reports an RPC whose arguments do not match the
// method's declared argument names.
type IncorrectSignatureError struct {
	Method string
	Reason string
}

func (e *IncorrectSignatureError) Error() string {
	return fmt.Sprintf("invalid arguments for method %q: %s", e.Method, e.Reason)
}
