package rpc

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/dyluth/warren/pkg/broker"
	"github.com/dyluth/warren/pkg/warren"
)

// Entrypoint exposes one service method over RPC. Create with Method and
// attach to a service. All RPC entrypoints of a service share one request
// queue and dispatch by method name.
type Entrypoint struct {
	method   string
	handler  warren.Handler
	argNames []string
	strict   bool
	opts     warren.EntrypointOptions

	server *server
}

// Option configures an RPC entrypoint.
type Option func(*Entrypoint)

// WithArgNames declares the method's argument names. Calls whose args do
// not exactly match the declared set are rejected with
// IncorrectSignatureError before any worker fires.
func WithArgNames(names ...string) Option {
	return func(e *Entrypoint) {
		e.argNames = names
		e.strict = true
	}
}

// WithOptions applies shared entrypoint options (expected errors, sensitive
// arguments).
func WithOptions(opts ...warren.EntrypointOption) Option {
	return func(e *Entrypoint) {
		for _, opt := range opts {
			opt(&e.opts)
		}
	}
}

// Method creates an RPC entrypoint for a named method.
func Method(method string, handler warren.Handler, opts ...Option) *Entrypoint {
	e := &Entrypoint{
		method:  method,
		handler: handler,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MethodName returns the exposed method name.
func (e *Entrypoint) MethodName() string { return e.method }

// Kind returns warren.KindRPC.
func (e *Entrypoint) Kind() warren.Kind { return warren.KindRPC }

// Options returns the shared entrypoint options.
func (e *Entrypoint) Options() warren.EntrypointOptions { return e.opts }

// ConsumerInfo exposes the shared request consumer's configuration for
// telemetry attributes. Zero value before Start.
func (e *Entrypoint) ConsumerInfo() broker.ConsumerInfo {
	if e.server == nil || e.server.consumer == nil {
		return broker.ConsumerInfo{}
	}
	return e.server.consumer.Info()
}

// Start registers the method on the service's shared RPC server. The
// server's consumer starts once the last RPC entrypoint of the service has
// registered, so a partially registered method set is never exposed.
func (e *Entrypoint) Start(ctx context.Context, c *warren.Container) error {
	srv := serverFor(c)
	e.server = srv
	return srv.register(ctx, e)
}

// Stop unregisters the method; the shared consumer stops with the last one.
func (e *Entrypoint) Stop(ctx context.Context) error {
	if e.server == nil {
		return nil
	}
	return e.server.unregister(ctx, e)
}

// checkSignature validates provided args against the declared names.
func (e *Entrypoint) checkSignature(args map[string]any) error {
	if !e.strict {
		return nil
	}
	declared := make(map[string]bool, len(e.argNames))
	for _, name := range e.argNames {
		declared[name] = true
	}
	for name := range args {
		if !declared[name] {
			return &IncorrectSignatureError{Method: e.method, Reason: fmt.Sprintf("unexpected argument %q", name)}
		}
	}
	for _, name := range e.argNames {
		if _, ok := args[name]; !ok {
			return &IncorrectSignatureError{Method: e.method, Reason: fmt.Sprintf("missing argument %q", name)}
		}
	}
	return nil
}

// server is the per-container RPC dispatcher: one consumer on the service
// request queue, routing to registered entrypoints by method name.
type server struct {
	container *warren.Container

	mu          sync.Mutex
	entrypoints map[string]*Entrypoint
	consumer    *broker.Consumer
}

var (
	serversMu sync.Mutex
	servers   = make(map[*warren.Container]*server)
)

func serverFor(c *warren.Container) *server {
	serversMu.Lock()
	defer serversMu.Unlock()
	if srv, ok := servers[c]; ok {
		return srv
	}
	srv := &server{
		container:   c,
		entrypoints: make(map[string]*Entrypoint),
	}
	servers[c] = srv
	return srv
}

func dropServer(c *warren.Container) {
	serversMu.Lock()
	defer serversMu.Unlock()
	delete(servers, c)
}

// expectedMethods counts the RPC entrypoints attached to the service.
func (s *server) expectedMethods() int {
	n := 0
	for _, ep := range s.container.Entrypoints() {
		if ep.Kind() == warren.KindRPC {
			n++
		}
	}
	return n
}

func (s *server) register(ctx context.Context, e *Entrypoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.entrypoints[e.method]; dup {
		return fmt.Errorf("duplicate RPC method %q", e.method)
	}
	s.entrypoints[e.method] = e

	if len(s.entrypoints) < s.expectedMethods() {
		return nil
	}

	service := s.container.ServiceName()
	s.consumer = broker.NewConsumer(
		s.container.Broker(),
		QueueName(service),
		s.handleMessage,
		broker.WithBinding(Exchange, service),
		broker.WithPrefetch(s.container.MaxWorkers()),
	)
	if err := s.consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start RPC consumer for %q: %w", service, err)
	}
	log.Printf("[RPC %s] serving %d method(s)", service, len(s.entrypoints))
	return nil
}

func (s *server) unregister(ctx context.Context, e *Entrypoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entrypoints, e.method)
	if len(s.entrypoints) > 0 {
		return nil
	}

	dropServer(s.container)
	if s.consumer == nil {
		return nil
	}
	return s.consumer.Stop(ctx)
}

// handleMessage dispatches one RPC request. A reply is always sent, even
// when no worker fires.
func (s *server) handleMessage(ctx context.Context, env *broker.Envelope) error {
	var body callBody
	if err := env.DecodeBody(&body); err != nil {
		log.Printf("[RPC %s] dropping undecodable request: %v", s.container.ServiceName(), err)
		return nil
	}

	s.mu.Lock()
	e, ok := s.entrypoints[body.Method]
	s.mu.Unlock()

	name := fmt.Sprintf("%s.%s", s.container.ServiceName(), body.Method)

	if !ok {
		err := &MethodNotFoundError{Method: body.Method}
		s.container.NotifyDispatchFailure(ctx, warren.DispatchFailure{
			Kind: warren.KindRPC, Name: name, Err: err,
		})
		return s.reply(ctx, &body, nil, &RemoteError{Name: "MethodNotFound", Message: err.Error()})
	}

	if err := e.checkSignature(body.Args); err != nil {
		s.container.NotifyDispatchFailure(ctx, warren.DispatchFailure{
			Kind: warren.KindRPC, Name: name, Err: err,
		})
		return s.reply(ctx, &body, nil, &RemoteError{Name: "IncorrectSignature", Message: err.Error()})
	}

	wc := warren.NewWorkerContext(s.container.ServiceName(), e, body.Args, env.CloneHeaders())
	result, err := s.container.RunWorker(ctx, wc, func(ctx context.Context) (any, error) {
		return e.handler(ctx, body.Args)
	})
	if err != nil {
		return s.reply(ctx, &body, nil, &RemoteError{Name: errorName(err), Message: err.Error()})
	}
	return s.reply(ctx, &body, result, nil)
}

func (s *server) reply(ctx context.Context, call *callBody, result any, remoteErr *RemoteError) error {
	if call.ReplyQueue == "" {
		return nil
	}

	reply := replyBody{Error: remoteErr}
	if remoteErr == nil {
		raw, err := marshalResult(result)
		if err != nil {
			reply.Error = &RemoteError{Name: "UnserializableResult", Message: err.Error()}
		} else {
			reply.Result = raw
		}
	}

	headers := map[string]string{correlationHeader: call.CorrelationID}
	env, err := broker.NewEnvelope(headers, reply)
	if err != nil {
		return err
	}
	return s.container.Broker().SendToQueue(ctx, call.ReplyQueue, env)
}

// errorName maps a handler error to the wire error name. Errors can control
// it by implementing interface{ Name() string }.
func errorName(err error) string {
	if named, ok := err.(interface{ Name() string }); ok {
		return named.Name()
	}
	return "Error"
}
