package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/dyluth/warren/pkg/broker"
	"github.com/dyluth/warren/pkg/warren"
)

// CallInfo describes one outbound RPC as seen by call observers. Observers
// may add headers before the request is published; the telemetry layer uses
// this to inject trace context.
type CallInfo struct {
	TargetService string
	TargetMethod  string
	CorrelationID string
	Args          map[string]any
	Headers       map[string]string
}

// CallObserver is notified around each RPC call: once when the call is
// initiated (before publishing; the returned context is carried to
// ResponseReceived) and once when the response arrives or the call fails.
type CallObserver interface {
	CallInitiated(ctx context.Context, info *CallInfo) context.Context
	ResponseReceived(ctx context.Context, info *CallInfo, err error)
}

// Client issues RPC calls to any service on the broker. Each client owns a
// transient reply queue; concurrent calls are matched to replies by
// correlation ID. Safe for concurrent use. Callers must Close the client to
// release the reply queue.
type Client struct {
	broker    *broker.Broker
	publisher *broker.Publisher
	consumer  *broker.Consumer
	observers []CallObserver

	mu      sync.Mutex
	pending map[string]chan *replyBody
}

// clientConfig collects client construction options.
type clientConfig struct {
	observers     []CallObserver
	publisherOpts []broker.PublisherOption
}

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

// WithCallObserver registers an observer for every call made by the client.
func WithCallObserver(obs CallObserver) ClientOption {
	return func(cfg *clientConfig) { cfg.observers = append(cfg.observers, obs) }
}

// WithPublishInterceptor adds a broker publish interceptor to the client's
// request publisher.
func WithPublishInterceptor(interceptor broker.PublishInterceptor) ClientOption {
	return func(cfg *clientConfig) {
		cfg.publisherOpts = append(cfg.publisherOpts, broker.WithPublishInterceptor(interceptor))
	}
}

// NewClient creates an RPC client and starts its reply consumer.
func NewClient(ctx context.Context, b *broker.Broker, opts ...ClientOption) (*Client, error) {
	var cfg clientConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Client{
		broker:    b,
		observers: cfg.observers,
		pending:   make(map[string]chan *replyBody),
	}

	pubOpts := append([]broker.PublisherOption{broker.WithMandatory()}, cfg.publisherOpts...)
	c.publisher = broker.NewPublisher(b, Exchange, pubOpts...)

	replyQueue := "rpc-reply-" + uuid.New().String()
	c.consumer = broker.NewConsumer(b, replyQueue, c.handleReply, broker.WithTransientQueue())
	if err := c.consumer.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start RPC reply consumer: %w", err)
	}
	return c, nil
}

// Close stops the reply consumer and deletes the reply queue. Outstanding
// calls will never complete after Close.
func (c *Client) Close(ctx context.Context) error {
	return c.consumer.Stop(ctx)
}

// PublisherInfo exposes the request publisher's configuration for telemetry
// attributes.
func (c *Client) PublisherInfo() broker.PublisherInfo {
	return c.publisher.Info()
}

// CallAsync initiates an RPC and returns a handle for collecting the
// response. Context data from a surrounding worker (warren.ContextData) is
// forwarded in the request headers. Returns broker.ErrNoRoute when the
// target service has no request queue.
func (c *Client) CallAsync(ctx context.Context, service, method string, args map[string]any) (*Call, error) {
	headers := make(map[string]string)
	for k, v := range warren.ContextData(ctx) {
		headers[k] = v
	}

	info := &CallInfo{
		TargetService: service,
		TargetMethod:  method,
		CorrelationID: uuid.New().String(),
		Args:          args,
		Headers:       headers,
	}
	for _, obs := range c.observers {
		ctx = obs.CallInitiated(ctx, info)
	}

	call := &Call{
		client: c,
		info:   info,
		ctx:    ctx,
		resp:   make(chan *replyBody, 1),
	}

	c.mu.Lock()
	c.pending[info.CorrelationID] = call.resp
	c.mu.Unlock()

	body := callBody{
		Method:        method,
		Args:          args,
		CorrelationID: info.CorrelationID,
		ReplyQueue:    c.consumer.Queue(),
	}
	env, err := broker.NewEnvelope(headers, body)
	if err == nil {
		err = c.publisher.Publish(ctx, service, env)
	}
	if err != nil {
		c.drop(info.CorrelationID)
		call.finish(err)
		return nil, fmt.Errorf("RPC to %s.%s failed: %w", service, method, err)
	}
	return call, nil
}

// Invoke is CallAsync followed by Response: a synchronous RPC.
func (c *Client) Invoke(ctx context.Context, service, method string, args map[string]any) (any, error) {
	call, err := c.CallAsync(ctx, service, method, args)
	if err != nil {
		return nil, err
	}
	return call.Response(ctx)
}

func (c *Client) drop(correlationID string) {
	c.mu.Lock()
	delete(c.pending, correlationID)
	c.mu.Unlock()
}

// handleReply routes one reply envelope to the waiting call.
func (c *Client) handleReply(ctx context.Context, env *broker.Envelope) error {
	correlationID := env.Headers[correlationHeader]

	c.mu.Lock()
	ch, ok := c.pending[correlationID]
	delete(c.pending, correlationID)
	c.mu.Unlock()
	if !ok {
		// Reply for an abandoned call; drop it.
		return nil
	}

	var reply replyBody
	if err := env.DecodeBody(&reply); err != nil {
		reply = replyBody{Error: &RemoteError{Name: "UndecodableReply", Message: err.Error()}}
	}
	ch <- &reply
	return nil
}

// Call is a pending RPC.
type Call struct {
	client *Client
	info   *CallInfo
	ctx    context.Context
	resp   chan *replyBody

	once   sync.Once
	result any
	err    error
}

// CorrelationID returns the call's correlation ID.
func (call *Call) CorrelationID() string {
	return call.info.CorrelationID
}

// Response blocks until the reply arrives or ctx is done. If the remote
// side returned an error it is returned as a *RemoteError. Response is
// idempotent; concurrent and repeated calls return the same outcome.
func (call *Call) Response(ctx context.Context) (any, error) {
	call.once.Do(func() {
		select {
		case reply := <-call.resp:
			if reply.Error != nil {
				call.err = reply.Error
				break
			}
			if len(reply.Result) > 0 {
				var result any
				if err := json.Unmarshal(reply.Result, &result); err != nil {
					call.err = fmt.Errorf("failed to decode RPC result: %w", err)
					break
				}
				call.result = result
			}
		case <-ctx.Done():
			call.client.drop(call.info.CorrelationID)
			call.err = fmt.Errorf("RPC to %s.%s aborted: %w",
				call.info.TargetService, call.info.TargetMethod, ctx.Err())
		}
		call.notifyObservers()
	})
	return call.result, call.err
}

// finish resolves the call with an error before it was published.
func (call *Call) finish(err error) {
	call.once.Do(func() {
		call.err = err
		call.notifyObservers()
	})
}

func (call *Call) notifyObservers() {
	for i := len(call.client.observers) - 1; i >= 0; i-- {
		call.client.observers[i].ResponseReceived(call.ctx, call.info, call.err)
	}
}
