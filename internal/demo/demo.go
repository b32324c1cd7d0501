// Package demo wires a small example service exercising every entrypoint
// kind: RPC methods, HTTP routes, an event handler, a queue consumer and a
// timer. The run command serves it so a fresh checkout can produce traces
// end to end against nothing but Redis and a collector.
package demo

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/dyluth/warren/pkg/broker"
	"github.com/dyluth/warren/pkg/otelwarren"
	"github.com/dyluth/warren/pkg/warren"
	"github.com/dyluth/warren/pkg/warren/events"
	"github.com/dyluth/warren/pkg/warren/messaging"
	"github.com/dyluth/warren/pkg/warren/rpc"
	"github.com/dyluth/warren/pkg/warren/timer"
	"github.com/dyluth/warren/pkg/warren/web"
)

// ServiceName is the demo service's name on the broker.
const ServiceName = "demo"

const (
	workExchange   = "work"
	workRoutingKey = "task"
	workQueue      = "demo-work"
)

// Demo holds the clients the demo service's handlers depend on.
type Demo struct {
	client     *rpc.Client
	dispatcher *events.Dispatcher
	tasks      *messaging.Publisher
	httpc      *http.Client
}

// New builds the demo's clients, fully instrumented: RPC calls, event
// dispatches, task publishes and outbound HTTP requests all produce spans.
func New(ctx context.Context, b *broker.Broker, instrumentor *otelwarren.Instrumentor) (*Demo, error) {
	client, err := rpc.NewClient(ctx, b,
		rpc.WithCallObserver(instrumentor.RPCObserver()),
		rpc.WithPublishInterceptor(instrumentor.BrokerPublishInterceptor()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create RPC client: %w", err)
	}

	return &Demo{
		client: client,
		dispatcher: events.NewDispatcher(b, ServiceName,
			events.WithDispatchInterceptor(instrumentor.DispatchInterceptor()),
		),
		tasks: messaging.NewPublisher(b, workExchange,
			messaging.WithPublishInterceptor(instrumentor.PublishInterceptor()),
		),
		httpc: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   10 * time.Second,
		},
	}, nil
}

// Close releases the demo's clients.
func (d *Demo) Close(ctx context.Context) error {
	return d.client.Close(ctx)
}

// Service assembles the demo service with all its entrypoints.
func (d *Demo) Service() (*warren.Service, error) {
	svc, err := warren.NewService(ServiceName)
	if err != nil {
		return nil, err
	}

	svc.Add(rpc.Method("upper", d.upper, rpc.WithArgNames("value"))).
		Add(rpc.Method("shout", d.shout, rpc.WithArgNames("value"))).
		Add(web.Route(http.MethodGet, "/hello", "hello", d.hello)).
		Add(web.Route(http.MethodGet, "/shout", "shout_route", d.shoutRoute)).
		Add(web.Route(http.MethodGet, "/fetch", "fetch", d.fetch)).
		Add(events.Handler(ServiceName, "shouted", "on_shouted", d.onShouted)).
		Add(messaging.Consumer(
			messaging.Queue{Name: workQueue, Exchange: workExchange, RoutingKey: workRoutingKey},
			"process_task", d.processTask,
		)).
		Add(timer.Timer("tick", 30*time.Second, d.tick))

	return svc, nil
}

// upper uppercases the "value" argument.
func (d *Demo) upper(ctx context.Context, args map[string]any) (any, error) {
	value, ok := args["value"].(string)
	if !ok {
		return nil, fmt.Errorf("value must be a string")
	}
	return strings.ToUpper(value), nil
}

// shout uppercases via a nested RPC call and announces the result as an
// event, so one invocation spans two workers and a dispatch.
func (d *Demo) shout(ctx context.Context, args map[string]any) (any, error) {
	result, err := d.client.Invoke(ctx, ServiceName, "upper", map[string]any{"value": args["value"]})
	if err != nil {
		return nil, fmt.Errorf("upper call failed: %w", err)
	}
	shouted := fmt.Sprintf("%v!", result)
	if err := d.dispatcher.Dispatch(ctx, "shouted", map[string]any{"text": shouted}); err != nil {
		return nil, fmt.Errorf("failed to dispatch shouted event: %w", err)
	}
	return shouted, nil
}

func (d *Demo) hello(ctx context.Context, req *web.Request) (*web.Response, error) {
	return web.TextResponse(http.StatusOK, "hello\n"), nil
}

// shoutRoute bridges HTTP to RPC: GET /shout?value=x returns shout(x).
func (d *Demo) shoutRoute(ctx context.Context, req *web.Request) (*web.Response, error) {
	value := req.URL.Query().Get("value")
	if value == "" {
		return web.TextResponse(http.StatusBadRequest, "missing value parameter\n"), nil
	}
	result, err := d.client.Invoke(ctx, ServiceName, "shout", map[string]any{"value": value})
	if err != nil {
		return nil, err
	}
	return web.TextResponse(http.StatusOK, fmt.Sprintf("%v\n", result)), nil
}

// fetch proxies an outbound HTTP request so traces show an instrumented
// HTTP client span under the route's worker span.
func (d *Demo) fetch(ctx context.Context, req *web.Request) (*web.Response, error) {
	target := req.URL.Query().Get("url")
	if target == "" {
		return web.TextResponse(http.StatusBadRequest, "missing url parameter\n"), nil
	}

	outbound, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return web.TextResponse(http.StatusBadRequest, fmt.Sprintf("bad url: %v\n", err)), nil
	}
	resp, err := d.httpc.Do(outbound)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &web.Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func (d *Demo) onShouted(ctx context.Context, args map[string]any) (any, error) {
	log.Printf("[Demo] shouted event received: %v", args["payload"])
	return nil, nil
}

func (d *Demo) processTask(ctx context.Context, args map[string]any) (any, error) {
	log.Printf("[Demo] processing task: %v", args["payload"])
	return nil, nil
}

// tick publishes a heartbeat task for the consumer to pick up.
func (d *Demo) tick(ctx context.Context, args map[string]any) (any, error) {
	payload := map[string]any{"kind": "heartbeat", "at": time.Now().UTC().Format(time.RFC3339)}
	if err := d.tasks.Publish(ctx, workRoutingKey, payload); err != nil {
		return nil, fmt.Errorf("failed to publish heartbeat: %w", err)
	}
	return nil, nil
}
