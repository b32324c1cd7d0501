package warren

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/dyluth/warren/pkg/broker"
)

// DefaultMaxWorkers is the container worker pool size unless overridden.
const DefaultMaxWorkers = 10

// Container runs one service: it starts the service's entrypoints and
// executes every firing on a bounded worker pool, driving the registered
// worker hooks around each one.
type Container struct {
	service    *Service
	broker     *broker.Broker
	maxWorkers int
	httpAddr   string
	hooks      []WorkerHook

	slots   chan struct{}
	running atomic.Int64
	wg      sync.WaitGroup

	mu      sync.Mutex
	started bool
}

// ContainerOption configures a Container.
type ContainerOption func(*Container)

// WithMaxWorkers sets the worker pool size. Default is DefaultMaxWorkers.
func WithMaxWorkers(n int) ContainerOption {
	return func(c *Container) {
		if n > 0 {
			c.maxWorkers = n
		}
	}
}

// WithWorkerHook registers a worker lifecycle hook. Hooks run in
// registration order on setup and reverse order on result.
func WithWorkerHook(h WorkerHook) ContainerOption {
	return func(c *Container) { c.hooks = append(c.hooks, h) }
}

// WithHTTPAddr sets the listen address for HTTP entrypoints, e.g. ":8000".
// Required only when the service has HTTP routes.
func WithHTTPAddr(addr string) ContainerOption {
	return func(c *Container) { c.httpAddr = addr }
}

// NewContainer creates a container for a service on a broker.
func NewContainer(service *Service, b *broker.Broker, opts ...ContainerOption) *Container {
	c := &Container{
		service:    service,
		broker:     b,
		maxWorkers: DefaultMaxWorkers,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.slots = make(chan struct{}, c.maxWorkers)
	return c
}

// ServiceName returns the name of the hosted service.
func (c *Container) ServiceName() string {
	return c.service.Name()
}

// Broker returns the container's broker.
func (c *Container) Broker() *broker.Broker {
	return c.broker
}

// Entrypoints returns the hosted service's entrypoints. Entrypoint
// implementations that share infrastructure per service (the RPC queue, the
// HTTP server) use this to coordinate startup.
func (c *Container) Entrypoints() []Entrypoint {
	return c.service.Entrypoints()
}

// HTTPAddr returns the configured HTTP listen address, if any.
func (c *Container) HTTPAddr() string {
	return c.httpAddr
}

// MaxWorkers returns the worker pool size.
func (c *Container) MaxWorkers() int {
	return c.maxWorkers
}

// Running reports the number of workers currently executing.
func (c *Container) Running() int {
	return int(c.running.Load())
}

// Free reports the number of available worker slots.
func (c *Container) Free() int {
	return c.maxWorkers - c.Running()
}

// Start starts every entrypoint of the service. If any entrypoint fails to
// start, the ones already started are stopped and the error returned.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("container for service %q already started", c.service.Name())
	}

	log.Printf("[Container %s] starting %d entrypoint(s)", c.service.Name(), len(c.service.entrypoints))

	for i, ep := range c.service.entrypoints {
		if err := ep.Start(ctx, c); err != nil {
			for j := i - 1; j >= 0; j-- {
				if stopErr := c.service.entrypoints[j].Stop(ctx); stopErr != nil {
					log.Printf("[Container %s] failed to stop entrypoint %s during rollback: %v",
						c.service.Name(), c.service.entrypoints[j].MethodName(), stopErr)
				}
			}
			return fmt.Errorf("failed to start entrypoint %s: %w", ep.MethodName(), err)
		}
	}

	c.started = true
	return nil
}

// Stop stops every entrypoint and waits for in-flight workers to finish.
func (c *Container) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil
	}

	log.Printf("[Container %s] stopping", c.service.Name())

	var firstErr error
	for _, ep := range c.service.entrypoints {
		if err := ep.Stop(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to stop entrypoint %s: %w", ep.MethodName(), err)
		}
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if firstErr == nil {
			firstErr = fmt.Errorf("workers did not drain: %w", ctx.Err())
		}
	}

	c.started = false
	return firstErr
}

// RunWorker executes one entrypoint firing under the worker pool. It blocks
// until a pool slot is free, fires WorkerSetup hooks, runs fn, then fires
// WorkerResult hooks in reverse order. Panics in fn are recovered into
// errors so the lifecycle invariant holds.
func (c *Container) RunWorker(ctx context.Context, wc *WorkerContext, fn func(ctx context.Context) (any, error)) (any, error) {
	select {
	case c.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("worker pool wait aborted: %w", ctx.Err())
	}
	c.wg.Add(1)
	c.running.Add(1)
	defer func() {
		c.running.Add(-1)
		c.wg.Done()
		<-c.slots
	}()

	wc.container = c
	ctx = ContextWithWorker(ctx, wc)

	for _, h := range c.hooks {
		ctx = h.WorkerSetup(ctx, wc)
	}

	result, err := c.invoke(ctx, fn)

	for i := len(c.hooks) - 1; i >= 0; i-- {
		c.hooks[i].WorkerResult(ctx, wc, result, err)
	}

	return result, err
}

func (c *Container) invoke(ctx context.Context, fn func(ctx context.Context) (any, error)) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()
	return fn(ctx)
}

// NotifyDispatchFailure informs hooks about an invocation rejected before
// any worker could fire.
func (c *Container) NotifyDispatchFailure(ctx context.Context, failure DispatchFailure) {
	for _, h := range c.hooks {
		if dh, ok := h.(DispatchFailureHook); ok {
			dh.DispatchFailed(ctx, failure)
		}
	}
}
