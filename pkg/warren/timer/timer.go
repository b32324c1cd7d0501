// Package timer fires a service method on a fixed interval.
package timer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dyluth/warren/pkg/warren"
)

// Entrypoint fires a service method every interval. Create with Timer and
// attach to a service. Firings never overlap: the next tick waits for the
// previous handler to finish.
type Entrypoint struct {
	method   string
	handler  warren.Handler
	interval time.Duration
	eager    bool
	opts     warren.EntrypointOptions

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a timer entrypoint.
type Option func(*Entrypoint)

// Eager fires the first tick immediately at start instead of waiting one
// interval.
func Eager() Option {
	return func(e *Entrypoint) { e.eager = true }
}

// WithOptions applies shared entrypoint options.
func WithOptions(opts ...warren.EntrypointOption) Option {
	return func(e *Entrypoint) {
		for _, opt := range opts {
			opt(&e.opts)
		}
	}
}

// Timer creates a timer entrypoint firing method every interval.
func Timer(method string, interval time.Duration, handler warren.Handler, opts ...Option) *Entrypoint {
	e := &Entrypoint{
		method:   method,
		handler:  handler,
		interval: interval,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MethodName returns the fired method name.
func (e *Entrypoint) MethodName() string { return e.method }

// Kind returns warren.KindTimer.
func (e *Entrypoint) Kind() warren.Kind { return warren.KindTimer }

// Options returns the shared entrypoint options.
func (e *Entrypoint) Options() warren.EntrypointOptions { return e.opts }

// Interval returns the firing interval.
func (e *Entrypoint) Interval() time.Duration { return e.interval }

// IsEager reports whether the timer fires immediately at start.
func (e *Entrypoint) IsEager() bool { return e.eager }

// Start begins the tick loop.
func (e *Entrypoint) Start(ctx context.Context, c *warren.Container) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return fmt.Errorf("timer %q already started", e.method)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})

	go e.run(loopCtx, c)
	return nil
}

// Stop halts the tick loop and waits for an in-flight firing to finish.
func (e *Entrypoint) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel == nil {
		return nil
	}
	e.cancel()
	select {
	case <-e.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	e.cancel = nil
	return nil
}

func (e *Entrypoint) run(ctx context.Context, c *warren.Container) {
	defer close(e.done)

	if e.eager {
		e.fire(ctx, c)
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.fire(ctx, c)
		}
	}
}

func (e *Entrypoint) fire(ctx context.Context, c *warren.Container) {
	wc := warren.NewWorkerContext(c.ServiceName(), e, map[string]any{}, nil)
	// Worker errors surface through hooks; a failed tick never stops the
	// timer.
	_, _ = c.RunWorker(ctx, wc, func(ctx context.Context) (any, error) {
		return e.handler(ctx, map[string]any{})
	})
}
