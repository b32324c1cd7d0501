package web

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dyluth/warren/pkg/warren"
)

// RouteEntrypoint exposes one service method as an HTTP route. Create with
// Route and attach to a service.
type RouteEntrypoint struct {
	httpMethod string
	path       string
	method     string
	handler    HandlerFunc
	opts       warren.EntrypointOptions

	server *server
}

// RouteOption configures a route entrypoint.
type RouteOption func(*RouteEntrypoint)

// WithOptions applies shared entrypoint options.
func WithOptions(opts ...warren.EntrypointOption) RouteOption {
	return func(e *RouteEntrypoint) {
		for _, opt := range opts {
			opt(&e.opts)
		}
	}
}

// Route creates an HTTP entrypoint: method on the service handles requests
// for httpMethod on path. Paths are matched exactly.
func Route(httpMethod, path, method string, handler HandlerFunc, opts ...RouteOption) *RouteEntrypoint {
	e := &RouteEntrypoint{
		httpMethod: httpMethod,
		path:       path,
		method:     method,
		handler:    handler,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MethodName returns the handling method name.
func (e *RouteEntrypoint) MethodName() string { return e.method }

// Kind returns warren.KindHTTP.
func (e *RouteEntrypoint) Kind() warren.Kind { return warren.KindHTTP }

// Options returns the shared entrypoint options.
func (e *RouteEntrypoint) Options() warren.EntrypointOptions { return e.opts }

// URL returns the route pattern, e.g. "GET /hello". The telemetry layer
// uses it as the span name.
func (e *RouteEntrypoint) URL() string {
	return e.httpMethod + " " + e.path
}

// Start registers the route on the service's shared HTTP server. The
// server starts listening once the last web entrypoint of the service has
// registered.
func (e *RouteEntrypoint) Start(ctx context.Context, c *warren.Container) error {
	srv := serverFor(c)
	e.server = srv
	return srv.register(e)
}

// Stop unregisters the route; the shared server shuts down with the last
// one.
func (e *RouteEntrypoint) Stop(ctx context.Context) error {
	if e.server == nil {
		return nil
	}
	return e.server.unregister(ctx, e)
}

// server is the per-container HTTP server shared by all route entrypoints
// of a service.
type server struct {
	container *warren.Container

	mu       sync.Mutex
	routes   map[string]*RouteEntrypoint
	httpSrv  *http.Server
	listener net.Listener
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
		container: c,
		routes:    make(map[string]*RouteEntrypoint),
	}
	servers[c] = srv
	return srv
}

func dropServer(c *warren.Container) {
	serversMu.Lock()
	defer serversMu.Unlock()
	delete(servers, c)
}

// ServerAddr returns the bound address of a container's HTTP server, if it
// is listening. Useful when the container was configured with ":0".
func ServerAddr(c *warren.Container) (string, bool) {
	serversMu.Lock()
	srv, ok := servers[c]
	serversMu.Unlock()
	if !ok {
		return "", false
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.listener == nil {
		return "", false
	}
	return srv.listener.Addr().String(), true
}

func (s *server) expectedRoutes() int {
	n := 0
	for _, ep := range s.container.Entrypoints() {
		if ep.Kind() == warren.KindHTTP {
			n++
		}
	}
	return n
}

func (s *server) register(e *RouteEntrypoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pattern := e.URL()
	if _, dup := s.routes[pattern]; dup {
		return fmt.Errorf("duplicate route %q", pattern)
	}
	s.routes[pattern] = e

	if len(s.routes) < s.expectedRoutes() {
		return nil
	}

	addr := s.container.HTTPAddr()
	if addr == "" {
		return fmt.Errorf("service %q has HTTP routes but the container has no HTTP address", s.container.ServiceName())
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %q: %w", addr, err)
	}
	s.listener = listener
	s.httpSrv = &http.Server{Handler: s}

	go func() {
		if serveErr := s.httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			log.Printf("[Web %s] server error: %v", s.container.ServiceName(), serveErr)
		}
	}()
	log.Printf("[Web %s] listening on %s", s.container.ServiceName(), listener.Addr())
	return nil
}

func (s *server) unregister(ctx context.Context, e *RouteEntrypoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.routes, e.URL())
	if len(s.routes) > 0 {
		return nil
	}

	dropServer(s.container)
	if s.httpSrv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	s.httpSrv = nil
	s.listener = nil
	return nil
}

// ServeHTTP routes one request to its entrypoint and runs the handler as a
// worker.
func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	e, ok := s.routes[r.Method+" "+r.URL.Path]
	s.mu.Unlock()

	ctx := r.Context()

	if !ok {
		err := fmt.Errorf("no route for %s %s", r.Method, r.URL.Path)
		s.container.NotifyDispatchFailure(ctx, warren.DispatchFailure{
			Kind: warren.KindHTTP, Name: r.Method, Err: err,
		})
		http.NotFound(w, r)
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	req := &Request{
		Method: r.Method,
		Path:   r.URL.Path,
		URL:    r.URL,
		Header: r.Header,
		Data:   data,
		Remote: r.RemoteAddr,
		Host:   r.Host,
	}

	args := map[string]any{"request": req}
	wc := warren.NewWorkerContext(s.container.ServiceName(), e, args, req.HeaderMap())
	result, err := s.container.RunWorker(ctx, wc, func(ctx context.Context) (any, error) {
		resp, handlerErr := e.handler(ctx, req)
		if handlerErr != nil {
			return nil, handlerErr
		}
		return resp, nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("Error: %v", err), http.StatusInternalServerError)
		return
	}

	resp, ok := result.(*Response)
	if !ok || resp == nil {
		resp = TextResponse(http.StatusOK, "")
	}
	writeResponse(w, resp)
}

func writeResponse(w http.ResponseWriter, resp *Response) {
	for key, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(resp.Body)
}
