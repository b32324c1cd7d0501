// Package warren is the core of a small Redis-backed microservice framework.
//
// # Overview
//
// A service is a named collection of entrypoints: RPC methods, event
// handlers, queue consumers, HTTP routes and timers, each provided by a
// subpackage. A Container runs one service: it starts the entrypoints,
// executes each firing on a bounded worker pool, and drives the worker
// lifecycle hooks that the telemetry layer (package otelwarren) plugs into.
//
// # Worker Lifecycle
//
// Every entrypoint firing becomes a worker with a WorkerContext carrying the
// call arguments, the caller's context data (message or request headers) and
// a unique call ID. The container guarantees that each worker produces
// exactly one WorkerSetup and one WorkerResult hook invocation, in that
// order, including when the handler panics.
//
// # Context Data
//
// Context data received with an inbound message is available to handlers via
// FromContext and is forwarded automatically by the rpc, events and
// messaging clients, so metadata (and injected trace context) flows across
// service boundaries.
package warren
