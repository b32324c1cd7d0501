// Package broker provides the Redis transport underneath every warren
// entrypoint and client.
//
// # Overview
//
// The broker implements a small exchange/queue model on top of Redis lists
// and sets. An exchange is a named set of bindings from routing keys to
// queues. Publishing a message to an exchange delivers it to every queue
// whose binding key matches the routing key exactly. Queues are Redis lists
// consumed with blocking pops, so messages are distributed between competing
// consumers of the same queue.
//
// # Envelopes
//
// Every message on the wire is an Envelope: a JSON body plus a string header
// map. Headers carry caller context data and, when tracing is enabled,
// injected trace context. The broker never interprets headers except for the
// expiration header set by publishers with a TTL.
//
// # Multi-Instance Support
//
// All Redis keys are namespaced by the broker namespace to enable multiple
// warren deployments to safely coexist on a single Redis server.
//
// # Durability
//
// Queues declared durable survive consumer restarts: messages published
// while no consumer is running are delivered when one returns. Transient
// queues are unbound and deleted when their consumer stops.
package broker
