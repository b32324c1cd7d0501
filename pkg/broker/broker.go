package broker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// ErrNoRoute is returned by mandatory publishes when no bound queue matches
// the routing key.
var ErrNoRoute = errors.New("no queue bound for routing key")

// Broker is a namespaced Redis connection shared by publishers, consumers
// and the service container. All keys are prefixed with the namespace so
// several warren deployments can share one Redis server. The broker is safe
// for concurrent use.
type Broker struct {
	rdb       *redis.Client
	namespace string
	opts      *redis.Options
}

// New creates a broker for the given namespace.
// Returns an error if namespace is empty.
func New(redisOpts *redis.Options, namespace string) (*Broker, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}

	return &Broker{
		rdb:       redis.NewClient(redisOpts),
		namespace: namespace,
		opts:      redisOpts,
	}, nil
}

// Namespace returns the broker's key namespace.
func (b *Broker) Namespace() string {
	return b.namespace
}

// Ping verifies Redis connectivity. Useful for health checks.
func (b *Broker) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection. Implements io.Closer.
// After calling Close(), the broker should not be used.
func (b *Broker) Close() error {
	return b.rdb.Close()
}

// URL returns the broker's Redis address with any password redacted,
// suitable for logs and span attributes.
func (b *Broker) URL() string {
	if b.opts == nil {
		return ""
	}
	if b.opts.Password != "" {
		return fmt.Sprintf("redis://:***@%s/%d", b.opts.Addr, b.opts.DB)
	}
	return fmt.Sprintf("redis://%s/%d", b.opts.Addr, b.opts.DB)
}

// QueueKey returns the Redis key for a queue's message list.
// Pattern: warren:{namespace}:queue:{queue}
func QueueKey(namespace, queue string) string {
	return fmt.Sprintf("warren:%s:queue:%s", namespace, queue)
}

// BindingsKey returns the Redis key for an exchange's binding set.
// Pattern: warren:{namespace}:exchange:{exchange}:bindings
func BindingsKey(namespace, exchange string) string {
	return fmt.Sprintf("warren:%s:exchange:%s:bindings", namespace, exchange)
}

// QueuesKey returns the Redis key for the set of declared queues.
// Pattern: warren:{namespace}:queues
func QueuesKey(namespace string) string {
	return fmt.Sprintf("warren:%s:queues", namespace)
}

// bindingMember encodes one binding as a set member. Routing keys and queue
// names must not contain the separator.
func bindingMember(routingKey, queue string) string {
	return routingKey + "|" + queue
}

func splitBinding(member string) (routingKey, queue string, ok bool) {
	idx := strings.LastIndex(member, "|")
	if idx < 0 {
		return "", "", false
	}
	return member[:idx], member[idx+1:], true
}

// BindQueue binds a queue to an exchange under a routing key. Publishing to
// the exchange with that routing key delivers to the queue. Binding is
// idempotent.
func (b *Broker) BindQueue(ctx context.Context, exchange, routingKey, queue string) error {
	key := BindingsKey(b.namespace, exchange)
	if err := b.rdb.SAdd(ctx, key, bindingMember(routingKey, queue)).Err(); err != nil {
		return fmt.Errorf("failed to bind queue %q to exchange %q: %w", queue, exchange, err)
	}
	return nil
}

// DeclareQueue registers a queue in the namespace's queue set. Messages can
// be routed to a queue without declaring it (the list springs into existence
// on the first push); declaration makes the queue discoverable before it
// holds messages. Consumers declare their queue on start. Idempotent.
func (b *Broker) DeclareQueue(ctx context.Context, queue string) error {
	if err := b.rdb.SAdd(ctx, QueuesKey(b.namespace), queue).Err(); err != nil {
		return fmt.Errorf("failed to declare queue %q: %w", queue, err)
	}
	return nil
}

// DeclaredQueues returns the declared queues in the namespace, sorted.
func (b *Broker) DeclaredQueues(ctx context.Context) ([]string, error) {
	queues, err := b.rdb.SMembers(ctx, QueuesKey(b.namespace)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list declared queues: %w", err)
	}
	sort.Strings(queues)
	return queues, nil
}

// UnbindQueue removes a queue binding from an exchange.
func (b *Broker) UnbindQueue(ctx context.Context, exchange, routingKey, queue string) error {
	key := BindingsKey(b.namespace, exchange)
	if err := b.rdb.SRem(ctx, key, bindingMember(routingKey, queue)).Err(); err != nil {
		return fmt.Errorf("failed to unbind queue %q from exchange %q: %w", queue, exchange, err)
	}
	return nil
}

// DeleteQueue removes a queue, any pending messages and its declaration.
func (b *Broker) DeleteQueue(ctx context.Context, queue string) error {
	if err := b.rdb.Del(ctx, QueueKey(b.namespace, queue)).Err(); err != nil {
		return fmt.Errorf("failed to delete queue %q: %w", queue, err)
	}
	if err := b.rdb.SRem(ctx, QueuesKey(b.namespace), queue).Err(); err != nil {
		return fmt.Errorf("failed to remove queue %q from queue set: %w", queue, err)
	}
	return nil
}

// QueueLength returns the number of pending messages on a queue.
func (b *Broker) QueueLength(ctx context.Context, queue string) (int64, error) {
	n, err := b.rdb.LLen(ctx, QueueKey(b.namespace, queue)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue length for %q: %w", queue, err)
	}
	return n, nil
}

// boundQueues returns the queues bound to exchange for the given routing key.
func (b *Broker) boundQueues(ctx context.Context, exchange, routingKey string) ([]string, error) {
	members, err := b.rdb.SMembers(ctx, BindingsKey(b.namespace, exchange)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read bindings for exchange %q: %w", exchange, err)
	}

	var queues []string
	for _, member := range members {
		key, queue, ok := splitBinding(member)
		if !ok {
			continue
		}
		if key == routingKey {
			queues = append(queues, queue)
		}
	}
	return queues, nil
}

// SendToQueue delivers an envelope directly to a queue, bypassing exchange
// routing. Used for RPC replies where the destination is already known.
func (b *Broker) SendToQueue(ctx context.Context, queue string, env *Envelope) error {
	payload, err := env.encode()
	if err != nil {
		return err
	}
	if err := b.rdb.LPush(ctx, QueueKey(b.namespace, queue), payload).Err(); err != nil {
		return fmt.Errorf("failed to send to queue %q: %w", queue, err)
	}
	return nil
}
