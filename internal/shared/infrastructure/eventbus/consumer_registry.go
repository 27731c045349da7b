package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// ConsumerRegistry routes envelopes to the consumers bound to their
// routing key.
type ConsumerRegistry struct {
	mu     sync.RWMutex
	routes map[string][]EventConsumer
	logger *slog.Logger
}

// NewConsumerRegistry creates an empty registry.
func NewConsumerRegistry(logger *slog.Logger) *ConsumerRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsumerRegistry{
		routes: make(map[string][]EventConsumer),
		logger: logger,
	}
}

// Register binds consumer to each of its routing keys. Registering the same
// consumer twice for a key is a no-op.
func (r *ConsumerRegistry) Register(consumer EventConsumer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, key := range consumer.EventTypes() {
		if slices.Contains(r.routes[key], consumer) {
			continue
		}
		r.routes[key] = append(r.routes[key], consumer)
		r.logger.Debug("consumer bound", "routing_key", key)
	}
}

// RoutingKeys returns the bound routing keys in sorted order.
func (r *ConsumerRegistry) RoutingKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.routes))
	for key := range r.routes {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// ConsumerCount returns the number of distinct registered consumers.
func (r *ConsumerRegistry) ConsumerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[EventConsumer]struct{})
	for _, consumers := range r.routes {
		for _, c := range consumers {
			seen[c] = struct{}{}
		}
	}
	return len(seen)
}

// Dispatch hands event to every consumer bound to its routing key. All
// consumers run even when one fails; their errors are joined.
func (r *ConsumerRegistry) Dispatch(ctx context.Context, event *ConsumedEvent) error {
	r.mu.RLock()
	consumers := slices.Clone(r.routes[event.RoutingKey])
	r.mu.RUnlock()

	if len(consumers) == 0 {
		r.logger.DebugContext(ctx, "no consumer bound", "routing_key", event.RoutingKey)
		return nil
	}

	var errs []error
	for _, consumer := range consumers {
		if err := consumer.Handle(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", consumer, err))
		}
	}
	return errors.Join(errs...)
}
