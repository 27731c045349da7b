package eventbus

import (
	"context"
	"log/slog"
	"sync"
)

// InProcessEventBus delivers envelopes synchronously to consumers in the
// same process. It is the transport when no broker is configured.
type InProcessEventBus struct {
	registry *ConsumerRegistry
	logger   *slog.Logger
	// serialises deliveries so consumers see events in publish order
	mu sync.Mutex
}

var _ Publisher = (*InProcessEventBus)(nil)

// NewInProcessEventBus creates a bus with an empty registry.
func NewInProcessEventBus(logger *slog.Logger) *InProcessEventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &InProcessEventBus{
		registry: NewConsumerRegistry(logger),
		logger:   logger,
	}
}

// RegisterConsumer binds consumer to its routing keys.
func (b *InProcessEventBus) RegisterConsumer(consumer EventConsumer) {
	b.registry.Register(consumer)
}

// Registry exposes the bus's consumer registry.
func (b *InProcessEventBus) Registry() *ConsumerRegistry {
	return b.registry
}

// Publish decodes body and dispatches it before returning. Decode and
// consumer errors are returned so the outbox keeps the message for a retry.
func (b *InProcessEventBus) Publish(ctx context.Context, routingKey string, body []byte) error {
	event, err := DecodeEnvelope(routingKey, body)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.registry.Dispatch(ctx, event); err != nil {
		b.logger.WarnContext(ctx, "in-process delivery failed",
			"routing_key", event.RoutingKey,
			"event_id", event.EventID,
			"error", err,
		)
		return err
	}
	return nil
}

// Close is a no-op.
func (b *InProcessEventBus) Close() error { return nil }
