package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventConsumer reacts to events relayed from the outbox.
type EventConsumer interface {
	// EventTypes lists the routing keys the consumer is bound to,
	// e.g. "scheduling.lookup.status_changed".
	EventTypes() []string

	Handle(ctx context.Context, event *ConsumedEvent) error
}

// Publisher hands an encoded envelope to a transport. A nil error means
// the transport accepted it; the outbox only marks a message published
// after that.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
	Close() error
}

// ConsumedEvent is the envelope every event travels in.
type ConsumedEvent struct {
	EventID       uuid.UUID       `json:"event_id"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	RoutingKey    string          `json:"routing_key"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
	Metadata      EventMetadata   `json:"metadata,omitempty"`
}

// EventMetadata carries tracing identifiers across the bus.
type EventMetadata struct {
	CorrelationID string `json:"correlation_id,omitempty"`
	CausationID   string `json:"causation_id,omitempty"`
}
