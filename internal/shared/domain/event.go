package domain

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is a fact raised by an aggregate and relayed through the
// outbox.
type DomainEvent interface {
	EventID() uuid.UUID
	AggregateID() uuid.UUID
	AggregateType() string
	RoutingKey() string
	OccurredAt() time.Time
	Metadata() EventMetadata
}

// EventMetadata links an event to the request that caused it.
type EventMetadata struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
	CausationID   uuid.UUID `json:"causation_id"`
}

// BaseEvent is embedded by concrete events. Its fields are unexported so
// they stay out of the JSON payload; the envelope carries them instead.
type BaseEvent struct {
	id        uuid.UUID
	aggregate uuid.UUID
	kind      string
	key       string
	at        time.Time
	meta      EventMetadata
}

// NewBaseEvent stamps a fresh event ID and the current UTC time.
func NewBaseEvent(aggregateID uuid.UUID, aggregateType, routingKey string) BaseEvent {
	return BaseEvent{
		id:        uuid.New(),
		aggregate: aggregateID,
		kind:      aggregateType,
		key:       routingKey,
		at:        time.Now().UTC(),
	}
}

func (e BaseEvent) EventID() uuid.UUID      { return e.id }
func (e BaseEvent) AggregateID() uuid.UUID  { return e.aggregate }
func (e BaseEvent) AggregateType() string   { return e.kind }
func (e BaseEvent) RoutingKey() string      { return e.key }
func (e BaseEvent) OccurredAt() time.Time   { return e.at }
func (e BaseEvent) Metadata() EventMetadata { return e.meta }

// SetMetadata replaces the tracing metadata.
func (e *BaseEvent) SetMetadata(metadata EventMetadata) { e.meta = metadata }
