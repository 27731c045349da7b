package eventbus

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/schedcache/internal/shared/domain"
	"github.com/google/uuid"
)

// ErrMalformedEnvelope marks a body that can never be delivered, no matter
// how often it is retried.
var ErrMalformedEnvelope = errors.New("malformed event envelope")

// EncodeDomainEvent builds the wire body for a domain event: a
// ConsumedEvent envelope whose payload is the event's own JSON.
func EncodeDomainEvent(event domain.DomainEvent) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event.RoutingKey(), err)
	}

	envelope := ConsumedEvent{
		EventID:       event.EventID(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		RoutingKey:    event.RoutingKey(),
		OccurredAt:    event.OccurredAt(),
		Payload:       payload,
		Metadata:      metadataOf(event.Metadata()),
	}
	return json.Marshal(envelope)
}

// DecodeEnvelope parses a wire body. routingKey fills in the envelope's
// key when the body omits it.
func DecodeEnvelope(routingKey string, body []byte) (*ConsumedEvent, error) {
	var event ConsumedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if event.RoutingKey == "" {
		event.RoutingKey = routingKey
	}
	if event.RoutingKey == "" {
		return nil, fmt.Errorf("%w: no routing key", ErrMalformedEnvelope)
	}
	return &event, nil
}

func metadataOf(m domain.EventMetadata) EventMetadata {
	var out EventMetadata
	if m.CorrelationID != uuid.Nil {
		out.CorrelationID = m.CorrelationID.String()
	}
	if m.CausationID != uuid.Nil {
		out.CausationID = m.CausationID.String()
	}
	return out
}
