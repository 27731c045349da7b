package outbox

import (
	"encoding/json"
	"testing"

	"github.com/felixgeelhaar/schedcache/internal/shared/domain"
	"github.com/felixgeelhaar/schedcache/internal/shared/infrastructure/eventbus"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct {
	domain.BaseEvent
	Code string `json:"code"`
}

func newTestEvent(code string) *testEvent {
	return &testEvent{
		BaseEvent: domain.NewBaseEvent(uuid.New(), "Lookup", "scheduling.lookup.status_changed"),
		Code:      code,
	}
}

func TestNewMessage(t *testing.T) {
	event := newTestEvent("NS")
	correlationID := uuid.New()
	event.SetMetadata(domain.EventMetadata{CorrelationID: correlationID})

	msg, err := NewMessage(event)
	require.NoError(t, err)

	assert.Equal(t, event.EventID(), msg.EventID)
	assert.Equal(t, "Lookup", msg.AggregateType)
	assert.Equal(t, event.AggregateID().String(), msg.AggregateID)
	assert.Equal(t, "scheduling.lookup.status_changed", msg.RoutingKey)
	assert.Equal(t, event.OccurredAt(), msg.CreatedAt)
	assert.False(t, msg.IsPublished())
	assert.False(t, msg.IsDead())

	// the body is the envelope consumers decode
	var envelope eventbus.ConsumedEvent
	require.NoError(t, json.Unmarshal(msg.Body, &envelope))
	assert.Equal(t, event.EventID(), envelope.EventID)
	assert.Equal(t, correlationID.String(), envelope.Metadata.CorrelationID)
	assert.JSONEq(t, `{"code":"NS"}`, string(envelope.Payload))

	var metadata domain.EventMetadata
	require.NoError(t, json.Unmarshal(msg.Metadata, &metadata))
	assert.Equal(t, correlationID, metadata.CorrelationID)
}

func TestMessage_CanRetry(t *testing.T) {
	msg := &Message{RetryCount: 2}
	assert.True(t, msg.CanRetry(3))
	assert.False(t, msg.CanRetry(2))
}
