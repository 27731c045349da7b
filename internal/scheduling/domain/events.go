package domain

import (
	"time"

	sharedDomain "github.com/felixgeelhaar/schedcache/internal/shared/domain"
	"github.com/google/uuid"
)

const (
	AggregateTypeLookup = "Lookup"

	RoutingKeyStatusChanged = "scheduling.lookup.status_changed"
	RoutingKeyReasonChanged = "scheduling.lookup.reason_changed"
)

// LookupChanged is emitted when a cross-cutting lookup table the projections
// depend on (status or reason display names) changes.
type LookupChanged struct {
	sharedDomain.BaseEvent
	Table     string    `json:"table"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	ChangedAt time.Time `json:"changed_at"`
}

// NewStatusChanged creates a LookupChanged event for the status table.
func NewStatusChanged(code, name string) LookupChanged {
	return LookupChanged{
		BaseEvent: sharedDomain.NewBaseEvent(uuid.New(), AggregateTypeLookup, RoutingKeyStatusChanged),
		Table:     "status",
		Code:      code,
		Name:      name,
		ChangedAt: time.Now().UTC(),
	}
}

// NewReasonChanged creates a LookupChanged event for the reason table.
func NewReasonChanged(code, name string) LookupChanged {
	return LookupChanged{
		BaseEvent: sharedDomain.NewBaseEvent(uuid.New(), AggregateTypeLookup, RoutingKeyReasonChanged),
		Table:     "reason",
		Code:      code,
		Name:      name,
		ChangedAt: time.Now().UTC(),
	}
}
