package subscribers

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/felixgeelhaar/schedcache/internal/scheduling/domain"
	"github.com/felixgeelhaar/schedcache/internal/shared/infrastructure/eventbus"
)

// Clearer drops every cached bucket.
type Clearer interface {
	Clear()
}

// NameForgetter drops a cached display name.
type NameForgetter interface {
	ForgetStatus(ctx context.Context, code string) error
}

// LookupSubscriber clears the event cache when a lookup table that
// projections copy names from changes.
type LookupSubscriber struct {
	cache  Clearer
	names  NameForgetter
	logger *slog.Logger
}

var _ eventbus.EventConsumer = (*LookupSubscriber)(nil)

// NewLookupSubscriber creates a new lookup subscriber. names may be nil
// when display names are not cached outside the store.
func NewLookupSubscriber(cache Clearer, names NameForgetter, logger *slog.Logger) *LookupSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &LookupSubscriber{cache: cache, names: names, logger: logger}
}

// EventTypes returns the event types this subscriber handles.
func (s *LookupSubscriber) EventTypes() []string {
	return []string{
		domain.RoutingKeyStatusChanged,
		domain.RoutingKeyReasonChanged,
	}
}

// Handle clears the cache. A payload that cannot be decoded still clears
// the cache but leaves cached display names alone.
func (s *LookupSubscriber) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	var payload struct {
		Table string `json:"table"`
		Code  string `json:"code"`
	}
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			s.logger.WarnContext(ctx, "undecodable lookup change payload",
				"routing_key", event.RoutingKey,
				"error", err,
			)
		}
	}

	// names go first so a refill cannot pick up the stale one
	if s.names != nil && payload.Table == "status" && payload.Code != "" {
		if err := s.names.ForgetStatus(ctx, payload.Code); err != nil {
			s.logger.WarnContext(ctx, "failed to forget cached status name",
				"code", payload.Code,
				"error", err,
			)
		}
	}

	s.cache.Clear()

	s.logger.InfoContext(ctx, "lookup changed, event cache cleared",
		"routing_key", event.RoutingKey,
		"table", payload.Table,
		"code", payload.Code,
	)
	return nil
}
