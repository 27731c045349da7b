package services

import (
	"context"
	"log/slog"

	"github.com/felixgeelhaar/schedcache/internal/scheduling/domain"
)

// EventAssembler builds projections from raw activities, resolving display
// names through a NameResolver. Name resolution is best effort: a name that
// cannot be resolved is left empty and the projection is still returned.
type EventAssembler struct {
	names  domain.NameResolver
	logger *slog.Logger
}

// NewEventAssembler creates a new assembler. A nil resolver leaves every
// name empty.
func NewEventAssembler(names domain.NameResolver, logger *slog.Logger) *EventAssembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventAssembler{names: names, logger: logger}
}

// Assemble returns a fresh projection of activity.
func (a *EventAssembler) Assemble(ctx context.Context, activity *domain.Activity) *domain.Event {
	ev := activity.Locate()
	if a.names == nil {
		return ev
	}

	if ev.Status != "" {
		name, err := a.names.StatusName(ctx, ev.Status)
		if err != nil {
			a.logger.DebugContext(ctx, "status name unresolved",
				"event_ref", ev.Ref.String(),
				"status", ev.Status,
				"error", err,
			)
		} else {
			ev.StatusName = name
		}
	}

	for i := range ev.Participants {
		p := &ev.Participants[i]
		if p.Party.IsZero() {
			continue
		}
		name, err := a.names.ParticipantName(ctx, p.Party)
		if err != nil {
			a.logger.DebugContext(ctx, "participant name unresolved",
				"event_ref", ev.Ref.String(),
				"role", p.Role,
				"party", p.Party.String(),
				"error", err,
			)
			continue
		}
		p.Name = name
	}

	return ev
}
