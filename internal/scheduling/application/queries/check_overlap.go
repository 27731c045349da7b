package queries

import (
	"context"
	"time"

	"github.com/felixgeelhaar/schedcache/internal/scheduling/application/services"
	"github.com/felixgeelhaar/schedcache/internal/scheduling/domain"
	sharedApplication "github.com/felixgeelhaar/schedcache/internal/shared/application"
)

// OverlapDTO is the result of an overlap check.
type OverlapDTO struct {
	Overlaps    bool       `json:"overlaps"`
	Conflicting []EventDTO `json:"conflicting,omitempty"`
}

// CheckOverlapQuery describes a proposed placement. A zero Ref checks a new
// activity; otherwise the activity itself is ignored.
type CheckOverlapQuery struct {
	Ref      domain.EventRef
	Schedule domain.ScheduleRef
	Start    time.Time
	End      time.Time
}

// QueryName returns the query name.
func (q CheckOverlapQuery) QueryName() string { return "check_overlap" }

// CheckOverlapHandler handles the CheckOverlapQuery.
type CheckOverlapHandler struct {
	detector *services.OverlapDetector
}

var _ sharedApplication.QueryHandler[CheckOverlapQuery, *OverlapDTO] = (*CheckOverlapHandler)(nil)

// NewCheckOverlapHandler creates a new CheckOverlapHandler.
func NewCheckOverlapHandler(detector *services.OverlapDetector) *CheckOverlapHandler {
	return &CheckOverlapHandler{detector: detector}
}

// Handle executes the CheckOverlapQuery.
func (h *CheckOverlapHandler) Handle(ctx context.Context, query CheckOverlapQuery) (*OverlapDTO, error) {
	events, err := h.detector.Overlapping(ctx, &domain.Activity{
		Ref:      query.Ref,
		Schedule: query.Schedule,
		Start:    query.Start,
		End:      query.End,
	})
	if err != nil {
		return nil, err
	}

	return &OverlapDTO{
		Overlaps:    len(events) > 0,
		Conflicting: toEventDTOs(events),
	}, nil
}
