package queries

import (
	"context"
	"time"

	"github.com/felixgeelhaar/schedcache/internal/scheduling/application/services"
	"github.com/felixgeelhaar/schedcache/internal/scheduling/domain"
	sharedApplication "github.com/felixgeelhaar/schedcache/internal/shared/application"
)

// SlotDTO is a data transfer object for free slots.
type SlotDTO struct {
	Schedule    string    `json:"schedule"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	DurationMin int       `json:"duration_min"`
}

// FindFreeSlotsQuery contains the parameters for finding free slots.
type FindFreeSlotsQuery struct {
	Schedules   []domain.ScheduleRef
	From        time.Time
	To          time.Time
	Window      *domain.TimeWindow
	MinDuration time.Duration
	// Limit caps the number of slots returned; zero means no limit.
	Limit int
}

// QueryName returns the query name.
func (q FindFreeSlotsQuery) QueryName() string { return "find_free_slots" }

// FindFreeSlotsHandler handles the FindFreeSlotsQuery.
type FindFreeSlotsHandler struct {
	finder *services.FreeSlotFinder
}

var _ sharedApplication.QueryHandler[FindFreeSlotsQuery, []SlotDTO] = (*FindFreeSlotsHandler)(nil)

// NewFindFreeSlotsHandler creates a new FindFreeSlotsHandler.
func NewFindFreeSlotsHandler(finder *services.FreeSlotFinder) *FindFreeSlotsHandler {
	return &FindFreeSlotsHandler{finder: finder}
}

// Handle executes the FindFreeSlotsQuery.
func (h *FindFreeSlotsHandler) Handle(ctx context.Context, query FindFreeSlotsQuery) ([]SlotDTO, error) {
	it, err := h.finder.Find(ctx, services.FreeSlotQuery{
		Schedules:   query.Schedules,
		From:        query.From,
		To:          query.To,
		Window:      query.Window,
		MinDuration: query.MinDuration,
	})
	if err != nil {
		return nil, err
	}

	dtos := []SlotDTO{}
	for {
		if query.Limit > 0 && len(dtos) == query.Limit {
			break
		}
		slot, ok := it.Next()
		if !ok {
			break
		}
		dtos = append(dtos, SlotDTO{
			Schedule:    slot.Schedule.String(),
			Start:       slot.Start,
			End:         slot.End,
			DurationMin: int(slot.Duration().Minutes()),
		})
	}
	return dtos, nil
}
