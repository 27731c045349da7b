package queries

import (
	"context"
	"time"

	"github.com/felixgeelhaar/schedcache/internal/scheduling/domain"
	sharedApplication "github.com/felixgeelhaar/schedcache/internal/shared/application"
)

// ParticipantDTO is a data transfer object for event participants.
type ParticipantDTO struct {
	Role  string `json:"role"`
	Party string `json:"party,omitempty"`
	Name  string `json:"name,omitempty"`
}

// EventDTO is a data transfer object for cached events.
type EventDTO struct {
	Ref          string           `json:"ref"`
	Schedule     string           `json:"schedule"`
	Start        time.Time        `json:"start"`
	End          *time.Time       `json:"end,omitempty"`
	DurationMin  int              `json:"duration_min"`
	Status       string           `json:"status,omitempty"`
	StatusName   string           `json:"status_name,omitempty"`
	Description  string           `json:"description,omitempty"`
	MultiDay     bool             `json:"multi_day,omitempty"`
	Participants []ParticipantDTO `json:"participants,omitempty"`
}

// EventReader is the read side of the event cache.
type EventReader interface {
	Events(ctx context.Context, schedule domain.ScheduleRef, day domain.Date) ([]*domain.Event, error)
	EventsInRange(ctx context.Context, schedule domain.ScheduleRef, from, to time.Time) ([]*domain.Event, error)
}

// GetEventsQuery contains the parameters for listing events. When Day is set
// From and To are ignored.
type GetEventsQuery struct {
	Schedule domain.ScheduleRef
	Day      *domain.Date
	From     time.Time
	To       time.Time
}

// QueryName returns the query name.
func (q GetEventsQuery) QueryName() string { return "get_events" }

// GetEventsHandler handles the GetEventsQuery.
type GetEventsHandler struct {
	events EventReader
}

var _ sharedApplication.QueryHandler[GetEventsQuery, []EventDTO] = (*GetEventsHandler)(nil)

// NewGetEventsHandler creates a new GetEventsHandler.
func NewGetEventsHandler(events EventReader) *GetEventsHandler {
	return &GetEventsHandler{events: events}
}

// Handle executes the GetEventsQuery.
func (h *GetEventsHandler) Handle(ctx context.Context, query GetEventsQuery) ([]EventDTO, error) {
	if query.Schedule.IsZero() {
		return nil, domain.ErrInvalidScheduleRef
	}

	var (
		events []*domain.Event
		err    error
	)
	if query.Day != nil {
		events, err = h.events.Events(ctx, query.Schedule, *query.Day)
	} else {
		if query.To.Before(query.From) {
			return nil, domain.ErrInvalidTimeRange
		}
		events, err = h.events.EventsInRange(ctx, query.Schedule, query.From, query.To)
	}
	if err != nil {
		return nil, err
	}

	return toEventDTOs(events), nil
}

func toEventDTOs(events []*domain.Event) []EventDTO {
	dtos := make([]EventDTO, len(events))
	for i, ev := range events {
		dtos[i] = toEventDTO(ev)
	}
	return dtos
}

func toEventDTO(ev *domain.Event) EventDTO {
	dto := EventDTO{
		Ref:         ev.Ref.String(),
		Schedule:    ev.Schedule.String(),
		Start:       ev.Start,
		DurationMin: int(ev.Duration().Minutes()),
		Status:      ev.Status,
		StatusName:  ev.StatusName,
		Description: ev.Description,
		MultiDay:    ev.MultiDay,
	}
	if !ev.End.IsZero() {
		end := ev.End
		dto.End = &end
	}
	for _, p := range ev.Participants {
		pd := ParticipantDTO{Role: p.Role, Name: p.Name}
		if !p.Party.IsZero() {
			pd.Party = p.Party.String()
		}
		dto.Participants = append(dto.Participants, pd)
	}
	return dto
}
