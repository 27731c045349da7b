package services

import (
	"context"
	"time"

	"github.com/felixgeelhaar/schedcache/internal/scheduling/domain"
)

// EventQuerier is the read side of the event cache used by the services.
type EventQuerier interface {
	EventsInRange(ctx context.Context, schedule domain.ScheduleRef, from, to time.Time) ([]*domain.Event, error)
}

// GapSource answers a gap query: the ascending free intervals of one
// schedule within [from, to].
type GapSource interface {
	Gaps(ctx context.Context, schedule domain.ScheduleRef, from, to time.Time) ([]domain.Slot, error)
}

// CacheGapSource derives gaps from the cached events of a schedule.
type CacheGapSource struct {
	events EventQuerier
}

// NewCacheGapSource creates a gap source reading through events.
func NewCacheGapSource(events EventQuerier) *CacheGapSource {
	return &CacheGapSource{events: events}
}

// Gaps walks the schedule's events in start order and returns the
// non-empty intervals no event covers.
func (s *CacheGapSource) Gaps(ctx context.Context, schedule domain.ScheduleRef, from, to time.Time) ([]domain.Slot, error) {
	events, err := s.events.EventsInRange(ctx, schedule, from, to)
	if err != nil {
		return nil, err
	}
	return gapsBetween(schedule, events, from, to), nil
}

// gapsBetween expects events ordered by start time.
func gapsBetween(schedule domain.ScheduleRef, events []*domain.Event, from, to time.Time) []domain.Slot {
	gaps := make([]domain.Slot, 0, len(events)+1)
	cursor := from

	for _, ev := range events {
		if !cursor.Before(to) {
			break
		}
		if ev.Start.After(cursor) {
			end := ev.Start
			if end.After(to) {
				end = to
			}
			gaps = append(gaps, domain.Slot{Schedule: schedule, Start: cursor, End: end})
		}
		if evEnd := ev.EffectiveEnd(); evEnd.After(cursor) {
			cursor = evEnd
		}
	}

	if cursor.Before(to) {
		gaps = append(gaps, domain.Slot{Schedule: schedule, Start: cursor, End: to})
	}
	return gaps
}
