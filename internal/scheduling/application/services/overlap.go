package services

import (
	"context"

	"github.com/felixgeelhaar/schedcache/internal/scheduling/domain"
)

// OverlapDetector checks a proposed activity against the cached events of
// its schedule. It only reads; a cache miss is filled as a side effect.
type OverlapDetector struct {
	events EventQuerier
}

// NewOverlapDetector creates a new overlap detector.
func NewOverlapDetector(events EventQuerier) *OverlapDetector {
	return &OverlapDetector{events: events}
}

// Overlapping returns the other events on the activity's schedule that
// overlap it. Activities without a schedule, start or end never overlap.
// Touching intervals are not overlaps.
func (d *OverlapDetector) Overlapping(ctx context.Context, activity *domain.Activity) ([]*domain.Event, error) {
	if activity.Schedule.IsZero() || activity.Start.IsZero() || activity.End.IsZero() {
		return nil, nil
	}
	if activity.End.Before(activity.Start) {
		return nil, domain.ErrInvalidTimeRange
	}

	events, err := d.events.EventsInRange(ctx, activity.Schedule, activity.Start, activity.End)
	if err != nil {
		return nil, err
	}

	var overlapping []*domain.Event
	for _, ev := range events {
		if !activity.IsNew() && ev.Ref == activity.Ref {
			continue
		}
		if ev.OverlapsWith(activity.Start, activity.End) {
			overlapping = append(overlapping, ev)
		}
	}
	return overlapping, nil
}

// HasOverlap reports whether any other event overlaps activity.
func (d *OverlapDetector) HasOverlap(ctx context.Context, activity *domain.Activity) (bool, error) {
	overlapping, err := d.Overlapping(ctx, activity)
	if err != nil {
		return false, err
	}
	return len(overlapping) > 0, nil
}
