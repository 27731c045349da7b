package domain

import (
	"time"
)

// Participant is a resolved role on an event.
type Participant struct {
	Role  string
	Party PartyRef
	Name  string
}

// Event is the lightweight projection of an Activity held by the cache.
// Callers always receive copies; see Clone.
type Event struct {
	Ref          EventRef
	Schedule     ScheduleRef
	Start        time.Time
	End          time.Time
	Status       string
	StatusName   string
	Description  string
	Participants []Participant
	MultiDay     bool
}

// Clone returns a deep copy that shares no mutable state with e.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	c := *e
	if e.Participants != nil {
		c.Participants = make([]Participant, len(e.Participants))
		copy(c.Participants, e.Participants)
	}
	return &c
}

// EffectiveEnd returns End, or Start for open-ended events.
func (e *Event) EffectiveEnd() time.Time {
	if e.End.IsZero() || e.End.Before(e.Start) {
		return e.Start
	}
	return e.End
}

// Duration returns the event duration; open-ended events have none.
func (e *Event) Duration() time.Duration {
	return e.EffectiveEnd().Sub(e.Start)
}

// Intersects reports whether [Start, EffectiveEnd] touches [from, to].
// Both bounds are inclusive.
func (e *Event) Intersects(from, to time.Time) bool {
	return !e.Start.After(to) && !e.EffectiveEnd().Before(from)
}

// OverlapsWith reports whether the event strictly overlaps [start, end).
// Adjacent intervals do not overlap.
func (e *Event) OverlapsWith(start, end time.Time) bool {
	evEnd := e.EffectiveEnd()
	if evEnd.Equal(e.Start) {
		// zero-length events overlap only when strictly inside the interval
		return e.Start.After(start) && e.Start.Before(end)
	}
	return e.Start.Before(end) && evEnd.After(start)
}

// Participant returns the participant holding role, if any.
func (e *Event) Participant(role string) (Participant, bool) {
	for _, p := range e.Participants {
		if p.Role == role {
			return p, true
		}
	}
	return Participant{}, false
}

// Days returns the calendar days, in loc, the event occupies. Single-day
// events occupy only their start day.
func (e *Event) Days(loc *time.Location) []Date {
	first := DateOf(e.Start, loc)
	if !e.MultiDay {
		return []Date{first}
	}
	return DatesBetween(first, DateOf(e.EffectiveEnd(), loc))
}

// EventLess orders events by start time, then by reference id.
func EventLess(a, b *Event) bool {
	if !a.Start.Equal(b.Start) {
		return a.Start.Before(b.Start)
	}
	if a.Ref.ID != b.Ref.ID {
		return a.Ref.ID < b.Ref.ID
	}
	return a.Ref.Kind < b.Ref.Kind
}

// CompareEvents is the three-way form of EventLess, for slices.SortFunc.
func CompareEvents(a, b *Event) int {
	switch {
	case EventLess(a, b):
		return -1
	case EventLess(b, a):
		return 1
	default:
		return 0
	}
}

// CloneEvents deep-copies a slice of events.
func CloneEvents(events []*Event) []*Event {
	out := make([]*Event, len(events))
	for i, ev := range events {
		out[i] = ev.Clone()
	}
	return out
}
