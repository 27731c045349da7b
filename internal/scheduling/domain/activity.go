package domain

import (
	"errors"
	"time"
)

var (
	ErrInvalidTimeRange = errors.New("end time must not be before start time")
	ErrSingleDayTooLong = errors.New("single-day activity longer than a day must be marked multi-day")
)

// MaxSingleDayDuration bounds activities that live only in their start
// day's bucket. Range scans look back a single day, which finds every such
// activity that runs into the range.
const MaxSingleDayDuration = 24 * time.Hour

// ActivityKind is the persisted type of a schedulable activity.
type ActivityKind string

const (
	ActivityKindAppointment ActivityKind = "appointment"
	ActivityKindTask        ActivityKind = "task"
)

// ParticipantLink is a raw role -> party association on a stored activity.
type ParticipantLink struct {
	Role  string
	Party PartyRef
}

// Activity is the raw, persisted form of a time-boxed activity as the
// backing store hands it to the cache. It is mutable and owned by the store.
type Activity struct {
	Ref          EventRef
	Schedule     ScheduleRef
	Start        time.Time
	End          time.Time // zero for open-ended activities
	Status       string
	Description  string
	Participants []ParticipantLink
	// MultiDay activities occupy every day between start and end.
	MultiDay bool
}

// IsNew reports whether the activity has never been persisted.
func (a *Activity) IsNew() bool {
	return !a.Ref.IsPersisted()
}

// Validate checks the invariants the cache relies on.
func (a *Activity) Validate() error {
	if a.Schedule.IsZero() {
		return ErrInvalidScheduleRef
	}
	if a.Start.IsZero() {
		return errors.New("start time is required")
	}
	if !a.End.IsZero() && a.End.Before(a.Start) {
		return ErrInvalidTimeRange
	}
	if !a.MultiDay && !a.End.IsZero() && a.End.Sub(a.Start) > MaxSingleDayDuration {
		return ErrSingleDayTooLong
	}
	return nil
}

// Locate builds a projection carrying only what is needed to find the
// buckets the activity lives in. Display names are left empty.
func (a *Activity) Locate() *Event {
	ev := &Event{
		Ref:         a.Ref,
		Schedule:    a.Schedule,
		Start:       a.Start,
		End:         a.End,
		Status:      a.Status,
		Description: a.Description,
		MultiDay:    a.MultiDay,
	}
	if len(a.Participants) > 0 {
		ev.Participants = make([]Participant, len(a.Participants))
		for i, link := range a.Participants {
			ev.Participants[i] = Participant{Role: link.Role, Party: link.Party}
		}
	}
	return ev
}
