package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidScheduleRef = errors.New("invalid schedule reference")
	ErrInvalidEventRef    = errors.New("invalid event reference")
)

// ScheduleRef identifies the calendar or resource an event belongs to.
type ScheduleRef struct {
	Kind string
	ID   int64
}

// NewScheduleRef creates a schedule reference.
func NewScheduleRef(kind string, id int64) ScheduleRef {
	return ScheduleRef{Kind: kind, ID: id}
}

// IsZero reports whether the reference is unset.
func (r ScheduleRef) IsZero() bool { return r.ID == 0 && r.Kind == "" }

func (r ScheduleRef) String() string { return formatRef(r.Kind, r.ID) }

// ParseScheduleRef parses the "kind:id" form produced by String.
func ParseScheduleRef(s string) (ScheduleRef, error) {
	kind, id, err := parseRef(s)
	if err != nil {
		return ScheduleRef{}, fmt.Errorf("%w: %q", ErrInvalidScheduleRef, s)
	}
	return ScheduleRef{Kind: kind, ID: id}, nil
}

// EventRef identifies the persisted activity behind an event.
// A zero ID means the activity has not been persisted yet.
type EventRef struct {
	Kind ActivityKind
	ID   int64
}

// NewEventRef creates an event reference.
func NewEventRef(kind ActivityKind, id int64) EventRef {
	return EventRef{Kind: kind, ID: id}
}

// IsPersisted reports whether the reference points at a stored activity.
func (r EventRef) IsPersisted() bool { return r.ID != 0 }

func (r EventRef) String() string { return formatRef(string(r.Kind), r.ID) }

// ParseEventRef parses the "kind:id" form produced by String.
func ParseEventRef(s string) (EventRef, error) {
	kind, id, err := parseRef(s)
	if err != nil {
		return EventRef{}, fmt.Errorf("%w: %q", ErrInvalidEventRef, s)
	}
	return EventRef{Kind: ActivityKind(kind), ID: id}, nil
}

// PartyRef identifies a participant (customer, clinician, location...).
type PartyRef struct {
	Kind string
	ID   int64
}

// IsZero reports whether the reference is unset.
func (r PartyRef) IsZero() bool { return r.ID == 0 && r.Kind == "" }

func (r PartyRef) String() string { return formatRef(r.Kind, r.ID) }

func formatRef(kind string, id int64) string {
	return kind + ":" + strconv.FormatInt(id, 10)
}

func parseRef(s string) (string, int64, error) {
	kind, rawID, ok := strings.Cut(s, ":")
	if !ok || kind == "" {
		return "", 0, errors.New("missing kind")
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return "", 0, errors.New("invalid id")
	}
	return kind, id, nil
}
