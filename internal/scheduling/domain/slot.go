package domain

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidTimeWindow = errors.New("invalid time-of-day window")

// Slot is a free interval on one schedule.
type Slot struct {
	Schedule ScheduleRef
	Start    time.Time
	End      time.Time
}

// Duration returns the slot duration
func (s Slot) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// SlotLess orders slots by start, then schedule, then end.
func SlotLess(a, b Slot) bool {
	if !a.Start.Equal(b.Start) {
		return a.Start.Before(b.Start)
	}
	if a.Schedule.ID != b.Schedule.ID {
		return a.Schedule.ID < b.Schedule.ID
	}
	if a.Schedule.Kind != b.Schedule.Kind {
		return a.Schedule.Kind < b.Schedule.Kind
	}
	return a.End.Before(b.End)
}

// TimeWindow restricts slots to a time-of-day range, expressed as offsets
// from midnight. Start must be before End.
type TimeWindow struct {
	Start time.Duration
	End   time.Duration
}

// NewTimeWindow validates and creates a window.
func NewTimeWindow(start, end time.Duration) (TimeWindow, error) {
	if start < 0 || end > 24*time.Hour || start >= end {
		return TimeWindow{}, fmt.Errorf("%w: %s-%s", ErrInvalidTimeWindow, start, end)
	}
	return TimeWindow{Start: start, End: end}, nil
}

// ParseTimeWindow parses "HH:MM-HH:MM". "24:00" is accepted as an end.
func ParseTimeWindow(s string) (TimeWindow, error) {
	var sh, sm, eh, em int
	if _, err := fmt.Sscanf(s, "%d:%d-%d:%d", &sh, &sm, &eh, &em); err != nil {
		return TimeWindow{}, fmt.Errorf("%w: %q", ErrInvalidTimeWindow, s)
	}
	if sm < 0 || sm > 59 || em < 0 || em > 59 {
		return TimeWindow{}, fmt.Errorf("%w: %q", ErrInvalidTimeWindow, s)
	}
	start := time.Duration(sh)*time.Hour + time.Duration(sm)*time.Minute
	end := time.Duration(eh)*time.Hour + time.Duration(em)*time.Minute
	return NewTimeWindow(start, end)
}

// On returns the window's absolute bounds on day d in loc.
func (w TimeWindow) On(d Date, loc *time.Location) (time.Time, time.Time) {
	midnight := d.Start(loc)
	return midnight.Add(w.Start), midnight.Add(w.End)
}

func (w TimeWindow) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d",
		int(w.Start.Hours()), int(w.Start.Minutes())%60,
		int(w.End.Hours()), int(w.End.Minutes())%60)
}
