package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/schedcache/internal/scheduling/domain"
	sharedApplication "github.com/felixgeelhaar/schedcache/internal/shared/application"
)

var (
	ErrActivityNotFound = errors.New("activity not found")
	ErrActivityRequired = errors.New("activity is required")
	ErrOverlap          = errors.New("activity overlaps existing events")
	ErrConcurrentChange = errors.New("activity was changed concurrently")
)

// ActivityWriter is the store side written through by the activity commands.
type ActivityWriter interface {
	FindByRef(ctx context.Context, ref domain.EventRef) (*domain.Activity, error)
	Save(ctx context.Context, activity *domain.Activity) error
	Delete(ctx context.Context, ref domain.EventRef) error
}

// OverlapChecker finds the events a proposed placement would overlap.
type OverlapChecker interface {
	Overlapping(ctx context.Context, activity *domain.Activity) ([]*domain.Event, error)
}

// ScheduleActivityCommand creates an activity, or updates it when its ref
// is already persisted.
type ScheduleActivityCommand struct {
	Activity *domain.Activity
	// RejectOverlap refuses placements that overlap other cached events
	// on the same schedule.
	RejectOverlap bool
}

// CommandName returns the command name.
func (c ScheduleActivityCommand) CommandName() string { return "schedule_activity" }

// ScheduleActivityHandler handles the ScheduleActivityCommand.
type ScheduleActivityHandler struct {
	activities ActivityWriter
	overlaps   OverlapChecker
}

var _ sharedApplication.CommandHandler[ScheduleActivityCommand] = (*ScheduleActivityHandler)(nil)

// NewScheduleActivityHandler creates a new ScheduleActivityHandler.
func NewScheduleActivityHandler(activities ActivityWriter, overlaps OverlapChecker) *ScheduleActivityHandler {
	return &ScheduleActivityHandler{
		activities: activities,
		overlaps:   overlaps,
	}
}

// Handle executes the ScheduleActivityCommand. On success the activity
// carries its assigned ref.
func (h *ScheduleActivityHandler) Handle(ctx context.Context, cmd ScheduleActivityCommand) error {
	if cmd.Activity == nil {
		return ErrActivityRequired
	}
	if cmd.RejectOverlap {
		if err := checkOverlap(ctx, h.overlaps, cmd.Activity); err != nil {
			return err
		}
	}
	return h.activities.Save(ctx, cmd.Activity)
}

// checkOverlap runs against the cache outside any store transaction, so a
// concurrent writer can still slip in between the check and the save.
func checkOverlap(ctx context.Context, overlaps OverlapChecker, activity *domain.Activity) error {
	events, err := overlaps.Overlapping(ctx, activity)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}
	refs := make([]string, len(events))
	for i, ev := range events {
		refs[i] = ev.Ref.String()
	}
	return fmt.Errorf("%w: %s", ErrOverlap, strings.Join(refs, ", "))
}
