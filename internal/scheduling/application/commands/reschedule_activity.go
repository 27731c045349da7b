package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/schedcache/internal/scheduling/domain"
	sharedApplication "github.com/felixgeelhaar/schedcache/internal/shared/application"
)

// RescheduleActivityCommand moves an existing activity to a new start time
// and, optionally, to another schedule.
type RescheduleActivityCommand struct {
	Ref      domain.EventRef
	Schedule domain.ScheduleRef // zero keeps the current schedule
	Start    time.Time
	End      time.Time // zero keeps the current duration
	// RejectOverlap refuses moves onto time already taken on the target
	// schedule.
	RejectOverlap bool
}

// CommandName returns the command name.
func (c RescheduleActivityCommand) CommandName() string { return "reschedule_activity" }

// RescheduleActivityHandler handles the RescheduleActivityCommand.
type RescheduleActivityHandler struct {
	activities ActivityWriter
	overlaps   OverlapChecker
	uow        sharedApplication.UnitOfWork
}

var _ sharedApplication.CommandHandler[RescheduleActivityCommand] = (*RescheduleActivityHandler)(nil)

// NewRescheduleActivityHandler creates a new RescheduleActivityHandler.
func NewRescheduleActivityHandler(activities ActivityWriter, overlaps OverlapChecker, uow sharedApplication.UnitOfWork) *RescheduleActivityHandler {
	return &RescheduleActivityHandler{
		activities: activities,
		overlaps:   overlaps,
		uow:        uow,
	}
}

// Handle executes the RescheduleActivityCommand. The overlap check reads
// the cache before the transaction opens; the activity is then reloaded
// inside it and the move is refused if its placement changed meanwhile.
func (h *RescheduleActivityHandler) Handle(ctx context.Context, cmd RescheduleActivityCommand) error {
	if cmd.Start.IsZero() {
		return fmt.Errorf("reschedule %s: start time is required", cmd.Ref)
	}

	loaded, err := h.activities.FindByRef(ctx, cmd.Ref)
	if err != nil {
		return err
	}
	if loaded == nil {
		return fmt.Errorf("%w: %s", ErrActivityNotFound, cmd.Ref)
	}

	moved := move(loaded, cmd)
	if err := moved.Validate(); err != nil {
		return err
	}
	if cmd.RejectOverlap {
		if err := checkOverlap(ctx, h.overlaps, moved); err != nil {
			return err
		}
	}

	return sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		current, err := h.activities.FindByRef(txCtx, cmd.Ref)
		if err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("%w: %s", ErrActivityNotFound, cmd.Ref)
		}
		if !samePlacement(current, loaded) {
			return fmt.Errorf("%w: %s", ErrConcurrentChange, cmd.Ref)
		}

		current.Schedule = moved.Schedule
		current.Start = moved.Start
		current.End = moved.End
		return h.activities.Save(txCtx, current)
	})
}

func move(a *domain.Activity, cmd RescheduleActivityCommand) *domain.Activity {
	moved := *a
	if !cmd.Schedule.IsZero() {
		moved.Schedule = cmd.Schedule
	}
	moved.Start = cmd.Start
	switch {
	case !cmd.End.IsZero():
		moved.End = cmd.End
	case !a.End.IsZero():
		moved.End = cmd.Start.Add(a.End.Sub(a.Start))
	}
	return &moved
}

func samePlacement(a, b *domain.Activity) bool {
	return a.Schedule == b.Schedule && a.Start.Equal(b.Start) && a.End.Equal(b.End)
}
