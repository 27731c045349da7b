package commands

import (
	"context"

	"github.com/felixgeelhaar/schedcache/internal/scheduling/domain"
	sharedApplication "github.com/felixgeelhaar/schedcache/internal/shared/application"
)

// CancelActivityCommand deletes an activity from the backing store.
type CancelActivityCommand struct {
	Ref domain.EventRef
}

// CommandName returns the command name.
func (c CancelActivityCommand) CommandName() string { return "cancel_activity" }

// CancelActivityHandler handles the CancelActivityCommand.
type CancelActivityHandler struct {
	activities ActivityWriter
}

var _ sharedApplication.CommandHandler[CancelActivityCommand] = (*CancelActivityHandler)(nil)

// NewCancelActivityHandler creates a new CancelActivityHandler.
func NewCancelActivityHandler(activities ActivityWriter) *CancelActivityHandler {
	return &CancelActivityHandler{activities: activities}
}

// Handle executes the CancelActivityCommand.
func (h *CancelActivityHandler) Handle(ctx context.Context, cmd CancelActivityCommand) error {
	return h.activities.Delete(ctx, cmd.Ref)
}
