package commands

import (
	"context"
	"errors"
	"log/slog"

	"github.com/felixgeelhaar/schedcache/internal/scheduling/domain"
	sharedApplication "github.com/felixgeelhaar/schedcache/internal/shared/application"
)

var ErrNameRequired = errors.New("display name is required")

// LookupWriter maintains the display-name lookup tables.
type LookupWriter interface {
	SaveStatus(ctx context.Context, code, name string) error
	SaveParty(ctx context.Context, party domain.PartyRef, name string) error
}

// ParticipantForgetter drops a cached participant name.
type ParticipantForgetter interface {
	ForgetParticipant(ctx context.Context, party domain.PartyRef) error
}

// RenameStatusCommand sets the display name of a status code.
type RenameStatusCommand struct {
	Code string
	Name string
}

// CommandName returns the command name.
func (c RenameStatusCommand) CommandName() string { return "rename_status" }

// RenameStatusHandler handles the RenameStatusCommand. The store records a
// lookup-change notification in the same transaction; caches clear when it
// is relayed.
type RenameStatusHandler struct {
	lookups LookupWriter
}

var _ sharedApplication.CommandHandler[RenameStatusCommand] = (*RenameStatusHandler)(nil)

// NewRenameStatusHandler creates a new RenameStatusHandler.
func NewRenameStatusHandler(lookups LookupWriter) *RenameStatusHandler {
	return &RenameStatusHandler{lookups: lookups}
}

// Handle executes the RenameStatusCommand.
func (h *RenameStatusHandler) Handle(ctx context.Context, cmd RenameStatusCommand) error {
	if cmd.Name == "" {
		return ErrNameRequired
	}
	return h.lookups.SaveStatus(ctx, cmd.Code, cmd.Name)
}

// RenamePartyCommand sets the display name of a participant.
type RenamePartyCommand struct {
	Party domain.PartyRef
	Name  string
}

// CommandName returns the command name.
func (c RenamePartyCommand) CommandName() string { return "rename_party" }

// RenamePartyHandler handles the RenamePartyCommand. Participant renames
// raise no notification; cached events pick the name up once the shared
// name cache entry is gone.
type RenamePartyHandler struct {
	lookups LookupWriter
	names   ParticipantForgetter
	logger  *slog.Logger
}

var _ sharedApplication.CommandHandler[RenamePartyCommand] = (*RenamePartyHandler)(nil)

// NewRenamePartyHandler creates a new RenamePartyHandler. names may be nil
// when no shared name cache is configured.
func NewRenamePartyHandler(lookups LookupWriter, names ParticipantForgetter, logger *slog.Logger) *RenamePartyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RenamePartyHandler{
		lookups: lookups,
		names:   names,
		logger:  logger,
	}
}

// Handle executes the RenamePartyCommand. Failing to drop the cached name
// is logged, not returned; the entry still expires on its own.
func (h *RenamePartyHandler) Handle(ctx context.Context, cmd RenamePartyCommand) error {
	if cmd.Name == "" {
		return ErrNameRequired
	}
	if err := h.lookups.SaveParty(ctx, cmd.Party, cmd.Name); err != nil {
		return err
	}
	if h.names == nil {
		return nil
	}
	if err := h.names.ForgetParticipant(ctx, cmd.Party); err != nil {
		h.logger.WarnContext(ctx, "failed to drop cached participant name",
			"party", cmd.Party.String(),
			"error", err,
		)
	}
	return nil
}
