// Package lookup holds commands that maintain the display-name tables.
package lookup

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/schedcache/adapter/cli"
	"github.com/felixgeelhaar/schedcache/internal/scheduling/application/commands"
	"github.com/felixgeelhaar/schedcache/internal/scheduling/domain"
)

// Cmd is the lookup command group
var Cmd = &cobra.Command{
	Use:   "lookup",
	Short: "Maintain status and participant display names",
	Long: `Rename statuses and participants.

A status rename is committed together with a lookup-change notification;
every running cache clears itself when the notification is delivered.
Participant renames reach cached events when the name cache expires.`,
}

var statusCmd = &cobra.Command{
	Use:   "status <code> <name>",
	Short: "Set the display name of a status code",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil {
			return fmt.Errorf("app not initialized")
		}
		ctx := cmd.Context()
		code, name := args[0], args[1]

		if err := app.RenameStatusHandler.Handle(ctx, commands.RenameStatusCommand{Code: code, Name: name}); err != nil {
			return fmt.Errorf("failed to save status: %w", err)
		}

		// Relay now rather than waiting for a running serve to poll.
		published, err := app.Container.OutboxProcessor.ProcessOnce(ctx)
		if err != nil {
			cli.Logger().WarnContext(ctx, "lookup change left in outbox", "error", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "status %s = %q (%d notification(s) relayed)\n", code, name, published)
		return nil
	},
}

var partyCmd = &cobra.Command{
	Use:   "party <kind:id> <name>",
	Short: "Set the display name of a participant",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil {
			return fmt.Errorf("app not initialized")
		}
		ctx := cmd.Context()

		ref, err := domain.ParseScheduleRef(args[0])
		if err != nil {
			return fmt.Errorf("invalid participant: %w", err)
		}
		party := domain.PartyRef{Kind: ref.Kind, ID: ref.ID}

		if err := app.RenamePartyHandler.Handle(ctx, commands.RenamePartyCommand{Party: party, Name: args[1]}); err != nil {
			return fmt.Errorf("failed to save participant: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "party %s = %q\n", party, args[1])
		return nil
	},
}

func init() {
	Cmd.AddCommand(statusCmd)
	Cmd.AddCommand(partyCmd)
}
