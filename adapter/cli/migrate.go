package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/schedcache/internal/shared/infrastructure/migrations"
)

var migrateStatus bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Long: `Apply the embedded schema migrations for the configured store.

SQLite stores are migrated automatically when opened; Postgres stores are
migrated only by this command.

Examples:
  schedcache migrate
  schedcache migrate --status`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil {
			return fmt.Errorf("app not initialized")
		}
		conn := app.Container.DBConn
		out := cmd.OutOrStdout()

		if migrateStatus {
			pending, err := migrations.Pending(cmd.Context(), conn)
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Fprintf(out, "%s schema is up to date\n", conn.Driver())
				return nil
			}
			for _, name := range pending {
				fmt.Fprintf(out, "pending  %s\n", name)
			}
			return nil
		}

		applied, err := migrations.Run(cmd.Context(), conn)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		for _, name := range applied {
			fmt.Fprintf(out, "applied  %s\n", name)
		}
		fmt.Fprintf(out, "%d migration(s) applied to %s\n", len(applied), conn.Driver())
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateStatus, "status", false, "list pending migrations without applying them")
	rootCmd.AddCommand(migrateCmd)
}
