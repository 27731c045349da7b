package schedule

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/schedcache/internal/scheduling/application/queries"
	"github.com/felixgeelhaar/schedcache/internal/scheduling/domain"
)

var (
	overlapStart  string
	overlapEnd    string
	overlapIgnore string
	overlapJSON   bool
)

var overlapCmd = &cobra.Command{
	Use:   "overlap <schedule>",
	Short: "Check a proposed placement for overlapping events",
	Long: `Report the events of a schedule that a proposed placement would overlap.
Touching intervals do not overlap. Pass --ignore with the activity's own
reference when checking a move.

Examples:
  schedcache overlap provider:12 --start 2024-01-15T09:30:00Z --end 2024-01-15T10:30:00Z
  schedcache overlap provider:12 --start 2024-01-15T09:30 --end 2024-01-15T10:30 --ignore appointment:7`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}
		schedule, err := domain.ParseScheduleRef(args[0])
		if err != nil {
			return err
		}
		loc := location(app)

		query := queries.CheckOverlapQuery{Schedule: schedule}
		if query.Start, err = parseInstant(overlapStart, loc, false); err != nil {
			return err
		}
		if overlapEnd != "" {
			if query.End, err = parseInstant(overlapEnd, loc, false); err != nil {
				return err
			}
		}
		if overlapIgnore != "" {
			if query.Ref, err = domain.ParseEventRef(overlapIgnore); err != nil {
				return err
			}
		}

		result, err := app.CheckOverlapHandler.Handle(cmd.Context(), query)
		if err != nil {
			return fmt.Errorf("failed to check overlap: %w", err)
		}

		out := cmd.OutOrStdout()
		if overlapJSON {
			return writeJSON(out, result)
		}
		if !result.Overlaps {
			fmt.Fprintln(out, "No overlap.")
			return nil
		}
		fmt.Fprintf(out, "Overlaps %d event(s):\n", len(result.Conflicting))
		for _, ev := range result.Conflicting {
			fmt.Fprintf(out, "  %s  %s\n", formatSpan(ev.Start, ev.End, loc), ev.Ref)
		}
		return nil
	},
}

func init() {
	overlapCmd.Flags().StringVar(&overlapStart, "start", "", "proposed start")
	overlapCmd.Flags().StringVar(&overlapEnd, "end", "", "proposed end (empty for an instant)")
	overlapCmd.Flags().StringVar(&overlapIgnore, "ignore", "", "activity being moved (kind:id)")
	overlapCmd.Flags().BoolVar(&overlapJSON, "json", false, "print JSON")
	_ = overlapCmd.MarkFlagRequired("start")
}
