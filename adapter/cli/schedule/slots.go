package schedule

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/schedcache/internal/scheduling/application/queries"
	"github.com/felixgeelhaar/schedcache/internal/scheduling/domain"
)

var (
	slotsFrom   string
	slotsTo     string
	slotsWindow string
	slotsMin    time.Duration
	slotsLimit  int
	slotsJSON   bool
)

var slotsCmd = &cobra.Command{
	Use:   "slots <schedule>...",
	Short: "Find free slots across schedules",
	Long: `List free intervals of one or more schedules in start order, optionally
restricted to a daily window and a minimum length.

Examples:
  schedcache slots provider:12 --from 2024-01-15 --to 2024-01-15 --window 09:00-17:00 --min 30m
  schedcache slots provider:12 room:3 --from 2024-01-15 --to 2024-01-19 --limit 5`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}
		schedules, err := parseSchedules(args)
		if err != nil {
			return err
		}
		loc := location(app)

		query := queries.FindFreeSlotsQuery{
			Schedules:   schedules,
			MinDuration: slotsMin,
			Limit:       slotsLimit,
		}
		if query.From, err = parseInstant(slotsFrom, loc, false); err != nil {
			return err
		}
		if query.To, err = parseInstant(slotsTo, loc, true); err != nil {
			return err
		}
		if slotsWindow != "" {
			window, err := domain.ParseTimeWindow(slotsWindow)
			if err != nil {
				return err
			}
			query.Window = &window
		}

		slots, err := app.FindFreeSlotsHandler.Handle(cmd.Context(), query)
		if err != nil {
			return fmt.Errorf("failed to find free slots: %w", err)
		}

		out := cmd.OutOrStdout()
		if slotsJSON {
			return writeJSON(out, slots)
		}
		if len(slots) == 0 {
			fmt.Fprintln(out, "No free slots.")
			return nil
		}
		for _, s := range slots {
			end := s.End
			fmt.Fprintf(out, "%s  %-16s %4dm\n", formatSpan(s.Start, &end, loc), s.Schedule, s.DurationMin)
		}
		return nil
	},
}

func init() {
	slotsCmd.Flags().StringVar(&slotsFrom, "from", "", "range start (YYYY-MM-DD or RFC 3339)")
	slotsCmd.Flags().StringVar(&slotsTo, "to", "", "range end, inclusive (YYYY-MM-DD or RFC 3339)")
	slotsCmd.Flags().StringVarP(&slotsWindow, "window", "w", "", "daily window HH:MM-HH:MM")
	slotsCmd.Flags().DurationVar(&slotsMin, "min", 0, "minimum slot length")
	slotsCmd.Flags().IntVarP(&slotsLimit, "limit", "n", 0, "maximum slots to print (0 = all)")
	slotsCmd.Flags().BoolVar(&slotsJSON, "json", false, "print JSON")
	_ = slotsCmd.MarkFlagRequired("from")
	_ = slotsCmd.MarkFlagRequired("to")
}
