package schedule

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/schedcache/internal/scheduling/application/queries"
	"github.com/felixgeelhaar/schedcache/internal/scheduling/domain"
)

var (
	eventsDay  string
	eventsFrom string
	eventsTo   string
	eventsJSON bool
)

var eventsCmd = &cobra.Command{
	Use:   "events <schedule>",
	Short: "List the events of a schedule",
	Long: `List the events of one schedule for a day or a time range.

Schedules are written kind:id.

Examples:
  schedcache events provider:12 --day 2024-01-15
  schedcache events provider:12 --from 2024-01-15 --to 2024-01-19 --json`,
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

		query := queries.GetEventsQuery{Schedule: schedule}
		switch {
		case eventsDay != "" && (eventsFrom != "" || eventsTo != ""):
			return fmt.Errorf("--day cannot be combined with --from/--to")
		case eventsDay != "":
			day, err := domain.ParseDate(eventsDay)
			if err != nil {
				return err
			}
			query.Day = &day
		case eventsFrom != "" && eventsTo != "":
			if query.From, err = parseInstant(eventsFrom, loc, false); err != nil {
				return err
			}
			if query.To, err = parseInstant(eventsTo, loc, true); err != nil {
				return err
			}
		default:
			return fmt.Errorf("either --day or both --from and --to are required")
		}

		events, err := app.GetEventsHandler.Handle(cmd.Context(), query)
		if err != nil {
			return fmt.Errorf("failed to get events: %w", err)
		}

		out := cmd.OutOrStdout()
		if eventsJSON {
			return writeJSON(out, events)
		}
		if len(events) == 0 {
			fmt.Fprintln(out, "No events.")
			return nil
		}
		for _, ev := range events {
			status := ev.Status
			if ev.StatusName != "" {
				status = ev.StatusName
			}
			fmt.Fprintf(out, "%s  %-16s %-12s %s\n",
				formatSpan(ev.Start, ev.End, loc), ev.Ref, status, ev.Description)
			if len(ev.Participants) > 0 {
				names := make([]string, 0, len(ev.Participants))
				for _, p := range ev.Participants {
					label := p.Name
					if label == "" {
						label = p.Party
					}
					names = append(names, p.Role+"="+label)
				}
				fmt.Fprintf(out, "    %s\n", strings.Join(names, ", "))
			}
		}
		fmt.Fprintf(out, "%d event(s)\n", len(events))
		return nil
	},
}

func init() {
	eventsCmd.Flags().StringVarP(&eventsDay, "day", "d", "", "day to list (YYYY-MM-DD)")
	eventsCmd.Flags().StringVar(&eventsFrom, "from", "", "range start (YYYY-MM-DD or RFC 3339)")
	eventsCmd.Flags().StringVar(&eventsTo, "to", "", "range end, inclusive (YYYY-MM-DD or RFC 3339)")
	eventsCmd.Flags().BoolVar(&eventsJSON, "json", false, "print JSON")
}
