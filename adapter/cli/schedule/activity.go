package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/schedcache/internal/scheduling/application/commands"
	"github.com/felixgeelhaar/schedcache/internal/scheduling/domain"
)

var (
	putKind         string
	putID           int64
	putStart        string
	putEnd          string
	putDuration     time.Duration
	putStatus       string
	putDescription  string
	putParticipants []string
	putMultiDay     bool
	putNoOverlap    bool

	moveSchedule  string
	moveStart     string
	moveEnd       string
	moveNoOverlap bool
)

var activityCmd = &cobra.Command{
	Use:     "activity",
	Short:   "Write appointments and tasks to the backing store",
	Aliases: []string{"act"},
}

var putCmd = &cobra.Command{
	Use:   "put <schedule>",
	Short: "Create or update an activity",
	Long: `Create an activity, or update one when --id is given. Cached days are
updated once the write commits.

Participants are role=kind:id, or a bare role for an empty slot.

Examples:
  schedcache activity put provider:12 --start 2024-01-15T09:00 --duration 45m --status BK \
      --participant customer=customer:7 --participant room=room:3
  schedcache activity put provider:12 --kind task --id 4 --start 2024-01-16T14:00 --end 2024-01-16T15:00`,
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

		activity := &domain.Activity{
			Ref:         domain.NewEventRef(domain.ActivityKind(putKind), putID),
			Schedule:    schedule,
			Status:      putStatus,
			Description: putDescription,
			MultiDay:    putMultiDay,
		}
		if activity.Start, err = parseInstant(putStart, loc, false); err != nil {
			return err
		}
		switch {
		case putEnd != "" && putDuration > 0:
			return fmt.Errorf("--end cannot be combined with --duration")
		case putEnd != "":
			if activity.End, err = parseInstant(putEnd, loc, false); err != nil {
				return err
			}
		case putDuration > 0:
			activity.End = activity.Start.Add(putDuration)
		}
		if activity.Participants, err = parseParticipants(putParticipants); err != nil {
			return err
		}

		err = app.ScheduleActivityHandler.Handle(cmd.Context(), commands.ScheduleActivityCommand{
			Activity:      activity,
			RejectOverlap: putNoOverlap,
		})
		if err != nil {
			return fmt.Errorf("failed to save activity: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", activity.Ref)
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:     "rm <activity>",
	Short:   "Delete an activity",
	Aliases: []string{"remove", "delete"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}
		ref, err := domain.ParseEventRef(args[0])
		if err != nil {
			return err
		}
		if err := app.CancelActivityHandler.Handle(cmd.Context(), commands.CancelActivityCommand{Ref: ref}); err != nil {
			return fmt.Errorf("failed to delete activity: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", ref)
		return nil
	},
}

var moveCmd = &cobra.Command{
	Use:     "move <activity>",
	Short:   "Reschedule an activity",
	Aliases: []string{"mv", "reschedule"},
	Long: `Move an activity to a new start time. The duration is kept unless --end
is given; --schedule moves it to another schedule as well.

Examples:
  schedcache activity move appointment:42 --start 2024-01-15T11:00
  schedcache activity move appointment:42 --start 2024-01-16T09:00 --schedule room:3 --no-overlap`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}
		ref, err := domain.ParseEventRef(args[0])
		if err != nil {
			return err
		}
		loc := location(app)

		move := commands.RescheduleActivityCommand{Ref: ref, RejectOverlap: moveNoOverlap}
		if moveSchedule != "" {
			if move.Schedule, err = domain.ParseScheduleRef(moveSchedule); err != nil {
				return err
			}
		}
		if move.Start, err = parseInstant(moveStart, loc, false); err != nil {
			return err
		}
		if moveEnd != "" {
			if move.End, err = parseInstant(moveEnd, loc, false); err != nil {
				return err
			}
		}

		if err := app.RescheduleActivityHandler.Handle(cmd.Context(), move); err != nil {
			return fmt.Errorf("failed to move activity: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "moved %s to %s\n", ref, move.Start.In(loc).Format("2006-01-02 15:04"))
		return nil
	},
}

func parseParticipants(values []string) ([]domain.ParticipantLink, error) {
	links := make([]domain.ParticipantLink, 0, len(values))
	for _, v := range values {
		role, rawParty, hasParty := strings.Cut(v, "=")
		if role == "" {
			return nil, fmt.Errorf("invalid participant %q, use role=kind:id", v)
		}
		link := domain.ParticipantLink{Role: role}
		if hasParty && rawParty != "" {
			ref, err := domain.ParseScheduleRef(rawParty)
			if err != nil {
				return nil, fmt.Errorf("invalid participant %q: %w", v, err)
			}
			link.Party = domain.PartyRef{Kind: ref.Kind, ID: ref.ID}
		}
		links = append(links, link)
	}
	return links, nil
}

func init() {
	putCmd.Flags().StringVarP(&putKind, "kind", "k", string(domain.ActivityKindAppointment), "appointment or task")
	putCmd.Flags().Int64Var(&putID, "id", 0, "existing activity id to update")
	putCmd.Flags().StringVar(&putStart, "start", "", "start time")
	putCmd.Flags().StringVar(&putEnd, "end", "", "end time (omit for open-ended)")
	putCmd.Flags().DurationVar(&putDuration, "duration", 0, "length, instead of --end")
	putCmd.Flags().StringVar(&putStatus, "status", "", "status code")
	putCmd.Flags().StringVar(&putDescription, "description", "", "description")
	putCmd.Flags().StringArrayVarP(&putParticipants, "participant", "p", nil, "role=kind:id (repeatable)")
	putCmd.Flags().BoolVar(&putMultiDay, "multi-day", false, "occupies every day between start and end")
	putCmd.Flags().BoolVar(&putNoOverlap, "no-overlap", false, "refuse to overlap other events on the schedule")
	_ = putCmd.MarkFlagRequired("start")

	moveCmd.Flags().StringVar(&moveSchedule, "schedule", "", "target schedule (default: unchanged)")
	moveCmd.Flags().StringVar(&moveStart, "start", "", "new start time")
	moveCmd.Flags().StringVar(&moveEnd, "end", "", "new end time (default: keep duration)")
	moveCmd.Flags().BoolVar(&moveNoOverlap, "no-overlap", false, "refuse to overlap other events on the target schedule")
	_ = moveCmd.MarkFlagRequired("start")

	activityCmd.AddCommand(putCmd)
	activityCmd.AddCommand(moveCmd)
	activityCmd.AddCommand(removeCmd)
}
