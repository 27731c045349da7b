// Package schedule holds the event, free-slot, overlap and activity commands.
package schedule

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/schedcache/adapter/cli"
	"github.com/felixgeelhaar/schedcache/internal/scheduling/domain"
)

// Commands returns the top-level schedule commands.
func Commands() []*cobra.Command {
	return []*cobra.Command{eventsCmd, slotsCmd, overlapCmd, activityCmd}
}

func requireApp() (*cli.App, error) {
	app := cli.GetApp()
	if app == nil {
		return nil, fmt.Errorf("app not initialized")
	}
	return app, nil
}

func location(app *cli.App) *time.Location {
	return app.Container.Cache.Location()
}

// parseInstant accepts RFC 3339 or YYYY-MM-DD. A bare date is the start of
// the day in loc, or its last millisecond when endOfDay is set.
func parseInstant(s string, loc *time.Location, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04", s, loc); err == nil {
		return t, nil
	}
	day, err := domain.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q, use YYYY-MM-DD or RFC 3339", s)
	}
	if endOfDay {
		return day.End(loc), nil
	}
	return day.Start(loc), nil
}

func parseSchedules(args []string) ([]domain.ScheduleRef, error) {
	refs := make([]domain.ScheduleRef, 0, len(args))
	for _, arg := range args {
		ref, err := domain.ParseScheduleRef(arg)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatSpan(start time.Time, end *time.Time, loc *time.Location) string {
	start = start.In(loc)
	if end == nil {
		return start.Format("2006-01-02 15:04") + " -      "
	}
	e := end.In(loc)
	if domain.DateOf(start, loc) == domain.DateOf(e, loc) {
		return start.Format("2006-01-02 15:04") + " - " + e.Format("15:04")
	}
	return start.Format("2006-01-02 15:04") + " - " + e.Format("01-02 15:04")
}
