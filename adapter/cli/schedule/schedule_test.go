package schedule

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/schedcache/adapter/cli"
	internalApp "github.com/felixgeelhaar/schedcache/internal/app"
	"github.com/felixgeelhaar/schedcache/internal/scheduling/application/commands"
	"github.com/felixgeelhaar/schedcache/internal/scheduling/application/queries"
	"github.com/felixgeelhaar/schedcache/internal/scheduling/domain"
	"github.com/felixgeelhaar/schedcache/pkg/config"
)

func TestMain(m *testing.M) {
	cli.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	cli.AddCommand(Commands()...)
	os.Exit(m.Run())
}

// setupLocalModeTestApp wires a CLI app over an in-memory SQLite store.
func setupLocalModeTestApp(t *testing.T) *cli.App {
	t.Helper()

	cfg := &config.Config{
		AppEnv:         "test",
		LocalMode:      true,
		DatabaseDriver: "sqlite",
		SQLitePath:     ":memory:",
		LogLevel:       "error",
		CacheTimezone:  "UTC",
	}
	container, err := internalApp.NewContainer(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	app := cli.NewApp(container)
	cli.SetApp(app)
	t.Cleanup(func() {
		cli.SetApp(nil)
		container.Close()
	})
	resetFlags()
	return app
}

func resetFlags() {
	eventsDay, eventsFrom, eventsTo, eventsJSON = "", "", "", false
	slotsFrom, slotsTo, slotsWindow, slotsMin, slotsLimit, slotsJSON = "", "", "", 0, 0, false
	overlapStart, overlapEnd, overlapIgnore, overlapJSON = "", "", "", false
	putKind, putID, putStart, putEnd, putDuration = string(domain.ActivityKindAppointment), 0, "", "", 0
	putStatus, putDescription, putParticipants, putMultiDay, putNoOverlap = "", "", nil, false, false
	moveSchedule, moveStart, moveEnd, moveNoOverlap = "", "", "", false
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := cli.Run(context.Background(), &out, args...)
	resetFlags()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err)
	return out
}

func TestEventsCommand(t *testing.T) {
	setupLocalModeTestApp(t)

	out := mustRun(t, "activity", "put", "provider:1",
		"--start", "2024-01-15T09:00", "--duration", "45m",
		"--status", "BK", "--description", "check-up",
		"--participant", "customer=customer:7", "--participant", "room")
	assert.Contains(t, out, "saved appointment:")

	mustRun(t, "activity", "put", "provider:1", "--kind", "task",
		"--start", "2024-01-15T13:00", "--end", "2024-01-15T14:00")

	t.Run("day listing", func(t *testing.T) {
		out := mustRun(t, "events", "provider:1", "--day", "2024-01-15")
		assert.Contains(t, out, "2024-01-15 09:00 - 09:45")
		assert.Contains(t, out, "check-up")
		assert.Contains(t, out, "customer=customer:7")
		assert.Contains(t, out, "2 event(s)")
	})

	t.Run("range as json", func(t *testing.T) {
		out := mustRun(t, "events", "provider:1", "--from", "2024-01-14", "--to", "2024-01-15", "--json")

		var events []queries.EventDTO
		require.NoError(t, json.Unmarshal([]byte(out), &events))
		require.Len(t, events, 2)
		assert.Equal(t, 45, events[0].DurationMin)
		assert.Equal(t, "BK", events[0].Status)
		assert.Len(t, events[0].Participants, 2)
	})

	t.Run("empty day", func(t *testing.T) {
		out := mustRun(t, "events", "provider:1", "--day", "2024-01-16")
		assert.Contains(t, out, "No events.")
	})

	t.Run("requires a day or range", func(t *testing.T) {
		_, err := run(t, "events", "provider:1")
		assert.ErrorContains(t, err, "--day")
	})

	t.Run("rejects bad schedule", func(t *testing.T) {
		_, err := run(t, "events", "provider", "--day", "2024-01-15")
		assert.ErrorIs(t, err, domain.ErrInvalidScheduleRef)
	})
}

func TestSlotsCommand(t *testing.T) {
	setupLocalModeTestApp(t)

	mustRun(t, "activity", "put", "provider:2", "--start", "2024-01-15T10:00", "--end", "2024-01-15T11:00")
	mustRun(t, "activity", "put", "room:2", "--start", "2024-01-15T13:00", "--end", "2024-01-15T14:00")

	out := mustRun(t, "slots", "provider:2", "room:2",
		"--from", "2024-01-15", "--to", "2024-01-15",
		"--window", "09:00-17:00", "--min", "90m", "--json")

	var slots []queries.SlotDTO
	require.NoError(t, json.Unmarshal([]byte(out), &slots))
	require.Len(t, slots, 3)
	for i := 1; i < len(slots); i++ {
		assert.False(t, slots[i].Start.Before(slots[i-1].Start), "slots must be in start order")
	}
	for _, s := range slots {
		assert.GreaterOrEqual(t, s.DurationMin, 90)
	}

	out = mustRun(t, "slots", "provider:2", "--from", "2024-01-15", "--to", "2024-01-15",
		"--window", "09:00-17:00", "--limit", "1")
	assert.Contains(t, out, "2024-01-15 09:00 - 10:00")
	assert.NotContains(t, out, "11:00 - 17:00")
}

func TestOverlapCommand(t *testing.T) {
	setupLocalModeTestApp(t)

	out := mustRun(t, "activity", "put", "provider:3", "--start", "2024-01-15T09:00", "--end", "2024-01-15T10:00")
	ref := bytes.TrimSpace(bytes.TrimPrefix([]byte(out), []byte("saved ")))

	out = mustRun(t, "overlap", "provider:3", "--start", "2024-01-15T09:30", "--end", "2024-01-15T10:30")
	assert.Contains(t, out, "Overlaps 1 event(s)")

	out = mustRun(t, "overlap", "provider:3", "--start", "2024-01-15T10:00", "--end", "2024-01-15T11:00")
	assert.Contains(t, out, "No overlap.", "touching intervals do not overlap")

	out = mustRun(t, "overlap", "provider:3", "--start", "2024-01-15T09:30", "--end", "2024-01-15T10:30",
		"--ignore", string(ref))
	assert.Contains(t, out, "No overlap.")
}

func TestActivityRemoveCommand(t *testing.T) {
	app := setupLocalModeTestApp(t)

	out := mustRun(t, "activity", "put", "provider:4", "--start", "2024-01-15T09:00", "--duration", "30m")
	ref, err := domain.ParseEventRef(string(bytes.TrimSpace(bytes.TrimPrefix([]byte(out), []byte("saved ")))))
	require.NoError(t, err)

	// Warm the day so the delete has a bucket to update.
	assert.Contains(t, mustRun(t, "events", "provider:4", "--day", "2024-01-15"), "1 event(s)")

	out = mustRun(t, "activity", "rm", ref.String())
	assert.Contains(t, out, "deleted "+ref.String())
	assert.Contains(t, mustRun(t, "events", "provider:4", "--day", "2024-01-15"), "No events.")

	found, err := app.Activities.FindByRef(context.Background(), ref)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestActivityMoveCommand(t *testing.T) {
	setupLocalModeTestApp(t)

	out := mustRun(t, "activity", "put", "provider:5", "--start", "2024-01-15T09:00", "--duration", "30m")
	ref := strings.TrimSpace(strings.TrimPrefix(out, "saved "))
	mustRun(t, "activity", "put", "provider:5", "--start", "2024-01-15T11:00", "--end", "2024-01-15T12:00")
	assert.Contains(t, mustRun(t, "events", "provider:5", "--day", "2024-01-15"), "2 event(s)")

	t.Run("keeps the duration", func(t *testing.T) {
		out := mustRun(t, "activity", "move", ref, "--start", "2024-01-15T14:00")
		assert.Contains(t, out, "moved "+ref+" to 2024-01-15 14:00")
		assert.Contains(t, mustRun(t, "events", "provider:5", "--day", "2024-01-15"), "2024-01-15 14:00 - 14:30")
	})

	t.Run("refuses an overlapping move", func(t *testing.T) {
		_, err := run(t, "activity", "move", ref, "--start", "2024-01-15T11:15", "--no-overlap")
		assert.ErrorIs(t, err, commands.ErrOverlap)
		assert.Contains(t, mustRun(t, "events", "provider:5", "--day", "2024-01-15"), "2024-01-15 14:00 - 14:30")
	})

	t.Run("moves to another day and schedule", func(t *testing.T) {
		mustRun(t, "activity", "move", ref, "--start", "2024-01-16T08:00", "--schedule", "room:5")
		assert.Contains(t, mustRun(t, "events", "provider:5", "--day", "2024-01-15"), "1 event(s)")
		assert.Contains(t, mustRun(t, "events", "room:5", "--day", "2024-01-16"), "2024-01-16 08:00 - 08:30")
	})

	t.Run("unknown activity", func(t *testing.T) {
		_, err := run(t, "activity", "move", "appointment:999", "--start", "2024-01-15T08:00")
		assert.ErrorIs(t, err, commands.ErrActivityNotFound)
	})
}

func TestActivityPutCommand_NoOverlap(t *testing.T) {
	setupLocalModeTestApp(t)

	mustRun(t, "activity", "put", "provider:6", "--start", "2024-01-15T09:00", "--duration", "1h")

	_, err := run(t, "activity", "put", "provider:6", "--start", "2024-01-15T09:30", "--duration", "1h", "--no-overlap")
	assert.ErrorIs(t, err, commands.ErrOverlap)

	mustRun(t, "activity", "put", "provider:6", "--start", "2024-01-15T10:00", "--duration", "1h", "--no-overlap")
	mustRun(t, "activity", "put", "provider:6", "--start", "2024-01-15T09:30", "--duration", "1h")
	assert.Contains(t, mustRun(t, "events", "provider:6", "--day", "2024-01-15"), "3 event(s)")
}

func TestParseInstant(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	tests := []struct {
		name     string
		input    string
		endOfDay bool
		want     time.Time
		wantErr  bool
	}{
		{"rfc3339", "2024-01-15T09:00:00Z", false, time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC), false},
		{"local minutes", "2024-01-15T09:00", false, time.Date(2024, 1, 15, 9, 0, 0, 0, berlin), false},
		{"day start", "2024-01-15", false, time.Date(2024, 1, 15, 0, 0, 0, 0, berlin), false},
		{"day end", "2024-01-15", true, time.Date(2024, 1, 15, 23, 59, 59, int(999*time.Millisecond), berlin), false},
		{"garbage", "soon", false, time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseInstant(tt.input, berlin, tt.endOfDay)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestParseParticipants(t *testing.T) {
	links, err := parseParticipants([]string{"customer=customer:7", "room", "clinician="})
	require.NoError(t, err)
	assert.Equal(t, []domain.ParticipantLink{
		{Role: "customer", Party: domain.PartyRef{Kind: "customer", ID: 7}},
		{Role: "room"},
		{Role: "clinician"},
	}, links)

	_, err = parseParticipants([]string{"=customer:7"})
	assert.Error(t, err)
	_, err = parseParticipants([]string{"customer=customer"})
	assert.Error(t, err)
}
