package domain_test

import (
	"testing"
	"time"

	"github.com/felixgeelhaar/schedcache/internal/scheduling/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleRef(t *testing.T) {
	ref := domain.NewScheduleRef("provider", 42)
	assert.Equal(t, "provider:42", ref.String())
	assert.False(t, ref.IsZero())
	assert.True(t, domain.ScheduleRef{}.IsZero())

	parsed, err := domain.ParseScheduleRef("provider:42")
	require.NoError(t, err)
	assert.Equal(t, ref, parsed)

	for _, bad := range []string{"", "provider", ":1", "provider:x", "provider:0", "provider:-3"} {
		_, err := domain.ParseScheduleRef(bad)
		assert.ErrorIs(t, err, domain.ErrInvalidScheduleRef, bad)
	}
}

func TestEventRef(t *testing.T) {
	ref := domain.NewEventRef(domain.ActivityKindTask, 7)
	assert.Equal(t, "task:7", ref.String())
	assert.True(t, ref.IsPersisted())
	assert.False(t, domain.NewEventRef(domain.ActivityKindTask, 0).IsPersisted())

	parsed, err := domain.ParseEventRef("appointment:12")
	require.NoError(t, err)
	assert.Equal(t, domain.NewEventRef(domain.ActivityKindAppointment, 12), parsed)

	_, err = domain.ParseEventRef("appointment")
	assert.ErrorIs(t, err, domain.ErrInvalidEventRef)
}

func TestDate(t *testing.T) {
	d, err := domain.ParseDate("2024-02-28")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-28", d.String())
	assert.Equal(t, "2024-02-29", d.AddDays(1).String())
	assert.Equal(t, "2024-03-01", d.AddDays(2).String())
	assert.Equal(t, "2023-12-31", d.AddDays(-59).String())

	assert.True(t, d.Before(d.AddDays(1)))
	assert.True(t, d.AddDays(1).After(d))
	assert.False(t, d.Before(d))

	_, err = domain.ParseDate("28/02/2024")
	assert.Error(t, err)
}

func TestDate_Bounds(t *testing.T) {
	d, _ := domain.ParseDate("2024-01-10")
	start := d.Start(time.UTC)
	end := d.End(time.UTC)

	assert.Equal(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 1, 10, 23, 59, 59, int(999*time.Millisecond), time.UTC), end)

	t.Run("daylight saving day", func(t *testing.T) {
		loc, err := time.LoadLocation("America/New_York")
		require.NoError(t, err)
		dst, _ := domain.ParseDate("2024-03-10")
		assert.Equal(t, 23*time.Hour, dst.End(loc).Sub(dst.Start(loc))+time.Millisecond)
	})
}

func TestDatesBetween(t *testing.T) {
	first, _ := domain.ParseDate("2024-01-30")
	last, _ := domain.ParseDate("2024-02-02")

	dates := domain.DatesBetween(first, last)
	require.Len(t, dates, 4)
	assert.Equal(t, "2024-02-01", dates[2].String())

	assert.Equal(t, []domain.Date{last}, domain.DatesBetween(last, first))
}

func TestTimeWindow(t *testing.T) {
	w, err := domain.ParseTimeWindow("09:00-17:30")
	require.NoError(t, err)
	assert.Equal(t, 9*time.Hour, w.Start)
	assert.Equal(t, 17*time.Hour+30*time.Minute, w.End)
	assert.Equal(t, "09:00-17:30", w.String())

	d, _ := domain.ParseDate("2024-01-10")
	from, to := w.On(d, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2024, 1, 10, 17, 30, 0, 0, time.UTC), to)

	full, err := domain.ParseTimeWindow("00:00-24:00")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, full.End)

	for _, bad := range []string{"17:00-09:00", "09:00", "09:70-10:00", "10:00-10:00", "00:00-25:00"} {
		_, err := domain.ParseTimeWindow(bad)
		assert.ErrorIs(t, err, domain.ErrInvalidTimeWindow, bad)
	}
}

func TestSlotLess(t *testing.T) {
	s1 := domain.NewScheduleRef("provider", 1)
	s2 := domain.NewScheduleRef("provider", 2)
	nine := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

	a := domain.Slot{Schedule: s1, Start: nine, End: nine.Add(time.Hour)}
	b := domain.Slot{Schedule: s2, Start: nine, End: nine.Add(time.Hour)}
	c := domain.Slot{Schedule: s2, Start: nine.Add(-time.Hour), End: nine}

	assert.True(t, domain.SlotLess(a, b))
	assert.True(t, domain.SlotLess(c, a))
	assert.False(t, domain.SlotLess(a, a))
	assert.Equal(t, time.Hour, a.Duration())
}
