package services

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/felixgeelhaar/schedcache/internal/scheduling/domain"
	"github.com/stretchr/testify/mock"
)

var (
	s1 = domain.NewScheduleRef("provider", 1)
	s2 = domain.NewScheduleRef("provider", 2)
)

func at(day string, hour, minute int) time.Time {
	d, err := domain.ParseDate(day)
	if err != nil {
		panic(err)
	}
	return d.Start(time.UTC).Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func ev(schedule domain.ScheduleRef, id int64, start, end time.Time) *domain.Event {
	return &domain.Event{
		Ref:      domain.NewEventRef(domain.ActivityKindAppointment, id),
		Schedule: schedule,
		Start:    start,
		End:      end,
	}
}

// fakeQuerier serves EventsInRange from a fixed set of events.
type fakeQuerier struct {
	events []*domain.Event
	err    error
	calls  int
}

func (f *fakeQuerier) EventsInRange(_ context.Context, schedule domain.ScheduleRef, from, to time.Time) ([]*domain.Event, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []*domain.Event
	for _, e := range f.events {
		if e.Schedule == schedule && e.Intersects(from, to) {
			out = append(out, e.Clone())
		}
	}
	slices.SortFunc(out, domain.CompareEvents)
	return out, nil
}

// mockNames is a testify mock of domain.NameResolver.
type mockNames struct {
	mock.Mock
}

func (m *mockNames) ParticipantName(ctx context.Context, party domain.PartyRef) (string, error) {
	args := m.Called(ctx, party)
	return args.String(0), args.Error(1)
}

func (m *mockNames) StatusName(ctx context.Context, code string) (string, error) {
	args := m.Called(ctx, code)
	return args.String(0), args.Error(1)
}

// failingGaps fails for one schedule.
type failingGaps struct {
	GapSource
	fail domain.ScheduleRef
}

var errGaps = errors.New("store offline")

func (f failingGaps) Gaps(ctx context.Context, schedule domain.ScheduleRef, from, to time.Time) ([]domain.Slot, error) {
	if schedule == f.fail {
		return nil, errGaps
	}
	return f.GapSource.Gaps(ctx, schedule, from, to)
}
