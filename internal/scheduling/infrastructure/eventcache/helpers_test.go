package eventcache

import (
	"context"
	"sync"
	"time"

	"github.com/felixgeelhaar/schedcache/internal/scheduling/domain"
	"github.com/stretchr/testify/mock"
)

var (
	testSchedule = domain.NewScheduleRef("provider", 1)
	otherSched   = domain.NewScheduleRef("provider", 2)
)

func at(day string, hour, minute int) time.Time {
	d, err := domain.ParseDate(day)
	if err != nil {
		panic(err)
	}
	return d.Start(time.UTC).Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func date(day string) domain.Date {
	d, err := domain.ParseDate(day)
	if err != nil {
		panic(err)
	}
	return d
}

func appointment(id int64, start, end time.Time) *domain.Activity {
	return &domain.Activity{
		Ref:      domain.NewEventRef(domain.ActivityKindAppointment, id),
		Schedule: testSchedule,
		Start:    start,
		End:      end,
		Status:   "booked",
	}
}

func refs(events []*domain.Event) []int64 {
	ids := make([]int64, len(events))
	for i, ev := range events {
		ids[i] = ev.Ref.ID
	}
	return ids
}

// locator assembles projections without names.
type locator struct{}

func (locator) Assemble(_ context.Context, a *domain.Activity) *domain.Event {
	return a.Locate()
}

// fakeStore is an in-memory ActivityReader that records the ranges it was
// asked for.
type fakeStore struct {
	mu         sync.Mutex
	activities map[domain.EventRef]*domain.Activity
	loads      []time.Time
	err        error
	onLoad     func()
}

func newFakeStore(activities ...*domain.Activity) *fakeStore {
	s := &fakeStore{activities: make(map[domain.EventRef]*domain.Activity)}
	for _, a := range activities {
		s.put(a)
	}
	return s
}

func (s *fakeStore) put(a *domain.Activity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.activities[a.Ref] = &cp
}

func (s *fakeStore) delete(ref domain.EventRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.activities, ref)
}

func (s *fakeStore) loadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.loads)
}

func (s *fakeStore) loadedDays() []domain.Date {
	s.mu.Lock()
	defer s.mu.Unlock()
	days := make([]domain.Date, len(s.loads))
	for i, from := range s.loads {
		days[i] = domain.DateOf(from, time.UTC)
	}
	return days
}

func (s *fakeStore) FindInRange(_ context.Context, schedule domain.ScheduleRef, from, to time.Time) ([]*domain.Activity, error) {
	s.mu.Lock()
	s.loads = append(s.loads, from)
	hook := s.onLoad
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return nil, err
	}
	var out []*domain.Activity
	for _, a := range s.activities {
		if a.Schedule != schedule {
			continue
		}
		end := a.End
		if end.IsZero() {
			end = a.Start
		}
		if a.Start.After(to) || end.Before(from) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return out, nil
}

func (s *fakeStore) FindByRef(_ context.Context, ref domain.EventRef) (*domain.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.activities[ref]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

// mockReader is a testify mock of domain.ActivityReader.
type mockReader struct {
	mock.Mock
}

func (m *mockReader) FindInRange(ctx context.Context, schedule domain.ScheduleRef, from, to time.Time) ([]*domain.Activity, error) {
	args := m.Called(ctx, schedule, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Activity), args.Error(1)
}

func (m *mockReader) FindByRef(ctx context.Context, ref domain.EventRef) (*domain.Activity, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Activity), args.Error(1)
}
