package persistence_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/schedcache/internal/scheduling/application/services"
	"github.com/felixgeelhaar/schedcache/internal/scheduling/application/subscribers"
	"github.com/felixgeelhaar/schedcache/internal/scheduling/domain"
	"github.com/felixgeelhaar/schedcache/internal/scheduling/infrastructure/eventcache"
	"github.com/felixgeelhaar/schedcache/internal/scheduling/infrastructure/persistence"
	"github.com/felixgeelhaar/schedcache/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/schedcache/internal/shared/infrastructure/database/sqlite"
	"github.com/felixgeelhaar/schedcache/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/schedcache/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/schedcache/internal/shared/infrastructure/outbox"
)

var (
	schedS  = domain.NewScheduleRef("provider", 1)
	schedS2 = domain.NewScheduleRef("provider", 2)
)

func at(day string, hour, minute int) time.Time {
	d, err := domain.ParseDate(day)
	if err != nil {
		panic(err)
	}
	return d.Start(time.UTC).Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func setupRepo(t *testing.T) (*persistence.ActivityRepository, database.Connection) {
	t.Helper()
	ctx := context.Background()
	conn, err := sqlite.NewConnection(ctx, database.Config{SQLitePath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	_, err = migrations.Run(ctx, conn)
	require.NoError(t, err)
	return persistence.NewActivityRepository(conn, nil, nil), conn
}

func appointment(schedule domain.ScheduleRef, start, end time.Time) *domain.Activity {
	return &domain.Activity{
		Ref:      domain.NewEventRef(domain.ActivityKindAppointment, 0),
		Schedule: schedule,
		Start:    start,
		End:      end,
		Status:   "BK",
	}
}

func TestActivityRepository_SaveAndFind(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepo(t)

	a := appointment(schedS, at("2024-01-10", 9, 0), at("2024-01-10", 10, 0))
	a.Description = "check-up"
	a.Participants = []domain.ParticipantLink{
		{Role: "customer", Party: domain.PartyRef{Kind: "customer", ID: 7}},
		{Role: "room"},
	}
	require.NoError(t, repo.Save(ctx, a))
	require.True(t, a.Ref.IsPersisted())

	found, err := repo.FindByRef(ctx, a.Ref)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, a.Schedule, found.Schedule)
	assert.True(t, a.Start.Equal(found.Start))
	assert.True(t, a.End.Equal(found.End))
	assert.Equal(t, "check-up", found.Description)
	assert.Equal(t, a.Participants, found.Participants)

	t.Run("unknown refs return nil", func(t *testing.T) {
		missing, err := repo.FindByRef(ctx, domain.NewEventRef(domain.ActivityKindAppointment, 9999))
		require.NoError(t, err)
		assert.Nil(t, missing)

		wrongKind, err := repo.FindByRef(ctx, domain.NewEventRef(domain.ActivityKindTask, a.Ref.ID))
		require.NoError(t, err)
		assert.Nil(t, wrongKind)

		unsaved, err := repo.FindByRef(ctx, domain.NewEventRef(domain.ActivityKindAppointment, 0))
		require.NoError(t, err)
		assert.Nil(t, unsaved)
	})

	t.Run("update", func(t *testing.T) {
		a.Start = at("2024-01-10", 11, 0)
		a.End = at("2024-01-10", 11, 30)
		a.Participants = a.Participants[:1]
		require.NoError(t, repo.Save(ctx, a))

		found, err := repo.FindByRef(ctx, a.Ref)
		require.NoError(t, err)
		assert.True(t, at("2024-01-10", 11, 0).Equal(found.Start))
		assert.Len(t, found.Participants, 1)
	})

	t.Run("update of a missing activity", func(t *testing.T) {
		ghost := appointment(schedS, at("2024-01-10", 9, 0), time.Time{})
		ghost.Ref.ID = 4242
		err := repo.Save(ctx, ghost)
		assert.ErrorIs(t, err, persistence.ErrActivityNotFound)
	})
}

func TestActivityRepository_SaveValidates(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepo(t)

	noKind := appointment(schedS, at("2024-01-10", 9, 0), time.Time{})
	noKind.Ref.Kind = ""
	assert.ErrorIs(t, repo.Save(ctx, noKind), persistence.ErrMissingKind)

	backwards := appointment(schedS, at("2024-01-10", 9, 0), at("2024-01-10", 8, 0))
	assert.ErrorIs(t, repo.Save(ctx, backwards), domain.ErrInvalidTimeRange)

	longStay := appointment(schedS, at("2024-01-10", 9, 0), at("2024-01-12", 9, 0))
	assert.ErrorIs(t, repo.Save(ctx, longStay), domain.ErrSingleDayTooLong)
	longStay.MultiDay = true
	assert.NoError(t, repo.Save(ctx, longStay))
}

func TestActivityRepository_FindInRange(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepo(t)

	morning := appointment(schedS, at("2024-01-10", 9, 0), at("2024-01-10", 10, 0))
	openEnded := appointment(schedS, at("2024-01-10", 14, 0), time.Time{})
	nextDay := appointment(schedS, at("2024-01-11", 9, 0), at("2024-01-11", 10, 0))
	overnight := appointment(schedS, at("2024-01-09", 22, 0), at("2024-01-10", 1, 0))
	otherSchedule := appointment(schedS2, at("2024-01-10", 9, 0), at("2024-01-10", 10, 0))
	for _, a := range []*domain.Activity{morning, openEnded, nextDay, overnight, otherSchedule} {
		require.NoError(t, repo.Save(ctx, a))
	}

	dayStart := at("2024-01-10", 0, 0)
	dayEnd := at("2024-01-11", 0, 0).Add(-time.Millisecond)
	found, err := repo.FindInRange(ctx, schedS, dayStart, dayEnd)
	require.NoError(t, err)

	var refs []domain.EventRef
	for _, a := range found {
		refs = append(refs, a.Ref)
	}
	assert.Equal(t, []domain.EventRef{overnight.Ref, morning.Ref, openEnded.Ref}, refs)

	t.Run("bounds are inclusive", func(t *testing.T) {
		found, err := repo.FindInRange(ctx, schedS, at("2024-01-10", 10, 0), at("2024-01-10", 14, 0))
		require.NoError(t, err)
		assert.Len(t, found, 2)
	})

	t.Run("empty range", func(t *testing.T) {
		found, err := repo.FindInRange(ctx, schedS, at("2024-02-01", 0, 0), at("2024-02-02", 0, 0))
		require.NoError(t, err)
		assert.Empty(t, found)
	})
}

func TestActivityRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepo(t)

	a := appointment(schedS, at("2024-01-10", 9, 0), at("2024-01-10", 10, 0))
	a.Participants = []domain.ParticipantLink{{Role: "customer", Party: domain.PartyRef{Kind: "customer", ID: 7}}}
	require.NoError(t, repo.Save(ctx, a))

	require.NoError(t, repo.Delete(ctx, a.Ref))
	found, err := repo.FindByRef(ctx, a.Ref)
	require.NoError(t, err)
	assert.Nil(t, found)

	err = repo.Delete(ctx, a.Ref)
	assert.ErrorIs(t, err, persistence.ErrActivityNotFound)
}

func TestActivityRepository_Names(t *testing.T) {
	ctx := context.Background()
	repo, conn := setupRepo(t)
	customer := domain.PartyRef{Kind: "customer", ID: 7}

	name, err := repo.ParticipantName(ctx, customer)
	require.NoError(t, err)
	assert.Empty(t, name)

	require.NoError(t, repo.SaveParty(ctx, customer, "Ada"))
	require.NoError(t, repo.SaveParty(ctx, customer, "Ada Lovelace"))
	name, err = repo.ParticipantName(ctx, customer)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", name)

	assert.ErrorIs(t, repo.SaveStatus(ctx, "", "Nope"), persistence.ErrMissingCode)
	require.NoError(t, repo.SaveStatus(ctx, "NS", "No show"))
	status, err := repo.StatusName(ctx, "NS")
	require.NoError(t, err)
	assert.Equal(t, "No show", status)

	status, err = repo.StatusName(ctx, "XX")
	require.NoError(t, err)
	assert.Empty(t, status)

	t.Run("status changes are queued in the outbox", func(t *testing.T) {
		pending, err := outbox.NewSQLRepository(conn).GetUnpublished(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, domain.RoutingKeyStatusChanged, pending[0].RoutingKey)

		var envelope eventbus.ConsumedEvent
		require.NoError(t, json.Unmarshal(pending[0].Body, &envelope))
		var payload struct {
			Table string `json:"table"`
			Code  string `json:"code"`
			Name  string `json:"name"`
		}
		require.NoError(t, json.Unmarshal(envelope.Payload, &payload))
		assert.Equal(t, "status", payload.Table)
		assert.Equal(t, "NS", payload.Code)
		assert.Equal(t, "No show", payload.Name)
	})
}

// recordingListener records the hook sequence and whether each hook ran
// inside the store transaction.
type recordingListener struct {
	mu       sync.Mutex
	calls    []string
	inTx     map[string]bool
	preErr   error
	lastSeen *domain.Activity
}

func newRecordingListener() *recordingListener {
	return &recordingListener{inTx: make(map[string]bool)}
}

func (l *recordingListener) record(ctx context.Context, name string, a *domain.Activity) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, name)
	l.inTx[name] = database.TxFromContext(ctx) != nil
	l.lastSeen = a
}

func (l *recordingListener) PreSave(ctx context.Context, a *domain.Activity) error {
	l.record(ctx, "PreSave", a)
	return l.preErr
}

func (l *recordingListener) Saved(ctx context.Context, a *domain.Activity) error {
	l.record(ctx, "Saved", a)
	return nil
}

func (l *recordingListener) PreRemove(ctx context.Context, a *domain.Activity) error {
	l.record(ctx, "PreRemove", a)
	return l.preErr
}

func (l *recordingListener) Removed(ctx context.Context, a *domain.Activity) error {
	l.record(ctx, "Removed", a)
	return nil
}

func (l *recordingListener) RolledBack(ctx context.Context, a *domain.Activity) {
	l.record(ctx, "RolledBack", a)
}

func TestActivityRepository_ListenerLifecycle(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepo(t)
	listener := newRecordingListener()
	other := newRecordingListener()
	repo.Subscribe(domain.ActivityKindAppointment, listener)
	repo.Subscribe(domain.ActivityKindTask, other)

	a := appointment(schedS, at("2024-01-10", 9, 0), at("2024-01-10", 10, 0))
	require.NoError(t, repo.Save(ctx, a))
	require.NoError(t, repo.Delete(ctx, a.Ref))

	assert.Equal(t, []string{"PreSave", "Saved", "PreRemove", "Removed"}, listener.calls)
	assert.True(t, listener.inTx["PreSave"])
	assert.True(t, listener.inTx["PreRemove"])
	assert.False(t, listener.inTx["Saved"], "post hooks run after commit")
	assert.False(t, listener.inTx["Removed"], "post hooks run after commit")
	assert.Empty(t, other.calls, "listeners only see their activity kind")
}

func TestActivityRepository_PreHookFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepo(t)
	listener := newRecordingListener()
	listener.preErr = errors.New("snapshot failed")
	repo.Subscribe(domain.ActivityKindAppointment, listener)

	a := appointment(schedS, at("2024-01-10", 9, 0), at("2024-01-10", 10, 0))
	err := repo.Save(ctx, a)

	assert.ErrorIs(t, err, listener.preErr)
	assert.Equal(t, []string{"PreSave", "RolledBack"}, listener.calls)
	assert.False(t, a.Ref.IsPersisted())

	found, err := repo.FindInRange(ctx, schedS, at("2024-01-10", 0, 0), at("2024-01-11", 0, 0))
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestActivityRepository_OuterUnitOfWork(t *testing.T) {
	ctx := context.Background()
	repo, conn := setupRepo(t)
	listener := newRecordingListener()
	repo.Subscribe(domain.ActivityKindAppointment, listener)
	uow := database.NewUnitOfWork(conn)

	t.Run("post hooks wait for the outer commit", func(t *testing.T) {
		a := appointment(schedS, at("2024-01-10", 9, 0), at("2024-01-10", 10, 0))
		err := uow.Do(ctx, func(ctx context.Context) error {
			require.NoError(t, repo.Save(ctx, a))
			assert.Equal(t, []string{"PreSave"}, listener.calls)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"PreSave", "Saved"}, listener.calls)
	})

	t.Run("outer rollback reaches the listener", func(t *testing.T) {
		listener.calls = nil
		b := appointment(schedS, at("2024-01-10", 12, 0), at("2024-01-10", 13, 0))
		boom := errors.New("later step failed")
		err := uow.Do(ctx, func(ctx context.Context) error {
			require.NoError(t, repo.Save(ctx, b))
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, []string{"PreSave", "RolledBack"}, listener.calls)
		assert.False(t, b.Ref.IsPersisted())
	})
}

// cachedStore wires the repository to a live cache the way the application
// container does.
func cachedStore(t *testing.T) (*persistence.ActivityRepository, *eventcache.Cache, database.Connection) {
	t.Helper()
	repo, conn := setupRepo(t)
	assembler := services.NewEventAssembler(repo, nil)
	cache := eventcache.New(repo, assembler, eventcache.Config{Location: time.UTC})
	listener := subscribers.NewChangeListener(cache, cache.Pending(), repo, assembler, nil, nil)
	repo.Subscribe(domain.ActivityKindAppointment, listener)
	return repo, cache, conn
}

func cachedIDs(t *testing.T, cache *eventcache.Cache, schedule domain.ScheduleRef, day string) []int64 {
	t.Helper()
	d, err := domain.ParseDate(day)
	require.NoError(t, err)
	events, err := cache.Events(context.Background(), schedule, d)
	require.NoError(t, err)
	ids := make([]int64, len(events))
	for i, ev := range events {
		ids[i] = ev.Ref.ID
	}
	return ids
}

func TestActivityRepository_KeepsCacheCoherent(t *testing.T) {
	ctx := context.Background()
	repo, cache, _ := cachedStore(t)
	require.NoError(t, repo.SaveStatus(ctx, "BK", "Booked"))

	a := appointment(schedS, at("2024-01-10", 9, 0), at("2024-01-10", 10, 0))
	require.NoError(t, repo.Save(ctx, a))

	// warm both schedules
	assert.Equal(t, []int64{a.Ref.ID}, cachedIDs(t, cache, schedS, "2024-01-10"))
	assert.Empty(t, cachedIDs(t, cache, schedS2, "2024-01-10"))

	t.Run("move to another schedule", func(t *testing.T) {
		a.Schedule = schedS2
		require.NoError(t, repo.Save(ctx, a))

		assert.Empty(t, cachedIDs(t, cache, schedS, "2024-01-10"))
		assert.Equal(t, []int64{a.Ref.ID}, cachedIDs(t, cache, schedS2, "2024-01-10"))
		assert.Zero(t, cache.Stats().Pending)

		day, err := domain.ParseDate("2024-01-10")
		require.NoError(t, err)
		events, err := cache.Events(ctx, schedS2, day)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "Booked", events[0].StatusName)
	})

	t.Run("rolled back move leaves buckets alone", func(t *testing.T) {
		listenerErr := errors.New("veto")
		veto := newRecordingListener()
		veto.preErr = listenerErr
		repo.Subscribe(domain.ActivityKindAppointment, veto)

		moved := *a
		moved.Schedule = schedS
		err := repo.Save(ctx, &moved)
		assert.ErrorIs(t, err, listenerErr)

		assert.Empty(t, cachedIDs(t, cache, schedS, "2024-01-10"))
		assert.Equal(t, []int64{a.Ref.ID}, cachedIDs(t, cache, schedS2, "2024-01-10"))
		assert.Zero(t, cache.Stats().Pending)
	})
}

func TestActivityRepository_RepeatedWritesInOneTransaction(t *testing.T) {
	ctx := context.Background()
	repo, cache, conn := cachedStore(t)
	uow := database.NewUnitOfWork(conn)
	days := []string{"2024-01-10", "2024-01-11", "2024-01-12"}

	t.Run("moved twice", func(t *testing.T) {
		a := appointment(schedS, at("2024-01-10", 9, 0), at("2024-01-10", 10, 0))
		require.NoError(t, repo.Save(ctx, a))
		for _, day := range days {
			cachedIDs(t, cache, schedS, day)
		}

		err := uow.Do(ctx, func(ctx context.Context) error {
			a.Start, a.End = at("2024-01-11", 9, 0), at("2024-01-11", 10, 0)
			if err := repo.Save(ctx, a); err != nil {
				return err
			}
			a.Start, a.End = at("2024-01-12", 9, 0), at("2024-01-12", 10, 0)
			return repo.Save(ctx, a)
		})
		require.NoError(t, err)

		assert.Empty(t, cachedIDs(t, cache, schedS, "2024-01-10"))
		assert.Empty(t, cachedIDs(t, cache, schedS, "2024-01-11"))
		assert.Equal(t, []int64{a.Ref.ID}, cachedIDs(t, cache, schedS, "2024-01-12"))
		assert.Zero(t, cache.Stats().Pending)

		require.NoError(t, repo.Delete(ctx, a.Ref))
	})

	t.Run("moved then deleted", func(t *testing.T) {
		b := appointment(schedS, at("2024-01-10", 14, 0), at("2024-01-10", 15, 0))
		require.NoError(t, repo.Save(ctx, b))
		assert.Equal(t, []int64{b.Ref.ID}, cachedIDs(t, cache, schedS, "2024-01-10"))

		err := uow.Do(ctx, func(ctx context.Context) error {
			b.Start, b.End = at("2024-01-11", 14, 0), at("2024-01-11", 15, 0)
			if err := repo.Save(ctx, b); err != nil {
				return err
			}
			return repo.Delete(ctx, b.Ref)
		})
		require.NoError(t, err)

		for _, day := range days {
			assert.Empty(t, cachedIDs(t, cache, schedS, day), day)
		}
		assert.Zero(t, cache.Stats().Pending)
	})

	t.Run("inserted then moved", func(t *testing.T) {
		c := appointment(schedS, at("2024-01-10", 16, 0), at("2024-01-10", 17, 0))
		err := uow.Do(ctx, func(ctx context.Context) error {
			if err := repo.Save(ctx, c); err != nil {
				return err
			}
			c.Start, c.End = at("2024-01-11", 16, 0), at("2024-01-11", 17, 0)
			return repo.Save(ctx, c)
		})
		require.NoError(t, err)

		assert.Empty(t, cachedIDs(t, cache, schedS, "2024-01-10"))
		assert.Equal(t, []int64{c.Ref.ID}, cachedIDs(t, cache, schedS, "2024-01-11"))
		assert.Zero(t, cache.Stats().Pending)
	})
}
