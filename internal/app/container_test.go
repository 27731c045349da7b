package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/schedcache/internal/scheduling/application/queries"
	"github.com/felixgeelhaar/schedcache/internal/scheduling/domain"
	"github.com/felixgeelhaar/schedcache/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/schedcache/pkg/config"
	"github.com/felixgeelhaar/schedcache/pkg/observability"
)

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:               "test",
		LogLevel:             "error",
		LocalMode:            true,
		DatabaseDriver:       "sqlite",
		SQLitePath:           ":memory:",
		CacheTimezone:        "UTC",
		StoreBreakerEnabled:  true,
		StoreBreakerFailures: 3,
		StoreBreakerTimeout:  time.Second,
	}
}

func newTestContainer(t *testing.T, cfg *config.Config) *Container {
	t.Helper()
	c, err := NewContainer(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestNewContainer_LocalMode(t *testing.T) {
	c := newTestContainer(t, testConfig())

	assert.Equal(t, database.DriverSQLite, c.DBDriver)
	assert.Nil(t, c.RedisClient)
	assert.Nil(t, c.NameCache)
	assert.Nil(t, c.EventConsumer)
	assert.NotNil(t, c.EventBus)
	assert.NotNil(t, c.Breaker)
	// one registration per lookup routing key
	assert.Equal(t, 1, c.EventBus.Registry().ConsumerCount())
	assert.Equal(t, []string{
		domain.RoutingKeyReasonChanged,
		domain.RoutingKeyStatusChanged,
	}, c.EventBus.Registry().RoutingKeys())

	health := c.Health.GetOverallHealth(context.Background())
	assert.Equal(t, observability.HealthStatusHealthy, health.Status)
	assert.Contains(t, health.Checks, "database")
	assert.Contains(t, health.Checks, "event_cache")
}

func TestNewContainer_BreakerDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.StoreBreakerEnabled = false

	c := newTestContainer(t, cfg)
	assert.Nil(t, c.Breaker)
	assert.NotContains(t, c.CacheDetails(), "breaker")
}

func TestNewContainer_InvalidTimezone(t *testing.T) {
	cfg := testConfig()
	cfg.CacheTimezone = "Mars/Olympus"

	_, err := NewContainer(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestNewContainer_RedisFallbackInDevelopment(t *testing.T) {
	cfg := testConfig()
	cfg.AppEnv = "development"
	cfg.RedisURL = "not a url"

	c := newTestContainer(t, cfg)
	assert.Nil(t, c.RedisClient)
}

func TestNewContainer_RedisRequiredOutsideDevelopment(t *testing.T) {
	cfg := testConfig()
	cfg.AppEnv = "production"
	cfg.RedisURL = "not a url"

	_, err := NewContainer(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "Redis")
}

func TestContainer_StatusChangeReachesCache(t *testing.T) {
	ctx := context.Background()
	c := newTestContainer(t, testConfig())

	schedule := domain.NewScheduleRef("provider", 1)
	day, err := domain.ParseDate("2024-03-04")
	require.NoError(t, err)

	require.NoError(t, c.ActivityRepo.SaveStatus(ctx, "BK", "Booked"))
	require.NoError(t, c.ActivityRepo.Save(ctx, &domain.Activity{
		Ref:      domain.NewEventRef(domain.ActivityKindAppointment, 0),
		Schedule: schedule,
		Start:    day.Start(time.UTC).Add(9 * time.Hour),
		End:      day.Start(time.UTC).Add(10 * time.Hour),
		Status:   "BK",
	}))

	get := func() []queries.EventDTO {
		t.Helper()
		events, err := c.GetEventsHandler.Handle(ctx, queries.GetEventsQuery{Schedule: schedule, Day: &day})
		require.NoError(t, err)
		return events
	}

	events := get()
	require.Len(t, events, 1)
	assert.Equal(t, "Booked", events[0].StatusName)
	assert.Equal(t, 1, c.Cache.Stats().Buckets)

	// The rename reaches the cache once the outbox is drained.
	require.NoError(t, c.ActivityRepo.SaveStatus(ctx, "BK", "Confirmed"))
	assert.Equal(t, "Booked", get()[0].StatusName)

	published, err := c.OutboxProcessor.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, published)
	assert.Equal(t, 0, c.Cache.Stats().Buckets)

	events = get()
	require.Len(t, events, 1)
	assert.Equal(t, "Confirmed", events[0].StatusName)
}

func TestContainer_WritesUpdateCachedBuckets(t *testing.T) {
	ctx := context.Background()
	c := newTestContainer(t, testConfig())

	schedule := domain.NewScheduleRef("provider", 9)
	day, err := domain.ParseDate("2024-03-05")
	require.NoError(t, err)
	dayStart := day.Start(time.UTC)

	window, err := domain.NewTimeWindow(8*time.Hour, 12*time.Hour)
	require.NoError(t, err)
	slots, err := c.FindFreeSlotsHandler.Handle(ctx, queries.FindFreeSlotsQuery{
		Schedules:   []domain.ScheduleRef{schedule},
		From:        dayStart,
		To:          dayStart.Add(24*time.Hour - time.Millisecond),
		Window:      &window,
		MinDuration: 30 * time.Minute,
	})
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, 240, slots[0].DurationMin)

	task := &domain.Activity{
		Ref:      domain.NewEventRef(domain.ActivityKindTask, 0),
		Schedule: schedule,
		Start:    dayStart.Add(9 * time.Hour),
		End:      dayStart.Add(10 * time.Hour),
	}
	require.NoError(t, c.ActivityRepo.Save(ctx, task))
	assert.Equal(t, 0, c.Cache.Pending().Len())

	overlap, err := c.CheckOverlapHandler.Handle(ctx, queries.CheckOverlapQuery{
		Schedule: schedule,
		Start:    dayStart.Add(9*time.Hour + 30*time.Minute),
		End:      dayStart.Add(11 * time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, overlap.Overlaps)

	require.NoError(t, c.ActivityRepo.Delete(ctx, task.Ref))
	overlap, err = c.CheckOverlapHandler.Handle(ctx, queries.CheckOverlapQuery{
		Schedule: schedule,
		Start:    dayStart.Add(9*time.Hour + 30*time.Minute),
		End:      dayStart.Add(11 * time.Hour),
	})
	require.NoError(t, err)
	assert.False(t, overlap.Overlaps)
}
