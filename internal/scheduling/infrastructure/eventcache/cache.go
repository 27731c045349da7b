// Package eventcache implements the write-through, per-day bucketed cache of
// event projections.
//
// Buckets are only ever mutated by post-commit notifications (AddEvent and
// RemoveEvent) or replaced wholesale by a miss fill, so a rolled back
// transaction never needs to undo anything here.
package eventcache

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/schedcache/internal/scheduling/domain"
	"github.com/felixgeelhaar/schedcache/pkg/observability"
)

// Assembler turns a raw activity into a projection.
type Assembler interface {
	Assemble(ctx context.Context, activity *domain.Activity) *domain.Event
}

// Config configures a Cache.
type Config struct {
	// Location defines calendar-day boundaries. Defaults to UTC.
	Location *time.Location
	Logger   *slog.Logger
	Metrics  observability.Metrics
}

// Stats is a point-in-time view of cache counters.
type Stats struct {
	Buckets int   `json:"buckets"`
	Pending int   `json:"pending"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Clears  int64 `json:"clears"`
}

// Cache is the schedule event cache. It is safe for concurrent use; build
// one with New and drop the reference to tear it down.
type Cache struct {
	table     *BucketTable
	pending   *PendingOriginals
	reader    domain.ActivityReader
	assembler Assembler
	loc       *time.Location
	logger    *slog.Logger
	metrics   observability.Metrics

	// fills keeps a miss fill racing a commit from installing a bucket that
	// predates it.
	fills *fillTracker

	hits   atomic.Int64
	misses atomic.Int64
	clears atomic.Int64
}

// New creates an empty cache reading misses through reader.
func New(reader domain.ActivityReader, assembler Assembler, cfg Config) *Cache {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NoopMetrics{}
	}
	return &Cache{
		table:     NewBucketTable(),
		pending:   NewPendingOriginals(),
		fills:     newFillTracker(),
		reader:    reader,
		assembler: assembler,
		loc:       cfg.Location,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
}

// Pending returns the tracker of pre-mutation originals.
func (c *Cache) Pending() *PendingOriginals { return c.pending }

// Location returns the zone used for day boundaries.
func (c *Cache) Location() *time.Location { return c.loc }

// AddEvent inserts ev into every cached bucket it occupies. Buckets that
// are not cached are left alone; the next read loads them from the store,
// which already holds the committed change.
func (c *Cache) AddEvent(ev *domain.Event) {
	for _, day := range ev.Days(c.loc) {
		key := DayKey{Schedule: ev.Schedule, Day: day}
		c.fills.touch(key)
		if bucket, ok := c.table.Get(key); ok {
			bucket.Upsert(ev)
		}
	}
	c.logger.Debug("event cached",
		"event_ref", ev.Ref.String(),
		"schedule", ev.Schedule.String(),
	)
}

// RemoveEvent removes ev from every bucket it occupies. Removing an event
// that is not cached is a no-op.
func (c *Cache) RemoveEvent(ev *domain.Event) {
	removed := 0
	for _, day := range ev.Days(c.loc) {
		key := DayKey{Schedule: ev.Schedule, Day: day}
		c.fills.touch(key)
		if bucket, ok := c.table.Get(key); ok && bucket.Remove(ev.Ref) {
			removed++
		}
	}
	c.logger.Debug("event evicted",
		"event_ref", ev.Ref.String(),
		"schedule", ev.Schedule.String(),
		"buckets", removed,
	)
}

// Events returns the events of schedule on day, loading the day from the
// store on a miss. Store errors are returned and nothing is cached.
func (c *Cache) Events(ctx context.Context, schedule domain.ScheduleRef, day domain.Date) ([]*domain.Event, error) {
	bucket, err := c.bucket(ctx, DayKey{Schedule: schedule, Day: day})
	if err != nil {
		return nil, err
	}
	return bucket.Snapshot(), nil
}

// EventsOn is Events for the calendar day containing t.
func (c *Cache) EventsOn(ctx context.Context, schedule domain.ScheduleRef, t time.Time) ([]*domain.Event, error) {
	return c.Events(ctx, schedule, domain.DateOf(t, c.loc))
}

// EventsInRange returns the events of schedule whose interval intersects
// [from, to], ordered by start time then id.
//
// Days are scanned in ascending order starting the day before from, so
// single-day events running over midnight are found. Once an event starts
// after to, no later day can hold an earlier start and the scan stops.
func (c *Cache) EventsInRange(ctx context.Context, schedule domain.ScheduleRef, from, to time.Time) ([]*domain.Event, error) {
	if to.Before(from) {
		return nil, domain.ErrInvalidTimeRange
	}

	first := domain.DateOf(from, c.loc).AddDays(-1)
	last := domain.DateOf(to, c.loc)

	result := make([]*domain.Event, 0)
	seen := make(map[domain.EventRef]struct{})

scan:
	for day := first; !day.After(last); day = day.AddDays(1) {
		events, err := c.Events(ctx, schedule, day)
		if err != nil {
			return nil, err
		}
		for _, ev := range events {
			if ev.Start.After(to) {
				break scan
			}
			if !ev.Intersects(from, to) {
				continue
			}
			if _, dup := seen[ev.Ref]; dup {
				continue
			}
			seen[ev.Ref] = struct{}{}
			result = append(result, ev)
		}
	}

	slices.SortFunc(result, domain.CompareEvents)
	return result, nil
}

// Clear drops every bucket. It is used when a lookup table the projections
// depend on changes.
func (c *Cache) Clear() {
	c.fills.touchAll()
	c.table.RemoveAll()
	c.clears.Add(1)
	c.metrics.Counter(observability.MetricCacheClears, 1)
	c.metrics.Gauge(observability.MetricCacheBuckets, 0)
	c.logger.Info("event cache cleared")
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Buckets: c.table.Len(),
		Pending: c.pending.Len(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Clears:  c.clears.Load(),
	}
}

func (c *Cache) bucket(ctx context.Context, key DayKey) (*DayBucket, error) {
	if bucket, ok := c.table.Get(key); ok {
		c.hits.Add(1)
		c.metrics.Counter(observability.MetricCacheHits, 1)
		return bucket, nil
	}
	c.misses.Add(1)
	c.metrics.Counter(observability.MetricCacheMisses, 1)

	ticket := c.fills.begin(key)
	defer c.fills.end(ticket)

	timer := observability.StartTimer(c.metrics, observability.MetricCacheFillDuration,
		observability.T("schedule_kind", key.Schedule.Kind))
	activities, err := c.reader.FindInRange(ctx, key.Schedule, key.Day.Start(c.loc), key.Day.End(c.loc))
	timer.Stop(err)
	if err != nil {
		c.metrics.Counter(observability.MetricCacheFillErrors, 1)
		c.logger.Warn("event cache fill failed",
			"schedule", key.Schedule.String(),
			"day", key.Day.String(),
			"error", err,
		)
		return nil, fmt.Errorf("load events for %s on %s: %w", key.Schedule, key.Day, err)
	}

	events := make([]*domain.Event, 0, len(activities))
	for _, activity := range activities {
		ev := c.assembler.Assemble(ctx, activity)
		if !occupies(ev, key.Day, c.loc) {
			continue
		}
		events = append(events, ev)
	}

	bucket := NewDayBucket(events)
	c.table.Put(key, bucket)
	if c.fills.stale(ticket) {
		// A commit touched this day while we were loading it. Serve what we
		// read but let the next reader load again.
		c.table.RemoveIf(key, bucket)
	}
	c.metrics.Gauge(observability.MetricCacheBuckets, float64(c.table.Len()))

	c.logger.Debug("event cache filled",
		"schedule", key.Schedule.String(),
		"day", key.Day.String(),
		"events", len(events),
	)
	return bucket, nil
}

func occupies(ev *domain.Event, day domain.Date, loc *time.Location) bool {
	first := domain.DateOf(ev.Start, loc)
	if !ev.MultiDay {
		return first == day
	}
	last := domain.DateOf(ev.EffectiveEnd(), loc)
	return !day.Before(first) && !day.After(last)
}
