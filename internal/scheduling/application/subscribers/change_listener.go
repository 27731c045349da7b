package subscribers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/schedcache/internal/scheduling/domain"
	"github.com/felixgeelhaar/schedcache/pkg/observability"
)

// EventSink receives post-commit bucket updates.
type EventSink interface {
	AddEvent(ev *domain.Event)
	RemoveEvent(ev *domain.Event)
}

// OriginalTracker holds pre-mutation projections for in-flight writes.
type OriginalTracker interface {
	Stash(original *domain.Event) bool
	Has(ref domain.EventRef) bool
	Take(ref domain.EventRef) (*domain.Event, bool)
	Discard(ref domain.EventRef)
	Len() int
}

// Assembler builds projections from activities.
type Assembler interface {
	Assemble(ctx context.Context, activity *domain.Activity) *domain.Event
}

// ChangeListener keeps the event cache in step with the store's write
// lifecycle. Buckets are only touched after commit; the pre hooks only
// snapshot the persisted state so the post hooks can find the buckets an
// activity lived in before it was changed.
type ChangeListener struct {
	sink      EventSink
	pending   OriginalTracker
	reader    domain.ActivityReader
	assembler Assembler
	logger    *slog.Logger
	metrics   observability.Metrics
}

var _ domain.ChangeListener = (*ChangeListener)(nil)

// NewChangeListener creates a new change listener.
func NewChangeListener(
	sink EventSink,
	pending OriginalTracker,
	reader domain.ActivityReader,
	assembler Assembler,
	logger *slog.Logger,
	metrics observability.Metrics,
) *ChangeListener {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &ChangeListener{
		sink:      sink,
		pending:   pending,
		reader:    reader,
		assembler: assembler,
		logger:    logger,
		metrics:   metrics,
	}
}

// PreSave snapshots the persisted version of activity. ctx must carry the
// store transaction so the read sees the pre-mutation row.
func (l *ChangeListener) PreSave(ctx context.Context, activity *domain.Activity) error {
	return l.stash(ctx, activity)
}

// PreRemove snapshots the persisted version of activity.
func (l *ChangeListener) PreRemove(ctx context.Context, activity *domain.Activity) error {
	return l.stash(ctx, activity)
}

// Saved moves the event out of its old buckets and into the ones its
// committed state maps to.
func (l *ChangeListener) Saved(ctx context.Context, activity *domain.Activity) error {
	if original, ok := l.pending.Take(activity.Ref); ok {
		l.sink.RemoveEvent(original)
	} else {
		l.sink.RemoveEvent(activity.Locate())
	}
	l.sink.AddEvent(l.assembler.Assemble(ctx, activity))
	l.recordPending()

	l.logger.DebugContext(ctx, "activity saved",
		"event_ref", activity.Ref.String(),
		"schedule", activity.Schedule.String(),
	)
	return nil
}

// Removed drops the event from the buckets it lived in before the
// transaction. Without a snapshot the commit-time state is used; removing
// an event that is not cached is a no-op.
func (l *ChangeListener) Removed(ctx context.Context, activity *domain.Activity) error {
	original, ok := l.pending.Take(activity.Ref)
	if !ok {
		original = activity.Locate()
	}
	l.sink.RemoveEvent(original)
	l.recordPending()

	l.logger.DebugContext(ctx, "activity removed",
		"event_ref", activity.Ref.String(),
		"schedule", original.Schedule.String(),
	)
	return nil
}

// RolledBack forgets the snapshot. Buckets were never touched.
func (l *ChangeListener) RolledBack(ctx context.Context, activity *domain.Activity) {
	l.pending.Discard(activity.Ref)
	l.recordPending()

	l.logger.DebugContext(ctx, "activity write rolled back",
		"event_ref", activity.Ref.String(),
	)
}

func (l *ChangeListener) stash(ctx context.Context, activity *domain.Activity) error {
	// New activities were never cached.
	if activity.IsNew() || l.pending.Has(activity.Ref) {
		return nil
	}

	persisted, err := l.reader.FindByRef(ctx, activity.Ref)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", activity.Ref, err)
	}
	if persisted == nil {
		return nil
	}

	l.pending.Stash(persisted.Locate())
	l.recordPending()
	return nil
}

func (l *ChangeListener) recordPending() {
	l.metrics.Gauge(observability.MetricCachePending, float64(l.pending.Len()))
}
