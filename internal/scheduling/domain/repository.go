package domain

import (
	"context"
	"time"
)

// ActivityReader is the read side of the backing store used on cache misses
// and to snapshot pre-mutation state.
type ActivityReader interface {
	// FindInRange returns the activities on a schedule whose interval
	// intersects [from, to], ordered by start time.
	FindInRange(ctx context.Context, schedule ScheduleRef, from, to time.Time) ([]*Activity, error)

	// FindByRef returns the persisted version of an activity, or nil when it
	// does not exist.
	FindByRef(ctx context.Context, ref EventRef) (*Activity, error)
}

// NameResolver resolves display names for projections. Resolution is best
// effort; an empty name with a nil error means "unknown".
type NameResolver interface {
	ParticipantName(ctx context.Context, party PartyRef) (string, error)
	StatusName(ctx context.Context, code string) (string, error)
}

// ChangeListener receives the lifecycle notifications of a transactional
// write. Pre hooks run inside the transaction before the mutation is
// written; Saved and Removed run after commit; RolledBack runs instead of
// them when the transaction aborts.
type ChangeListener interface {
	PreSave(ctx context.Context, activity *Activity) error
	Saved(ctx context.Context, activity *Activity) error
	PreRemove(ctx context.Context, activity *Activity) error
	Removed(ctx context.Context, activity *Activity) error
	RolledBack(ctx context.Context, activity *Activity)
}

// ChangeNotifier is implemented by stores that emit change notifications.
type ChangeNotifier interface {
	Subscribe(kind ActivityKind, listener ChangeListener)
}
