package eventcache

import (
	"slices"
	"sync"

	"github.com/felixgeelhaar/schedcache/internal/scheduling/domain"
)

// DayBucket holds the projections of one schedule on one calendar day.
// All methods are safe for concurrent use; each bucket has its own lock so
// unrelated buckets never contend.
type DayBucket struct {
	mu     sync.Mutex
	events map[domain.EventRef]*domain.Event
	sorted []*domain.Event
}

// NewDayBucket creates a bucket seeded with events. The bucket stores its
// own copies.
func NewDayBucket(events []*domain.Event) *DayBucket {
	b := &DayBucket{
		events: make(map[domain.EventRef]*domain.Event, len(events)),
	}
	for _, ev := range events {
		b.events[ev.Ref] = ev.Clone()
	}
	b.sortEvents()
	return b
}

// Upsert inserts or replaces the projection for ev.Ref.
func (b *DayBucket) Upsert(ev *domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events[ev.Ref] = ev.Clone()
	b.sortEvents()
}

// Remove deletes the projection for ref, reporting whether it was present.
func (b *DayBucket) Remove(ref domain.EventRef) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.events[ref]; !ok {
		return false
	}
	delete(b.events, ref)
	b.sortEvents()
	return true
}

// Contains reports whether the bucket holds ref.
func (b *DayBucket) Contains(ref domain.EventRef) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.events[ref]
	return ok
}

// Snapshot returns copies of the bucket's events in (start, id) order.
func (b *DayBucket) Snapshot() []*domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	return domain.CloneEvents(b.sorted)
}

// Len returns the number of events in the bucket.
func (b *DayBucket) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.events)
}

// sortEvents rebuilds the ordered view. Callers hold b.mu.
func (b *DayBucket) sortEvents() {
	sorted := make([]*domain.Event, 0, len(b.events))
	for _, ev := range b.events {
		sorted = append(sorted, ev)
	}
	slices.SortFunc(sorted, domain.CompareEvents)
	b.sorted = sorted
}
