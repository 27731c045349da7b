package eventcache

import (
	"sync"
	"sync/atomic"

	"github.com/felixgeelhaar/schedcache/internal/scheduling/domain"
)

// PendingOriginals remembers the pre-mutation projection of activities that
// are being changed by an in-flight transaction. Entries are keyed by
// EventRef and are independent of each other and of bucket locks.
type PendingOriginals struct {
	entries sync.Map // domain.EventRef -> *domain.Event
	size    atomic.Int64
}

// NewPendingOriginals creates an empty tracker.
func NewPendingOriginals() *PendingOriginals {
	return &PendingOriginals{}
}

// Stash records original for its ref unless an entry already exists. It
// reports whether the entry was stored; the first snapshot in a
// transaction wins.
func (p *PendingOriginals) Stash(original *domain.Event) bool {
	_, loaded := p.entries.LoadOrStore(original.Ref, original.Clone())
	if !loaded {
		p.size.Add(1)
	}
	return !loaded
}

// Has reports whether ref has a pending original.
func (p *PendingOriginals) Has(ref domain.EventRef) bool {
	_, ok := p.entries.Load(ref)
	return ok
}

// Take removes and returns the pending original for ref.
func (p *PendingOriginals) Take(ref domain.EventRef) (*domain.Event, bool) {
	v, ok := p.entries.LoadAndDelete(ref)
	if !ok {
		return nil, false
	}
	p.size.Add(-1)
	return v.(*domain.Event), true
}

// Discard drops the pending original for ref without returning it.
func (p *PendingOriginals) Discard(ref domain.EventRef) {
	p.Take(ref)
}

// Len returns the number of in-flight entries.
func (p *PendingOriginals) Len() int {
	return int(p.size.Load())
}
