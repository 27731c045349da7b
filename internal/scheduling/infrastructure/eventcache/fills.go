package eventcache

import "sync"

// fillTracker counts writes to keys that have a miss fill in flight. A fill
// that saw a write while it was loading must not keep the bucket it built.
// Keys are only tracked between begin and end, so the tracker is empty
// whenever no fill is running.
type fillTracker struct {
	mu     sync.Mutex
	active map[DayKey]*fillState
}

type fillState struct {
	fills  int
	writes uint64
}

// fillTicket is what begin hands to a fill.
type fillTicket struct {
	key    DayKey
	state  *fillState
	writes uint64
}

func newFillTracker() *fillTracker {
	return &fillTracker{active: make(map[DayKey]*fillState)}
}

func (t *fillTracker) begin(key DayKey) fillTicket {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.active[key]
	if !ok {
		state = &fillState{}
		t.active[key] = state
	}
	state.fills++
	return fillTicket{key: key, state: state, writes: state.writes}
}

// stale reports whether a write reached the ticket's key after begin.
func (t *fillTracker) stale(ticket fillTicket) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return ticket.state.writes != ticket.writes
}

func (t *fillTracker) end(ticket fillTicket) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ticket.state.fills--
	if ticket.state.fills == 0 {
		delete(t.active, ticket.key)
	}
}

// touch records a write to key. Keys without a fill in flight are ignored.
func (t *fillTracker) touch(key DayKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if state, ok := t.active[key]; ok {
		state.writes++
	}
}

// touchAll records a write to every key with a fill in flight.
func (t *fillTracker) touchAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, state := range t.active {
		state.writes++
	}
}

func (t *fillTracker) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}
