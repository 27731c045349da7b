package services

import (
	"container/heap"
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/schedcache/internal/scheduling/domain"
)

// FreeSlotQuery describes a free-slot search across schedules.
type FreeSlotQuery struct {
	Schedules   []domain.ScheduleRef
	From        time.Time
	To          time.Time
	Window      *domain.TimeWindow // optional time-of-day restriction
	MinDuration time.Duration
}

// SlotIterator yields slots in ascending order. It is not restartable;
// re-run the query to start over.
type SlotIterator interface {
	Next() (domain.Slot, bool)
}

// FreeSlotFinder merges per-schedule gap queries into one ordered stream.
type FreeSlotFinder struct {
	gaps GapSource
	loc  *time.Location
}

// NewFreeSlotFinder creates a finder. loc defines the days a time-of-day
// window is applied to; nil means UTC.
func NewFreeSlotFinder(gaps GapSource, loc *time.Location) *FreeSlotFinder {
	if loc == nil {
		loc = time.UTC
	}
	return &FreeSlotFinder{gaps: gaps, loc: loc}
}

// Find issues one gap query per schedule and returns a lazy merge of the
// results ordered by start time, then schedule.
func (f *FreeSlotFinder) Find(ctx context.Context, q FreeSlotQuery) (SlotIterator, error) {
	if q.To.Before(q.From) {
		return nil, domain.ErrInvalidTimeRange
	}

	sources := make([]*slotSource, 0, len(q.Schedules))
	for _, schedule := range q.Schedules {
		gaps, err := f.gaps.Gaps(ctx, schedule, q.From, q.To)
		if err != nil {
			return nil, fmt.Errorf("find gaps for %s: %w", schedule, err)
		}
		sources = append(sources, &slotSource{gaps: gaps, window: q.Window, loc: f.loc})
	}

	return newMergeIterator(sources, q.MinDuration), nil
}

// Collect drains it into a slice.
func Collect(it SlotIterator) []domain.Slot {
	slots := make([]domain.Slot, 0)
	for {
		slot, ok := it.Next()
		if !ok {
			return slots
		}
		slots = append(slots, slot)
	}
}

// slotSource yields one schedule's gaps, split per day and clipped to the
// time-of-day window when one is set.
type slotSource struct {
	gaps    []domain.Slot
	window  *domain.TimeWindow
	loc     *time.Location
	pending []domain.Slot
}

func (s *slotSource) Next() (domain.Slot, bool) {
	for len(s.pending) == 0 {
		if len(s.gaps) == 0 {
			return domain.Slot{}, false
		}
		gap := s.gaps[0]
		s.gaps = s.gaps[1:]
		if s.window == nil {
			return gap, true
		}
		s.pending = s.clip(gap)
	}
	slot := s.pending[0]
	s.pending = s.pending[1:]
	return slot, true
}

func (s *slotSource) clip(gap domain.Slot) []domain.Slot {
	var out []domain.Slot
	first := domain.DateOf(gap.Start, s.loc)
	last := domain.DateOf(gap.End, s.loc)
	for day := first; !day.After(last); day = day.AddDays(1) {
		winStart, winEnd := s.window.On(day, s.loc)
		start, end := gap.Start, gap.End
		if winStart.After(start) {
			start = winStart
		}
		if winEnd.Before(end) {
			end = winEnd
		}
		if start.Before(end) {
			out = append(out, domain.Slot{Schedule: gap.Schedule, Start: start, End: end})
		}
	}
	return out
}

// mergeIterator is a k-way merge over slot sources.
type mergeIterator struct {
	heap        slotHeap
	minDuration time.Duration
}

func newMergeIterator(sources []*slotSource, minDuration time.Duration) *mergeIterator {
	m := &mergeIterator{minDuration: minDuration}
	for _, src := range sources {
		if slot, ok := src.Next(); ok {
			m.heap = append(m.heap, heapItem{slot: slot, src: src})
		}
	}
	heap.Init(&m.heap)
	return m
}

func (m *mergeIterator) Next() (domain.Slot, bool) {
	for m.heap.Len() > 0 {
		item := m.heap[0]
		if next, ok := item.src.Next(); ok {
			m.heap[0] = heapItem{slot: next, src: item.src}
			heap.Fix(&m.heap, 0)
		} else {
			heap.Pop(&m.heap)
		}
		if item.slot.Duration() < m.minDuration {
			continue
		}
		return item.slot, true
	}
	return domain.Slot{}, false
}

type heapItem struct {
	slot domain.Slot
	src  *slotSource
}

type slotHeap []heapItem

func (h slotHeap) Len() int           { return len(h) }
func (h slotHeap) Less(i, j int) bool { return domain.SlotLess(h[i].slot, h[j].slot) }
func (h slotHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *slotHeap) Push(x any) { *h = append(*h, x.(heapItem)) }

func (h *slotHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
