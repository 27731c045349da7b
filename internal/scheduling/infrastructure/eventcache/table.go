package eventcache

import (
	"sync"
	"sync/atomic"

	"github.com/felixgeelhaar/schedcache/internal/scheduling/domain"
)

// DayKey identifies a bucket: one schedule on one calendar day.
type DayKey struct {
	Schedule domain.ScheduleRef
	Day      domain.Date
}

// BucketTable maps DayKeys to buckets without a table-wide lock.
type BucketTable struct {
	buckets sync.Map // DayKey -> *DayBucket
	size    atomic.Int64
}

// NewBucketTable creates an empty table.
func NewBucketTable() *BucketTable {
	return &BucketTable{}
}

// Get returns the bucket for key, if cached.
func (t *BucketTable) Get(key DayKey) (*DayBucket, bool) {
	v, ok := t.buckets.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*DayBucket), true
}

// Put installs bucket under key, replacing any previous bucket.
func (t *BucketTable) Put(key DayKey, bucket *DayBucket) {
	if _, loaded := t.buckets.Swap(key, bucket); !loaded {
		t.size.Add(1)
	}
}

// RemoveAll unlinks every bucket. Readers already holding a bucket keep
// using it; the buckets themselves are not modified.
func (t *BucketTable) RemoveAll() {
	t.buckets.Range(func(k, _ any) bool {
		if _, loaded := t.buckets.LoadAndDelete(k); loaded {
			t.size.Add(-1)
		}
		return true
	})
}

// Len returns the number of cached buckets.
func (t *BucketTable) Len() int {
	return int(t.size.Load())
}

// RemoveIf unlinks key only while it still maps to bucket.
func (t *BucketTable) RemoveIf(key DayKey, bucket *DayBucket) bool {
	if t.buckets.CompareAndDelete(key, bucket) {
		t.size.Add(-1)
		return true
	}
	return false
}
