package observability

import "time"

// Timer measures one operation and reports it as a Timing sample tagged
// with its outcome.
type Timer struct {
	metrics Metrics
	name    string
	tags    []Tag
	start   time.Time
}

// StartTimer starts timing the operation reported under name.
func StartTimer(metrics Metrics, name string, tags ...Tag) *Timer {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Timer{metrics: metrics, name: name, tags: tags, start: time.Now()}
}

// Elapsed returns the time since the timer started.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// Stop records the elapsed time with outcome "ok", or "error" when err is
// non-nil, and returns it.
func (t *Timer) Stop(err error) time.Duration {
	elapsed := t.Elapsed()
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	tags := append(append(make([]Tag, 0, len(t.tags)+1), t.tags...), T("outcome", outcome))
	t.metrics.Timing(t.name, elapsed, tags...)
	return elapsed
}
