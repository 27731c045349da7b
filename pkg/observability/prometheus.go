package observability

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements Metrics on top of a Prometheus registry.
// Collectors are created on first use; the tag keys seen first fix the
// label set of a metric and later samples with a different key set are
// dropped.
type PrometheusMetrics struct {
	registry prometheus.Registerer

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	labels     map[string][]string
}

// NewPrometheusMetrics creates a collector registering into registry.
// A nil registry uses prometheus.DefaultRegisterer.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	return &PrometheusMetrics{
		registry:   registry,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		labels:     make(map[string][]string),
	}
}

func (m *PrometheusMetrics) Counter(name string, value int64, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys, values, ok := m.labelValues(name, tags)
	if !ok {
		return
	}
	vec, found := m.counters[name]
	if !found {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: promName(name) + "_total",
			Help: "Counter " + name,
		}, keys)
		if err := m.registry.Register(vec); err != nil {
			return
		}
		m.counters[name] = vec
	}
	vec.WithLabelValues(values...).Add(float64(value))
}

func (m *PrometheusMetrics) Gauge(name string, value float64, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys, values, ok := m.labelValues(name, tags)
	if !ok {
		return
	}
	vec, found := m.gauges[name]
	if !found {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: promName(name),
			Help: "Gauge " + name,
		}, keys)
		if err := m.registry.Register(vec); err != nil {
			return
		}
		m.gauges[name] = vec
	}
	vec.WithLabelValues(values...).Set(value)
}

// Timing records duration in seconds on a histogram named name+"_seconds".
func (m *PrometheusMetrics) Timing(name string, duration time.Duration, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observe(name+".seconds", duration.Seconds(), tags)
}

func (m *PrometheusMetrics) observe(name string, value float64, tags []Tag) {
	keys, values, ok := m.labelValues(name, tags)
	if !ok {
		return
	}
	vec, found := m.histograms[name]
	if !found {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    promName(name),
			Help:    "Histogram " + name,
			Buckets: prometheus.DefBuckets,
		}, keys)
		if err := m.registry.Register(vec); err != nil {
			return
		}
		m.histograms[name] = vec
	}
	vec.WithLabelValues(values...).Observe(value)
}

// labelValues returns tag keys and values in the order fixed for name.
// Callers hold m.mu.
func (m *PrometheusMetrics) labelValues(name string, tags []Tag) ([]string, []string, bool) {
	byKey := make(map[string]string, len(tags))
	keys := make([]string, 0, len(tags))
	for _, t := range tags {
		k := promName(t.Key)
		if _, dup := byKey[k]; !dup {
			keys = append(keys, k)
		}
		byKey[k] = t.Value
	}
	slices.Sort(keys)

	fixed, seen := m.labels[name]
	if !seen {
		m.labels[name] = keys
		fixed = keys
	} else if !slices.Equal(fixed, keys) {
		return nil, nil, false
	}

	values := make([]string, len(fixed))
	for i, k := range fixed {
		values[i] = byKey[k]
	}
	return fixed, values, true
}

func promName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
