// Package prom implements telemetry.Sink on top of
// github.com/prometheus/client_golang, the metrics library the corpus
// reaches for whenever a service exposes a /metrics endpoint.
package prom

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Sink is a telemetry.Sink backed by a prometheus.Registry. Metric
// vectors are created lazily on first use, keyed by name and the number
// of label pairs passed at the call site, since the core components don't
// declare their label sets up front.
type Sink struct {
	namespace string
	registry  *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
}

// New creates a Sink registered against registry under the given
// namespace (e.g. "dayahead").
func New(namespace string, registry *prometheus.Registry) *Sink {
	return &Sink{
		namespace:  namespace,
		registry:   registry,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}
}

func labelNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("label%d", i+1)
	}
	return names
}

func (s *Sink) IncCounter(name string, labels ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := vectorKey(name, len(labels)/2)
	vec, ok := s.counters[key]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: s.namespace,
			Name:      name,
		}, labelNames(len(labels)/2))
		s.registry.MustRegister(vec)
		s.counters[key] = vec
	}
	vec.WithLabelValues(labelValues(labels)...).Inc()
}

func (s *Sink) ObserveHistogram(name string, value float64, labels ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := vectorKey(name, len(labels)/2)
	vec, ok := s.histograms[key]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: s.namespace,
			Name:      name,
			Buckets:   prometheus.DefBuckets,
		}, labelNames(len(labels)/2))
		s.registry.MustRegister(vec)
		s.histograms[key] = vec
	}
	vec.WithLabelValues(labelValues(labels)...).Observe(value)
}

func (s *Sink) SetGauge(name string, value float64, labels ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := vectorKey(name, len(labels)/2)
	vec, ok := s.gauges[key]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: s.namespace,
			Name:      name,
		}, labelNames(len(labels)/2))
		s.registry.MustRegister(vec)
		s.gauges[key] = vec
	}
	vec.WithLabelValues(labelValues(labels)...).Set(value)
}

func vectorKey(name string, labelPairs int) string {
	return fmt.Sprintf("%s/%d", name, labelPairs)
}

// labelValues extracts every other element (the values) from an alternating
// key/value slice, tolerating an odd trailing element by dropping it.
func labelValues(labels []string) []string {
	values := make([]string, 0, len(labels)/2)
	for i := 1; i < len(labels); i += 2 {
		values = append(values, labels[i])
	}
	return values
}
