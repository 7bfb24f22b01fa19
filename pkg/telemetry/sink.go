// Package telemetry defines the counter/histogram/gauge sink the core
// ingestion components emit events through. The HTTP exposition format
// (Prometheus, via pkg/telemetry/prom) is an injected implementation; the
// core never imports it directly.
package telemetry

// Sink is the event emitter injected into the client, orchestrator,
// backfill engine, and scheduler. All methods must be safe for concurrent
// use, since fanned-out zone fetches emit events from multiple goroutines.
type Sink interface {
	// IncCounter increments a named counter by one, with optional label
	// pairs supplied as alternating key/value strings (label1, value1,
	// label2, value2, ...).
	IncCounter(name string, labels ...string)

	// ObserveHistogram records a single observation (typically a duration
	// in seconds) against a named histogram.
	ObserveHistogram(name string, value float64, labels ...string)

	// SetGauge sets a named gauge to an absolute value.
	SetGauge(name string, value float64, labels ...string)
}

// Noop is a Sink that discards every event. Useful as a default so callers
// never need a nil check.
type Noop struct{}

func (Noop) IncCounter(string, ...string)             {}
func (Noop) ObserveHistogram(string, float64, ...string) {}
func (Noop) SetGauge(string, float64, ...string)      {}
