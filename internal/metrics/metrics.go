// Package metrics provides a small, backend-agnostic abstraction for
// recording operational metrics from the pipeline.
//
// The package is intentionally minimal and opinionated:
//
//   - It exposes a narrow interface (Backend) focused on counters and timing
//     data.
//   - It provides a global, pluggable backend that defaults to a no-op
//     implementation, so metrics are always safe to call even when no real
//     backend is configured.
//   - It mirrors the storage abstraction pattern used elsewhere in the
//     project, allowing the rest of the codebase to depend only on this
//     interface while keeping concrete metric systems isolated in
//     subpackages.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
// It is intentionally generic so we can plug in Prometheus, Datadog, etc.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStage measures latency + success/failure for one pipeline stage
// (load, normalize, usage, tickets, conversion, assemble, publish).
func RecordStage(job, stage string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	lbls := Labels{
		"job":    job,
		"stage":  stage,
		"status": status,
	}

	backend.IncCounter("funnel_stage_total", 1, lbls)
	backend.ObserveHistogram("funnel_stage_duration_seconds", d.Seconds(), lbls)
}

// RecordRows increments a row-level counter for one relation and kind.
//
// Typical kinds mirror the run summary fields:
//   - "read"
//   - "skipped"  (parse failures in fail-soft relations)
//   - "orphaned" (rows excluded for referential inconsistency)
//   - "published"
func RecordRows(job, relation, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("funnel_rows_total", float64(delta), Labels{
		"job":      job,
		"relation": relation,
		"kind":     kind,
	})
}

// RecordRun increments the per-run counter with its final status.
func RecordRun(job string, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	backend.IncCounter("funnel_runs_total", 1, Labels{"job": job, "status": status})
}
