// Package metrics records operational metrics for an ingestion run behind a
// small backend-agnostic interface.
//
// A no-op backend is installed by default, so instrumentation is always safe
// to call. Concrete systems live in subpackages (prompush, datadog) and are
// installed once at startup with SetBackend.
package metrics

import (
	"sync"
	"time"
)

// Metric names shared by all backends.
const (
	StepTotal           = "marketetl_step_total"
	StepDurationSeconds = "marketetl_step_duration_seconds"
	RecordsTotal        = "marketetl_records_total"
	SourcesTotal        = "marketetl_sources_total"
	PartitionRowsTotal  = "marketetl_partition_rows_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStep counts one execution of a pipeline step and records its
// duration, labelled with success or failure.
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"job": job, "step": step, "status": status}

	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDurationSeconds, d.Seconds(), lbls)
}

// RecordRow adds delta to the record counter for kind. Kinds used by the
// pipeline: lines, parsed, structure_errors, coercion_errors, kind_dropped,
// written.
func RecordRow(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RecordsTotal, float64(delta), Labels{"job": job, "kind": kind})
}

// RecordSource counts a source reaching a terminal state (contributed,
// skipped, failed).
func RecordSource(job, state string) {
	current().IncCounter(SourcesTotal, 1, Labels{"job": job, "state": state})
}

// RecordPartition counts rows written to one output partition.
func RecordPartition(job, partition string, rows int64) {
	if rows <= 0 {
		return
	}
	current().IncCounter(PartitionRowsTotal, float64(rows), Labels{"job": job, "partition": partition})
}
