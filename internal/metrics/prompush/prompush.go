// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package. A batch run has no scrape window, so metrics are pushed
// once at the end of the run by metrics.Flush.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"marketetl/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend. The job label is the
// Pushgateway grouping key, so it is not repeated on each series.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string
	reg        *prometheus.Registry

	stepCounter   *prometheus.CounterVec
	stepDuration  *prometheus.SummaryVec
	recordCounter *prometheus.CounterVec
	sourceCounter *prometheus.CounterVec
	partCounter   *prometheus.CounterVec
}

// NewBackend constructs a Pushgateway backend. jobName defaults to
// "marketetl".
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "marketetl"
	}

	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        prometheus.NewRegistry(),
		stepCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "Pipeline step executions by step and status.",
		}, []string{"step", "status"}),
		stepDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       metrics.StepDurationSeconds,
			Help:       "Duration of pipeline steps in seconds.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{"step", "status"}),
		recordCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RecordsTotal,
			Help: "Record-level counts by kind (lines, parsed, kind_dropped, written, ...).",
		}, []string{"kind"}),
		sourceCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.SourcesTotal,
			Help: "Sources by terminal state (contributed, skipped, failed).",
		}, []string{"state"}),
		partCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.PartitionRowsTotal,
			Help: "Rows written per output partition.",
		}, []string{"partition"}),
	}

	for name, c := range map[string]prometheus.Collector{
		"step counter":      b.stepCounter,
		"step summary":      b.stepDuration,
		"record counter":    b.recordCounter,
		"source counter":    b.sourceCounter,
		"partition counter": b.partCounter,
	} {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
	}
	return b, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.StepTotal:
		b.stepCounter.WithLabelValues(labels["step"], labels["status"]).Add(delta)
	case metrics.RecordsTotal:
		b.recordCounter.WithLabelValues(labels["kind"]).Add(delta)
	case metrics.SourcesTotal:
		b.sourceCounter.WithLabelValues(labels["state"]).Add(delta)
	case metrics.PartitionRowsTotal:
		b.partCounter.WithLabelValues(labels["partition"]).Add(delta)
	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StepDurationSeconds {
		return
	}
	b.stepDuration.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway, replacing the
// previous push for the job.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
