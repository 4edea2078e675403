// Package metrics collects per-run pipeline metrics and writes them in the
// Prometheus text format, for scraping through a node exporter textfile
// collector after the batch exits.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "salesingest"

// Registry holds the metrics of one pipeline run.
type Registry struct {
	reg *prometheus.Registry

	Records       *prometheus.GaugeVec
	Rejections    *prometheus.CounterVec
	SplitRecords  prometheus.Counter
	CreatedSplits prometheus.Counter
	StageSeconds  *prometheus.GaugeVec
	RunSucceeded  prometheus.Gauge
	LastRunTime   prometheus.Gauge
}

// NewRegistry creates a registry with all pipeline metrics registered.
func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	records := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "records",
		Help:      "Records per layer and entity after the last run.",
	}, []string{"layer", "entity"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rejections_total",
		Help:      "Records quarantined in this run by entity and reason.",
	}, []string{"entity", "reason"})
	split := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "normalized_split_total",
		Help:      "Multi-valued line items replaced during normalization.",
	})
	created := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "normalized_created_total",
		Help:      "Atomic line items created during normalization.",
	})
	stageSeconds := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stage_duration_seconds",
		Help:      "Wall time of each pipeline stage.",
	}, []string{"stage"})
	succeeded := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "run_succeeded",
		Help:      "1 if the last run completed, 0 if it failed.",
	})
	lastRun := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time the last run finished.",
	})

	r.MustRegister(records, rejections, split, created, stageSeconds, succeeded, lastRun)
	return &Registry{
		reg:           r,
		Records:       records,
		Rejections:    rejections,
		SplitRecords:  split,
		CreatedSplits: created,
		StageSeconds:  stageSeconds,
		RunSucceeded:  succeeded,
		LastRunTime:   lastRun,
	}
}

// ObserveStage records how long a stage took.
func (r *Registry) ObserveStage(stage string, d time.Duration) {
	r.StageSeconds.WithLabelValues(stage).Set(d.Seconds())
}

// SetRecords sets the record count of a layer ("raw", "quarantine",
// "staging") for an entity ("header", "line_item").
func (r *Registry) SetRecords(layer, entity string, n int) {
	r.Records.WithLabelValues(layer, entity).Set(float64(n))
}

// AddRejection counts one rejected record.
func (r *Registry) AddRejection(entity, reason string) {
	r.Rejections.WithLabelValues(entity, reason).Inc()
}

// Finish marks the run outcome.
func (r *Registry) Finish(ok bool, at time.Time) {
	if ok {
		r.RunSucceeded.Set(1)
	} else {
		r.RunSucceeded.Set(0)
	}
	r.LastRunTime.Set(float64(at.Unix()))
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// WriteFile writes all metrics to path in the text exposition format.
// The file is written to a temporary name and renamed into place.
func (r *Registry) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}
