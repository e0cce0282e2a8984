package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"PageviewsETL/internal/domain"
	"PageviewsETL/internal/ports"
)

// Recorder keeps batch job metrics in a private registry.
type Recorder struct {
	registry *prometheus.Registry

	stageDuration  *prometheus.HistogramVec
	stageFailures  *prometheus.CounterVec
	lastSuccess    *prometheus.GaugeVec
	linesScanned   prometheus.Counter
	malformedLines prometheus.Counter
	matchedRecords prometheus.Counter
	rowsUpserted   prometheus.Counter
}

var _ ports.StageRecorder = (*Recorder)(nil)

// New registers every collector on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pageviews_stage_duration_seconds",
				Help:    "Wall time of each pipeline stage.",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
			},
			[]string{"stage"},
		),
		stageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pageviews_stage_failures_total",
				Help: "Stage failures by error kind.",
			},
			[]string{"stage", "kind"},
		),
		lastSuccess: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pageviews_stage_last_success_timestamp_seconds",
				Help: "Unix time of the last successful stage run.",
			},
			[]string{"stage"},
		),
		linesScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pageviews_filter_lines_total",
			Help: "Dump lines read by the filter.",
		}),
		malformedLines: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pageviews_filter_malformed_lines_total",
			Help: "Dump lines skipped as malformed.",
		}),
		matchedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pageviews_filter_matched_records_total",
			Help: "Dump lines matching a tracked company.",
		}),
		rowsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pageviews_rows_upserted_total",
			Help: "Rows reported as inserted or updated by the database.",
		}),
	}

	r.registry.MustRegister(
		r.stageDuration,
		r.stageFailures,
		r.lastSuccess,
		r.linesScanned,
		r.malformedLines,
		r.matchedRecords,
		r.rowsUpserted,
	)
	return r
}

// Registry exposes the underlying registry for gathering.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveStage records duration and outcome of one stage.
func (r *Recorder) ObserveStage(stage string, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	if err != nil {
		r.stageFailures.WithLabelValues(stage, string(domain.KindOf(err))).Inc()
		return
	}
	r.lastSuccess.WithLabelValues(stage).SetToCurrentTime()
}

// ObserveFilter adds one filter pass to the line counters.
func (r *Recorder) ObserveFilter(stats domain.FilterStats) {
	if r == nil {
		return
	}
	r.linesScanned.Add(float64(stats.Lines))
	r.malformedLines.Add(float64(stats.Malformed))
	r.matchedRecords.Add(float64(stats.Matched))
}

// ObserveLoad counts rows touched by an upsert.
func (r *Recorder) ObserveLoad(rows int64) {
	if r == nil {
		return
	}
	r.rowsUpserted.Add(float64(rows))
}

// WriteTextfile dumps the registry in the node-exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
