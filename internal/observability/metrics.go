package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics is a per-run registry. A batch job has no scrape endpoint, so the
// collected values are flushed once at exit to a Pushgateway and/or a
// node-exporter textfile.
type Metrics struct {
	registry      *prometheus.Registry
	runsTotal     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	rows          *prometheus.GaugeVec
	failuresTotal *prometheus.CounterVec
}

type FlushOptions struct {
	Textfile       string
	PushgatewayURL string
	JobName        string
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "statusexport_runs_total",
				Help: "Total number of export runs by final status.",
			},
			[]string{"status"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "statusexport_stage_duration_seconds",
				Help:    "Duration of each pipeline stage.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
			},
			[]string{"stage"},
		),
		rows: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "statusexport_rows",
				Help: "Row counts observed at each pipeline stage (loaded, matched, written).",
			},
			[]string{"stage"},
		),
		failuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "statusexport_stage_failures_total",
				Help: "Total number of stage failures by stage and error kind.",
			},
			[]string{"stage", "kind"},
		),
	}
	m.registry.MustRegister(m.runsTotal, m.stageDuration, m.rows, m.failuresTotal)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveStage(stage string, elapsed time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func (m *Metrics) SetRows(stage string, count int) {
	if count < 0 {
		count = 0
	}
	m.rows.WithLabelValues(stage).Set(float64(count))
}

func (m *Metrics) RecordFailure(stage, kind string) {
	m.failuresTotal.WithLabelValues(stage, kind).Inc()
}

func (m *Metrics) RecordRun(status string) {
	m.runsTotal.WithLabelValues(status).Inc()
}

// Flush writes the registry to every configured sink. Unconfigured sinks are
// skipped; a run with neither configured is a no-op.
func (m *Metrics) Flush(ctx context.Context, opts FlushOptions) error {
	if opts.Textfile != "" {
		if err := prometheus.WriteToTextfile(opts.Textfile, m.registry); err != nil {
			return fmt.Errorf("write metrics textfile %q: %w", opts.Textfile, err)
		}
	}
	if opts.PushgatewayURL != "" {
		jobName := opts.JobName
		if jobName == "" {
			jobName = "statusexport"
		}
		if err := push.New(opts.PushgatewayURL, jobName).Gatherer(m.registry).PushContext(ctx); err != nil {
			return fmt.Errorf("push metrics to %q: %w", opts.PushgatewayURL, err)
		}
	}
	return nil
}
