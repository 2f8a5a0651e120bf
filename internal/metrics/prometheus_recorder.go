package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "checkcode"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	reg           *prom.Registry
	stageDuration *prom.HistogramVec
	runDuration   prom.Histogram
	runOutcome    *prom.CounterVec
	taskDuration  *prom.HistogramVec
	taskResults   *prom.CounterVec
	skipped       prom.Counter
	workers       prom.Gauge
}

// NewPrometheusRecorder constructs the metrics and registers them with reg,
// or with a fresh registry when reg is nil.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{reg: reg}
	pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "stage_duration_seconds",
		Help:      "Duration of pipeline stages",
		Buckets:   prom.DefBuckets,
	}, []string{"stage"})
	pr.runDuration = prom.NewHistogram(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Total run duration",
		Buckets:   prom.DefBuckets,
	})
	pr.runOutcome = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "run_outcomes_total",
		Help:      "Runs by final outcome",
	}, []string{"outcome"})
	pr.taskDuration = prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Duration of individual compiler invocations",
		Buckets:   prom.ExponentialBuckets(0.01, 2, 12),
	}, []string{"language"})
	pr.taskResults = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_results_total",
		Help:      "Compiler invocations by language and result kind",
	}, []string{"language", "kind"})
	pr.skipped = prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_skipped_total",
		Help:      "Tasks left undispatched after a fail-fast stop or cancellation",
	})
	pr.workers = prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "workers",
		Help:      "Worker count of the last run",
	})
	reg.MustRegister(pr.stageDuration, pr.runDuration, pr.runOutcome, pr.taskDuration, pr.taskResults, pr.skipped, pr.workers)
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncRunOutcome(outcome Outcome) {
	if p == nil {
		return
	}
	p.runOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) ObserveTaskDuration(language string, d time.Duration) {
	if p == nil {
		return
	}
	p.taskDuration.WithLabelValues(language).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncTaskResult(language, kind string) {
	if p == nil {
		return
	}
	p.taskResults.WithLabelValues(language, kind).Inc()
}

func (p *PrometheusRecorder) AddSkippedTasks(n int) {
	if p == nil || n <= 0 {
		return
	}
	p.skipped.Add(float64(n))
}

func (p *PrometheusRecorder) SetWorkers(n int) {
	if p == nil {
		return
	}
	p.workers.Set(float64(n))
}

// Registry returns the registry the metrics are registered with.
func (p *PrometheusRecorder) Registry() *prom.Registry {
	return p.reg
}

// WriteTextfile writes the gathered metrics in the text exposition format,
// suitable for the node_exporter textfile collector.
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create metrics directory: %w", err)
		}
	}
	if err := prom.WriteToTextfile(path, p.reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
