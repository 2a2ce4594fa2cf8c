package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "harmonie"

// Metrics holds the Prometheus counters, histograms, and gauges for a run.
type Metrics struct {
	FilesProcessed  prometheus.Counter
	RecordsAppended *prometheus.CounterVec // labels: stream={primary,wind}
	RuleFailures    *prometheus.CounterVec // labels: rule
	PipelineState   prometheus.Gauge

	// External tool metrics.
	ToolInvocations *prometheus.CounterVec   // labels: tool, outcome={success,failure,timeout}
	ToolDuration    *prometheus.HistogramVec // labels: tool

	// Publishing metrics.
	Slices             *prometheus.CounterVec // labels: outcome={published,failed,skipped}
	ArtifactsPublished prometheus.Counter
	RunDuration        prometheus.Histogram
	LastSuccess        prometheus.Gauge

	registry *prometheus.Registry
}

func newMetrics() *Metrics {
	return &Metrics{
		FilesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_processed_total",
			Help:      "Forecast files fully processed and removed.",
		}),
		RecordsAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_appended_total",
			Help:      "Records appended to output streams.",
		}, []string{"stream"}),
		RuleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_failures_total",
			Help:      "Product rules that failed to select or transform a record.",
		}, []string{"rule"}),
		PipelineState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_state",
			Help:      "Current batch driver state (0 idle, 1 validating, 2 processing, 3 finalizing, 4 done, 5 aborted).",
		}),
		ToolInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_invocations_total",
			Help:      "External tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "External tool wall time per attempt.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"tool"}),
		Slices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slices_total",
			Help:      "Region slices by outcome.",
		}, []string{"outcome"}),
		ArtifactsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_published_total",
			Help:      "Compressed product files published.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete run from validation to publish.",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 1800},
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.FilesProcessed,
		m.RecordsAppended,
		m.RuleFailures,
		m.PipelineState,
		m.ToolInvocations,
		m.ToolDuration,
		m.Slices,
		m.ArtifactsPublished,
		m.RunDuration,
		m.LastSuccess,
	}
}

// NewMetrics creates all pipeline metrics on a registry of their own. Only
// these collectors are scraped or pushed; the Go runtime and process
// collectors of the default registry are left out.
func NewMetrics() *Metrics {
	m := newMetrics()
	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(m.collectors()...)
	return m
}

// Gatherer returns the registry the metrics were registered with.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Push sends the current metric values to a Prometheus Pushgateway, grouped
// by run label. Batch runs exit before a scrape would see them.
func (m *Metrics) Push(ctx context.Context, url, job, runLabel string) error {
	p := push.New(url, job).Gatherer(m.Gatherer())
	if runLabel != "" {
		p = p.Grouping("run", runLabel)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
