package ingest

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Patch outcomes recorded by diffscribe_ingest_patches_total.
const (
	OutcomeIndexed   = "indexed"
	OutcomeMalformed = "malformed"
	OutcomeEmpty     = "empty"
)

// pushJob is the Pushgateway job name for ingestion runs.
const pushJob = "diffscribe_ingest"

// Metrics holds Prometheus metrics for ingestion runs.
//
// Metrics live in their own registry so a run can push exactly its own
// series to a Pushgateway.
//
// Metrics:
//   - diffscribe_ingest_patches_total{outcome} - patches processed
//   - diffscribe_ingest_documents_indexed_total - documents written to the store
//   - diffscribe_ingest_redactions_total - secrets redacted from patch content
//   - diffscribe_ingest_run_duration_seconds - wall time of a run
//   - diffscribe_ingest_last_success_timestamp_seconds - end of the last successful run
type Metrics struct {
	registry *prometheus.Registry

	PatchesTotal     *prometheus.CounterVec
	DocumentsIndexed prometheus.Counter
	RedactionsTotal  prometheus.Counter
	RunDuration      prometheus.Histogram
	LastSuccess      prometheus.Gauge
}

// NewMetrics creates ingestion metrics in a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		PatchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "diffscribe_ingest_patches_total",
				Help: "Total number of patches processed, by outcome",
			},
			[]string{"outcome"},
		),
		DocumentsIndexed: factory.NewCounter(prometheus.CounterOpts{
			Name: "diffscribe_ingest_documents_indexed_total",
			Help: "Total number of documents written to the vector store",
		}),
		RedactionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "diffscribe_ingest_redactions_total",
			Help: "Total number of secrets redacted from patch content",
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "diffscribe_ingest_run_duration_seconds",
			Help:    "Duration of ingestion runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		LastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name: "diffscribe_ingest_last_success_timestamp_seconds",
			Help: "Unix time of the last successful ingestion run",
		}),
	}
}

// Registry returns the registry holding the ingestion metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Push sends the current metric values to a Pushgateway.
func (m *Metrics) Push(ctx context.Context, url, collection string) error {
	pusher := push.New(url, pushJob).Gatherer(m.registry)
	if collection != "" {
		pusher = pusher.Grouping("collection", collection)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", url, err)
	}
	return nil
}
