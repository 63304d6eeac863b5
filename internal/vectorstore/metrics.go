package vectorstore

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const vectorstoreInstrumentationName = "github.com/fyrsmithlabs/diffscribe/internal/vectorstore"

// Metrics records store operation latency, document volume and errors.
type Metrics struct {
	meter     metric.Meter
	logger    *zap.Logger
	duration  metric.Float64Histogram
	documents metric.Int64Counter
	errors    metric.Int64Counter
}

// NewMetrics creates Metrics on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{
		meter:  otel.Meter(vectorstoreInstrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.duration, err = m.meter.Float64Histogram(
		"diffscribe.vectorstore.operation_duration_seconds",
		metric.WithDescription("Duration of vector store operations by backend and operation"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.documents, err = m.meter.Int64Counter(
		"diffscribe.vectorstore.documents_added_total",
		metric.WithDescription("Documents written to the vector store"),
		metric.WithUnit("{document}"),
	)
	if err != nil {
		m.logger.Warn("failed to create documents counter", zap.Error(err))
	}

	m.errors, err = m.meter.Int64Counter(
		"diffscribe.vectorstore.errors_total",
		metric.WithDescription("Failed vector store operations by backend and operation"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.logger.Warn("failed to create errors counter", zap.Error(err))
	}
}

// RecordOperation records one store call. documents is only counted for
// successful writes.
func (m *Metrics) RecordOperation(ctx context.Context, backend, operation, collection string, duration time.Duration, documents int, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("operation", operation),
		attribute.String("collection", collection),
	)

	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), attrs)
	}
	if err != nil {
		if m.errors != nil {
			m.errors.Add(ctx, 1, attrs)
		}
		return
	}
	if documents > 0 && m.documents != nil {
		m.documents.Add(ctx, int64(documents), attrs)
	}
}
