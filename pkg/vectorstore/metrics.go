package vectorstore

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const vectorstoreInstrumentationName = "github.com/fyrsmithlabs/ragstore/pkg/vectorstore"

// Metrics records per-operation latency and error counts through the global
// OpenTelemetry meter provider.
type Metrics struct {
	meter  metric.Meter
	logger *zap.Logger

	initOnce sync.Once
	duration metric.Float64Histogram
	errors   metric.Int64Counter
	added    metric.Int64Counter
}

// NewMetrics creates a Metrics bound to the global meter provider.
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
	m.initOnce.Do(func() {
		var err error

		m.duration, err = m.meter.Float64Histogram(
			"ragstore.vectorstore.operation_duration_seconds",
			metric.WithDescription("Duration of vector store operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			m.logger.Warn("failed to create duration histogram", zap.Error(err))
		}

		m.errors, err = m.meter.Int64Counter(
			"ragstore.vectorstore.errors_total",
			metric.WithDescription("Total number of failed vector store operations"),
		)
		if err != nil {
			m.logger.Warn("failed to create error counter", zap.Error(err))
		}

		m.added, err = m.meter.Int64Counter(
			"ragstore.vectorstore.documents_added_total",
			metric.WithDescription("Total number of documents submitted to a vector store"),
		)
		if err != nil {
			m.logger.Warn("failed to create documents counter", zap.Error(err))
		}
	})
}

// RecordOperation records the duration and outcome of a store operation.
func (m *Metrics) RecordOperation(ctx context.Context, backend, operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("operation", operation),
	)
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), attrs)
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}

// RecordAdded counts documents accepted by a backend.
func (m *Metrics) RecordAdded(ctx context.Context, backend string, n int) {
	if m == nil || m.added == nil || n == 0 {
		return
	}
	m.added.Add(ctx, int64(n), metric.WithAttributes(attribute.String("backend", backend)))
}
