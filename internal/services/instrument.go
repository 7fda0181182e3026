package services

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("bankledger/internal/services")

// MetricsRecorder is satisfied by observability.Metrics.
type MetricsRecorder interface {
	ObserveOperation(operation string, d time.Duration, err error)
	RecordCompensation(outcome string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveOperation(string, time.Duration, error) {}
func (nopMetrics) RecordCompensation(string)                     {}

// startOperation opens a span named after the operation. The returned func
// ends it and records the outcome; call it with the operation's final error.
func startOperation(ctx context.Context, metrics MetricsRecorder, operation string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, operation, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		metrics.ObserveOperation(operation, time.Since(start), err)
	}
}
