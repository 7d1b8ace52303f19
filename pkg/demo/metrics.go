// RequestMetrics records OTLP-exported request count and duration metrics.
// Uses the OTel Metrics API with route-template attributes to keep cardinality bounded.
package demo

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RequestMetrics records derived metrics for each observed request.
type RequestMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

// NewRequestMetrics creates a RequestMetrics backed by the given MeterProvider.
func NewRequestMetrics(mp metric.MeterProvider) (*RequestMetrics, error) {
	meter := mp.Meter("otel-sample-app")

	requests, err := meter.Int64Counter("app.requests.total",
		metric.WithDescription("Total requests received"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram("app.request.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Request duration in seconds"),
	)
	if err != nil {
		return nil, err
	}

	return &RequestMetrics{
		requests: requests,
		duration: duration,
	}, nil
}

// ObserveRequest records metrics for the completed request.
func (m *RequestMetrics) ObserveRequest(ctx context.Context, info RequestInfo) {
	m.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", info.Method),
		attribute.String("route", info.Route),
	))
	m.duration.Record(ctx, info.Duration.Seconds(), metric.WithAttributes(
		attribute.String("route", info.Route),
	))
}
