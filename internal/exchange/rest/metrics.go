package rest

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type transportMetrics struct {
	exchange string
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

func newTransportMetrics(exchange string) *transportMetrics {
	meter := otel.Meter("github.com/chia4/cex-api/rest")
	m := &transportMetrics{exchange: exchange}
	m.requests, _ = meter.Int64Counter("cex_rest_requests",
		metric.WithDescription("Exchange REST calls by outcome"),
		metric.WithUnit("{request}"))
	m.duration, _ = meter.Float64Histogram("cex_rest_duration",
		metric.WithDescription("Exchange REST call latency"),
		metric.WithUnit("ms"))
	return m
}

func (m *transportMetrics) record(ctx context.Context, method string, kind Kind, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("exchange", m.exchange),
		attribute.String("method", method),
		attribute.String("outcome", kind.String()),
	)
	if m.requests != nil {
		m.requests.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
	}
}
