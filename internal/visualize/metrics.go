package visualize

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce    sync.Once
	renderCounter  otelmetric.Int64Counter
	renderDuration otelmetric.Float64Histogram
	metricsInitErr error
)

func initMetrics() {
	meter := otel.Meter("orion/visualize")
	var err error
	renderCounter, err = meter.Int64Counter("orion_layout_renders_total",
		otelmetric.WithDescription("Layout renders by view and cache outcome"))
	if err != nil {
		metricsInitErr = err
		return
	}
	renderDuration, err = meter.Float64Histogram("orion_layout_render_duration_seconds",
		otelmetric.WithUnit("s"))
	if err != nil {
		metricsInitErr = err
	}
}

func recordRender(ctx context.Context, view View, cached bool, elapsed time.Duration) {
	metricsOnce.Do(initMetrics)
	if metricsInitErr != nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("view", string(view)),
		attribute.Bool("cache_hit", cached),
	)
	renderCounter.Add(ctx, 1, attrs)
	renderDuration.Record(ctx, elapsed.Seconds(), attrs)
}
