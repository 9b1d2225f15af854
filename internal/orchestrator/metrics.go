package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/thebtf/orion/pkg/models"
)

var (
	metricsOnce    sync.Once
	jobCounter     otelmetric.Int64Counter
	jobDuration    otelmetric.Float64Histogram
	forcesLoaded   otelmetric.Int64Counter
	metricsInitErr error
)

func initMetrics() {
	meter := otel.Meter("orion/orchestrator")
	var err error
	jobCounter, err = meter.Int64Counter("orion_clustering_jobs_total",
		otelmetric.WithDescription("Clustering jobs by terminal status and error kind"))
	if err != nil {
		metricsInitErr = err
		return
	}
	jobDuration, err = meter.Float64Histogram("orion_clustering_job_duration_seconds",
		otelmetric.WithUnit("s"))
	if err != nil {
		metricsInitErr = err
		return
	}
	forcesLoaded, err = meter.Int64Counter("orion_clustering_forces_loaded_total")
	if err != nil {
		metricsInitErr = err
	}
}

func recordJob(ctx context.Context, status models.JobStatus, kind string, elapsed time.Duration) {
	metricsOnce.Do(initMetrics)
	if metricsInitErr != nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("status", string(status)),
		attribute.String("error_kind", kind),
	)
	jobCounter.Add(ctx, 1, attrs)
	jobDuration.Record(ctx, elapsed.Seconds(), attrs)
}

func recordForcesLoaded(ctx context.Context, n int) {
	metricsOnce.Do(initMetrics)
	if metricsInitErr != nil || n == 0 {
		return
	}
	forcesLoaded.Add(ctx, int64(n))
}
