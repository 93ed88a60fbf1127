package replication

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/knots/knots/internal/telemetry"
)

// syncMetrics holds the OTel instruments for sync operations, registered
// against the global delegating provider at init time so they forward to
// the real provider once telemetry.Init runs, matching how the teacher's
// storage/dolt package registers doltMetrics.
var syncMetrics struct {
	duration metric.Float64Histogram
}

func init() {
	m := telemetry.Meter("github.com/knots/knots/replication")
	syncMetrics.duration, _ = m.Float64Histogram("knots.sync.duration",
		metric.WithDescription("Wall-clock duration of a push or pull operation"),
		metric.WithUnit("ms"),
	)
}

func recordSyncDuration(ctx context.Context, op string, start time.Time) {
	syncMetrics.duration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(attribute.String("knots.sync.op", op)))
}
