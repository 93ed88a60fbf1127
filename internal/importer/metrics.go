package importer

import (
	"context"

	"go.opentelemetry.io/otel/metric"

	"github.com/knots/knots/internal/telemetry"
)

// importMetrics holds the OTel instruments for the import pipeline,
// registered lazily against the global delegating provider the same way
// the teacher's storage/dolt package registers doltMetrics.
var importMetrics struct {
	fingerprintHits metric.Int64Counter
}

func init() {
	m := telemetry.Meter("github.com/knots/knots/importer")
	importMetrics.fingerprintHits, _ = m.Int64Counter("knots.import.fingerprint_hits",
		metric.WithDescription("Source records skipped because their fingerprint was already recorded"),
		metric.WithUnit("{record}"),
	)
}

func recordFingerprintHit(ctx context.Context) {
	importMetrics.fingerprintHits.Add(ctx, 1)
}
