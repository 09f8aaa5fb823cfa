package monitor

import (
	"context"
	"time"

	"github.com/listforge/dirwatch/internal/catalog"
)

// Prober executes one full probe of a single directory and returns a
// structured result. Domain-expected failures (timeouts, 4xx/5xx, malformed
// HTML) live inside the result; an error return means the probe could not
// even be attempted.
type Prober interface {
	Probe(ctx context.Context, record catalog.DirectoryRecord) ProbeResult
}

// AlertSink receives alerts for delivery. Implementations own their timeout;
// the scheduler treats delivery as fire-and-forget except for critical
// severities, which are delivered synchronously within the evaluation.
type AlertSink interface {
	Deliver(ctx context.Context, alert Alert, directoryID string) error
}

// Archiver persists a captured submission page and returns its URI.
type Archiver interface {
	Archive(ctx context.Context, directoryID string, fingerprint string, html []byte) (string, error)
}

// Journal persists probe outcomes for offline analysis. Journaling is
// best-effort: a journal error is logged, never propagated into the loop.
type Journal interface {
	RecordProbe(ctx context.Context, result ProbeResult) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
