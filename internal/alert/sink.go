package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/listforge/dirwatch/internal/monitor"
)

// LogSink writes alerts to the service log. It is the default sink and
// never fails.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink builds a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Deliver logs the alert at a level matching its severity.
func (s *LogSink) Deliver(_ context.Context, a monitor.Alert, directoryID string) error {
	fields := []zap.Field{
		zap.String("directory_id", directoryID),
		zap.String("alert_type", string(a.Type)),
		zap.String("severity", string(a.Severity)),
		zap.Time("first_seen_at", a.FirstSeenAt),
	}
	switch a.Severity {
	case monitor.SeverityCritical, monitor.SeverityHigh:
		s.logger.Error(a.Message, fields...)
	case monitor.SeverityMedium:
		s.logger.Warn(a.Message, fields...)
	default:
		s.logger.Info(a.Message, fields...)
	}
	return nil
}

// WebhookSink POSTs alerts as JSON to a configured endpoint.
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink builds a WebhookSink with its own request timeout.
func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Deliver posts the alert payload.
func (s *WebhookSink) Deliver(ctx context.Context, a monitor.Alert, directoryID string) error {
	payload, err := json.Marshal(map[string]any{
		"directory_id": directoryID,
		"alert":        a,
	})
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post alert webhook: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // response body is discarded
	if resp.StatusCode >= 300 {
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Multi fans an alert out to several sinks, applying a per-delivery timeout
// so no sink can stall the scheduler. Delivery is at-least-once: a failing
// sink is logged and skipped, never retried within the evaluation.
type Multi struct {
	sinks   []monitor.AlertSink
	timeout time.Duration
	logger  *zap.Logger
}

// NewMulti builds a fan-out sink.
func NewMulti(timeout time.Duration, logger *zap.Logger, sinks ...monitor.AlertSink) *Multi {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Multi{sinks: sinks, timeout: timeout, logger: logger}
}

// Deliver fans out to every sink sequentially. The first error is returned
// after all sinks have been attempted.
func (m *Multi) Deliver(ctx context.Context, a monitor.Alert, directoryID string) error {
	var firstErr error
	for _, sink := range m.sinks {
		deliveryCtx, cancel := context.WithTimeout(ctx, m.timeout)
		err := sink.Deliver(deliveryCtx, a, directoryID)
		cancel()
		if err != nil {
			m.logger.Warn("alert delivery failed",
				zap.String("directory_id", directoryID),
				zap.String("alert_type", string(a.Type)),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
