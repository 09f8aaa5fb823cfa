// Package alert turns health records and change events into alerts and
// delivers them to configured sinks.
package alert

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/listforge/dirwatch/internal/change"
	"github.com/listforge/dirwatch/internal/health"
	"github.com/listforge/dirwatch/internal/monitor"
)

// Thresholds are the policy trip points. Zero values are replaced by the
// defaults at construction.
type Thresholds struct {
	ResponseTimeWarnMs   float64
	SuccessRateCritical  float64
	SelectorAccuracyWarn float64
}

// DefaultThresholds returns the stock policy configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ResponseTimeWarnMs:   5000,
		SuccessRateCritical:  0.95,
		SelectorAccuracyWarn: 0.90,
	}
}

// Policy evaluates a health record against thresholds. It is deterministic
// and side-effect free: the same record and events always produce the same
// alert set, with FirstSeenAt carried over from prior evaluations.
type Policy struct {
	thresholds Thresholds
	clock      monitor.Clock
}

// NewPolicy builds a Policy, filling unset thresholds with defaults.
func NewPolicy(t Thresholds, clock monitor.Clock) *Policy {
	d := DefaultThresholds()
	if t.ResponseTimeWarnMs <= 0 {
		t.ResponseTimeWarnMs = d.ResponseTimeWarnMs
	}
	if t.SuccessRateCritical <= 0 {
		t.SuccessRateCritical = d.SuccessRateCritical
	}
	if t.SelectorAccuracyWarn <= 0 {
		t.SelectorAccuracyWarn = d.SelectorAccuracyWarn
	}
	return &Policy{thresholds: t, clock: clock}
}

// Evaluation is the outcome of one policy pass.
type Evaluation struct {
	// Active is the full replacement alert set for the record.
	Active []monitor.Alert
	// Raised holds alerts that are new or changed severity this pass and
	// therefore need delivery.
	Raised []monitor.Alert
}

// Evaluate computes the alert set for one directory. Re-raising an alert of
// the same type and severity only refreshes LastSeenAt; a severity change
// replaces the alert in place.
func (p *Policy) Evaluate(rec health.Record, events []change.Event) Evaluation {
	now := p.clock.Now()
	desired := p.desired(rec, events)

	existing := make(map[monitor.AlertType]monitor.Alert, len(rec.ActiveAlerts))
	for _, a := range rec.ActiveAlerts {
		existing[a.Type] = a
	}

	var eval Evaluation
	for _, want := range desired {
		prev, ok := existing[want.Type]
		if !ok {
			want.ID = uuid.NewString()
			want.FirstSeenAt = now
			want.LastSeenAt = now
			eval.Active = append(eval.Active, want)
			eval.Raised = append(eval.Raised, want)
			continue
		}
		want.ID = prev.ID
		want.FirstSeenAt = prev.FirstSeenAt
		if want.Severity == prev.Severity {
			// Idempotent re-raise: only the last-seen stamp moves.
			want.LastSeenAt = now
			eval.Active = append(eval.Active, want)
			continue
		}
		want.LastSeenAt = now
		eval.Active = append(eval.Active, want)
		eval.Raised = append(eval.Raised, want)
	}
	return eval
}

// desired lists the alerts the record warrants right now, without identity
// or timestamps. Order is fixed so evaluations are comparable.
func (p *Policy) desired(rec health.Record, events []change.Event) []monitor.Alert {
	var out []monitor.Alert
	add := func(t monitor.AlertType, sev monitor.Severity, msg string, ctx map[string]any) {
		out = append(out, monitor.Alert{
			DirectoryID: rec.DirectoryID,
			Type:        t,
			Severity:    sev,
			Message:     msg,
			Context:     ctx,
		})
	}

	if !rec.Checked() {
		return nil
	}

	if rate := rec.SuccessRate(); len(rec.Window) > 0 && rate < p.thresholds.SuccessRateCritical {
		add(monitor.AlertHighErrorRate, monitor.SeverityCritical,
			fmt.Sprintf("success rate %.2f below %.2f over the last %d probe(s)", rate, p.thresholds.SuccessRateCritical, len(rec.Window)),
			map[string]any{"success_rate": rate, "window": len(rec.Window)})
	}

	if rec.ResponseTimeEMA > p.thresholds.ResponseTimeWarnMs {
		add(monitor.AlertSlowResponse, monitor.SeverityMedium,
			fmt.Sprintf("smoothed response time %.0fms exceeds %.0fms", rec.ResponseTimeEMA, p.thresholds.ResponseTimeWarnMs),
			map[string]any{"response_time_ema_ms": rec.ResponseTimeEMA})
	}

	if rec.Selectors.Taken && !rec.ConfigIssue && rec.SelectorAccuracy < p.thresholds.SelectorAccuracyWarn {
		add(monitor.AlertSelectorAccuracy, monitor.SeverityHigh,
			fmt.Sprintf("selector accuracy %.2f below %.2f", rec.SelectorAccuracy, p.thresholds.SelectorAccuracyWarn),
			map[string]any{"selector_accuracy": rec.SelectorAccuracy})
	}

	if len(events) > 0 {
		details := make([]string, 0, len(events))
		for _, e := range events {
			details = append(details, string(e.Type)+": "+e.Detail)
		}
		add(monitor.AlertStructuralChange, monitor.SeverityMedium,
			fmt.Sprintf("%d change event(s) detected on submission page", len(events)),
			map[string]any{"events": details})
	}

	if rec.AntiBotDetected {
		add(monitor.AlertAntiBot, monitor.SeverityHigh,
			fmt.Sprintf("anti-bot protection detected (risk %s)", rec.RiskLevel),
			map[string]any{"risk_level": string(rec.RiskLevel)})
	}

	if rec.ConfigIssue {
		add(monitor.AlertConfigIssue, monitor.SeverityLow,
			"field mapping is empty or unusable; the catalog entry needs correction",
			nil)
	}

	return out
}
