// Package health maintains the per-directory rolling health state: last
// probe outcome, bounded error history, smoothed latency, and structural
// snapshots used for change detection.
package health

import (
	"time"

	"github.com/listforge/dirwatch/internal/monitor"
)

// WindowCapacity bounds the rolling error history per directory.
const WindowCapacity = 10

// emaOldShare is the weight kept from the previous smoothed latency; the
// remainder goes to the newest sample.
const emaOldShare = 0.2

// Outcome is one entry in the rolling error window.
type Outcome struct {
	At      time.Time `json:"at"`
	Success bool      `json:"success"`
	Err     string    `json:"err,omitempty"`
}

// StructuralSnapshot is the last known form structure of a directory.
type StructuralSnapshot struct {
	Taken       bool               `json:"taken"`
	FormCount   int                `json:"form_count"`
	Forms       []monitor.FormInfo `json:"forms"`
	Fingerprint string             `json:"fingerprint"`
}

// SelectorSnapshot is the last known per-field selector resolution.
type SelectorSnapshot struct {
	Taken  bool                          `json:"taken"`
	Fields map[string]monitor.FieldProbe `json:"fields"`
}

// Record is the full health state for one directory. It is owned by the
// scheduler goroutine; everything handed out of the store is a deep copy.
type Record struct {
	DirectoryID     string               `json:"directory_id"`
	LastCheckedAt   time.Time            `json:"last_checked_at"`
	Status          monitor.AccessStatus `json:"status"`
	HTTPStatus      int                  `json:"http_status"`
	ResponseTimeEMA float64              `json:"response_time_ema_ms"`

	Window []Outcome `json:"error_window"`

	Structural       StructuralSnapshot `json:"structural_snapshot"`
	Selectors        SelectorSnapshot   `json:"selector_snapshot"`
	SelectorAccuracy float64            `json:"selector_accuracy"`
	ConfigIssue      bool               `json:"config_issue"`

	AntiBotDetected bool              `json:"anti_bot_detected"`
	RiskLevel       monitor.RiskLevel `json:"risk_level"`

	ActiveAlerts []monitor.Alert `json:"active_alerts"`
}

// SuccessRate returns successes over the filled portion of the window, or 1
// when the directory has never been probed.
func (r *Record) SuccessRate() float64 {
	if len(r.Window) == 0 {
		return 1
	}
	successes := 0
	for _, o := range r.Window {
		if o.Success {
			successes++
		}
	}
	return float64(successes) / float64(len(r.Window))
}

// Checked reports whether the directory has been probed at least once.
func (r *Record) Checked() bool {
	return !r.LastCheckedAt.IsZero()
}

// pushOutcome appends to the window, evicting the oldest entry on overflow.
func (r *Record) pushOutcome(o Outcome) {
	r.Window = append(r.Window, o)
	if len(r.Window) > WindowCapacity {
		r.Window = r.Window[len(r.Window)-WindowCapacity:]
	}
}

// observeLatency folds a new latency sample into the EMA. The first sample
// seeds the average directly so early readings are not dragged toward zero.
func (r *Record) observeLatency(ms float64) {
	if r.ResponseTimeEMA == 0 {
		r.ResponseTimeEMA = ms
		return
	}
	r.ResponseTimeEMA = emaOldShare*r.ResponseTimeEMA + (1-emaOldShare)*ms
}

func (r *Record) clone() Record {
	out := *r
	out.Window = append([]Outcome(nil), r.Window...)
	out.Structural.Forms = append([]monitor.FormInfo(nil), r.Structural.Forms...)
	if r.Selectors.Fields != nil {
		fields := make(map[string]monitor.FieldProbe, len(r.Selectors.Fields))
		for k, v := range r.Selectors.Fields {
			fields[k] = v
		}
		out.Selectors.Fields = fields
	}
	out.ActiveAlerts = append([]monitor.Alert(nil), r.ActiveAlerts...)
	return out
}
