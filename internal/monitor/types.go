// Package monitor defines the core types and interfaces for the directory
// health monitor: probe results, alerts, and the contracts between the
// scheduler, the probe engine, and the sinks that consume alerts.
package monitor

import (
	"time"
)

// DefaultUserAgent is sent on every outbound probe so directories see a
// realistic browser rather than a default Go client string.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// AccessStatus describes the outcome of an accessibility check.
type AccessStatus string

const (
	AccessPending AccessStatus = "pending"
	Accessible    AccessStatus = "accessible"
	Inaccessible  AccessStatus = "inaccessible"
	AccessError   AccessStatus = "error"
)

// RiskLevel buckets the anti-bot score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// AccessibilityResult reports whether the directory responded at all.
// HTTP-level failure (4xx/5xx) is data, not an error: Err is set only for
// transport problems (timeout, DNS, refused connections).
type AccessibilityResult struct {
	Status       AccessStatus
	HTTPStatus   int
	ResponseTime time.Duration
	Redirected   bool
	FinalURL     string
	Err          string
}

// Success reports whether the probe counts as a success for the rolling
// error window: reachable and a 2xx/3xx status.
func (r AccessibilityResult) Success() bool {
	return r.Status == Accessible && r.HTTPStatus >= 200 && r.HTTPStatus < 400
}

// FormInfo captures the submission-relevant shape of one form element.
type FormInfo struct {
	Action     string
	Method     string
	FieldCount int
}

// FieldProbe records how a single catalog selector resolved against the page.
type FieldProbe struct {
	SelectorValid bool
	ElementCount  int
	ElementTags   []string
}

// StructureResult is the output of form-structure analysis for one page.
type StructureResult struct {
	Status string // "ok" or "failed"
	Err    string

	FormCount int
	Forms     []FormInfo
	Fields    map[string]FieldProbe

	// Multi-step hints: wizard markers, step datasets, next/continue submit
	// buttons. Purely informational for the submission pipeline.
	MultiStepLikely  bool
	MultiStepSignals []string
}

// OK reports whether the page was fetched and parsed.
func (r StructureResult) OK() bool { return r.Status == "ok" }

// Signal is one anti-bot evidence item.
type Signal struct {
	Category string
	Evidence string
}

// AntiBotResult aggregates the weighted anti-bot signal scan.
type AntiBotResult struct {
	Detected  bool
	RiskLevel RiskLevel
	Score     int
	Signals   []Signal
}

// SelectorResult summarizes selector validation across the field mapping.
type SelectorResult struct {
	Accuracy   float64
	ValidCount int
	TotalCount int

	// ConfigIssue marks an empty or syntactically broken field mapping: the
	// catalog entry needs fixing, the target site did not change.
	ConfigIssue bool
}

// ProbeResult is one full round of the four checks against a directory.
type ProbeResult struct {
	DirectoryID string
	StartedAt   time.Time

	Accessibility AccessibilityResult
	Structure     StructureResult
	AntiBot       AntiBotResult
	Selectors     SelectorResult

	// PageBody holds the sanitized submission-page HTML for archiving.
	PageBody []byte

	// Fingerprint is a digest of the form structure, used for cheap
	// did-anything-change comparisons and archive object naming.
	Fingerprint string
}

// Severity orders alerts from informational to page-someone.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AlertType identifies a class of alert; one alert of each type may be
// active per directory at a time.
type AlertType string

const (
	AlertSlowResponse     AlertType = "slow_response"
	AlertHighErrorRate    AlertType = "high_error_rate"
	AlertSelectorAccuracy AlertType = "selector_accuracy"
	AlertStructuralChange AlertType = "structural_change"
	AlertAntiBot          AlertType = "anti_bot"
	AlertConfigIssue      AlertType = "config_issue"
)

// Alert is the only user-visible failure signal the monitor produces.
type Alert struct {
	ID          string         `json:"id"`
	DirectoryID string         `json:"directory_id"`
	Type        AlertType      `json:"type"`
	Severity    Severity       `json:"severity"`
	Message     string         `json:"message"`
	FirstSeenAt time.Time      `json:"first_seen_at"`
	LastSeenAt  time.Time      `json:"last_seen_at"`
	Context     map[string]any `json:"context,omitempty"`
}
