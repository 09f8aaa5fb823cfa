// Package change compares structural and selector snapshots and produces
// typed change events. Everything here is a pure function of its inputs.
package change

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/listforge/dirwatch/internal/health"
)

// EventType names one discrete kind of drift.
type EventType string

const (
	FormCountChanged    EventType = "form_count_changed"
	FormActionChanged   EventType = "form_action_changed"
	FormMethodChanged   EventType = "form_method_changed"
	FieldCountChanged   EventType = "field_count_changed"
	FingerprintChanged  EventType = "fingerprint_changed"
	SelectorBroken      EventType = "selector_broken"
	SelectorRecovered   EventType = "selector_recovered"
	ElementCountChanged EventType = "element_count_changed"
)

// Event is one detected difference between two snapshots.
type Event struct {
	Type   EventType `json:"type"`
	Field  string    `json:"field,omitempty"`
	Detail string    `json:"detail"`
}

// Structural reports whether any event indicates form-level drift (as
// opposed to selector-level).
func (e Event) Structural() bool {
	switch e.Type {
	case SelectorBroken, SelectorRecovered, ElementCountChanged:
		return false
	default:
		return true
	}
}

// DetectStructural compares two structural snapshots. A missing previous
// snapshot is a baseline, never a change.
func DetectStructural(prev, next health.StructuralSnapshot) []Event {
	if !prev.Taken || !next.Taken {
		return nil
	}

	var events []Event
	if prev.FormCount != next.FormCount {
		events = append(events, Event{
			Type:   FormCountChanged,
			Detail: fmt.Sprintf("form count %d -> %d", prev.FormCount, next.FormCount),
		})
	}

	aligned := len(prev.Forms)
	if len(next.Forms) < aligned {
		aligned = len(next.Forms)
	}
	for i := 0; i < aligned; i++ {
		before, after := prev.Forms[i], next.Forms[i]
		if before.Action != after.Action {
			events = append(events, Event{
				Type:   FormActionChanged,
				Detail: fmt.Sprintf("form %d action: %s", i, renderDiff(before.Action, after.Action)),
			})
		}
		if before.Method != after.Method {
			events = append(events, Event{
				Type:   FormMethodChanged,
				Detail: fmt.Sprintf("form %d method %s -> %s", i, before.Method, after.Method),
			})
		}
		if before.FieldCount != after.FieldCount {
			events = append(events, Event{
				Type:   FieldCountChanged,
				Detail: fmt.Sprintf("form %d field count %d -> %d", i, before.FieldCount, after.FieldCount),
			})
		}
	}

	if len(events) == 0 && prev.Fingerprint != next.Fingerprint {
		events = append(events, Event{
			Type:   FingerprintChanged,
			Detail: "form structure fingerprint changed",
		})
	}
	return events
}

// DetectSelectors compares per-field selector resolution. Fields present
// only in the new snapshot are a baseline, not a change.
func DetectSelectors(prev, next health.SelectorSnapshot) []Event {
	if !prev.Taken || !next.Taken {
		return nil
	}

	fields := make([]string, 0, len(prev.Fields))
	for field := range prev.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var events []Event
	for _, field := range fields {
		before := prev.Fields[field]
		after, ok := next.Fields[field]
		if !ok {
			continue
		}
		switch {
		case before.SelectorValid && !after.SelectorValid:
			events = append(events, Event{
				Type:   SelectorBroken,
				Field:  field,
				Detail: fmt.Sprintf("selector resolved %d element(s), now 0", before.ElementCount),
			})
		case !before.SelectorValid && after.SelectorValid:
			events = append(events, Event{
				Type:   SelectorRecovered,
				Field:  field,
				Detail: fmt.Sprintf("selector now resolves %d element(s)", after.ElementCount),
			})
		case before.ElementCount != after.ElementCount:
			events = append(events, Event{
				Type:   ElementCountChanged,
				Field:  field,
				Detail: fmt.Sprintf("element count %d -> %d", before.ElementCount, after.ElementCount),
			})
		}
	}
	return events
}

// Detect runs both comparisons and returns structural events first.
func Detect(pair health.SnapshotPair) []Event {
	events := DetectStructural(pair.PrevStructural, pair.NextStructural)
	return append(events, DetectSelectors(pair.PrevSelectors, pair.NextSelectors)...)
}

// renderDiff produces a compact inline diff of two attribute values for
// alert context.
func renderDiff(before, after string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)

	var b strings.Builder
	for _, d := range dmp.DiffCleanupSemantic(diffs) {
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			b.WriteString("[-" + d.Text + "]")
		case diffmatchpatch.DiffInsert:
			b.WriteString("[+" + d.Text + "]")
		default:
			b.WriteString(d.Text)
		}
	}
	return b.String()
}
