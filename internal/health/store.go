package health

import (
	"sort"
	"sync"

	"github.com/listforge/dirwatch/internal/catalog"
	"github.com/listforge/dirwatch/internal/monitor"
)

// Aggregate is the catalog-wide rollup served by the reporting API.
type Aggregate struct {
	TotalDirectories    int     `json:"total_directories"`
	HealthyCount        int     `json:"healthy_count"`
	AvgResponseTimeMs   float64 `json:"avg_response_time_ms"`
	AvgSuccessRate      float64 `json:"avg_success_rate"`
	AvgSelectorAccuracy float64 `json:"avg_selector_accuracy"`
	ActiveAlertCount    int     `json:"active_alert_count"`
}

// SnapshotPair carries the before/after structural state of one update so the
// caller can run change detection. The store records; it never decides alerts.
type SnapshotPair struct {
	PrevStructural StructuralSnapshot
	PrevSelectors  SelectorSnapshot
	NextStructural StructuralSnapshot
	NextSelectors  SelectorSnapshot
}

// Store maps directory id to health record. Updates come from exactly one
// goroutine (the scheduler); the mutex exists only so the reporting API can
// read concurrently with those updates.
type Store struct {
	mu      sync.RWMutex
	records map[string]*Record
	order   []string
	clock   monitor.Clock
}

// NewStore creates a Store with a pending record per catalog entry, so every
// directory is reportable before its first probe.
func NewStore(cat *catalog.Catalog, clock monitor.Clock) *Store {
	s := &Store{
		records: make(map[string]*Record, cat.Len()),
		order:   make([]string, 0, cat.Len()),
		clock:   clock,
	}
	for _, rec := range cat.Records() {
		s.records[rec.ID] = &Record{DirectoryID: rec.ID, Status: monitor.AccessPending}
		s.order = append(s.order, rec.ID)
	}
	return s
}

// Update merges a probe result into the directory's record and returns the
// snapshot pair for change detection. Must only be called from the scheduler
// goroutine; concurrent Update calls for the same id would violate the
// single-writer contract.
func (s *Store) Update(id string, result monitor.ProbeResult) (SnapshotPair, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		// Lazily created for ids outside the initial catalog load.
		rec = &Record{DirectoryID: id, Status: monitor.AccessPending}
		s.records[id] = rec
		s.order = append(s.order, id)
	}

	pair := SnapshotPair{
		PrevStructural: rec.Structural,
		PrevSelectors:  rec.Selectors,
	}

	rec.LastCheckedAt = s.clock.Now()
	rec.Status = result.Accessibility.Status
	rec.HTTPStatus = result.Accessibility.HTTPStatus
	if result.Accessibility.ResponseTime > 0 {
		rec.observeLatency(float64(result.Accessibility.ResponseTime.Milliseconds()))
	}
	rec.pushOutcome(Outcome{
		At:      rec.LastCheckedAt,
		Success: result.Accessibility.Success(),
		Err:     result.Accessibility.Err,
	})

	if result.Structure.OK() {
		rec.Structural = StructuralSnapshot{
			Taken:       true,
			FormCount:   result.Structure.FormCount,
			Forms:       append([]monitor.FormInfo(nil), result.Structure.Forms...),
			Fingerprint: result.Fingerprint,
		}
		fields := make(map[string]monitor.FieldProbe, len(result.Structure.Fields))
		for k, v := range result.Structure.Fields {
			fields[k] = v
		}
		rec.Selectors = SelectorSnapshot{Taken: true, Fields: fields}
	}
	// Accuracy is only meaningful when the page was actually analyzed; a
	// failed fetch keeps the last known value instead of zeroing it.
	if result.Structure.OK() {
		rec.SelectorAccuracy = result.Selectors.Accuracy
	}
	rec.ConfigIssue = result.Selectors.ConfigIssue
	rec.AntiBotDetected = result.AntiBot.Detected
	rec.RiskLevel = result.AntiBot.RiskLevel

	pair.NextStructural = rec.Structural
	pair.NextSelectors = rec.Selectors
	return pair, true
}

// SetAlerts replaces the directory's active alert list after a policy
// evaluation. Scheduler-only, like Update.
func (s *Store) SetAlerts(id string, alerts []monitor.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[id]; ok {
		rec.ActiveAlerts = append([]monitor.Alert(nil), alerts...)
	}
}

// Snapshot returns a deep copy of one record.
func (s *Store) Snapshot(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// All returns deep copies of every record in catalog order.
func (s *Store) All() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id].clone())
	}
	return out
}

// ActiveAlerts returns every active alert across the catalog, ordered by
// directory then type.
func (s *Store) ActiveAlerts() []monitor.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []monitor.Alert
	for _, id := range s.order {
		out = append(out, s.records[id].ActiveAlerts...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DirectoryID != out[j].DirectoryID {
			return out[i].DirectoryID < out[j].DirectoryID
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// Aggregate computes the catalog-wide status rollup. Directories never
// probed contribute to totals but not to the averages.
func (s *Store) Aggregate() Aggregate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agg := Aggregate{TotalDirectories: len(s.order)}
	checked := 0
	for _, id := range s.order {
		rec := s.records[id]
		agg.ActiveAlertCount += len(rec.ActiveAlerts)
		if !rec.Checked() {
			continue
		}
		checked++
		agg.AvgResponseTimeMs += rec.ResponseTimeEMA
		agg.AvgSuccessRate += rec.SuccessRate()
		agg.AvgSelectorAccuracy += rec.SelectorAccuracy
		if rec.Status == monitor.Accessible && len(rec.ActiveAlerts) == 0 {
			agg.HealthyCount++
		}
	}
	if checked > 0 {
		agg.AvgResponseTimeMs /= float64(checked)
		agg.AvgSuccessRate /= float64(checked)
		agg.AvgSelectorAccuracy /= float64(checked)
	}
	return agg
}
