package alert

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/listforge/dirwatch/internal/change"
	"github.com/listforge/dirwatch/internal/health"
	"github.com/listforge/dirwatch/internal/monitor"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func healthyRecord() health.Record {
	rec := health.Record{
		DirectoryID:      "dir-1",
		LastCheckedAt:    time.Unix(500, 0),
		Status:           monitor.Accessible,
		HTTPStatus:       200,
		ResponseTimeEMA:  800,
		SelectorAccuracy: 1,
		Selectors:        health.SelectorSnapshot{Taken: true},
	}
	for i := 0; i < 10; i++ {
		rec.Window = append(rec.Window, health.Outcome{Success: true})
	}
	return rec
}

func TestEvaluate_HealthyDirectoryRaisesNothing(t *testing.T) {
	t.Parallel()

	policy := NewPolicy(Thresholds{}, &fakeClock{now: time.Unix(1000, 0)})
	eval := policy.Evaluate(healthyRecord(), nil)

	require.Empty(t, eval.Active)
	require.Empty(t, eval.Raised)
}

func TestEvaluate_NeverProbedRaisesNothing(t *testing.T) {
	t.Parallel()

	policy := NewPolicy(Thresholds{}, &fakeClock{now: time.Unix(1000, 0)})
	eval := policy.Evaluate(health.Record{DirectoryID: "dir-1", Status: monitor.AccessPending}, nil)

	require.Empty(t, eval.Active)
}

func TestEvaluate_ErrorRateCrossesCriticalThreshold(t *testing.T) {
	t.Parallel()

	policy := NewPolicy(Thresholds{}, &fakeClock{now: time.Unix(1000, 0)})

	rec := healthyRecord()
	rec.Window = rec.Window[:0]
	for i := 0; i < 10; i++ {
		rec.Window = append(rec.Window, health.Outcome{Success: i >= 4})
	}

	eval := policy.Evaluate(rec, nil)
	require.Len(t, eval.Raised, 1)
	require.Equal(t, monitor.AlertHighErrorRate, eval.Raised[0].Type)
	require.Equal(t, monitor.SeverityCritical, eval.Raised[0].Severity)
	require.NotEmpty(t, eval.Raised[0].ID)
	require.Equal(t, time.Unix(1000, 0), eval.Raised[0].FirstSeenAt)
}

func TestEvaluate_SlowResponse(t *testing.T) {
	t.Parallel()

	policy := NewPolicy(Thresholds{}, &fakeClock{now: time.Unix(1000, 0)})
	rec := healthyRecord()
	rec.ResponseTimeEMA = 6200

	eval := policy.Evaluate(rec, nil)
	require.Len(t, eval.Raised, 1)
	require.Equal(t, monitor.AlertSlowResponse, eval.Raised[0].Type)
	require.Equal(t, monitor.SeverityMedium, eval.Raised[0].Severity)
}

func TestEvaluate_SelectorAccuracyBelowThreshold(t *testing.T) {
	t.Parallel()

	policy := NewPolicy(Thresholds{}, &fakeClock{now: time.Unix(1000, 0)})
	rec := healthyRecord()
	rec.SelectorAccuracy = 0.5

	eval := policy.Evaluate(rec, nil)
	require.Len(t, eval.Raised, 1)
	require.Equal(t, monitor.AlertSelectorAccuracy, eval.Raised[0].Type)
	require.Equal(t, monitor.SeverityHigh, eval.Raised[0].Severity)
}

func TestEvaluate_SelectorAccuracySkippedOnConfigIssue(t *testing.T) {
	t.Parallel()

	policy := NewPolicy(Thresholds{}, &fakeClock{now: time.Unix(1000, 0)})
	rec := healthyRecord()
	rec.SelectorAccuracy = 0
	rec.ConfigIssue = true

	eval := policy.Evaluate(rec, nil)
	require.Len(t, eval.Raised, 1, "a broken mapping is a config problem, not a site problem")
	require.Equal(t, monitor.AlertConfigIssue, eval.Raised[0].Type)
	require.Equal(t, monitor.SeverityLow, eval.Raised[0].Severity)
}

func TestEvaluate_StructuralChangeAndAntiBot(t *testing.T) {
	t.Parallel()

	policy := NewPolicy(Thresholds{}, &fakeClock{now: time.Unix(1000, 0)})
	rec := healthyRecord()
	rec.AntiBotDetected = true
	rec.RiskLevel = monitor.RiskHigh

	events := []change.Event{{Type: change.FormActionChanged, Detail: "form 0 action changed"}}
	eval := policy.Evaluate(rec, events)

	require.Len(t, eval.Raised, 2)
	require.Equal(t, monitor.AlertStructuralChange, eval.Raised[0].Type)
	require.Equal(t, monitor.AlertAntiBot, eval.Raised[1].Type)
	require.Equal(t, monitor.SeverityHigh, eval.Raised[1].Severity)
}

func TestEvaluate_IdempotentReRaise(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	policy := NewPolicy(Thresholds{}, clock)

	rec := healthyRecord()
	rec.ResponseTimeEMA = 7000

	first := policy.Evaluate(rec, nil)
	require.Len(t, first.Raised, 1)

	clock.advance(time.Hour)
	rec.ActiveAlerts = first.Active
	second := policy.Evaluate(rec, nil)

	require.Empty(t, second.Raised, "same condition at same severity must not re-deliver")
	require.Len(t, second.Active, 1)
	require.Equal(t, first.Active[0].ID, second.Active[0].ID)
	require.Equal(t, first.Active[0].FirstSeenAt, second.Active[0].FirstSeenAt)
	require.Equal(t, clock.Now(), second.Active[0].LastSeenAt)
}

func TestEvaluate_SeverityChangeReRaises(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	policy := NewPolicy(Thresholds{}, clock)

	rec := healthyRecord()
	rec.ResponseTimeEMA = 7000
	first := policy.Evaluate(rec, nil)
	require.Len(t, first.Active, 1)

	// Synthesize a prior evaluation that recorded the alert at a different
	// severity; a real transition would come from a threshold change.
	prior := first.Active[0]
	prior.Severity = monitor.SeverityLow
	rec.ActiveAlerts = []monitor.Alert{prior}

	clock.advance(time.Minute)
	second := policy.Evaluate(rec, nil)
	require.Len(t, second.Raised, 1, "severity transition must be delivered")
	require.Equal(t, prior.ID, second.Raised[0].ID)
	require.Equal(t, prior.FirstSeenAt, second.Raised[0].FirstSeenAt)
	require.Equal(t, monitor.SeverityMedium, second.Raised[0].Severity)
}

func TestEvaluate_ResolvedConditionClearsAlert(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	policy := NewPolicy(Thresholds{}, clock)

	rec := healthyRecord()
	rec.ResponseTimeEMA = 7000
	first := policy.Evaluate(rec, nil)
	require.Len(t, first.Active, 1)

	rec.ResponseTimeEMA = 900
	rec.ActiveAlerts = first.Active
	second := policy.Evaluate(rec, nil)
	require.Empty(t, second.Active)
	require.Empty(t, second.Raised)
}
