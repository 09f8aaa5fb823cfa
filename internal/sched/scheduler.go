package sched

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/listforge/dirwatch/internal/alert"
	"github.com/listforge/dirwatch/internal/catalog"
	"github.com/listforge/dirwatch/internal/change"
	"github.com/listforge/dirwatch/internal/health"
	"github.com/listforge/dirwatch/internal/metrics"
	"github.com/listforge/dirwatch/internal/monitor"
)

// State describes the scheduler lifecycle.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateStopped State = "stopped"
)

// Config controls batch partitioning and cadence.
type Config struct {
	BatchSize     int
	BatchInterval time.Duration
	CycleInterval time.Duration
}

// Scheduler partitions the catalog into staggered batches and drives the
// probe-update-alert loop for each until stopped. All collaborators are
// injected at construction; there are no process-wide singletons.
type Scheduler struct {
	cfg      Config
	cat      *catalog.Catalog
	prober   monitor.Prober
	store    *health.Store
	policy   *alert.Policy
	sink     monitor.AlertSink
	governor *Governor
	archiver monitor.Archiver
	journal  monitor.Journal
	logger   *zap.Logger

	state atomic.Value
}

// New constructs a Scheduler. The archiver and journal are optional; a nil
// sink disables delivery entirely (alerts are still recorded).
func New(
	cfg Config,
	cat *catalog.Catalog,
	prober monitor.Prober,
	store *health.Store,
	policy *alert.Policy,
	sink monitor.AlertSink,
	governor *Governor,
	archiver monitor.Archiver,
	journal monitor.Journal,
	logger *zap.Logger,
) *Scheduler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		cfg:      cfg,
		cat:      cat,
		prober:   prober,
		store:    store,
		policy:   policy,
		sink:     sink,
		governor: governor,
		archiver: archiver,
		journal:  journal,
		logger:   logger,
	}
	s.state.Store(StateIdle)
	return s
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	return s.state.Load().(State)
}

// Run blocks until ctx is canceled. Each batch runs on its own loop: an
// initial stagger delay of index*BatchInterval, then probe/update/alert,
// then sleep for the (governor-adjusted) cycle interval.
func (s *Scheduler) Run(ctx context.Context) {
	batches := partition(s.cat.Records(), s.cfg.BatchSize)
	s.state.Store(StateRunning)
	s.logger.Info("scheduler started",
		zap.Int("directories", s.cat.Len()),
		zap.Int("batches", len(batches)),
		zap.Duration("batch_interval", s.cfg.BatchInterval),
		zap.Duration("cycle_interval", s.cfg.CycleInterval),
	)

	var wg sync.WaitGroup
	for i, batch := range batches {
		wg.Add(1)
		go func(index int, records []catalog.DirectoryRecord) {
			defer wg.Done()
			s.batchLoop(ctx, index, records)
		}(i, batch)
	}
	wg.Wait()

	s.state.Store(StateStopped)
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) batchLoop(ctx context.Context, index int, records []catalog.DirectoryRecord) {
	stagger := time.Duration(index) * s.cfg.BatchInterval
	if !sleepCtx(ctx, stagger) {
		return
	}

	for {
		elapsed := s.runBatch(ctx, index, records)
		if ctx.Err() != nil {
			return
		}
		s.governor.Record(len(records), elapsed)
		metrics.ObserveBatch(len(records), elapsed)

		interval := s.cfg.CycleInterval
		if s.governor.ShouldThrottle() {
			// Monotonic backoff, bounded: never more than double the
			// nominal cycle.
			interval = 2 * s.cfg.CycleInterval
			metrics.ObserveThrottle()
			s.logger.Warn("resource budget exceeded, doubling cycle interval",
				zap.Int("batch", index),
				zap.Duration("avg_cost_per_directory", s.governor.AverageCost()),
				zap.Duration("next_interval", interval),
			)
		}
		if !sleepCtx(ctx, interval) {
			return
		}
	}
}

// runBatch probes every directory in the batch concurrently, then merges
// results sequentially: store update, change detection, alert evaluation,
// delivery. One directory's failure never blocks its siblings.
func (s *Scheduler) runBatch(ctx context.Context, index int, records []catalog.DirectoryRecord) time.Duration {
	start := time.Now()
	s.logger.Debug("batch started", zap.Int("batch", index), zap.Int("size", len(records)))

	results := make([]monitor.ProbeResult, len(records))
	var wg sync.WaitGroup
	for i, rec := range records {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(slot int, record catalog.DirectoryRecord) {
			defer wg.Done()
			probeStart := time.Now()
			results[slot] = s.prober.Probe(ctx, record)
			metrics.ObserveProbe(string(results[slot].Accessibility.Status), time.Since(probeStart))
		}(i, rec)
	}
	wg.Wait()

	for i, rec := range records {
		if ctx.Err() != nil {
			break
		}
		if results[i].DirectoryID == "" {
			// Probe never dispatched (shutdown mid-batch).
			continue
		}
		s.applyResult(ctx, rec, results[i])
	}

	elapsed := time.Since(start)
	s.logger.Debug("batch finished", zap.Int("batch", index), zap.Duration("elapsed", elapsed))
	return elapsed
}

func (s *Scheduler) applyResult(ctx context.Context, rec catalog.DirectoryRecord, result monitor.ProbeResult) {
	pair, _ := s.store.Update(rec.ID, result)
	events := change.Detect(pair)

	snapshot, ok := s.store.Snapshot(rec.ID)
	if !ok {
		return
	}
	eval := s.policy.Evaluate(snapshot, events)
	s.store.SetAlerts(rec.ID, eval.Active)
	metrics.SetActiveAlerts(len(s.store.ActiveAlerts()))

	for _, a := range eval.Raised {
		metrics.ObserveAlertRaised(string(a.Type), string(a.Severity))
	}
	s.deliver(ctx, rec.ID, eval.Raised)

	if s.journal != nil {
		if err := s.journal.RecordProbe(ctx, result); err != nil {
			s.logger.Warn("probe journal write failed", zap.String("directory_id", rec.ID), zap.Error(err))
		}
	}
	if s.archiver != nil && len(result.PageBody) > 0 && result.Fingerprint != "" {
		if _, err := s.archiver.Archive(ctx, rec.ID, result.Fingerprint, result.PageBody); err != nil {
			s.logger.Warn("page archive failed", zap.String("directory_id", rec.ID), zap.Error(err))
		}
	}
}

// deliver hands raised alerts to the sink. Critical alerts go out
// synchronously within the evaluation; everything else is fire-and-forget.
func (s *Scheduler) deliver(ctx context.Context, directoryID string, raised []monitor.Alert) {
	if s.sink == nil {
		return
	}
	for _, a := range raised {
		if a.Severity == monitor.SeverityCritical {
			if err := s.sink.Deliver(ctx, a, directoryID); err != nil {
				metrics.ObserveAlertDeliveryFailure()
				s.logger.Error("critical alert delivery failed",
					zap.String("directory_id", directoryID),
					zap.String("alert_type", string(a.Type)),
					zap.Error(err),
				)
			}
			continue
		}
		go func(a monitor.Alert) {
			if err := s.sink.Deliver(ctx, a, directoryID); err != nil {
				metrics.ObserveAlertDeliveryFailure()
			}
		}(a)
	}
}

func partition(records []catalog.DirectoryRecord, size int) [][]catalog.DirectoryRecord {
	var batches [][]catalog.DirectoryRecord
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		batches = append(batches, records[start:end])
	}
	return batches
}

// sleepCtx waits for d or until ctx is done; it reports whether the full
// wait completed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
