// Package sched runs the monitoring loop: staggered batch scheduling,
// concurrent probe fan-out, health updates, alert evaluation, and the
// resource governor's cadence feedback.
package sched

import (
	"sync"
	"time"
)

// Governor keeps aggregate probing cost under a declared budget. It is a
// plain negative-feedback controller: when the rolling average cost per
// directory exceeds the limit, it recommends doubling the cycle interval;
// when cost normalizes, the recommendation clears on the next evaluation.
type Governor struct {
	mu         sync.Mutex
	maxCost    time.Duration
	windowSize int
	window     []time.Duration
}

// NewGovernor creates a Governor with the given per-directory cost limit
// and rolling window size.
func NewGovernor(maxCostPerDirectory time.Duration, windowSize int) *Governor {
	if windowSize <= 0 {
		windowSize = 10
	}
	return &Governor{
		maxCost:    maxCostPerDirectory,
		windowSize: windowSize,
	}
}

// Record folds one batch's amortized cost into the rolling window.
func (g *Governor) Record(batchSize int, elapsed time.Duration) {
	if batchSize <= 0 {
		return
	}
	cost := elapsed / time.Duration(batchSize)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.window = append(g.window, cost)
	if len(g.window) > g.windowSize {
		g.window = g.window[len(g.window)-g.windowSize:]
	}
}

// ShouldThrottle reports whether the rolling average cost exceeds the limit.
// It is re-evaluated every cycle, never sticky.
func (g *Governor) ShouldThrottle() bool {
	return g.AverageCost() > g.maxCost
}

// AverageCost returns the rolling average cost per directory.
func (g *Governor) AverageCost() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.window) == 0 {
		return 0
	}
	var total time.Duration
	for _, c := range g.window {
		total += c
	}
	return total / time.Duration(len(g.window))
}
