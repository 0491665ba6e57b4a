package scoring

import (
	"sync"

	"audit-service/internal/domain/audit"
)

// Aggregator keeps the per-label maximum count seen in any single processed
// frame during one session. A max-over-frames policy models the worst
// observed damage per class, so the same physical defect seen in many
// sampled frames is not double-counted.
//
// Safe for concurrent use: in live mode the capture goroutine and the
// session ticker touch the same aggregate.
type Aggregator struct {
	mu     sync.Mutex
	counts audit.AggregateDefectCounts
}

func NewAggregator() *Aggregator {
	return &Aggregator{counts: make(audit.AggregateDefectCounts)}
}

// Reset clears the aggregate. Called exactly once at session start.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counts = make(audit.AggregateDefectCounts)
}

// Update folds one frame's counts into the aggregate. Per-label values are
// monotonically non-decreasing until the next Reset. Labels not present in
// the frame stay untouched; labels never seen are never materialized at zero.
func (a *Aggregator) Update(frame audit.FrameDefectCounts) {
	if len(frame) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for label, count := range frame {
		if count > a.counts[label] {
			a.counts[label] = count
		}
	}
}

// Counts returns a copy of the current aggregate.
func (a *Aggregator) Counts() audit.AggregateDefectCounts {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counts.Clone()
}
