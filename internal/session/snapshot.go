package session

import (
	"sync"
	"time"

	"audit-service/internal/domain/audit"
)

// Snapshot is the result of processing one sampled frame: the detections,
// their per-label counts, and the annotated frame for display.
type Snapshot struct {
	Detections []audit.Detection
	Counts     audit.FrameDefectCounts
	Annotated  []byte
	Taken      time.Time
}

// SnapshotSlot is a single-slot exchange between the capture goroutine and
// the session tick. The writer overwrites whatever is there; the reader gets
// a copy. Only the latest snapshot ever matters, so this is deliberately not
// a queue: intermediate frames carry no information the aggregate needs.
type SnapshotSlot struct {
	mu     sync.Mutex
	latest *Snapshot
}

func NewSnapshotSlot() *SnapshotSlot {
	return &SnapshotSlot{}
}

// Store replaces the slot contents atomically.
func (s *SnapshotSlot) Store(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = &snap
}

// Latest copies the current snapshot out under the lock, so the reader can
// never observe a partially written detection list. The second return is
// false when nothing has been stored yet.
func (s *SnapshotSlot) Latest() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return Snapshot{}, false
	}

	out := Snapshot{
		Detections: make([]audit.Detection, len(s.latest.Detections)),
		Counts:     make(audit.FrameDefectCounts, len(s.latest.Counts)),
		Annotated:  s.latest.Annotated,
		Taken:      s.latest.Taken,
	}
	copy(out.Detections, s.latest.Detections)
	for k, v := range s.latest.Counts {
		out.Counts[k] = v
	}
	return out, true
}

// Clear empties the slot, used when a session re-arms.
func (s *SnapshotSlot) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = nil
}
