package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"audit-service/internal/domain/audit"
	"audit-service/internal/scoring"
)

// Phase of a session state machine.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseScanning Phase = "scanning"
	PhaseFinished Phase = "finished"
)

var (
	ErrWrongPhase  = errors.New("operation not valid in current phase")
	ErrRoomMissing = errors.New("room identifier is required")
)

// Transition reported by Tick.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionFinished
)

// LiveSession is the timed live-capture state machine:
// Idle → Scanning → Finished → Idle, re-armable. The capture pipeline runs
// on its own cadence and publishes into the snapshot slot; the only
// cross-goroutine interaction is the per-tick read of that slot.
//
// The machine is pure with respect to time: callers supply now, so timeout
// behavior is fully testable without sleeping.
type LiveSession struct {
	mu sync.Mutex

	ID       uuid.UUID
	Building string
	Room     string

	phase     Phase
	startedAt time.Time
	duration  time.Duration

	agg  *scoring.Aggregator
	slot *SnapshotSlot

	lastAnnotated []byte
}

func NewLiveSession(building, room string, duration time.Duration) *LiveSession {
	return &LiveSession{
		ID:       uuid.New(),
		Building: building,
		Room:     room,
		phase:    PhaseIdle,
		duration: duration,
		agg:      scoring.NewAggregator(),
		slot:     NewSnapshotSlot(),
	}
}

// Slot exposes the snapshot slot for the capture pipeline to write into.
func (s *LiveSession) Slot() *SnapshotSlot {
	return s.slot
}

// Start arms the session. The aggregate is unconditionally reset on every
// start, never partially reused from a previous run.
func (s *LiveSession) Start(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseIdle {
		return fmt.Errorf("%w: cannot start while %s", ErrWrongPhase, s.phase)
	}

	s.agg.Reset()
	s.slot.Clear()
	s.lastAnnotated = nil
	s.startedAt = now
	s.phase = PhaseScanning
	return nil
}

// Tick folds the latest detection snapshot into the aggregate and
// re-evaluates elapsed time. Once elapsed reaches the configured duration
// the session moves to Finished; ticks outside Scanning are no-ops.
func (s *LiveSession) Tick(now time.Time) Transition {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseScanning {
		return TransitionNone
	}

	if snap, ok := s.slot.Latest(); ok {
		s.agg.Update(snap.Counts)
		if len(snap.Annotated) > 0 {
			s.lastAnnotated = snap.Annotated
		}
	}

	if now.Sub(s.startedAt) >= s.duration {
		s.phase = PhaseFinished
		return TransitionFinished
	}
	return TransitionNone
}

func (s *LiveSession) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Elapsed reports time scanned so far, capped at the session duration.
func (s *LiveSession) Elapsed(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case PhaseScanning:
		elapsed := now.Sub(s.startedAt)
		if elapsed > s.duration {
			return s.duration
		}
		return elapsed
	case PhaseFinished:
		return s.duration
	default:
		return 0
	}
}

// Counts returns the aggregate, which is only readable while Scanning or
// Finished.
func (s *LiveSession) Counts() (audit.AggregateDefectCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseIdle {
		return nil, fmt.Errorf("%w: aggregate is not readable while idle", ErrWrongPhase)
	}
	return s.agg.Counts(), nil
}

// LastAnnotated is the most recent annotated frame seen by a tick.
func (s *LiveSession) LastAnnotated() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAnnotated
}

// Save validates the save transition and hands back the aggregate for
// persistence. An empty room blocks the transition and leaves the machine in
// Finished; the caller must invoke Rearm only after the record is durably
// stored, so a persistence failure never loses the result.
func (s *LiveSession) Save(room string) (audit.AggregateDefectCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseFinished {
		return nil, fmt.Errorf("%w: save requires a finished session", ErrWrongPhase)
	}
	if room == "" {
		room = s.Room
	}
	if room == "" {
		return nil, ErrRoomMissing
	}
	s.Room = room
	return s.agg.Counts(), nil
}

// Rearm returns a Finished session to Idle after a successful save.
func (s *LiveSession) Rearm() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseFinished {
		return fmt.Errorf("%w: rearm requires a finished session", ErrWrongPhase)
	}
	s.phase = PhaseIdle
	return nil
}

// Retry discards the aggregate without saving and returns to Idle.
func (s *LiveSession) Retry() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseFinished {
		return fmt.Errorf("%w: retry requires a finished session", ErrWrongPhase)
	}
	s.agg.Reset()
	s.slot.Clear()
	s.lastAnnotated = nil
	s.phase = PhaseIdle
	return nil
}
