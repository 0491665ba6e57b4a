package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"audit-service/internal/domain/audit"
)

func TestLiveSessionLifecycle(t *testing.T) {
	start := time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC)
	s := NewLiveSession("FPMIPA A", "R. 304", 15*time.Second)

	require.Equal(t, PhaseIdle, s.Phase())
	_, err := s.Counts()
	require.ErrorIs(t, err, ErrWrongPhase)

	require.NoError(t, s.Start(start))
	require.Equal(t, PhaseScanning, s.Phase())

	s.Slot().Store(Snapshot{Counts: audit.FrameDefectCounts{"Retak": 2}})
	require.Equal(t, TransitionNone, s.Tick(start.Add(3*time.Second)))

	s.Slot().Store(Snapshot{Counts: audit.FrameDefectCounts{"Retak": 1, "Noda": 1}})
	require.Equal(t, TransitionNone, s.Tick(start.Add(6*time.Second)))

	counts, err := s.Counts()
	require.NoError(t, err)
	require.Equal(t, audit.AggregateDefectCounts{"Retak": 2, "Noda": 1}, counts)

	// Timeout fires exactly at the configured duration, not before.
	require.Equal(t, TransitionNone, s.Tick(start.Add(15*time.Second-time.Millisecond)))
	require.Equal(t, PhaseScanning, s.Phase())
	require.Equal(t, TransitionFinished, s.Tick(start.Add(15*time.Second)))
	require.Equal(t, PhaseFinished, s.Phase())

	// Ticks after Finished are no-ops.
	require.Equal(t, TransitionNone, s.Tick(start.Add(20*time.Second)))
}

func TestLiveSessionTimeoutIndependentOfPollInterval(t *testing.T) {
	start := time.Unix(1000, 0)
	s := NewLiveSession("b", "r", 15*time.Second)
	require.NoError(t, s.Start(start))

	// A coarse polling cadence still finishes on the first tick at or after
	// the deadline.
	for _, offset := range []time.Duration{4 * time.Second, 8 * time.Second, 12 * time.Second} {
		require.Equal(t, TransitionNone, s.Tick(start.Add(offset)))
	}
	require.Equal(t, TransitionFinished, s.Tick(start.Add(16*time.Second)))
	require.Equal(t, s.duration, s.Elapsed(start.Add(16*time.Second)))
}

func TestLiveSessionStartResetsAggregate(t *testing.T) {
	start := time.Unix(0, 0)
	s := NewLiveSession("b", "r", time.Second)
	require.NoError(t, s.Start(start))

	s.Slot().Store(Snapshot{Counts: audit.FrameDefectCounts{"Patah": 3}})
	require.Equal(t, TransitionFinished, s.Tick(start.Add(time.Second)))
	require.NoError(t, s.Retry())

	// New run: nothing from the previous session may survive.
	require.NoError(t, s.Start(start.Add(time.Minute)))
	counts, err := s.Counts()
	require.NoError(t, err)
	require.Empty(t, counts)
}

func TestLiveSessionStartOnlyFromIdle(t *testing.T) {
	s := NewLiveSession("b", "r", time.Second)
	require.NoError(t, s.Start(time.Unix(0, 0)))
	require.ErrorIs(t, s.Start(time.Unix(1, 0)), ErrWrongPhase)
}

func TestLiveSessionSaveValidation(t *testing.T) {
	start := time.Unix(0, 0)
	s := NewLiveSession("b", "", time.Second)
	require.NoError(t, s.Start(start))

	// Saving mid-scan is blocked.
	_, err := s.Save("R. 101")
	require.ErrorIs(t, err, ErrWrongPhase)

	s.Slot().Store(Snapshot{Counts: audit.FrameDefectCounts{"Bocor": 1}})
	require.Equal(t, TransitionFinished, s.Tick(start.Add(time.Second)))

	// Missing room blocks the transition and keeps the state.
	_, err = s.Save("")
	require.ErrorIs(t, err, ErrRoomMissing)
	require.Equal(t, PhaseFinished, s.Phase())

	counts, err := s.Save("R. 101")
	require.NoError(t, err)
	require.Equal(t, audit.AggregateDefectCounts{"Bocor": 1}, counts)
	require.Equal(t, "R. 101", s.Room)

	// State is only re-armed once persistence succeeded.
	require.Equal(t, PhaseFinished, s.Phase())
	require.NoError(t, s.Rearm())
	require.Equal(t, PhaseIdle, s.Phase())
}

func TestLiveSessionRetryDiscards(t *testing.T) {
	start := time.Unix(0, 0)
	s := NewLiveSession("b", "r", time.Second)
	require.NoError(t, s.Start(start))
	s.Slot().Store(Snapshot{Counts: audit.FrameDefectCounts{"Retak": 5}})
	require.Equal(t, TransitionFinished, s.Tick(start.Add(time.Second)))

	require.NoError(t, s.Retry())
	require.Equal(t, PhaseIdle, s.Phase())
	_, err := s.Counts()
	require.ErrorIs(t, err, ErrWrongPhase)
}

func TestSnapshotSlotCopyOnRead(t *testing.T) {
	slot := NewSnapshotSlot()
	_, ok := slot.Latest()
	require.False(t, ok)

	slot.Store(Snapshot{
		Detections: []audit.Detection{{Label: "Retak", Confidence: 0.9}},
		Counts:     audit.FrameDefectCounts{"Retak": 1},
	})

	snap, ok := slot.Latest()
	require.True(t, ok)
	snap.Counts["Retak"] = 99
	snap.Detections[0].Label = "mutated"

	again, ok := slot.Latest()
	require.True(t, ok)
	require.Equal(t, 1, again.Counts["Retak"])
	require.Equal(t, "Retak", again.Detections[0].Label)
}

func TestSnapshotSlotOverwrites(t *testing.T) {
	slot := NewSnapshotSlot()
	slot.Store(Snapshot{Counts: audit.FrameDefectCounts{"Retak": 1}})
	slot.Store(Snapshot{Counts: audit.FrameDefectCounts{"Noda": 4}})

	snap, ok := slot.Latest()
	require.True(t, ok)
	require.Equal(t, audit.FrameDefectCounts{"Noda": 4}, snap.Counts)
}
