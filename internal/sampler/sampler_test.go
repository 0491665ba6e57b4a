package sampler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShouldProcessSelectsMultiplesOfSkipInterval(t *testing.T) {
	s := New(30, 5)

	selected := make([]int, 0, 10)
	for i := 1; i <= 300; i++ {
		if s.ShouldProcess(i) {
			selected = append(selected, i)
		}
	}

	require.Equal(t, []int{30, 60, 90, 120, 150, 180, 210, 240, 270, 300}, selected)
}

func TestShouldProcessRejectsZeroAndNegative(t *testing.T) {
	s := New(30, 5)
	require.False(t, s.ShouldProcess(0))
	require.False(t, s.ShouldProcess(-30))
}

func TestShouldReportProgress(t *testing.T) {
	s := New(30, 5)
	require.True(t, s.ShouldReportProgress(5))
	require.True(t, s.ShouldReportProgress(10))
	require.False(t, s.ShouldReportProgress(7))
	require.False(t, s.ShouldReportProgress(0))
}

func TestNewAppliesDefaults(t *testing.T) {
	s := New(0, 0)
	require.Equal(t, DefaultSkipInterval, s.SkipInterval())
	require.True(t, s.ShouldProcess(30))
	require.True(t, s.ShouldReportProgress(5))
}

func TestProgressOf(t *testing.T) {
	tests := []struct {
		name          string
		current       int
		total         int
		fraction      float64
		indeterminate bool
	}{
		{name: "halfway", current: 50, total: 100, fraction: 0.5},
		{name: "complete", current: 100, total: 100, fraction: 1},
		{name: "overshoot clamps to one", current: 150, total: 100, fraction: 1},
		{name: "negative clamps to zero", current: -5, total: 100, fraction: 0},
		{name: "zero total is indeterminate", current: 10, total: 0, indeterminate: true},
		{name: "unknown total is indeterminate", current: 10, total: -1, indeterminate: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ProgressOf(tt.current, tt.total)
			require.Equal(t, tt.indeterminate, p.Indeterminate)
			require.InDelta(t, tt.fraction, p.Fraction, 1e-9)
		})
	}
}
