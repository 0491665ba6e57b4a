package scoring

import (
	"testing"

	"github.com/stretchr/testify/require"

	"audit-service/internal/domain/audit"
)

func TestAggregatorKeepsPerLabelMaxima(t *testing.T) {
	agg := NewAggregator()

	agg.Update(audit.FrameDefectCounts{"Retak": 1})
	agg.Update(audit.FrameDefectCounts{"Retak": 3, "Noda": 2})
	agg.Update(audit.FrameDefectCounts{"Retak": 2, "Noda": 1})

	require.Equal(t, audit.AggregateDefectCounts{"Retak": 3, "Noda": 2}, agg.Counts())
}

func TestAggregatorIsMonotonicPerLabel(t *testing.T) {
	agg := NewAggregator()

	frames := []audit.FrameDefectCounts{
		{"Bocor": 2},
		{"Bocor": 1, "Patah": 1},
		{},
		{"Bocor": 5},
		{"Patah": 0},
	}

	prev := 0
	for _, frame := range frames {
		agg.Update(frame)
		current := agg.Counts()["Bocor"]
		require.GreaterOrEqual(t, current, prev)
		prev = current
	}
	require.Equal(t, 5, prev)
}

func TestAggregatorNeverMaterializesZeroLabels(t *testing.T) {
	agg := NewAggregator()
	agg.Update(audit.FrameDefectCounts{"Retak": 1, "Goresan": 0})

	counts := agg.Counts()
	require.NotContains(t, counts, "Goresan")
	require.NotContains(t, counts, "Noda")
	require.Equal(t, 0, counts["Noda"])
}

func TestAggregatorReset(t *testing.T) {
	agg := NewAggregator()
	agg.Update(audit.FrameDefectCounts{"Retak": 4, "Patah": 2})
	require.NotEmpty(t, agg.Counts())

	agg.Reset()
	require.Empty(t, agg.Counts())

	// A reset aggregate behaves like a fresh one.
	agg.Update(audit.FrameDefectCounts{"Noda": 1})
	require.Equal(t, audit.AggregateDefectCounts{"Noda": 1}, agg.Counts())
}

func TestAggregatorCountsReturnsCopy(t *testing.T) {
	agg := NewAggregator()
	agg.Update(audit.FrameDefectCounts{"Retak": 2})

	counts := agg.Counts()
	counts["Retak"] = 99
	counts["Patah"] = 1

	require.Equal(t, audit.AggregateDefectCounts{"Retak": 2}, agg.Counts())
}
