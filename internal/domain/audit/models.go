package audit

import (
	"time"

	"github.com/google/uuid"
)

// BoundingBox locates a detection within a frame. Coordinates are
// center-based pixel values, matching what the inference service returns.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Detection is one labeled object found in one frame. Detections are
// ephemeral: only their labels survive into the aggregate.
type Detection struct {
	Label      string      `json:"class"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"box"`
}

// FrameDefectCounts maps defect label to the number of detections of that
// label within a single processed frame.
type FrameDefectCounts map[string]int

// CountByLabel folds a detection list into per-label counts.
func CountByLabel(detections []Detection) FrameDefectCounts {
	if len(detections) == 0 {
		return FrameDefectCounts{}
	}
	counts := make(FrameDefectCounts, len(detections))
	for _, d := range detections {
		counts[d.Label]++
	}
	return counts
}

// AggregateDefectCounts maps defect label to the maximum single-frame count
// observed for that label during one session. Labels never seen are absent,
// which callers must treat as zero.
type AggregateDefectCounts map[string]int

// Clone returns an independent copy of the aggregate.
func (a AggregateDefectCounts) Clone() AggregateDefectCounts {
	out := make(AggregateDefectCounts, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Total is the sum of per-label maxima, shown as "findings" in summaries.
func (a AggregateDefectCounts) Total() int {
	total := 0
	for _, v := range a {
		total += v
	}
	return total
}

// ScoreResult is the outcome of scoring one session's aggregate.
type ScoreResult struct {
	FinalScore int    `json:"final_score"`
	Deduction  int    `json:"deduction"`
	Status     string `json:"status"`
	Critical   bool   `json:"critical"`
}

// ReportInput carries everything needed to persist one inspection record.
type ReportInput struct {
	Building    string
	Room        string
	Findings    AggregateDefectCounts
	Score       ScoreResult
	Description string
	Source      string
	SnapshotURL string
}

// Report is a persisted inspection record. Records are append-only: there is
// no update or delete path.
type Report struct {
	ID          uuid.UUID             `json:"id"`
	CreatedAt   time.Time             `json:"created_at"`
	Building    string                `json:"building"`
	Room        string                `json:"room"`
	Findings    AggregateDefectCounts `json:"findings"`
	Score       int                   `json:"score"`
	Deduction   int                   `json:"deduction"`
	Status      string                `json:"status"`
	Description string                `json:"description,omitempty"`
	Source      string                `json:"source,omitempty"`
	SnapshotURL string                `json:"snapshot_url,omitempty"`
}

// SummaryStats is the dashboard rollup over all persisted reports.
type SummaryStats struct {
	Total    int64 `json:"total"`
	Critical int64 `json:"critical"`
}
