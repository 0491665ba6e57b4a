package sampler

// Sampler decides which frames of a monotonically indexed sequence are
// submitted for detection and which ones only advance progress reporting.
// Frame indices start at 1, so with a skip interval of 30 the selected
// indices are 30, 60, 90, ...
type Sampler struct {
	skipInterval     int
	progressInterval int
}

const (
	DefaultSkipInterval     = 30
	DefaultProgressInterval = 5
)

func New(skipInterval, progressInterval int) *Sampler {
	if skipInterval <= 0 {
		skipInterval = DefaultSkipInterval
	}
	if progressInterval <= 0 {
		progressInterval = DefaultProgressInterval
	}
	return &Sampler{
		skipInterval:     skipInterval,
		progressInterval: progressInterval,
	}
}

// ShouldProcess reports whether the frame at index is submitted to the
// detector. This bounds the detection call rate independent of the source
// frame rate.
func (s *Sampler) ShouldProcess(index int) bool {
	return index > 0 && index%s.skipInterval == 0
}

// ShouldReportProgress reports whether a progress update is due at index.
// Progress runs on a finer stride than detection so long stretches of
// skipped frames still move the progress display.
func (s *Sampler) ShouldReportProgress(index int) bool {
	return index > 0 && index%s.progressInterval == 0
}

func (s *Sampler) SkipInterval() int {
	return s.skipInterval
}

// Progress is the completed fraction of a bounded source, clamped to [0, 1].
type Progress struct {
	Fraction      float64 `json:"fraction"`
	Indeterminate bool    `json:"indeterminate"`
}

// ProgressOf computes the progress fraction for current of total frames.
// A zero or unknown total yields an indeterminate progress instead of a
// division by zero.
func ProgressOf(current, total int) Progress {
	if total <= 0 {
		return Progress{Indeterminate: true}
	}
	fraction := float64(current) / float64(total)
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return Progress{Fraction: fraction}
}
