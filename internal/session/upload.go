package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"audit-service/internal/domain/audit"
	"audit-service/internal/scoring"
)

const (
	PhaseProcessing Phase = "processing"
	PhaseReady      Phase = "ready"
)

var ErrProcessing = errors.New("a source is already being processed")

// UploadResult is the finalized outcome of one processed video source.
type UploadResult struct {
	Source          string
	Findings        audit.AggregateDefectCounts
	Score           audit.ScoreResult
	FramesProcessed int
	Annotated       []byte
}

// UploadSession is the single-pass video state machine:
// Idle → Processing → Ready. Presenting a new source identity forces
// reprocessing with a fresh aggregate; re-presenting the same identity while
// Ready reuses the cached result and must not touch the detection pipeline
// again. Saving from Ready leaves the machine in Ready, so repeated saves
// produce duplicate records, which is accepted.
type UploadSession struct {
	mu sync.Mutex

	ID       uuid.UUID
	Building string
	Room     string

	phase  Phase
	source string

	agg    *scoring.Aggregator
	result *UploadResult
}

func NewUploadSession(building, room string) *UploadSession {
	return &UploadSession{
		ID:       uuid.New(),
		Building: building,
		Room:     room,
		phase:    PhaseIdle,
		agg:      scoring.NewAggregator(),
	}
}

// Present offers a source identity to the session. The returned cached
// result is non-nil when the identity matches the one already processed, in
// which case the caller must not run the pipeline. Otherwise the session has
// moved to Processing with a reset aggregate and the caller must finish with
// Complete or Fail.
func (s *UploadSession) Present(source string) (*UploadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if source == "" {
		return nil, fmt.Errorf("%w: source identity is required", ErrWrongPhase)
	}

	switch s.phase {
	case PhaseProcessing:
		return nil, ErrProcessing
	case PhaseReady:
		if s.source == source {
			return s.result, nil
		}
	}

	s.source = source
	s.result = nil
	s.agg.Reset()
	s.phase = PhaseProcessing
	return nil, nil
}

// Aggregator exposes the session's aggregate to the processing loop. Valid
// only while Processing.
func (s *UploadSession) Aggregator() *scoring.Aggregator {
	return s.agg
}

// Complete finalizes processing and moves the session to Ready holding the
// result.
func (s *UploadSession) Complete(result UploadResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseProcessing {
		return fmt.Errorf("%w: complete requires a processing session", ErrWrongPhase)
	}
	result.Source = s.source
	result.Findings = s.agg.Counts()
	s.result = &result
	s.phase = PhaseReady
	return nil
}

// Fail aborts processing after an unrecoverable source error and returns to
// Idle, discarding the partial aggregate.
func (s *UploadSession) Fail() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseProcessing {
		return
	}
	s.source = ""
	s.result = nil
	s.agg.Reset()
	s.phase = PhaseIdle
}

// Result returns the finalized outcome while Ready.
func (s *UploadSession) Result() (*UploadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseReady || s.result == nil {
		return nil, fmt.Errorf("%w: no finalized result", ErrWrongPhase)
	}
	return s.result, nil
}

func (s *UploadSession) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}
