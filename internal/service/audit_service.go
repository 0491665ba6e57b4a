package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"audit-service/internal/domain/audit"
	"audit-service/internal/media"
	"audit-service/internal/repository"
	"audit-service/internal/sampler"
	"audit-service/internal/scoring"
	"audit-service/internal/session"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrSessionActive     = errors.New("a session is already active for this location")
	ErrSourceUnavailable = errors.New("cannot open video source")
)

// Detector is the detection adapter boundary: one frame in, annotated frame
// and detections out. Failures are absorbed behind this boundary and show up
// as zero detections.
type Detector interface {
	Detect(ctx context.Context, frame []byte) ([]byte, []audit.Detection)
}

// SourceOpener abstracts the media layer so the processing loops can be
// exercised without ffmpeg.
type SourceOpener interface {
	OpenFile(ctx context.Context, path string, targetWidth int) (media.FrameSource, error)
	OpenStream(ctx context.Context, url string, targetWidth, fps int) (media.FrameSource, error)
}

// ReportStore is the report sink boundary. It is append-only.
type ReportStore interface {
	Create(ctx context.Context, input audit.ReportInput) (*audit.Report, error)
	ListReports(ctx context.Context, filter repository.ListFilter) ([]audit.Report, error)
	SummaryStats(ctx context.Context, criticalStatus string) (audit.SummaryStats, error)
}

// KeyframeStore persists the annotated keyframe of a finished audit.
type KeyframeStore interface {
	UploadKeyframe(ctx context.Context, frame []byte) (string, error)
}

// Options carry the injected session configuration.
type Options struct {
	SkipInterval      int
	ProgressInterval  int
	LiveDuration      time.Duration
	PollInterval      time.Duration
	TargetWidthUpload int
	TargetWidthLive   int
	CameraURL         string
	CameraFPS         int
}

// AuditService owns the audit sessions and runs the aggregation pipeline:
// frames in, one scored and optionally persisted inspection record out.
type AuditService struct {
	repo      ReportStore
	detector  Detector
	sources   SourceOpener
	keyframes KeyframeStore
	scorer    *scoring.Scorer
	sampler   *sampler.Sampler
	opts      Options
	log       zerolog.Logger

	mu      sync.Mutex
	uploads map[string]*session.UploadSession
	lives   map[string]*liveRun

	uploadsByID map[uuid.UUID]*session.UploadSession
	livesByID   map[uuid.UUID]*liveRun
}

// liveRun couples a live session with the lifetime of its capture pipeline.
type liveRun struct {
	session *session.LiveSession
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewAuditService(
	repo ReportStore,
	detector Detector,
	sources SourceOpener,
	keyframes KeyframeStore,
	scorer *scoring.Scorer,
	opts Options,
	log zerolog.Logger,
) *AuditService {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	return &AuditService{
		repo:        repo,
		detector:    detector,
		sources:     sources,
		keyframes:   keyframes,
		scorer:      scorer,
		sampler:     sampler.New(opts.SkipInterval, opts.ProgressInterval),
		opts:        opts,
		log:         log,
		uploads:     make(map[string]*session.UploadSession),
		lives:       make(map[string]*liveRun),
		uploadsByID: make(map[uuid.UUID]*session.UploadSession),
		livesByID:   make(map[uuid.UUID]*liveRun),
	}
}

func locationKey(building, room string) string {
	return strings.TrimSpace(building) + "|" + strings.TrimSpace(room)
}

// UploadOutcome is what a processed (or cache-served) video audit looks like
// to the caller.
type UploadOutcome struct {
	AuditID         uuid.UUID                   `json:"audit_id"`
	Building        string                      `json:"building"`
	Room            string                      `json:"room"`
	Source          string                      `json:"source"`
	Findings        audit.AggregateDefectCounts `json:"findings"`
	Score           audit.ScoreResult           `json:"score"`
	FramesProcessed int                         `json:"frames_processed"`
	Cached          bool                        `json:"cached"`
}

// ProcessVideo runs the upload-mode pipeline over one video file,
// synchronously and to completion. Re-presenting the same source for the
// same location returns the cached result without touching the detection
// pipeline again; a new source forces reprocessing with a fresh aggregate.
func (s *AuditService) ProcessVideo(ctx context.Context, building, room, source, path string) (*UploadOutcome, error) {
	if strings.TrimSpace(room) == "" {
		return nil, fmt.Errorf("%w: room is required before processing", ErrInvalidInput)
	}
	if strings.TrimSpace(building) == "" {
		return nil, fmt.Errorf("%w: building is required", ErrInvalidInput)
	}
	if source == "" {
		return nil, fmt.Errorf("%w: source name is required", ErrInvalidInput)
	}

	us := s.uploadSession(building, room)

	cached, err := us.Present(source)
	if err != nil {
		if errors.Is(err, session.ErrProcessing) {
			return nil, fmt.Errorf("%w: %s", ErrSessionActive, locationKey(building, room))
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if cached != nil {
		s.log.Info().
			Str("source", source).
			Str("room", room).
			Msg("serving cached audit result")
		return s.outcomeFrom(us, cached, true), nil
	}

	result, err := s.runUploadPipeline(ctx, us, path)
	if err != nil {
		us.Fail()
		return nil, err
	}

	if err := us.Complete(*result); err != nil {
		return nil, err
	}

	final, err := us.Result()
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("source", source).
		Str("building", building).
		Str("room", room).
		Int("frames_processed", final.FramesProcessed).
		Int("score", final.Score.FinalScore).
		Str("status", final.Score.Status).
		Msg("video audit finished")

	return s.outcomeFrom(us, final, false), nil
}

func (s *AuditService) outcomeFrom(us *session.UploadSession, result *session.UploadResult, cached bool) *UploadOutcome {
	return &UploadOutcome{
		AuditID:         us.ID,
		Building:        us.Building,
		Room:            us.Room,
		Source:          result.Source,
		Findings:        result.Findings,
		Score:           result.Score,
		FramesProcessed: result.FramesProcessed,
		Cached:          cached,
	}
}

// runUploadPipeline is the blocking decode-sample-detect-aggregate loop over
// the whole file. Detection failures inside the loop are non-fatal; only a
// source that cannot be opened or read aborts processing.
func (s *AuditService) runUploadPipeline(ctx context.Context, us *session.UploadSession, path string) (*session.UploadResult, error) {
	src, err := s.sources.OpenFile(ctx, path, s.opts.TargetWidthUpload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer src.Close()

	total := src.TotalFrames()
	agg := us.Aggregator()

	processed := 0
	var lastAnnotated []byte

	for {
		frame, err := src.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}

		if s.sampler.ShouldReportProgress(frame.Index) {
			progress := sampler.ProgressOf(frame.Index, total)
			s.log.Debug().
				Int("frame", frame.Index).
				Int("total", total).
				Bool("indeterminate", progress.Indeterminate).
				Float64("fraction", progress.Fraction).
				Msg("processing progress")
		}

		if !s.sampler.ShouldProcess(frame.Index) {
			continue
		}

		annotated, detections := s.detector.Detect(ctx, frame.Data)
		agg.Update(audit.CountByLabel(detections))
		lastAnnotated = annotated
		processed++
	}

	counts := agg.Counts()
	return &session.UploadResult{
		Score:           s.scorer.Score(counts),
		FramesProcessed: processed,
		Annotated:       lastAnnotated,
	}, nil
}

// SaveUpload persists the Ready result of an upload session. The session
// stays Ready, so calling this twice creates two records; deduplication is a
// product decision that has not been taken.
func (s *AuditService) SaveUpload(ctx context.Context, auditID uuid.UUID, description string) (*audit.Report, error) {
	s.mu.Lock()
	us, ok := s.uploadsByID[auditID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: audit %s", ErrNotFound, auditID)
	}

	result, err := us.Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if description == "" {
		description = "Auto-Audit Video: " + result.Source
	}

	input := audit.ReportInput{
		Building:    us.Building,
		Room:        us.Room,
		Findings:    result.Findings,
		Score:       result.Score,
		Description: description,
		Source:      result.Source,
		SnapshotURL: s.uploadKeyframe(ctx, result.Annotated),
	}

	report, err := s.repo.Create(ctx, input)
	if err != nil {
		s.log.Error().Err(err).Str("room", us.Room).Msg("failed to persist inspection report")
		return nil, fmt.Errorf("failed to persist inspection report: %w", err)
	}

	s.log.Info().
		Str("report_id", report.ID.String()).
		Str("building", report.Building).
		Str("room", report.Room).
		Int("score", report.Score).
		Str("status", report.Status).
		Msg("saved inspection report")

	return report, nil
}

func (s *AuditService) uploadSession(building, room string) *session.UploadSession {
	key := locationKey(building, room)

	s.mu.Lock()
	defer s.mu.Unlock()

	us, ok := s.uploads[key]
	if !ok {
		us = session.NewUploadSession(strings.TrimSpace(building), strings.TrimSpace(room))
		s.uploads[key] = us
		s.uploadsByID[us.ID] = us
	}
	return us
}

// uploadKeyframe best-effort stores the annotated frame. A missing or
// failing store never blocks a save.
func (s *AuditService) uploadKeyframe(ctx context.Context, frame []byte) string {
	if s.keyframes == nil || len(frame) == 0 {
		return ""
	}
	url, err := s.keyframes.UploadKeyframe(ctx, frame)
	if err != nil {
		s.log.Warn().Err(err).Msg("keyframe upload failed, saving report without snapshot")
		return ""
	}
	return url
}

// StartLiveSession arms a timed live session for a location and starts its
// capture pipeline plus tick loop. One active session per location.
func (s *AuditService) StartLiveSession(ctx context.Context, building, room string) (*session.LiveSession, error) {
	if strings.TrimSpace(building) == "" {
		return nil, fmt.Errorf("%w: building is required", ErrInvalidInput)
	}

	key := locationKey(building, room)

	s.mu.Lock()
	if run, ok := s.lives[key]; ok && run.session.Phase() == session.PhaseScanning {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionActive, key)
	}

	ls := session.NewLiveSession(strings.TrimSpace(building), strings.TrimSpace(room), s.opts.LiveDuration)
	runCtx, cancel := context.WithCancel(context.Background())
	run := &liveRun{session: ls, cancel: cancel, done: make(chan struct{})}
	s.lives[key] = run
	s.livesByID[ls.ID] = run
	s.mu.Unlock()

	if err := ls.Start(time.Now()); err != nil {
		cancel()
		return nil, err
	}

	go s.runCapture(runCtx, ls)
	go s.runTicker(runCtx, run)

	s.log.Info().
		Str("session_id", ls.ID.String()).
		Str("building", building).
		Str("room", room).
		Dur("duration", s.opts.LiveDuration).
		Msg("live session started")

	return ls, nil
}

// runCapture is the background capture path: it reads frames from the
// camera stream at its own cadence, samples them, runs detection and
// publishes the latest snapshot into the session slot. It never touches the
// aggregate directly.
func (s *AuditService) runCapture(ctx context.Context, ls *session.LiveSession) {
	src, err := s.sources.OpenStream(ctx, s.opts.CameraURL, s.opts.TargetWidthLive, s.opts.CameraFPS)
	if err != nil {
		s.log.Error().Err(err).Str("url", s.opts.CameraURL).Msg("cannot open camera stream")
		return
	}
	defer src.Close()

	for {
		if ctx.Err() != nil {
			return
		}

		frame, err := src.Next()
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				s.log.Warn().Err(err).Msg("camera stream read failed")
			}
			return
		}

		if !s.sampler.ShouldProcess(frame.Index) {
			continue
		}

		annotated, detections := s.detector.Detect(ctx, frame.Data)
		ls.Slot().Store(session.Snapshot{
			Detections: detections,
			Counts:     audit.CountByLabel(detections),
			Annotated:  annotated,
			Taken:      time.Now(),
		})
	}
}

// runTicker drives the state machine clock. The machine itself only ever
// sees tick(now); the polling cadence lives here.
func (s *AuditService) runTicker(ctx context.Context, run *liveRun) {
	defer close(run.done)

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if run.session.Tick(now) == session.TransitionFinished {
				run.cancel()
				s.log.Info().
					Str("session_id", run.session.ID.String()).
					Msg("live session finished")
				return
			}
		}
	}
}

// LiveStatus is the tick-level view of a live session.
type LiveStatus struct {
	ID        uuid.UUID                   `json:"id"`
	Building  string                      `json:"building"`
	Room      string                      `json:"room"`
	Phase     session.Phase               `json:"phase"`
	Elapsed   float64                     `json:"elapsed_seconds"`
	Remaining float64                     `json:"remaining_seconds"`
	Findings  audit.AggregateDefectCounts `json:"findings,omitempty"`
	Score     *audit.ScoreResult          `json:"score,omitempty"`
}

func (s *AuditService) LiveStatus(id uuid.UUID) (*LiveStatus, error) {
	run, err := s.liveRunByID(id)
	if err != nil {
		return nil, err
	}

	ls := run.session
	now := time.Now()
	elapsed := ls.Elapsed(now)

	status := &LiveStatus{
		ID:        ls.ID,
		Building:  ls.Building,
		Room:      ls.Room,
		Phase:     ls.Phase(),
		Elapsed:   elapsed.Seconds(),
		Remaining: (s.opts.LiveDuration - elapsed).Seconds(),
	}

	if counts, err := ls.Counts(); err == nil {
		status.Findings = counts
		score := s.scorer.Score(counts)
		status.Score = &score
	}

	return status, nil
}

// LiveFrame returns the latest annotated frame of a session for display.
func (s *AuditService) LiveFrame(id uuid.UUID) ([]byte, error) {
	run, err := s.liveRunByID(id)
	if err != nil {
		return nil, err
	}
	frame := run.session.LastAnnotated()
	if len(frame) == 0 {
		return nil, fmt.Errorf("%w: no annotated frame yet", ErrNotFound)
	}
	return frame, nil
}

// SaveLiveSession persists a finished session. Validation failures and
// persistence failures both leave the session Finished so the result is not
// lost; only a durable save re-arms the machine to Idle.
func (s *AuditService) SaveLiveSession(ctx context.Context, id uuid.UUID, room, description string) (*audit.Report, error) {
	run, err := s.liveRunByID(id)
	if err != nil {
		return nil, err
	}
	ls := run.session

	counts, err := ls.Save(room)
	if err != nil {
		return nil, err
	}

	input := audit.ReportInput{
		Building:    ls.Building,
		Room:        ls.Room,
		Findings:    counts,
		Score:       s.scorer.Score(counts),
		Description: description,
		Source:      "live",
		SnapshotURL: s.uploadKeyframe(ctx, ls.LastAnnotated()),
	}

	report, err := s.repo.Create(ctx, input)
	if err != nil {
		s.log.Error().Err(err).Str("session_id", id.String()).Msg("failed to persist live audit, session kept for retry")
		return nil, fmt.Errorf("failed to persist inspection report: %w", err)
	}

	if err := ls.Rearm(); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("report_id", report.ID.String()).
		Str("session_id", id.String()).
		Int("score", report.Score).
		Str("status", report.Status).
		Msg("saved live inspection report")

	return report, nil
}

// RetryLiveSession discards a finished session without saving.
func (s *AuditService) RetryLiveSession(id uuid.UUID) error {
	run, err := s.liveRunByID(id)
	if err != nil {
		return err
	}
	return run.session.Retry()
}

func (s *AuditService) liveRunByID(id uuid.UUID) (*liveRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.livesByID[id]
	if !ok {
		return nil, fmt.Errorf("%w: live session %s", ErrNotFound, id)
	}
	return run, nil
}

// ListReports proxies the report sink, newest first.
func (s *AuditService) ListReports(ctx context.Context, filter repository.ListFilter) ([]audit.Report, error) {
	reports, err := s.repo.ListReports(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return reports, nil
}

// SummaryStats rolls up total and critical report counts.
func (s *AuditService) SummaryStats(ctx context.Context) (audit.SummaryStats, error) {
	stats, err := s.repo.SummaryStats(ctx, s.scorer.Policy().Bands.CriticalStatus)
	if err != nil {
		return audit.SummaryStats{}, fmt.Errorf("failed to compute summary stats: %w", err)
	}
	return stats, nil
}
