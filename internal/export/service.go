package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/easyclips/easyclips-agent/internal/editor"
	"github.com/easyclips/easyclips-agent/internal/events"
)

const (
	JobType = "export"

	FallbackErrorMessage = "We couldn't finish the export. Try a shorter clip, ensure your videos are MP4/H.264, then try again."
	errorPrefix          = "Export failed: "
)

var (
	ErrExportInProgress = errors.New("an export is already in progress")
	ErrUndismissedError = errors.New("dismiss the previous export error first")
	ErrNoRenderer       = errors.New("no render backend available")
)

// Jobs records exports in the job history.
type Jobs interface {
	CreateJob(ctx context.Context, jobType, subject string) (string, error)
	UpdateJobProgress(ctx context.Context, id string, progress int) error
	CompleteJob(ctx context.Context, id, output string) error
	FailJob(ctx context.Context, id, message string) error
}

// Service runs one export at a time against the edit model.
type Service struct {
	model      *editor.Model
	renderer   Renderer
	jobs       Jobs
	events     events.Publisher
	logger     *slog.Logger
	exportsDir string
	now        func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

type ServiceConfig struct {
	Model      *editor.Model
	Renderer   Renderer
	Jobs       Jobs
	Events     events.Publisher
	Logger     *slog.Logger
	ExportsDir string
	// Now defaults to time.Now and is used for output file names.
	Now func() time.Time
}

func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		model:      cfg.Model,
		renderer:   cfg.Renderer,
		jobs:       cfg.Jobs,
		events:     cfg.Events,
		logger:     cfg.Logger,
		exportsDir: cfg.ExportsDir,
		now:        cfg.Now,
	}
	if s.events == nil {
		s.events = events.Discard{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// run is one export from compile to finish.
type run struct {
	ctx      context.Context
	plan     Plan
	platform Platform
	quality  Quality
	filename string
	jobID    string
	log      *slog.Logger

	mu       sync.Mutex
	progress int
	failed   bool
}

// Plan compiles the current timeline without starting an export.
func (s *Service) Plan(req Request) (Plan, error) {
	platform, quality, err := resolve(req)
	if err != nil {
		return Plan{}, err
	}
	return CompileState(s.model.Snapshot(), platform, quality)
}

// Run exports synchronously and returns the finished file.
func (s *Service) Run(ctx context.Context, req Request) (Result, error) {
	r, err := s.begin(ctx, req)
	if err != nil {
		return Result{}, err
	}
	return s.execute(r)
}

// Start launches an export in the background and returns its job id. The
// export outlives ctx; use Cancel to stop it.
func (s *Service) Start(ctx context.Context, req Request) (string, error) {
	r, err := s.begin(context.WithoutCancel(ctx), req)
	if err != nil {
		return "", err
	}
	go func() {
		_, _ = s.execute(r)
	}()
	return r.jobID, nil
}

// Cancel stops the running export. It reports whether one was running.
func (s *Service) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

// DismissError clears a failed export so the next one may start. It does
// nothing while an export is running.
func (s *Service) DismissError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.model.SetExportError("")
	s.model.SetExportProgress(0)
}

func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func resolve(req Request) (Platform, Quality, error) {
	platform, err := LookupPlatform(req.Platform)
	if err != nil {
		return Platform{}, Quality{}, err
	}
	quality, err := LookupQuality(req.Quality)
	if err != nil {
		return Platform{}, Quality{}, err
	}
	return platform, quality, nil
}

func (s *Service) begin(ctx context.Context, req Request) (*run, error) {
	platform, quality, err := resolve(req)
	if err != nil {
		return nil, err
	}
	if s.renderer == nil {
		return nil, ErrNoRenderer
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, ErrExportInProgress
	}

	snap := s.model.Snapshot()
	if snap.Export.Error != "" {
		return nil, ErrUndismissedError
	}
	plan, err := CompileState(snap, platform, quality)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel

	r := &run{
		ctx:      runCtx,
		plan:     plan,
		platform: platform,
		quality:  quality,
		filename: OutputFilename(platform.Key, s.now()),
	}
	if s.jobs != nil {
		id, err := s.jobs.CreateJob(ctx, JobType, r.filename)
		if err != nil {
			s.logger.Warn("failed to record export job", "error", err)
		} else {
			r.jobID = id
		}
	}
	r.log = s.logger.With("platform", platform.Key, "quality", quality.Key, "file", r.filename)
	if r.jobID != "" {
		r.log = r.log.With("job_id", r.jobID)
	}

	s.model.SetExportError("")
	s.model.SetExportProgress(0)
	s.model.SetIsExporting(true)
	s.events.Publish(events.ExportStarted, map[string]any{"job_id": r.jobID, "filename": r.filename})
	r.log.Info("export started",
		"clips", len(snap.VideoClips),
		"audio_tracks", len(snap.AudioTracks),
		"operations", len(plan.Operations),
	)
	return r, nil
}

func (s *Service) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
	s.cancel = nil
}

func (s *Service) execute(r *run) (Result, error) {
	defer s.finish()
	start := time.Now()

	out, err := s.renderer.Render(r.ctx, r.plan, func(p int) { s.onProgress(r, p) })
	if err == nil {
		var res Result
		res, err = s.deliver(r, out)
		if err == nil {
			s.model.SetExportProgress(0)
			s.model.SetIsExporting(false)
			s.completeJob(r, res.Path)
			s.events.Publish(events.ExportFinished, res)
			r.log.Info("export finished",
				"path", res.Path,
				"size", humanize.Bytes(uint64(res.Size)),
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return res, nil
		}
	}

	r.mu.Lock()
	r.failed = true
	r.mu.Unlock()

	msg := FailureMessage(err)
	s.model.SetExportError(msg)
	s.model.SetIsExporting(false)
	s.failJob(r, err.Error())
	s.events.Publish(events.ExportFailed, map[string]any{"job_id": r.jobID, "error": msg})
	r.log.Error("export failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
	return Result{}, err
}

// onProgress applies backend progress in arrival order. Regressions and
// anything after a failure are ignored.
func (s *Service) onProgress(r *run, p int) {
	if p > 100 {
		p = 100
	}
	r.mu.Lock()
	if r.failed || p <= r.progress {
		r.mu.Unlock()
		return
	}
	r.progress = p
	r.mu.Unlock()

	s.model.SetExportProgress(p)
	s.events.Publish(events.ExportProgress, map[string]any{"job_id": r.jobID, "progress": p})
	if s.jobs != nil && r.jobID != "" {
		if err := s.jobs.UpdateJobProgress(context.WithoutCancel(r.ctx), r.jobID, p); err != nil {
			r.log.Debug("failed to update export job progress", "error", err)
		}
	}
}

// FailureMessage is the text shown in the export error panel.
func FailureMessage(err error) string {
	switch {
	case err == nil || err.Error() == "":
		return errorPrefix + FallbackErrorMessage
	case errors.Is(err, context.Canceled):
		return errorPrefix + "export cancelled"
	}
	return errorPrefix + err.Error()
}

// deliver moves the rendered file into the exports directory.
func (s *Service) deliver(r *run, out RenderOutput) (Result, error) {
	if s.exportsDir == "" {
		return Result{JobID: r.jobID, Filename: r.filename, Path: out.Path, Size: out.Size}, nil
	}
	if err := os.MkdirAll(s.exportsDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create exports dir: %w", err)
	}
	dest := filepath.Join(s.exportsDir, r.filename)
	if err := moveFile(out.Path, dest); err != nil {
		return Result{}, fmt.Errorf("deliver output: %w", err)
	}
	size := out.Size
	if info, err := os.Stat(dest); err == nil {
		size = info.Size()
	}
	return Result{JobID: r.jobID, Filename: r.filename, Path: dest, Size: size}, nil
}

func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

func (s *Service) completeJob(r *run, output string) {
	if s.jobs == nil || r.jobID == "" {
		return
	}
	if err := s.jobs.CompleteJob(context.WithoutCancel(r.ctx), r.jobID, output); err != nil {
		r.log.Warn("failed to complete export job", "error", err)
	}
}

func (s *Service) failJob(r *run, msg string) {
	if s.jobs == nil || r.jobID == "" {
		return
	}
	if err := s.jobs.FailJob(context.WithoutCancel(r.ctx), r.jobID, msg); err != nil {
		r.log.Warn("failed to mark export job failed", "error", err)
	}
}

// WriteEDL writes the current timeline as an EDL file in req.OutputDir.
func (s *Service) WriteEDL(req EDLRequest) (EDLResponse, error) {
	if err := CheckOutputDir(req.OutputDir); err != nil {
		return EDLResponse{}, err
	}
	clips := s.model.Snapshot().VideoClips
	if len(clips) == 0 {
		return EDLResponse{}, ErrEmptyTimeline
	}

	title := CleanName(req.Title, 120)
	if title == "" {
		title = AppName
	}
	frameRate := req.FrameRate
	if frameRate <= 0 {
		frameRate = 30.0
	}

	edl := GenerateEDL(clips, title, frameRate)
	outputPath := filepath.Join(req.OutputDir, title+".edl")
	if err := os.WriteFile(outputPath, []byte(edl), 0o644); err != nil {
		return EDLResponse{}, fmt.Errorf("write edl: %w", err)
	}
	return EDLResponse{Status: "ok", Format: "edl", OutputPath: outputPath, ClipCount: len(clips)}, nil
}
