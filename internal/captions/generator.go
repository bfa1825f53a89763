// Package captions turns a speech transcript of the project's media into
// timeline captions and reports progress through the caption status.
package captions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/easyclips/easyclips-agent/internal/editor"
	"github.com/easyclips/easyclips-agent/internal/events"
)

const (
	MsgLoadingModel = "Loading Whisper small (≈100MB), first run may take a minute."
	MsgTranscribing = "Transcribing audio to captions…"
	MsgSuccess      = "Captions generated from audio."
	MsgError        = "Caption generation failed. Check the agent logs for details."

	DefaultIdleAfter = 3500 * time.Millisecond

	JobType = "captions"
)

var (
	ErrInFlight = errors.New("caption generation already in progress")
	ErrNoSource = errors.New("no audio or video to transcribe")
)

type SourceKind string

const (
	SourceAudio SourceKind = "audio"
	SourceVideo SourceKind = "video"
)

// Source is the media handed to the transcriber.
type Source struct {
	Kind    SourceKind `json:"kind"`
	MediaID string     `json:"media_id"`
	Path    string     `json:"path"`
	Name    string     `json:"name"`
}

// Segment is one timed span of recognised speech. Start or End may be
// missing when the recogniser could not place the span.
type Segment struct {
	Text  string   `json:"text"`
	Start *float64 `json:"start"`
	End   *float64 `json:"end"`
}

type Transcript struct {
	Language string    `json:"language,omitempty"`
	Segments []Segment `json:"segments"`
}

// Transcriber is the speech-to-text capability.
type Transcriber interface {
	Transcribe(ctx context.Context, src Source) (Transcript, error)
}

// Preparer is implemented by transcribers that need a warm-up step, such as
// downloading a model, before the first transcription.
type Preparer interface {
	Prepare(ctx context.Context) error
}

// Jobs records generation runs in the job history.
type Jobs interface {
	CreateJob(ctx context.Context, jobType, subject string) (string, error)
	CompleteJob(ctx context.Context, id, output string) error
	FailJob(ctx context.Context, id, message string) error
}

type Generator struct {
	model       *editor.Model
	transcriber Transcriber
	jobs        Jobs
	events      events.Publisher
	logger      *slog.Logger
	idleAfter   time.Duration

	inFlight atomic.Bool

	mu        sync.Mutex
	idleTimer *time.Timer
	epoch     uint64
}

type Option func(*Generator)

func WithJobs(j Jobs) Option { return func(g *Generator) { g.jobs = j } }

func WithEvents(p events.Publisher) Option { return func(g *Generator) { g.events = p } }

// WithIdleAfter overrides how long the success status stays visible.
func WithIdleAfter(d time.Duration) Option { return func(g *Generator) { g.idleAfter = d } }

func NewGenerator(model *editor.Model, t Transcriber, logger *slog.Logger, opts ...Option) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Generator{
		model:       model,
		transcriber: t,
		events:      events.Discard{},
		logger:      logger,
		idleAfter:   DefaultIdleAfter,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// InFlight reports whether a generation is running.
func (g *Generator) InFlight() bool {
	return g.inFlight.Load()
}

// PickSource prefers the first audio track and falls back to the first video clip.
func PickSource(s editor.State) (Source, bool) {
	if len(s.AudioTracks) > 0 {
		ref := s.AudioTracks[0].Source
		return Source{Kind: SourceAudio, MediaID: ref.ID, Path: ref.Path, Name: ref.Name}, true
	}
	if len(s.VideoClips) > 0 {
		ref := s.VideoClips[0].Source
		return Source{Kind: SourceVideo, MediaID: ref.ID, Path: ref.Path, Name: ref.Name}, true
	}
	return Source{}, false
}

// Generate replaces all captions with ones transcribed from the project's
// media. It returns the number of captions added. While a run is in flight
// further calls return ErrInFlight and change nothing.
func (g *Generator) Generate(ctx context.Context) (int, error) {
	if !g.inFlight.CompareAndSwap(false, true) {
		return 0, ErrInFlight
	}
	defer g.inFlight.Store(false)

	src, ok := PickSource(g.model.Snapshot())
	if !ok {
		return 0, ErrNoSource
	}

	jobID := g.createJob(ctx, src)
	log := g.logger.With("source", src.Name, "kind", src.Kind)
	if jobID != "" {
		log = log.With("job_id", jobID)
	}

	g.model.ClearCaptions()
	g.setStatus(editor.StageLoadingModel, MsgLoadingModel)

	if p, ok := g.transcriber.(Preparer); ok {
		if err := p.Prepare(ctx); err != nil {
			return 0, g.fail(ctx, log, jobID, fmt.Errorf("prepare transcriber: %w", err))
		}
	}

	g.setStatus(editor.StageTranscribing, MsgTranscribing)
	start := time.Now()
	transcript, err := g.transcriber.Transcribe(ctx, src)
	if err != nil {
		return 0, g.fail(ctx, log, jobID, fmt.Errorf("transcribe %s: %w", src.Name, err))
	}

	added, dropped := 0, 0
	for _, seg := range transcript.Segments {
		c, ok := toCaption(seg)
		if !ok {
			dropped++
			continue
		}
		if _, err := g.model.AddCaption(c); err != nil {
			log.Debug("dropping caption", "error", err)
			dropped++
			continue
		}
		added++
	}

	g.setStatus(editor.StageSuccess, MsgSuccess)
	g.scheduleIdle()

	if jobID != "" && g.jobs != nil {
		if err := g.jobs.CompleteJob(ctx, jobID, fmt.Sprintf("%d captions", added)); err != nil {
			log.Warn("failed to complete caption job", "error", err)
		}
	}
	log.Info("captions generated",
		"added", added,
		"dropped", dropped,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return added, nil
}

func (g *Generator) createJob(ctx context.Context, src Source) string {
	if g.jobs == nil {
		return ""
	}
	id, err := g.jobs.CreateJob(ctx, JobType, src.MediaID)
	if err != nil {
		g.logger.Warn("failed to record caption job", "error", err)
		return ""
	}
	return id
}

func (g *Generator) fail(ctx context.Context, log *slog.Logger, jobID string, err error) error {
	log.Error("caption generation failed", "error", err)
	g.setStatus(editor.StageError, MsgError)
	if jobID != "" && g.jobs != nil {
		// The request context may be the reason we failed.
		if ferr := g.jobs.FailJob(context.WithoutCancel(ctx), jobID, err.Error()); ferr != nil {
			log.Warn("failed to mark caption job failed", "error", ferr)
		}
	}
	return err
}

// toCaption accepts a segment only with finite bounds and non-blank text.
func toCaption(seg Segment) (editor.Caption, bool) {
	if seg.Start == nil || seg.End == nil {
		return editor.Caption{}, false
	}
	start, end := *seg.Start, *seg.End
	if math.IsNaN(start) || math.IsInf(start, 0) || math.IsNaN(end) || math.IsInf(end, 0) {
		return editor.Caption{}, false
	}
	text := strings.TrimSpace(seg.Text)
	if text == "" {
		return editor.Caption{}, false
	}
	return editor.Caption{
		Text:      text,
		StartTime: start,
		EndTime:   end,
		Style:     editor.StyleDefault,
		Anchor:    editor.AnchorBottom,
		Color:     editor.DefaultCaptionColor,
		FontSize:  editor.DefaultCaptionFontSize,
	}, true
}

// setStatus applies a transition and cancels any pending return to idle.
func (g *Generator) setStatus(stage editor.CaptionStage, msg string) {
	g.mu.Lock()
	g.epoch++
	if g.idleTimer != nil {
		g.idleTimer.Stop()
		g.idleTimer = nil
	}
	g.mu.Unlock()

	status := editor.CaptionStatus{Stage: stage, Message: msg}
	g.model.SetCaptionStatus(status)
	g.events.Publish(events.CaptionsStatus, status)
}

func (g *Generator) scheduleIdle() {
	g.mu.Lock()
	defer g.mu.Unlock()
	epoch := g.epoch
	g.idleTimer = time.AfterFunc(g.idleAfter, func() {
		g.mu.Lock()
		if g.epoch != epoch {
			g.mu.Unlock()
			return
		}
		g.epoch++
		g.idleTimer = nil
		g.mu.Unlock()

		status := editor.CaptionStatus{Stage: editor.StageIdle}
		g.model.SetCaptionStatus(status)
		g.events.Publish(events.CaptionsStatus, status)
	})
}

// Reset returns the status to idle immediately.
func (g *Generator) Reset() {
	g.setStatus(editor.StageIdle, "")
}
