package pipelines

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/easyclips/easyclips-agent/internal/captions"
)

var ErrSpeechUnavailable = errors.New("speech pipeline is not installed")

// WhisperTranscriber runs the local speech pipeline and converts its output
// into caption segments.
type WhisperTranscriber struct {
	runner Runner
	doctor *CachedDoctor
	logger *slog.Logger

	mu       sync.Mutex
	prepared bool
}

func NewWhisperTranscriber(runner Runner, doctor *CachedDoctor, logger *slog.Logger) *WhisperTranscriber {
	if logger == nil {
		logger = slog.Default()
	}
	if doctor == nil {
		doctor = NewCachedDoctor(runner, logger)
	}
	return &WhisperTranscriber{runner: runner, doctor: doctor, logger: logger.With("component", "whisper")}
}

// Prepare checks the environment and warms the model once per process.
func (w *WhisperTranscriber) Prepare(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.prepared {
		return nil
	}

	if err := w.doctor.RequireSpeech(ctx); err != nil {
		return err
	}

	result, err := w.runner.RunPrepare(ctx)
	if err == nil && !result.IsSuccess() {
		err = fmt.Errorf("prepare exited %d: %s", result.ExitCode, truncate(result.StderrTail, 512))
	}
	if err != nil {
		// The environment may have changed under the cached report.
		w.doctor.Invalidate()
		return err
	}
	w.prepared = true
	return nil
}

func (w *WhisperTranscriber) Transcribe(ctx context.Context, src captions.Source) (captions.Transcript, error) {
	if src.Path == "" {
		return captions.Transcript{}, fmt.Errorf("media %s has no local file", src.MediaID)
	}

	outPath := filepath.Join(w.runner.ArtifactsDir(), "speech", uuid.NewString()+".json")
	defer os.Remove(outPath)

	result, err := w.runner.RunSpeech(ctx, src.Path, outPath)
	if err != nil {
		return captions.Transcript{}, err
	}
	if ctx.Err() != nil {
		return captions.Transcript{}, ctx.Err()
	}
	if !result.IsSuccess() {
		return captions.Transcript{}, fmt.Errorf("speech exited %d: %s", result.ExitCode, truncate(result.StderrTail, 512))
	}

	if _, err := w.runner.ValidateOutput(outPath); err != nil {
		return captions.Transcript{}, err
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return captions.Transcript{}, fmt.Errorf("read speech output: %w", err)
	}
	transcript, err := ParseSpeechOutput(data)
	if err != nil {
		return captions.Transcript{}, err
	}

	w.logger.Info("transcription complete",
		"media_id", src.MediaID,
		"kind", src.Kind,
		"segments", len(transcript.Segments),
		"duration_ms", result.Duration.Milliseconds(),
	)
	return transcript, nil
}

// ParseSpeechOutput decodes a speech pipeline result. Segment times that are
// missing or not numeric come through as nil so the caller can drop them.
func ParseSpeechOutput(data []byte) (captions.Transcript, error) {
	var out SpeechOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return captions.Transcript{}, fmt.Errorf("cannot parse speech JSON: %w", err)
	}
	t := captions.Transcript{
		Language: out.Language,
		Segments: make([]captions.Segment, 0, len(out.Segments)),
	}
	for _, s := range out.Segments {
		t.Segments = append(t.Segments, captions.Segment{
			Text:  s.Text,
			Start: s.Start.Ptr(),
			End:   s.End.Ptr(),
		})
	}
	return t, nil
}
