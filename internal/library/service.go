package library

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/easyclips/easyclips-agent/internal/editor"
	"github.com/easyclips/easyclips-agent/internal/events"
	"github.com/easyclips/easyclips-agent/internal/ffmpeg"
)

const (
	fingerprintSize = 64 * 1024
	authTokenKey    = "auth_token"
)

var (
	ErrUnsupportedMedia = errors.New("unsupported media type")
	ErrNotAFile         = errors.New("path is not a regular file")
	ErrMediaNotFound    = errors.New("media not found")
)

// Prober reads media metadata. *ffmpeg.Executor satisfies it.
type Prober interface {
	Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error)
}

type Service struct {
	repo   Repository
	prober Prober
	model  *editor.Model
	events events.Publisher
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, prober Prober, model *editor.Model, publisher events.Publisher, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.Discard{}
	}
	return &Service{
		repo:   repo,
		prober: prober,
		model:  model,
		events: publisher,
		logger: logger,
		now:    time.Now,
	}
}

// ImportVideo records the file and appends a clip spanning all of it to the
// end of the timeline.
func (s *Service) ImportVideo(ctx context.Context, path string) (*Media, editor.VideoClip, error) {
	m, err := s.importMedia(ctx, path, KindVideo)
	if err != nil {
		return nil, editor.VideoClip{}, err
	}
	clip, err := s.model.ImportVideo(m.Ref(), m.Duration)
	if err != nil {
		return m, editor.VideoClip{}, err
	}
	s.events.Publish(events.MediaImported, m)
	return m, clip, nil
}

// ImportAudio records the file and adds it as a full-volume track at 0s.
func (s *Service) ImportAudio(ctx context.Context, path string) (*Media, editor.AudioTrack, error) {
	m, err := s.importMedia(ctx, path, KindAudio)
	if err != nil {
		return nil, editor.AudioTrack{}, err
	}
	track, err := s.model.ImportAudio(m.Ref(), m.Duration)
	if err != nil {
		return m, editor.AudioTrack{}, err
	}
	s.events.Publish(events.MediaImported, m)
	return m, track, nil
}

func (s *Service) importMedia(ctx context.Context, path string, kind MediaKind) (*Media, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	switch {
	case kind == KindVideo && !IsVideoFile(absPath),
		kind == KindAudio && !IsAudioFile(absPath):
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMedia, filepath.Ext(absPath))
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("path does not exist: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, ErrNotAFile
	}

	probe, err := s.prober.Probe(ctx, absPath)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", filepath.Base(absPath), err)
	}
	if kind == KindVideo && !probe.HasVideo {
		return nil, fmt.Errorf("%w: %s has no video stream", ErrUnsupportedMedia, filepath.Base(absPath))
	}
	if kind == KindAudio && !probe.HasAudio {
		return nil, fmt.Errorf("%w: %s has no audio stream", ErrUnsupportedMedia, filepath.Base(absPath))
	}
	if probe.Duration <= 0 {
		return nil, ffmpeg.ErrNoDuration
	}

	fingerprint, err := computeFingerprint(absPath)
	if err != nil {
		return nil, err
	}

	m := &Media{
		ID:          uuid.NewString(),
		Kind:        kind,
		Path:        absPath,
		Filename:    filepath.Base(absPath),
		Size:        info.Size(),
		Mtime:       info.ModTime(),
		Fingerprint: fingerprint,
		Duration:    probe.Duration,
		Width:       probe.Width,
		Height:      probe.Height,
		VideoCodec:  probe.VideoCodec,
		AudioCodec:  probe.AudioCodec,
		CreatedAt:   s.now(),
	}
	stored, err := s.repo.UpsertMedia(ctx, m)
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("media imported",
			"media_id", stored.ID,
			"kind", kind,
			"file", stored.Filename,
			"size", humanize.Bytes(uint64(stored.Size)),
			"duration_s", stored.Duration,
		)
	}
	return stored, nil
}

// Ref is the handle the edit model keeps for this media.
func (m *Media) Ref() editor.MediaRef {
	return editor.MediaRef{ID: m.ID, Path: m.Path, Name: m.Filename, Silent: m.AudioCodec == ""}
}

func (s *Service) GetMedia(ctx context.Context, id string) (*Media, error) {
	m, err := s.repo.GetMedia(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrMediaNotFound
	}
	return m, nil
}

func (s *Service) ListMedia(ctx context.Context, kind MediaKind) ([]*Media, error) {
	return s.repo.ListMedia(ctx, kind)
}

func (s *Service) CountMedia(ctx context.Context) (int, error) {
	return s.repo.CountMedia(ctx)
}

// CreateJob records a running job and returns its id.
func (s *Service) CreateJob(ctx context.Context, jobType, subject string) (string, error) {
	now := s.now()
	job := &Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		Status:    JobStatusRunning,
		Subject:   subject,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return "", err
	}
	if s.logger != nil {
		s.logger.Info("job created", "job_id", job.ID, "type", jobType)
	}
	return job.ID, nil
}

func (s *Service) UpdateJobProgress(ctx context.Context, id string, progress int) error {
	return s.repo.UpdateJobProgress(ctx, id, progress)
}

func (s *Service) CompleteJob(ctx context.Context, id, output string) error {
	if err := s.repo.UpdateJobProgress(ctx, id, 100); err != nil {
		return err
	}
	return s.repo.UpdateJobStatus(ctx, id, JobStatusCompleted, "", output)
}

func (s *Service) FailJob(ctx context.Context, id, message string) error {
	if s.logger != nil {
		s.logger.Warn("job failed", "job_id", id, "error", message)
	}
	return s.repo.UpdateJobStatus(ctx, id, JobStatusFailed, message, "")
}

func (s *Service) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.GetJob(ctx, id)
}

func (s *Service) ListJobs(ctx context.Context, jobType string, limit int) ([]*Job, error) {
	return s.repo.ListJobs(ctx, jobType, limit)
}

// AuthToken returns the API bearer token, generating and storing one on
// first use.
func (s *Service) AuthToken(ctx context.Context) (string, error) {
	token, err := s.repo.GetConfig(ctx, authTokenKey)
	if err != nil {
		return "", err
	}
	if token != "" {
		return token, nil
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token = hex.EncodeToString(b)
	if err := s.repo.SetConfig(ctx, authTokenKey, token); err != nil {
		return "", err
	}
	return token, nil
}

func computeFingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	lr := io.LimitReader(f, fingerprintSize)
	if _, err := io.Copy(h, lr); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
