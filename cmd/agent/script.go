package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/easyclips/easyclips-agent/internal/editor"
	"github.com/easyclips/easyclips-agent/internal/library"
)

// editScript is a timeline written as YAML:
//
//	aspect_ratio: "9:16"
//	platform: tiktok
//	quality: 720p
//	clips:
//	  - path: intro.mp4
//	    duration: 12.5
//	    trim_start: 1
//	    trim_end: 6
//	audio:
//	  - path: music.mp3
//	    duration: 30
//	    volume: 0.4
//	captions:
//	  - text: Hello
//	    start: 0
//	    end: 2
//
// Relative paths are resolved against the script's directory. A zero
// duration is probed from the file.
type editScript struct {
	AspectRatio string          `yaml:"aspect_ratio"`
	Platform    string          `yaml:"platform"`
	Quality     string          `yaml:"quality"`
	Clips       []scriptClip    `yaml:"clips"`
	Audio       []scriptAudio   `yaml:"audio"`
	Captions    []scriptCaption `yaml:"captions"`

	dir string
}

type scriptClip struct {
	Path      string   `yaml:"path"`
	Duration  float64  `yaml:"duration"`
	TrimStart *float64 `yaml:"trim_start"`
	TrimEnd   *float64 `yaml:"trim_end"`
	Position  *float64 `yaml:"position"`
	Track     *int     `yaml:"track"`
}

type scriptAudio struct {
	Path     string   `yaml:"path"`
	Duration float64  `yaml:"duration"`
	Volume   *float64 `yaml:"volume"`
	Position *float64 `yaml:"position"`
}

type scriptCaption struct {
	Text     string  `yaml:"text"`
	Start    float64 `yaml:"start"`
	End      float64 `yaml:"end"`
	Style    string  `yaml:"style"`
	Position string  `yaml:"position"`
	Color    string  `yaml:"color"`
	FontSize int     `yaml:"font_size"`
}

func loadScript(path string) (*editScript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read edit script: %w", err)
	}
	var s editScript
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse edit script: %w", err)
	}
	s.dir = filepath.Dir(path)
	return &s, nil
}

func (s *editScript) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || s.dir == "" {
		return p
	}
	return filepath.Join(s.dir, p)
}

// needsProbe reports whether any media entry leaves its duration out.
func (s *editScript) needsProbe() bool {
	for _, c := range s.Clips {
		if c.Duration <= 0 {
			return true
		}
	}
	for _, a := range s.Audio {
		if a.Duration <= 0 {
			return true
		}
	}
	return false
}

// apply replays the script onto m in order: canvas, clips, audio, captions.
func (s *editScript) apply(ctx context.Context, m *editor.Model, prober library.Prober) error {
	if s.AspectRatio != "" {
		if err := m.SetAspectRatio(editor.AspectRatio(s.AspectRatio)); err != nil {
			return err
		}
	}

	for i, c := range s.Clips {
		path := s.resolve(c.Path)
		dur, err := mediaDuration(ctx, prober, path, c.Duration)
		if err != nil {
			return fmt.Errorf("clips[%d]: %w", i, err)
		}
		clip, err := m.ImportVideo(scriptRef(m, path), dur)
		if err != nil {
			return fmt.Errorf("clips[%d]: %w", i, err)
		}
		patch := editor.VideoClipPatch{
			TrimStart: c.TrimStart,
			TrimEnd:   c.TrimEnd,
			Position:  c.Position,
			Track:     c.Track,
		}
		if patch.IsEmpty() {
			continue
		}
		if err := m.UpdateVideoClip(clip.ID, patch); err != nil {
			return fmt.Errorf("clips[%d]: %w", i, err)
		}
	}

	for i, a := range s.Audio {
		path := s.resolve(a.Path)
		dur, err := mediaDuration(ctx, prober, path, a.Duration)
		if err != nil {
			return fmt.Errorf("audio[%d]: %w", i, err)
		}
		track, err := m.ImportAudio(scriptRef(m, path), dur)
		if err != nil {
			return fmt.Errorf("audio[%d]: %w", i, err)
		}
		if a.Volume == nil && a.Position == nil {
			continue
		}
		if err := m.UpdateAudioTrack(track.ID, editor.AudioTrackPatch{Volume: a.Volume, Position: a.Position}); err != nil {
			return fmt.Errorf("audio[%d]: %w", i, err)
		}
	}

	for i, c := range s.Captions {
		_, err := m.AddCaption(editor.Caption{
			Text:      c.Text,
			StartTime: c.Start,
			EndTime:   c.End,
			Style:     editor.CaptionStyle(c.Style),
			Anchor:    editor.CaptionAnchor(c.Position),
			Color:     c.Color,
			FontSize:  c.FontSize,
		})
		if err != nil {
			return fmt.Errorf("captions[%d]: %w", i, err)
		}
	}
	return nil
}

func scriptRef(m *editor.Model, path string) editor.MediaRef {
	return editor.MediaRef{ID: m.NewID(), Path: path, Name: filepath.Base(path)}
}

func mediaDuration(ctx context.Context, prober library.Prober, path string, given float64) (float64, error) {
	if path == "" {
		return 0, fmt.Errorf("path is required")
	}
	if given > 0 {
		return given, nil
	}
	if prober == nil {
		return 0, fmt.Errorf("%s: duration is required when ffprobe is unavailable", filepath.Base(path))
	}
	probe, err := prober.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	return probe.Duration, nil
}
