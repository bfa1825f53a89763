// Package render executes export plans with ffmpeg.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/easyclips/easyclips-agent/internal/export"
	"github.com/easyclips/easyclips-agent/internal/ffmpeg"
)

var ErrSourceUnreachable = errors.New("source media is not reachable")

// Runner runs one ffmpeg invocation. *ffmpeg.Executor satisfies it.
type Runner interface {
	Run(ctx context.Context, args []string, onProgress func(ffmpeg.Progress)) error
}

// FFmpegBackend runs each plan operation in a private work directory.
type FFmpegBackend struct {
	runner  Runner
	workDir string
	logger  *slog.Logger
}

func NewFFmpegBackend(runner Runner, workDir string, logger *slog.Logger) *FFmpegBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpegBackend{runner: runner, workDir: workDir, logger: logger.With("component", "render")}
}

// Render executes plan and returns the rendered file. The caller owns the
// returned file; everything else is removed.
func (b *FFmpegBackend) Render(ctx context.Context, plan export.Plan, onProgress func(int)) (export.RenderOutput, error) {
	if onProgress == nil {
		onProgress = func(int) {}
	}
	if err := os.MkdirAll(b.workDir, 0o755); err != nil {
		return export.RenderOutput{}, fmt.Errorf("create work dir: %w", err)
	}
	dir, err := os.MkdirTemp(b.workDir, "render-*")
	if err != nil {
		return export.RenderOutput{}, fmt.Errorf("create render dir: %w", err)
	}
	defer os.RemoveAll(dir)

	paths, err := bindInputs(plan)
	if err != nil {
		return export.RenderOutput{}, err
	}
	path := func(name string) string {
		if p, ok := paths[name]; ok {
			return p
		}
		return filepath.Join(dir, name)
	}

	for _, res := range plan.Resources {
		if err := writeResource(res, path); err != nil {
			return export.RenderOutput{}, err
		}
	}

	total := 0.0
	for _, op := range plan.Operations {
		total += op.Duration
	}
	start := time.Now()
	done := 0.0
	for i, op := range plan.Operations {
		args, err := buildArgs(plan, op, path)
		if err != nil {
			return export.RenderOutput{}, err
		}
		weight := 1.0 / float64(len(plan.Operations))
		if total > 0 {
			weight = op.Duration / total
		}
		opDuration := op.Duration

		b.logger.Info("render step", "step", i+1, "of", len(plan.Operations), "kind", op.Kind, "output", op.Output)
		err = b.runner.Run(ctx, args, func(p ffmpeg.Progress) {
			frac := 1.0
			if !p.Done && opDuration > 0 {
				frac = min(p.OutTime.Seconds()/opDuration, 1)
			}
			onProgress(percent(done + weight*frac))
		})
		if err != nil {
			if ctx.Err() != nil {
				return export.RenderOutput{}, ctx.Err()
			}
			return export.RenderOutput{}, err
		}
		done += weight
		onProgress(percent(done))
	}

	for _, name := range plan.Temporaries {
		os.Remove(path(name))
	}

	// Move the result next to the render dir so it survives the cleanup above.
	final := filepath.Join(b.workDir, filepath.Base(dir)+"."+plan.Container)
	if err := os.Rename(path(plan.Output), final); err != nil {
		return export.RenderOutput{}, fmt.Errorf("collect output: %w", err)
	}
	info, err := os.Stat(final)
	if err != nil {
		return export.RenderOutput{}, fmt.Errorf("stat output: %w", err)
	}

	b.logger.Info("render complete",
		"output", final,
		"size", humanize.Bytes(uint64(info.Size())),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return export.RenderOutput{Path: final, Size: info.Size()}, nil
}

// percent maps a completed fraction to 0..100.
func percent(frac float64) int {
	p := int(frac * 100)
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func bindInputs(plan export.Plan) (map[string]string, error) {
	paths := make(map[string]string, len(plan.Inputs))
	for _, in := range plan.Inputs {
		if in.Media.Path == "" {
			return nil, fmt.Errorf("%w: %s has no file", ErrSourceUnreachable, in.Name)
		}
		info, err := os.Stat(in.Media.Path)
		if err != nil || info.IsDir() {
			name := in.Media.Name
			if name == "" {
				name = filepath.Base(in.Media.Path)
			}
			return nil, fmt.Errorf("%w: %s", ErrSourceUnreachable, name)
		}
		paths[in.Name] = in.Media.Path
	}
	return paths, nil
}

func writeResource(res export.Resource, path func(string) string) error {
	switch res.Kind {
	case "concat-list":
		entries := make([]string, len(res.Entries))
		for i, e := range res.Entries {
			entries[i] = path(e)
		}
		if err := os.WriteFile(path(res.Name), []byte(concatList(entries)), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", res.Name, err)
		}
		return nil
	}
	return fmt.Errorf("unsupported resource kind %q", res.Kind)
}
