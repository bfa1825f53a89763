// Package ffmpeg runs the ffmpeg and ffprobe binaries.
package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics

type Config struct {
	FFmpegPath  string // empty = look up "ffmpeg" on PATH
	FFprobePath string // empty = look up "ffprobe" on PATH
	Logger      *slog.Logger
}

// Executor runs ffmpeg with machine-readable progress on stdout.
type Executor struct {
	ffmpegPath  string
	ffprobePath string
	logger      *slog.Logger
}

func New(cfg Config) (*Executor, error) {
	ffmpegPath, err := resolveBinary(cfg.FFmpegPath, "ffmpeg")
	if err != nil {
		return nil, err
	}
	ffprobePath, err := resolveBinary(cfg.FFprobePath, "ffprobe")
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		logger:      logger.With("component", "ffmpeg"),
	}, nil
}

func resolveBinary(preferred, name string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured %s %q not found", name, preferred)
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH: %w", name, err)
	}
	return p, nil
}

func (e *Executor) FFmpegPath() string  { return e.ffmpegPath }
func (e *Executor) FFprobePath() string { return e.ffprobePath }

// Progress is one block of ffmpeg -progress output.
type Progress struct {
	Frame   int
	OutTime time.Duration
	Speed   string
	Done    bool
}

// ExitError is returned when ffmpeg exits non-zero.
type ExitError struct {
	ExitCode   int
	StderrTail string
}

// Error reports the last stderr line, which is where ffmpeg states the cause.
func (e *ExitError) Error() string {
	if line := lastLine(e.StderrTail); line != "" {
		return line
	}
	return fmt.Sprintf("ffmpeg exited with code %d", e.ExitCode)
}

// Run executes ffmpeg with args and reports progress blocks to onProgress.
func (e *Executor) Run(ctx context.Context, args []string, onProgress func(Progress)) error {
	if len(args) == 0 {
		return errors.New("no arguments provided")
	}
	full := append([]string{"-y", "-hide_banner", "-nostats", "-loglevel", "error", "-progress", "pipe:1"}, args...)

	cmd := exec.CommandContext(ctx, e.ffmpegPath, full...)
	var stderrBuf bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	e.logger.Debug("executing ffmpeg", "args", full)
	start := time.Now()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	parseProgress(stdout, onProgress)

	err = cmd.Wait()
	elapsed := time.Since(start)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		tail := stderrBuf.String()
		e.logger.Warn("ffmpeg failed",
			"exit_code", exitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(tail, 512),
		)
		return &ExitError{ExitCode: exitCode, StderrTail: tail}
	}

	e.logger.Debug("ffmpeg completed", "duration_ms", elapsed.Milliseconds())
	return nil
}

// parseProgress reads key=value lines until EOF. Each block ends with a
// progress= line.
func parseProgress(r io.Reader, onProgress func(Progress)) {
	scanner := bufio.NewScanner(r)
	var p Progress
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "frame":
			p.Frame, _ = strconv.Atoi(value)
		case "out_time_us", "out_time_ms":
			// Both keys carry microseconds.
			if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
				p.OutTime = time.Duration(us) * time.Microsecond
			}
		case "speed":
			p.Speed = strings.TrimSpace(value)
		case "progress":
			p.Done = value == "end"
			if onProgress != nil {
				onProgress(p)
			}
			p = Progress{}
		}
	}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		b := lw.w.Bytes()
		tail := append([]byte(nil), b[len(b)-lw.limit:]...)
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
