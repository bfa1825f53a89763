package pipelines

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/easyclips/easyclips-agent/internal/logging"
)

const maxStderrBytes = 8 * 1024

// Runner executes Python pipeline commands as subprocesses.
type Runner interface {
	// RunDoctor executes `python -m <module> doctor --json --out <path>` and
	// returns parsed capabilities.
	RunDoctor(ctx context.Context) (*Capabilities, error)

	// RunPrepare downloads and loads the speech model so the first
	// transcription does not pay for it.
	RunPrepare(ctx context.Context) (RunResult, error)

	// RunSpeech transcribes the audio of a media file into outPath.
	RunSpeech(ctx context.Context, mediaPath, outPath string) (RunResult, error)

	// ValidateOutput reads a pipeline output JSON and checks required fields.
	ValidateOutput(path string) (*PipelineOutput, error)

	// ArtifactsDir returns the base directory for pipeline outputs.
	ArtifactsDir() string
}

// Config holds the runner's configuration.
type Config struct {
	PythonPath     string        // path to python binary; empty = auto-detect
	ModuleName     string        // default "easyclips_speech"
	Model          string        // whisper model name
	ArtifactsBase  string        // base dir for outputs, e.g. ~/.easyclips/artifacts
	DoctorTimeout  time.Duration // timeout for doctor command
	PrepareTimeout time.Duration // timeout for model download
	SpeechTimeout  time.Duration // timeout for speech pipeline
	Logger         *slog.Logger
	DebugPaths     bool // if true, log full file paths; otherwise sanitise
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig(dataDir string, logger *slog.Logger) Config {
	return Config{
		PythonPath:     "", // auto-detect
		ModuleName:     "easyclips_speech",
		Model:          "small.en",
		ArtifactsBase:  filepath.Join(dataDir, "artifacts"),
		DoctorTimeout:  30 * time.Second,
		PrepareTimeout: 10 * time.Minute,
		SpeechTimeout:  30 * time.Minute,
		Logger:         logger,
		DebugPaths:     false,
	}
}

// SubprocessRunner is the production implementation of Runner.
type SubprocessRunner struct {
	cfg    Config
	python string // resolved python path
}

// NewRunner creates a SubprocessRunner, resolving the Python binary path.
func NewRunner(cfg Config) (*SubprocessRunner, error) {
	python, err := resolvePython(cfg.PythonPath)
	if err != nil {
		return nil, fmt.Errorf("cannot locate python: %w", err)
	}

	if err := os.MkdirAll(cfg.ArtifactsBase, 0755); err != nil {
		return nil, fmt.Errorf("cannot create artifacts dir: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	cfg.Logger.Info("pipeline runner initialised",
		"python", python,
		"module", cfg.ModuleName,
		"model", cfg.Model,
		"artifacts_dir", cfg.ArtifactsBase,
	)

	return &SubprocessRunner{cfg: cfg, python: python}, nil
}

func (r *SubprocessRunner) ArtifactsDir() string {
	return r.cfg.ArtifactsBase
}

// RunDoctor asks the pipeline which of its dependencies are installed.
func (r *SubprocessRunner) RunDoctor(ctx context.Context) (*Capabilities, error) {
	outPath := filepath.Join(r.cfg.ArtifactsBase, ".doctor.json")

	ctx, cancel := context.WithTimeout(ctx, r.cfg.DoctorTimeout)
	defer cancel()

	if res := r.run(ctx, outPath, "doctor", "--json", "--out", outPath); !res.IsSuccess() {
		return nil, fmt.Errorf("doctor exited %d: %s", res.ExitCode, res.StderrTail)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read doctor output: %w", err)
	}
	caps, err := decodeCapabilities(data, time.Now())
	if err != nil {
		return nil, err
	}

	r.cfg.Logger.Info("doctor probe complete",
		"speech", caps.HasSpeech,
		"ffmpeg", caps.HasFFmpeg,
		"deps_available", caps.Summary.Available,
		"deps_total", caps.Summary.Total,
	)
	return caps, nil
}

// decodeCapabilities parses a doctor report. Speech needs both whisper and
// ffmpeg.
func decodeCapabilities(data []byte, probedAt time.Time) (*Capabilities, error) {
	var caps Capabilities
	if err := json.Unmarshal(data, &caps); err != nil {
		return nil, fmt.Errorf("cannot parse doctor JSON: %w", err)
	}
	caps.HasFFmpeg = isAvailable(caps.Executables, "ffmpeg")
	caps.HasSpeech = caps.HasFFmpeg && isAvailable(caps.Dependencies, "whisper")
	caps.ProbedAt = probedAt
	return &caps, nil
}

// RunPrepare downloads the configured whisper model.
func (r *SubprocessRunner) RunPrepare(ctx context.Context) (RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.PrepareTimeout)
	defer cancel()
	return r.run(ctx, "", "speech", "prepare", "--model", r.cfg.Model), nil
}

func (r *SubprocessRunner) RunSpeech(ctx context.Context, mediaPath, outPath string) (RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.SpeechTimeout)
	defer cancel()
	return r.run(ctx, outPath, "speech", "transcribe",
		"--media", mediaPath,
		"--model", r.cfg.Model,
		"--out", outPath,
	), nil
}

// ValidateOutput checks that a pipeline result carries its version metadata.
func (r *SubprocessRunner) ValidateOutput(path string) (*PipelineOutput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read output file %s: %w", r.displayPath(path), err)
	}
	var out PipelineOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("cannot parse output JSON: %w", err)
	}
	if missing := out.MissingFields(); len(missing) > 0 {
		return &out, fmt.Errorf("pipeline output missing required fields: %s", strings.Join(missing, ", "))
	}
	return &out, nil
}

// run invokes `python -m <module> args...`. The CLI writes its result to
// outPath; stdout is ignored and only the tail of stderr is kept.
func (r *SubprocessRunner) run(ctx context.Context, outPath string, args ...string) RunResult {
	start := time.Now()
	if outPath != "" {
		if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
			return RunResult{ExitCode: -1, StderrTail: err.Error(), Duration: time.Since(start)}
		}
	}

	argv := append([]string{"-m", r.cfg.ModuleName}, args...)
	stderr := &tailBuffer{limit: maxStderrBytes}
	cmd := exec.CommandContext(ctx, r.python, argv...)
	cmd.Stdout = io.Discard
	cmd.Stderr = stderr

	r.cfg.Logger.Debug("executing pipeline command", "args", argv)
	res := RunResult{
		ExitCode:   exitCode(cmd.Run()),
		OutputPath: outPath,
		Duration:   time.Since(start),
	}
	res.StderrTail = stderr.String()

	if res.IsSuccess() {
		r.cfg.Logger.Info("pipeline command succeeded",
			"command", args[0],
			"duration_ms", res.Duration.Milliseconds(),
			"output", r.displayPath(outPath),
		)
	} else {
		r.cfg.Logger.Warn("pipeline command failed",
			"command", args[0],
			"exit_code", res.ExitCode,
			"duration_ms", res.Duration.Milliseconds(),
			"stderr_tail", truncate(res.StderrTail, 512),
		)
	}
	return res
}

// exitCode maps a Run error to a process exit code. Failures to start or
// context kills report -1.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		return exitErr.ExitCode()
	}
	return -1
}

func (r *SubprocessRunner) displayPath(path string) string {
	if r.cfg.DebugPaths || path == "" {
		return path
	}
	return logging.SanitizePath(path)
}

// resolvePython finds a usable python binary.
func resolvePython(preferred string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured python %q not found", preferred)
	}
	for _, name := range []string{"python3", "python"} {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no python binary found on PATH (tried python3, python)")
}

func isAvailable(deps map[string]DepInfo, name string) bool {
	d, ok := deps[name]
	return ok && d.Available
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	buf   []byte
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string { return string(t.buf) }
