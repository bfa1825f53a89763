package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/easyclips/easyclips-agent/internal/config"
	"github.com/easyclips/easyclips-agent/internal/editor"
	"github.com/easyclips/easyclips-agent/internal/events"
	"github.com/easyclips/easyclips-agent/internal/export"
	"github.com/easyclips/easyclips-agent/internal/ffmpeg"
	"github.com/easyclips/easyclips-agent/internal/library"
	"github.com/easyclips/easyclips-agent/internal/logging"
	"github.com/easyclips/easyclips-agent/internal/pipelines"
	"github.com/easyclips/easyclips-agent/internal/render"
)

type scriptFlags struct {
	file     string
	platform string
	quality  string
}

func (f *scriptFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "edit script (YAML)")
	cmd.Flags().StringVar(&f.platform, "platform", "", "export platform preset (overrides the script)")
	cmd.Flags().StringVar(&f.quality, "quality", "", "quality tier (overrides the script)")
	_ = cmd.MarkFlagRequired("file")
}

// request merges the flags over the script's own choice.
func (f *scriptFlags) request(s *editScript) export.Request {
	req := export.Request{Platform: s.Platform, Quality: s.Quality}
	if f.platform != "" {
		req.Platform = f.platform
	}
	if f.quality != "" {
		req.Quality = f.quality
	}
	return req
}

func newPlanCmd() *cobra.Command {
	var flags scriptFlags
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the export plan for an edit script",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadScript(flags.file)
			if err != nil {
				return err
			}
			var prober library.Prober
			if s.needsProbe() {
				ff, err := newExecutor(nil)
				if err != nil {
					return err
				}
				prober = ff
			}
			m := editor.NewModel(editor.NewSequenceIDs("script"))
			if err := s.apply(cmd.Context(), m, prober); err != nil {
				return err
			}
			plan, err := export.NewService(export.ServiceConfig{Model: m}).Plan(flags.request(s))
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), plan)
		},
	}
	flags.register(cmd)
	return cmd
}

func newRenderCmd() *cobra.Command {
	var (
		flags    scriptFlags
		output   string
		logLevel string
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render an edit script to a video file without the API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := logging.NewLogger(logLevel)
			s, err := loadScript(flags.file)
			if err != nil {
				return err
			}
			ff, err := newExecutor(logging.WithComponent(logger, "ffmpeg"))
			if err != nil {
				return err
			}

			m := editor.NewModel(editor.NewSequenceIDs("script"))
			if err := s.apply(ctx, m, ff); err != nil {
				return err
			}

			outDir, err := filepath.Abs(filepath.Dir(output))
			if err != nil {
				return err
			}
			workDir, err := os.MkdirTemp("", "easyclips-render-*")
			if err != nil {
				return err
			}
			defer os.RemoveAll(workDir)

			svc := export.NewService(export.ServiceConfig{
				Model:      m,
				Renderer:   render.NewFFmpegBackend(ff, workDir, logger),
				Events:     progressPrinter{w: cmd.ErrOrStderr()},
				Logger:     logger,
				ExportsDir: outDir,
			})
			res, err := svc.Run(ctx, flags.request(s))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr())

			final, err := filepath.Abs(output)
			if err != nil {
				return err
			}
			if res.Path != final {
				if err := os.Rename(res.Path, final); err != nil {
					return fmt.Errorf("move output: %w", err)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), final)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output video file")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Report what the speech pipeline can do on this machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger := logging.NewLogger("warn")

			pipeCfg := pipelines.DefaultConfig(cfg.DataDir(), logger)
			pipeCfg.PythonPath = cfg.PipelinesPython()
			pipeCfg.ModuleName = cfg.PipelinesModule()
			pipeCfg.DoctorTimeout = cfg.PipelinesTimeoutDoctor()

			runner, err := pipelines.NewRunner(pipeCfg)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), pipeCfg.DoctorTimeout)
			defer cancel()
			caps, err := runner.RunDoctor(ctx)
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), caps)
		},
	}
}

// newExecutor locates ffmpeg and ffprobe the way serve does.
func newExecutor(logger *slog.Logger) (*ffmpeg.Executor, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return ffmpeg.New(ffmpeg.Config{
		FFmpegPath:  cfg.FFmpegPath(),
		FFprobePath: cfg.FFprobePath(),
		Logger:      logger,
	})
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// progressPrinter draws export progress on one terminal line.
type progressPrinter struct {
	w io.Writer
}

func (p progressPrinter) Publish(eventType string, data any) {
	if eventType != events.ExportProgress {
		return
	}
	if d, ok := data.(map[string]any); ok {
		fmt.Fprintf(p.w, "\rrendering %3v%%", d["progress"])
	}
}
