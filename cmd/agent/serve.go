package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/easyclips/easyclips-agent/internal/api"
	"github.com/easyclips/easyclips-agent/internal/captions"
	"github.com/easyclips/easyclips-agent/internal/cloud"
	"github.com/easyclips/easyclips-agent/internal/config"
	"github.com/easyclips/easyclips-agent/internal/db"
	"github.com/easyclips/easyclips-agent/internal/editor"
	"github.com/easyclips/easyclips-agent/internal/events"
	"github.com/easyclips/easyclips-agent/internal/export"
	"github.com/easyclips/easyclips-agent/internal/ffmpeg"
	"github.com/easyclips/easyclips-agent/internal/library"
	"github.com/easyclips/easyclips-agent/internal/logging"
	"github.com/easyclips/easyclips-agent/internal/pipelines"
	"github.com/easyclips/easyclips-agent/internal/playback"
	"github.com/easyclips/easyclips-agent/internal/render"
	"github.com/easyclips/easyclips-agent/internal/timeline"
	"github.com/easyclips/easyclips-agent/internal/ui"
)

func runServe(ctx context.Context) error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	for _, dir := range []string{cfg.DataDir(), cfg.ExportsDir(), cfg.WorkDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	logger, logCloser := logging.New(logging.Options{Level: cfg.LogLevel(), File: cfg.LogFile()})
	defer logCloser.Close()
	logger.Info("starting easyclips agent", "version", Version, "data_dir", cfg.DataDir())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := library.NewRepository(database.Conn())

	deviceID, err := ensureDeviceID(ctx, repo)
	if err != nil {
		return fmt.Errorf("failed to ensure device ID: %w", err)
	}

	bus := events.NewBus(logger)
	model := editor.NewModel(nil)
	model.OnChange(func(s editor.State) {
		bus.Publish(events.ProjectChanged, s)
	})

	ff, err := ffmpeg.New(ffmpeg.Config{
		FFmpegPath:  cfg.FFmpegPath(),
		FFprobePath: cfg.FFprobePath(),
		Logger:      logger,
	})
	var (
		prober   library.Prober
		renderer export.Renderer
	)
	if err != nil {
		logger.Warn("ffmpeg unavailable, import and export disabled", "error", err)
	} else {
		prober = ff
		renderer = render.NewFFmpegBackend(ff, cfg.WorkDir(), logger)
	}

	libSvc := library.NewService(repo, proberOrMissing(prober), model, bus, logger)

	authToken, err := libSvc.AuthToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}
	printBanner(cfg.Port(), authToken, deviceID)

	exportSvc := export.NewService(export.ServiceConfig{
		Model:      model,
		Renderer:   renderer,
		Jobs:       libSvc,
		Events:     bus,
		Logger:     logger,
		ExportsDir: cfg.ExportsDir(),
	})

	doctor, transcriber := speechStack(ctx, cfg, deviceID, logger)
	var captionGen api.CaptionGenerator
	if transcriber != nil {
		captionGen = captions.NewGenerator(model, transcriber, logger,
			captions.WithJobs(libSvc),
			captions.WithEvents(bus),
		)
	}

	tl := timeline.NewController(model, logger)

	playbackSrv := playback.NewServer(func(ctx context.Context, mediaID string) (string, error) {
		m, err := libSvc.GetMedia(ctx, mediaID)
		if errors.Is(err, library.ErrMediaNotFound) {
			return "", playback.ErrMediaNotFound
		}
		if err != nil {
			return "", err
		}
		return m.Path, nil
	}, logger)

	apiServer := api.NewServer(api.ServerConfig{
		Port:           cfg.Port(),
		Version:        Version,
		Model:          model,
		Timeline:       tl,
		Library:        libSvc,
		Export:         exportSvc,
		Captions:       captionGen,
		PlaybackServer: playbackSrv,
		Bus:            bus,
		Doctor:         doctor,
		Token:          libSvc.AuthToken,
		Logger:         logger,
		StartTime:      startTime,
		DeviceID:       deviceID,
	})

	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	quitCh := make(chan struct{})
	quit := func() {
		select {
		case <-quitCh:
		default:
			close(quitCh)
		}
	}

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			quit()
		case <-ctx.Done():
			quit()
		case <-quitCh:
		}
	}()

	var tray *ui.Tray
	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray = ui.NewTray(ui.TrayConfig{
			Bus:            bus,
			Logger:         logger,
			APIURL:         fmt.Sprintf("http://127.0.0.1:%d", cfg.Port()),
			OnCancelExport: exportSvc.Cancel,
			OnOpen:         openBrowser,
			OnQuit:         quit,
		})
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	exportSvc.Cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}
	if tray != nil {
		tray.Quit()
	}

	logger.Info("shutdown complete")
	return nil
}

// speechStack picks the transcriber: the remote service when
// EASYCLIPS_TRANSCRIBE_URL is set, otherwise the local Python pipeline. The
// doctor is nil when the pipeline cannot run.
func speechStack(ctx context.Context, cfg config.Config, deviceID string, logger *slog.Logger) (*pipelines.CachedDoctor, captions.Transcriber) {
	pipeCfg := pipelines.DefaultConfig(cfg.DataDir(), logger)
	pipeCfg.PythonPath = cfg.PipelinesPython()
	pipeCfg.ModuleName = cfg.PipelinesModule()
	pipeCfg.Model = cfg.TranscribeModel()
	pipeCfg.ArtifactsBase = cfg.ArtifactsDir()
	pipeCfg.DoctorTimeout = cfg.PipelinesTimeoutDoctor()
	pipeCfg.SpeechTimeout = cfg.PipelinesTimeoutSpeech()

	var doctor *pipelines.CachedDoctor
	var local captions.Transcriber

	pr, err := pipelines.NewRunner(pipeCfg)
	if err != nil {
		logger.Warn("speech pipeline unavailable", "error", err)
	} else {
		doctor = pipelines.NewCachedDoctor(pr, logger)

		initCtx, initCancel := context.WithTimeout(ctx, pipeCfg.DoctorTimeout)
		defer initCancel()
		if caps, err := doctor.Refresh(initCtx); err != nil {
			logger.Warn("initial doctor probe failed", "error", err)
		} else {
			logger.Info("pipeline capabilities detected",
				"speech", caps.HasSpeech,
				"ffmpeg", caps.HasFFmpeg,
				"deps", fmt.Sprintf("%d/%d", caps.Summary.Available, caps.Summary.Total),
			)
		}
		local = pipelines.NewWhisperTranscriber(pr, doctor, logger)
	}

	if url := cfg.TranscribeURL(); url != "" {
		client := cloud.NewHTTPClient(url, cfg.TranscribeToken(), cfg.TranscribeModel(), logger)
		client.SetDeviceID(deviceID)
		logger.Info("remote transcription enabled", "base_url", url)
		return doctor, client
	}
	return doctor, local
}

func ensureDeviceID(ctx context.Context, repo library.Repository) (string, error) {
	existing, err := repo.GetConfig(ctx, "device_id")
	if err == nil && existing != "" {
		return existing, nil
	}

	deviceID := uuid.NewString()
	if err := repo.SetConfig(ctx, "device_id", deviceID); err != nil {
		return "", err
	}
	return deviceID, nil
}

// missingProber fails every probe so imports report a clear error when ffmpeg
// is not installed.
type missingProber struct{}

func (missingProber) Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error) {
	return nil, errors.New("ffprobe is not installed")
}

func proberOrMissing(p library.Prober) library.Prober {
	if p == nil {
		return missingProber{}
	}
	return p
}

func printBanner(port int, token, deviceID string) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║                  EASY CLIPS AGENT v%-22s ║\n", Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", port)
	fmt.Printf("║  Auth Token: %-45s ║\n", token)
	fmt.Printf("║  Device ID:  %-45s ║\n", deviceID[:min(16, len(deviceID))]+"...")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
