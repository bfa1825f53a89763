// Package api is the local HTTP surface the browser editor talks to: edit
// commands, timeline gestures, media import, export and caption jobs, and a
// websocket stream of state changes.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/easyclips/easyclips-agent/internal/editor"
	"github.com/easyclips/easyclips-agent/internal/events"
	"github.com/easyclips/easyclips-agent/internal/export"
	"github.com/easyclips/easyclips-agent/internal/library"
	"github.com/easyclips/easyclips-agent/internal/pipelines"
	"github.com/easyclips/easyclips-agent/internal/timeline"
)

// Library is the media catalogue and job history.
type Library interface {
	ImportVideo(ctx context.Context, path string) (*library.Media, editor.VideoClip, error)
	ImportAudio(ctx context.Context, path string) (*library.Media, editor.AudioTrack, error)
	ListMedia(ctx context.Context, kind library.MediaKind) ([]*library.Media, error)
	CountMedia(ctx context.Context) (int, error)
	GetJob(ctx context.Context, id string) (*library.Job, error)
	ListJobs(ctx context.Context, jobType string, limit int) ([]*library.Job, error)
}

type Exporter interface {
	Plan(req export.Request) (export.Plan, error)
	Start(ctx context.Context, req export.Request) (string, error)
	Cancel() bool
	DismissError()
	Running() bool
	WriteEDL(req export.EDLRequest) (export.EDLResponse, error)
}

type CaptionGenerator interface {
	Generate(ctx context.Context) (int, error)
	InFlight() bool
	Reset()
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port     int
	Version  string
	Model    *editor.Model
	Timeline *timeline.Controller
	Library  Library
	Export   Exporter
	Captions CaptionGenerator
	// PlaybackServer serves GET /playback/file?media_id=.
	PlaybackServer http.Handler
	Bus            *events.Bus
	Doctor         *pipelines.CachedDoctor
	Token          TokenFunc
	Logger         *slog.Logger
	StartTime      time.Time
	DeviceID       string
}

func NewServer(cfg ServerConfig) *Server {
	router, h := newRouter(cfg)

	srv := &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			// playback streams and the websocket are long-lived
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
	srv.httpServer.RegisterOnShutdown(h.closeAll)
	return srv
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
