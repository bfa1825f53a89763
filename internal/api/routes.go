package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/easyclips/easyclips-agent/internal/editor"
	"github.com/easyclips/easyclips-agent/internal/library"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r, _ := newRouter(cfg)
	return r
}

func newRouter(cfg ServerConfig) (*chi.Mux, *hub) {
	r := chi.NewRouter()
	h := newHub(cfg.Bus, cfg.Model, cfg.Logger)

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))

	// <video> elements cannot send headers; media ids are unguessable and
	// the file route only answers this machine.
	r.With(LoopbackGuard()).Method(http.MethodGet, "/playback/file", playbackFileHandler(cfg))
	r.With(LoopbackGuard()).Method(http.MethodHead, "/playback/file", playbackFileHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Token, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Get("/ws", h.serveWS)

		r.Get("/project", getProjectHandler(cfg))
		r.Post("/project/reset", resetProjectHandler(cfg))

		r.Get("/media", listMediaHandler(cfg))
		r.Post("/media/video", importVideoHandler(cfg))
		r.Post("/media/audio", importAudioHandler(cfg))

		r.Route("/clips/{id}", func(r chi.Router) {
			r.Patch("/", updateClipHandler(cfg))
			r.Delete("/", deleteClipHandler(cfg))
			r.Post("/split", splitClipHandler(cfg))
			r.Post("/move", moveClipHandler(cfg))
			r.Post("/trim", trimClipHandler(cfg))
			r.Post("/select", selectClipHandler(cfg))
		})

		r.Patch("/audio/{id}", updateAudioHandler(cfg))
		r.Delete("/audio/{id}", deleteAudioHandler(cfg))

		r.Post("/captions", addCaptionHandler(cfg))
		r.Post("/captions/generate", generateCaptionsHandler(cfg))
		r.Patch("/captions/{id}", updateCaptionHandler(cfg))
		r.Delete("/captions/{id}", deleteCaptionHandler(cfg))

		r.Put("/canvas/aspect-ratio", aspectRatioHandler(cfg))
		r.Put("/canvas/dimensions", dimensionsHandler(cfg))

		r.Post("/timeline/seek", seekHandler(cfg))
		r.Post("/timeline/scrub", scrubHandler(cfg))
		r.Post("/timeline/tracks/{kind}/resize", resizeTrackHandler(cfg))
		r.Post("/timeline/zoom", zoomHandler(cfg))
		r.Get("/timeline/ruler", rulerHandler(cfg))
		r.Post("/timeline/markers", addMarkerHandler(cfg))
		r.Post("/timeline/keys", keyHandler(cfg))

		r.Post("/playback/state", playStateHandler(cfg))
		r.Post("/playback/tick", tickHandler(cfg))

		r.Get("/export/presets", exportPresetsHandler(cfg))
		r.Get("/export/plan", exportPlanHandler(cfg))
		r.Post("/export", startExportHandler(cfg))
		r.Post("/export/cancel", cancelExportHandler(cfg))
		r.Post("/export/dismiss", dismissExportHandler(cfg))
		r.Post("/export/edl", exportEDLHandler(cfg))

		r.Get("/jobs", listJobsHandler(cfg))
		r.Get("/jobs/{id}", getJobHandler(cfg))
	})

	return r, h
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		version := cfg.Version
		if version == "" {
			version = "dev"
		}
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:   "ok",
			Version:  version,
			UptimeS:  uptime,
			DeviceID: cfg.DeviceID,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		snap := cfg.Model.Snapshot()

		resp := StatusResponse{
			State:         "idle",
			ClipCount:     len(snap.VideoClips),
			Export:        snap.Export,
			CaptionStatus: snap.CaptionStatus,
		}

		switch {
		case cfg.Export != nil && cfg.Export.Running():
			resp.State = "exporting"
		case cfg.Captions != nil && cfg.Captions.InFlight():
			resp.State = "transcribing"
		case snap.Export.Error != "":
			resp.State = "error"
			resp.LastError = snap.Export.Error
		case snap.CaptionStatus.Stage == editor.StageError:
			resp.State = "error"
			resp.LastError = snap.CaptionStatus.Message
		}

		if cfg.Library != nil {
			resp.MediaCount, _ = cfg.Library.CountMedia(ctx)
			jobs, _ := cfg.Library.ListJobs(ctx, "", 10)
			for _, j := range jobs {
				if j.Status == library.JobStatusRunning {
					jr := JobToResponse(j)
					resp.ActiveJob = &jr
					break
				}
			}
		}

		if cfg.Doctor != nil {
			if caps := cfg.Doctor.Peek(); caps != nil {
				ps := &PipelineStatusResponse{
					HasSpeech: caps.HasSpeech,
					HasFFmpeg: caps.HasFFmpeg,
					DepsAvail: caps.Summary.Available,
					DepsTotal: caps.Summary.Total,
				}
				if !caps.ProbedAt.IsZero() {
					ps.LastProbeAt = caps.ProbedAt.Format(time.RFC3339)
				}
				resp.Pipelines = ps
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func getProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cfg.Model.Snapshot())
	}
}

// resetProjectHandler clears the timeline. Imported media stays in the library.
func resetProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Export != nil && cfg.Export.Running() {
			WriteError(w, http.StatusConflict, "an export is running", "CONFLICT")
			return
		}
		if cfg.Captions != nil {
			cfg.Captions.Reset()
		}
		cfg.Model.Reset()
		if cfg.Timeline != nil {
			cfg.Timeline.Reset()
		}
		WriteJSON(w, http.StatusOK, cfg.Model.Snapshot())
	}
}

func listMediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := library.MediaKind(r.URL.Query().Get("kind"))
		if kind != "" && kind != library.KindVideo && kind != library.KindAudio {
			WriteError(w, http.StatusBadRequest, "kind must be video or audio", "BAD_REQUEST")
			return
		}
		media, err := cfg.Library.ListMedia(r.Context(), kind)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		if media == nil {
			media = []*library.Media{}
		}
		WriteJSON(w, http.StatusOK, MediaListResponse{Media: media})
	}
}

func importVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ImportRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		media, clip, err := cfg.Library.ImportVideo(r.Context(), req.Path)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, ImportVideoResponse{Media: media, Clip: clip})
	}
}

func importAudioHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ImportRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		media, track, err := cfg.Library.ImportAudio(r.Context(), req.Path)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, ImportAudioResponse{Media: media, Track: track})
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > 500 {
				WriteError(w, http.StatusBadRequest, "limit must be between 1 and 500", "BAD_REQUEST")
				return
			}
			limit = n
		}

		jobs, err := cfg.Library.ListJobs(r.Context(), r.URL.Query().Get("type"), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list jobs", "INTERNAL_ERROR")
			return
		}

		resp := JobsResponse{Jobs: make([]JobResponse, len(jobs))}
		for i, j := range jobs {
			resp.Jobs[i] = JobToResponse(j)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "job id required", "BAD_REQUEST")
			return
		}

		job, err := cfg.Library.GetJob(r.Context(), id)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		if job == nil {
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}

		WriteJSON(w, http.StatusOK, JobToResponse(job))
	}
}

func playbackFileHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.PlaybackServer == nil {
			WriteError(w, http.StatusServiceUnavailable, "playback unavailable", "UNAVAILABLE")
			return
		}
		cfg.PlaybackServer.ServeHTTP(w, r)
	}
}
