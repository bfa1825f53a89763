package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/easyclips/easyclips-agent/internal/captions"
	"github.com/easyclips/easyclips-agent/internal/editor"
)

func clipExists(s editor.State, id string) bool {
	_, ok := s.FindClip(id)
	return ok
}

func audioExists(s editor.State, id string) bool {
	for _, a := range s.AudioTracks {
		if a.ID == id {
			return true
		}
	}
	return false
}

func captionExists(s editor.State, id string) bool {
	for _, c := range s.Captions {
		if c.ID == id {
			return true
		}
	}
	return false
}

func updateClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !clipExists(cfg.Model.Snapshot(), id) {
			WriteError(w, http.StatusNotFound, "clip not found", "NOT_FOUND")
			return
		}
		var patch editor.VideoClipPatch
		if !decodeJSON(w, r, &patch, false) {
			return
		}
		if err := cfg.Model.UpdateVideoClip(id, patch); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		clip, _ := cfg.Model.Snapshot().FindClip(id)
		WriteJSON(w, http.StatusOK, clip)
	}
}

func deleteClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !clipExists(cfg.Model.Snapshot(), id) {
			WriteError(w, http.StatusNotFound, "clip not found", "NOT_FOUND")
			return
		}
		cfg.Model.RemoveVideoClip(id)
		w.WriteHeader(http.StatusNoContent)
	}
}

// splitClipHandler splits at req.Time, or at the cursor when omitted. A split
// too close to either edge is not an error; the response reports split=false.
func splitClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !clipExists(cfg.Model.Snapshot(), id) {
			WriteError(w, http.StatusNotFound, "clip not found", "NOT_FOUND")
			return
		}
		var req SplitRequest
		if !decodeJSON(w, r, &req, true) {
			return
		}

		var newID string
		var ok bool
		if req.Time != nil {
			newID, ok = cfg.Model.SplitVideoClip(id, *req.Time)
		} else {
			newID, ok = cfg.Timeline.SplitAtCursor(id)
		}
		WriteJSON(w, http.StatusOK, SplitResponse{Split: ok, NewClipID: newID})
	}
}

// moveClipHandler replays a whole drag: begin, one update, release.
func moveClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MoveRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		s, err := cfg.Timeline.BeginMove(chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		defer s.Close()

		if _, err := s.Update(req.DeltaPx); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		if err := s.End(); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		clip, _ := cfg.Model.Snapshot().FindClip(chi.URLParam(r, "id"))
		WriteJSON(w, http.StatusOK, clip)
	}
}

func trimClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TrimRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		id := chi.URLParam(r, "id")
		s, err := cfg.Timeline.BeginTrim(id, req.Edge)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		defer s.Close()

		if err := s.Update(req.DeltaPx); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		if err := s.End(); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		clip, _ := cfg.Model.Snapshot().FindClip(id)
		WriteJSON(w, http.StatusOK, clip)
	}
}

func selectClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !clipExists(cfg.Model.Snapshot(), id) {
			WriteError(w, http.StatusNotFound, "clip not found", "NOT_FOUND")
			return
		}
		cfg.Model.SetSelectedClip(id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func updateAudioHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !audioExists(cfg.Model.Snapshot(), id) {
			WriteError(w, http.StatusNotFound, "audio track not found", "NOT_FOUND")
			return
		}
		var patch editor.AudioTrackPatch
		if !decodeJSON(w, r, &patch, false) {
			return
		}
		if err := cfg.Model.UpdateAudioTrack(id, patch); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func deleteAudioHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !audioExists(cfg.Model.Snapshot(), id) {
			WriteError(w, http.StatusNotFound, "audio track not found", "NOT_FOUND")
			return
		}
		cfg.Model.RemoveAudioTrack(id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func addCaptionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CaptionRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		c, err := cfg.Model.AddCaption(req.toCaption())
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, c)
	}
}

func updateCaptionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !captionExists(cfg.Model.Snapshot(), id) {
			WriteError(w, http.StatusNotFound, "caption not found", "NOT_FOUND")
			return
		}
		var patch editor.CaptionPatch
		if !decodeJSON(w, r, &patch, false) {
			return
		}
		if err := cfg.Model.UpdateCaption(id, patch); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func deleteCaptionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !captionExists(cfg.Model.Snapshot(), id) {
			WriteError(w, http.StatusNotFound, "caption not found", "NOT_FOUND")
			return
		}
		cfg.Model.RemoveCaption(id)
		w.WriteHeader(http.StatusNoContent)
	}
}

// generateCaptionsHandler starts transcription in the background. Progress
// arrives as captions.status events and in the project caption_status.
func generateCaptionsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Captions == nil {
			WriteError(w, http.StatusServiceUnavailable, "caption generation unavailable", "UNAVAILABLE")
			return
		}
		if cfg.Captions.InFlight() {
			writeServiceError(w, cfg.Logger, captions.ErrInFlight)
			return
		}
		src, ok := captions.PickSource(cfg.Model.Snapshot())
		if !ok {
			writeServiceError(w, cfg.Logger, captions.ErrNoSource)
			return
		}

		ctx := context.WithoutCancel(r.Context())
		go func() {
			if _, err := cfg.Captions.Generate(ctx); err != nil {
				cfg.Logger.Warn("caption generation failed", "error", err)
			}
		}()

		WriteJSON(w, http.StatusAccepted, GenerateCaptionsResponse{
			Status: "started",
			Source: src.Name,
			Stage:  cfg.Model.Snapshot().CaptionStatus,
		})
	}
}

func aspectRatioHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AspectRatioRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		if err := cfg.Model.SetAspectRatio(editor.AspectRatio(req.AspectRatio)); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, cfg.Model.Snapshot().Canvas)
	}
}

func dimensionsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DimensionsRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		if err := cfg.Model.SetCanvasDimensions(req.Width, req.Height); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, cfg.Model.Snapshot().Canvas)
	}
}
