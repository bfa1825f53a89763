package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/easyclips/easyclips-agent/internal/timeline"
)

func seekHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SeekRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		tl := cfg.Timeline
		if req.ClientWidth != nil {
			tl.SetClientWidth(*req.ClientWidth)
		}
		if req.ScrollLeft != nil {
			tl.SetScrollLeft(*req.ScrollLeft)
		}

		var t float64
		if req.Seconds != nil {
			t = tl.SeekTo(*req.Seconds)
		} else {
			t = tl.SeekToPixel(*req.Pixel)
		}
		WriteJSON(w, http.StatusOK, SeekResponse{Time: t, Frame: tl.Preview()})
	}
}

// scrubHandler replays a playhead drag. Unlike seek it leaves the selection alone.
func scrubHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ScrubRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		s, err := cfg.Timeline.BeginScrub(req.FromPx)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		defer s.Close()

		t, err := s.Update(req.ToPx)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		if err := s.End(); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, SeekResponse{Time: t, Frame: cfg.Timeline.Preview()})
	}
}

func resizeTrackHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TrackResizeRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		kind := timeline.TrackKind(chi.URLParam(r, "kind"))
		s, err := cfg.Timeline.BeginTrackResize(kind, 0)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		defer s.Close()

		h, err := s.Update(req.DeltaPx)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		if err := s.End(); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, TrackResizeResponse{Track: kind, Height: h})
	}
}

func zoomHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ZoomRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		if req.ClientWidth != nil {
			cfg.Timeline.SetClientWidth(*req.ClientWidth)
		}
		WriteJSON(w, http.StatusOK, cfg.Timeline.Zoom(req.Direction))
	}
}

func rulerHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tl := cfg.Timeline
		WriteJSON(w, http.StatusOK, RulerResponse{
			Ruler:        tl.Ruler(),
			Viewport:     tl.Viewport(),
			Markers:      tl.Markers(),
			TrackHeights: tl.TrackHeights(),
		})
	}
}

func addMarkerHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusCreated, cfg.Timeline.AddMarker())
	}
}

func keyHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req KeyRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		WriteJSON(w, http.StatusOK, KeyResponse{Handled: cfg.Timeline.HandleKey(req.Key)})
	}
}

func playStateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PlayRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		WriteJSON(w, http.StatusOK, cfg.Timeline.Play(req.Playing))
	}
}

// tickHandler advances playback by the wall time the client measured since
// its previous tick.
func tickHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TickRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		WriteJSON(w, http.StatusOK, cfg.Timeline.Tick(req.Elapsed))
	}
}
