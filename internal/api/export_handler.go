package api

import (
	"net/http"

	"github.com/easyclips/easyclips-agent/internal/export"
)

func exportPresetsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, PresetsResponse{
			Platforms:       export.Platforms(),
			Qualities:       export.Qualities(),
			DefaultPlatform: export.DefaultPlatform,
			DefaultQuality:  export.DefaultQuality,
		})
	}
}

// exportPlanHandler shows what an export would run without starting it.
func exportPlanHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := export.Request{
			Platform: r.URL.Query().Get("platform"),
			Quality:  r.URL.Query().Get("quality"),
		}
		plan, err := cfg.Export.Plan(req)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, plan)
	}
}

func startExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req export.Request
		if !decodeJSON(w, r, &req, true) {
			return
		}
		jobID, err := cfg.Export.Start(r.Context(), req)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusAccepted, ExportStartResponse{JobID: jobID})
	}
}

func cancelExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, CancelResponse{Cancelled: cfg.Export.Cancel()})
	}
}

func dismissExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Export.DismissError()
		w.WriteHeader(http.StatusNoContent)
	}
}

// exportEDLHandler writes the timeline as a CMX3600 edit decision list for
// editing tools that cannot open the project.
func exportEDLHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req export.EDLRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		resp, err := cfg.Export.WriteEDL(req)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}
