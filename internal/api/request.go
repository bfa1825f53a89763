package api

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/easyclips/easyclips-agent/internal/captions"
	"github.com/easyclips/easyclips-agent/internal/editor"
	"github.com/easyclips/easyclips-agent/internal/export"
	"github.com/easyclips/easyclips-agent/internal/ffmpeg"
	"github.com/easyclips/easyclips-agent/internal/library"
	"github.com/easyclips/easyclips-agent/internal/playback"
	"github.com/easyclips/easyclips-agent/internal/timeline"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json names instead of Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON reads a JSON body into dst and validates it. On failure it
// writes a 400 and returns false. An empty body is accepted when allowEmpty.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return false
		}
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return false
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "validation failed",
			Code:   "BAD_REQUEST",
			Fields: fields,
		})
		return false
	}
	return true
}

// writeServiceError maps domain errors onto HTTP responses.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var fieldErr *editor.FieldError
	switch {
	case errors.Is(err, library.ErrMediaNotFound),
		errors.Is(err, playback.ErrMediaNotFound),
		errors.Is(err, timeline.ErrClipNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")

	case errors.Is(err, export.ErrExportInProgress),
		errors.Is(err, export.ErrUndismissedError),
		errors.Is(err, captions.ErrInFlight),
		errors.Is(err, timeline.ErrGestureActive):
		WriteError(w, http.StatusConflict, err.Error(), "CONFLICT")

	case errors.Is(err, export.ErrNoRenderer):
		WriteError(w, http.StatusServiceUnavailable, err.Error(), "UNAVAILABLE")

	case errors.As(err, &fieldErr):
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  err.Error(),
			Code:   "BAD_REQUEST",
			Fields: map[string]string{fieldErr.Field: fieldErr.Reason},
		})

	case errors.Is(err, editor.ErrInvalidClip),
		errors.Is(err, editor.ErrInvalidAudioTrack),
		errors.Is(err, editor.ErrInvalidCaption),
		errors.Is(err, editor.ErrInvalidPatch),
		errors.Is(err, editor.ErrUnknownAspectRatio),
		errors.Is(err, editor.ErrInvalidDimensions),
		errors.Is(err, library.ErrUnsupportedMedia),
		errors.Is(err, library.ErrNotAFile),
		errors.Is(err, fs.ErrNotExist),
		errors.Is(err, ffmpeg.ErrNoDuration),
		errors.Is(err, export.ErrEmptyTimeline),
		errors.Is(err, export.ErrUnknownPlatform),
		errors.Is(err, export.ErrUnknownQuality),
		errors.Is(err, export.ErrInvalidOutputDir),
		errors.Is(err, captions.ErrNoSource),
		errors.Is(err, timeline.ErrUnknownTrack):
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")

	default:
		logger.Error("request failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal error", "INTERNAL_ERROR")
	}
}
