// Package playback streams imported media to the browser preview with HTTP
// Range support.
package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var ErrMediaNotFound = errors.New("media not found")

// PlaybackService serves a file, honouring a single byte range.
type PlaybackService interface {
	ServeFile(w http.ResponseWriter, r *http.Request, filePath string) error
}

// Resolver maps a media id to a local file path.
type Resolver func(ctx context.Context, mediaID string) (string, error)

// extra types mime does not know on every platform
var mediaTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
}

type Server struct {
	resolve Resolver
	logger  *slog.Logger
}

func NewServer(resolve Resolver, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{resolve: resolve, logger: logger}
}

// ServeHTTP serves GET|HEAD /playback/file?media_id=.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mediaID := r.URL.Query().Get("media_id")
	if mediaID == "" {
		http.Error(w, "media_id is required", http.StatusBadRequest)
		return
	}
	if s.resolve == nil {
		http.Error(w, "playback unavailable", http.StatusServiceUnavailable)
		return
	}
	path, err := s.resolve(r.Context(), mediaID)
	if errors.Is(err, ErrMediaNotFound) {
		http.Error(w, "media not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("resolve media", "media_id", mediaID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if err := s.ServeFile(w, r, path); err != nil {
		s.logger.Error("playback error", "error", err, "media_id", mediaID)
	}
}

func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "file not found", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if stat.IsDir() {
		http.Error(w, "file not found", http.StatusNotFound)
		return nil
	}

	size := stat.Size()
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentType(filePath))
	w.Header().Set("Cache-Control", "no-cache")

	parsedRange, err := ParseRange(r.Header.Get("Range"), size)
	if err == ErrUnsatisfiable {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	}
	if err != nil && err != ErrInvalidRange {
		return err
	}

	// Malformed ranges fall back to the whole file.
	if parsedRange == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return nil
		}
		_, err := io.Copy(w, file)
		return ignoreClientGone(err)
	}

	w.Header().Set("Content-Length", strconv.FormatInt(parsedRange.ContentLength(), 10))
	w.Header().Set("Content-Range", parsedRange.ContentRange(size))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method == http.MethodHead {
		return nil
	}

	if _, err := file.Seek(parsedRange.Start, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}
	_, err = io.CopyN(w, file, parsedRange.ContentLength())
	return ignoreClientGone(err)
}

func contentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := mediaTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// The browser drops connections while scrubbing; that is not an error.
func ignoreClientGone(err error) error {
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	if strings.Contains(err.Error(), "broken pipe") || strings.Contains(err.Error(), "connection reset") {
		return nil
	}
	return err
}
