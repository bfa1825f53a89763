package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/easyclips/easyclips-agent/internal/captions"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func mediaFile(t *testing.T) captions.Source {
	t.Helper()
	p := filepath.Join(t.TempDir(), "voice.m4a")
	if err := os.WriteFile(p, []byte("fake audio bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	return captions.Source{Kind: captions.SourceAudio, MediaID: "m1", Path: p, Name: "voice.m4a"}
}

func newTestClient(url, token string) *HTTPClient {
	c := NewHTTPClient(url, token, "", testLogger())
	c.backoff = time.Millisecond
	return c
}

func TestHTTPClient_Transcribe_Success(t *testing.T) {
	var receivedAuth, receivedModel, receivedFile, receivedBody string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		receivedAuth = r.Header.Get("Authorization")

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		receivedModel = r.FormValue("model")
		f, hdr, err := r.FormFile("file")
		if err == nil {
			receivedFile = hdr.Filename
			b, _ := io.ReadAll(f)
			receivedBody = string(b)
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"language":"en","segments":[
			{"start":0,"end":1.2,"text":"hi"},
			{"start":"1.2","end":"2.5","text":"there"},
			{"start":null,"end":3,"text":"lost"}]}`)
	}))
	defer server.Close()

	tr, err := newTestClient(server.URL, "test-token").Transcribe(context.Background(), mediaFile(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if receivedAuth != "Bearer test-token" {
		t.Errorf("auth = %q, want %q", receivedAuth, "Bearer test-token")
	}
	if receivedModel != "whisper-1" {
		t.Errorf("model = %q, want whisper-1", receivedModel)
	}
	if receivedFile != "voice.m4a" || receivedBody != "fake audio bytes" {
		t.Errorf("file = %q body = %q", receivedFile, receivedBody)
	}

	if tr.Language != "en" || len(tr.Segments) != 3 {
		t.Fatalf("transcript = %+v", tr)
	}
	if s := tr.Segments[1]; s.Start == nil || *s.Start != 1.2 || *s.End != 2.5 {
		t.Errorf("string times not parsed: %+v", s)
	}
	if tr.Segments[2].Start != nil {
		t.Error("null start should be nil")
	}
}

func TestStatusError_IsRetryable(t *testing.T) {
	if !(&StatusError{StatusCode: http.StatusInternalServerError}).IsRetryable() {
		t.Fatal("expected 5xx upload error to be retryable")
	}
	if !(&StatusError{StatusCode: http.StatusTooManyRequests}).IsRetryable() {
		t.Fatal("expected 429 upload error to be retryable")
	}
	if (&StatusError{StatusCode: http.StatusBadRequest}).IsRetryable() {
		t.Fatal("expected 4xx upload error to be permanent")
	}
}

func TestHTTPClient_Transcribe_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"segments": []map[string]any{{"start": 0, "end": 1, "text": "ok"}}})
	}))
	defer server.Close()

	tr, err := newTestClient(server.URL, "").Transcribe(context.Background(), mediaFile(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 3 || len(tr.Segments) != 1 {
		t.Errorf("calls = %d, segments = %d", calls.Load(), len(tr.Segments))
	}
}

func TestHTTPClient_Transcribe_Returns_StatusError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"unsupported file format"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, "test-token").Transcribe(context.Background(), mediaFile(t))
	if err == nil {
		t.Fatal("expected error for 400 response")
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %T", err)
	}
	if statusErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("status_code = %d, want %d", statusErr.StatusCode, http.StatusBadRequest)
	}
	if !strings.Contains(statusErr.Body, "unsupported file format") {
		t.Fatalf("body = %q", statusErr.Body)
	}
	if calls.Load() != 1 {
		t.Errorf("permanent error retried: %d calls", calls.Load())
	}
}

func TestHTTPClient_SendsCorrelationHeaders(t *testing.T) {
	var requestID, deviceID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID = r.Header.Get("X-Easyclips-Request-Id")
		deviceID = r.Header.Get("X-Easyclips-Device-Id")
		io.WriteString(w, `{"segments":[]}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL, "test-token")
	client.SetDeviceID("device-xyz")
	if _, err := client.Transcribe(context.Background(), mediaFile(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if requestID == "" {
		t.Fatal("expected X-Easyclips-Request-Id header")
	}
	if deviceID != "device-xyz" {
		t.Fatalf("device_id_header = %q, want %q", deviceID, "device-xyz")
	}
}

func TestHTTPClient_Transcribe_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"segments":[]}`)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := newTestClient(server.URL, "").Transcribe(ctx, mediaFile(t)); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestHTTPClient_Transcribe_MissingFile(t *testing.T) {
	c := newTestClient("http://127.0.0.1:1", "")
	if _, err := c.Transcribe(context.Background(), captions.Source{MediaID: "x"}); err == nil {
		t.Fatal("expected error for source without path")
	}
	if _, err := c.Transcribe(context.Background(), captions.Source{Path: "/does/not/exist.wav"}); err == nil {
		t.Fatal("expected error for unreadable file")
	}
}

func TestHTTPClient_ImplementsTranscriber(t *testing.T) {
	var _ captions.Transcriber = (*HTTPClient)(nil)
}
