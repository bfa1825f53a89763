// Package cloud talks to a remote speech-to-text service. It is the
// alternative to the local whisper pipeline when TRANSCRIBE_URL is set.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/easyclips/easyclips-agent/internal/captions"
)

const (
	transcriptionsPath = "/v1/audio/transcriptions"
	defaultModel       = "whisper-1"
	maxAttempts        = 3
)

// StatusError is a non-2xx reply from the transcription service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transcription upload failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx) and rate limiting.
// Other client errors (4xx) are considered permanent.
func (e *StatusError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// HTTPClient uploads media to a remote transcription service and returns
// the timed segments. It satisfies captions.Transcriber.
type HTTPClient struct {
	baseURL    string
	token      string
	model      string
	deviceID   string
	httpClient *http.Client
	logger     *slog.Logger
	backoff    time.Duration
}

func NewHTTPClient(baseURL, token, model string, logger *slog.Logger) *HTTPClient {
	if model == "" {
		model = defaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		model:   model,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
		logger:  logger,
		backoff: time.Second,
	}
}

func (c *HTTPClient) SetDeviceID(id string) {
	c.deviceID = id
}

// Transcribe uploads src and retries transient failures.
func (c *HTTPClient) Transcribe(ctx context.Context, src captions.Source) (captions.Transcript, error) {
	if src.Path == "" {
		return captions.Transcript{}, fmt.Errorf("media %s has no local file", src.MediaID)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		t, err := c.transcribeOnce(ctx, src)
		if err == nil {
			return t, nil
		}
		lastErr = err

		var statusErr *StatusError
		if !errors.As(err, &statusErr) || !statusErr.IsRetryable() || attempt == maxAttempts {
			break
		}
		wait := c.backoff * time.Duration(attempt)
		c.logger.Warn("transcription attempt failed, retrying",
			"attempt", attempt,
			"status", statusErr.StatusCode,
			"wait_ms", wait.Milliseconds(),
		)
		select {
		case <-ctx.Done():
			return captions.Transcript{}, ctx.Err()
		case <-time.After(wait):
		}
	}
	return captions.Transcript{}, lastErr
}

func (c *HTTPClient) transcribeOnce(ctx context.Context, src captions.Source) (captions.Transcript, error) {
	f, err := os.Open(src.Path)
	if err != nil {
		return captions.Transcript{}, fmt.Errorf("open media: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("model", c.model)
	mw.WriteField("response_format", "verbose_json")
	mw.WriteField("timestamp_granularities[]", "segment")
	part, err := mw.CreateFormFile("file", filepath.Base(src.Path))
	if err != nil {
		return captions.Transcript{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return captions.Transcript{}, fmt.Errorf("read media: %w", err)
	}
	if err := mw.Close(); err != nil {
		return captions.Transcript{}, fmt.Errorf("close form: %w", err)
	}

	url := c.baseURL + transcriptionsPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return captions.Transcript{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("X-Easyclips-Request-Id", uuid.NewString())
	if c.deviceID != "" {
		req.Header.Set("X-Easyclips-Device-Id", c.deviceID)
	}

	c.logger.Info("uploading media for transcription",
		"url", url,
		"media_id", src.MediaID,
		"kind", src.Kind,
		"body", humanize.Bytes(uint64(body.Len())),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return captions.Transcript{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return captions.Transcript{}, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result transcriptionResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 16<<20)).Decode(&result); err != nil {
		return captions.Transcript{}, fmt.Errorf("decode transcription response: %w", err)
	}

	t := captions.Transcript{Language: result.Language, Segments: make([]captions.Segment, 0, len(result.Segments))}
	for _, s := range result.Segments {
		t.Segments = append(t.Segments, captions.Segment{
			Text:  s.Text,
			Start: seconds(s.Start),
			End:   seconds(s.End),
		})
	}
	c.logger.Info("transcription received", "media_id", src.MediaID, "segments", len(t.Segments))
	return t, nil
}

type transcriptionResponse struct {
	Language string `json:"language"`
	Segments []struct {
		Start any    `json:"start"`
		End   any    `json:"end"`
		Text  string `json:"text"`
	} `json:"segments"`
}

// seconds accepts the number or numeric-string forms services return.
func seconds(v any) *float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		p, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return nil
		}
		f = p
	default:
		return nil
	}
	return &f
}
