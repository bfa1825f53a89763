package api

import (
	"time"

	"github.com/easyclips/easyclips-agent/internal/editor"
	"github.com/easyclips/easyclips-agent/internal/export"
	"github.com/easyclips/easyclips-agent/internal/library"
	"github.com/easyclips/easyclips-agent/internal/timeline"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	UptimeS  int64  `json:"uptime_s"`
	DeviceID string `json:"device_id"`
}

type StatusResponse struct {
	// State is one of idle, exporting, transcribing, error.
	State         string                  `json:"state"`
	LastError     string                  `json:"last_error,omitempty"`
	MediaCount    int                     `json:"media_count"`
	ClipCount     int                     `json:"clip_count"`
	Export        editor.ExportState      `json:"export"`
	CaptionStatus editor.CaptionStatus    `json:"caption_status"`
	ActiveJob     *JobResponse            `json:"active_job,omitempty"`
	Pipelines     *PipelineStatusResponse `json:"pipelines,omitempty"`
}

type PipelineStatusResponse struct {
	HasSpeech   bool   `json:"has_speech"`
	HasFFmpeg   bool   `json:"has_ffmpeg"`
	LastProbeAt string `json:"last_probe_at,omitempty"`
	DepsAvail   int    `json:"deps_available"`
	DepsTotal   int    `json:"deps_total"`
}

type ImportRequest struct {
	Path string `json:"path" validate:"required"`
}

type ImportVideoResponse struct {
	Media *library.Media   `json:"media"`
	Clip  editor.VideoClip `json:"clip"`
}

type ImportAudioResponse struct {
	Media *library.Media    `json:"media"`
	Track editor.AudioTrack `json:"track"`
}

type MediaListResponse struct {
	Media []*library.Media `json:"media"`
}

type SplitRequest struct {
	// Time defaults to the playback cursor.
	Time *float64 `json:"time,omitempty" validate:"omitempty,gte=0"`
}

type SplitResponse struct {
	Split     bool   `json:"split"`
	NewClipID string `json:"new_clip_id,omitempty"`
}

type MoveRequest struct {
	DeltaPx float64 `json:"delta_px"`
}

type TrimRequest struct {
	Edge    timeline.Edge `json:"edge" validate:"required,oneof=start end"`
	DeltaPx float64       `json:"delta_px"`
}

type CaptionRequest struct {
	Text      string  `json:"text" validate:"required"`
	StartTime float64 `json:"start_time" validate:"gte=0"`
	EndTime   float64 `json:"end_time" validate:"gtfield=StartTime"`
	Style     string  `json:"style" validate:"omitempty,oneof=default bold minimal"`
	Anchor    string  `json:"position" validate:"omitempty,oneof=top center bottom"`
	Color     string  `json:"color" validate:"omitempty,hexcolor"`
	FontSize  int     `json:"font_size" validate:"omitempty,gte=8,lte=200"`
}

func (r CaptionRequest) toCaption() editor.Caption {
	c := editor.Caption{
		Text:      r.Text,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		Style:     editor.CaptionStyle(r.Style),
		Anchor:    editor.CaptionAnchor(r.Anchor),
		Color:     r.Color,
		FontSize:  r.FontSize,
	}
	if c.Style == "" {
		c.Style = editor.StyleDefault
	}
	if c.Anchor == "" {
		c.Anchor = editor.AnchorBottom
	}
	if c.Color == "" {
		c.Color = editor.DefaultCaptionColor
	}
	if c.FontSize == 0 {
		c.FontSize = editor.DefaultCaptionFontSize
	}
	return c
}

type GenerateCaptionsResponse struct {
	Status string               `json:"status"`
	Source string               `json:"source"`
	Stage  editor.CaptionStatus `json:"caption_status"`
}

type AspectRatioRequest struct {
	AspectRatio string `json:"aspect_ratio" validate:"required"`
}

type DimensionsRequest struct {
	Width  int `json:"width" validate:"required,gt=0,lte=7680"`
	Height int `json:"height" validate:"required,gt=0,lte=7680"`
}

// SeekRequest moves the cursor either to a time or to a pixel offset.
type SeekRequest struct {
	Seconds     *float64 `json:"seconds,omitempty" validate:"required_without=Pixel,omitempty,gte=0"`
	Pixel       *float64 `json:"pixel,omitempty" validate:"required_without=Seconds,omitempty,gte=0"`
	ClientWidth *float64 `json:"client_width,omitempty" validate:"omitempty,gt=0"`
	ScrollLeft  *float64 `json:"scroll_left,omitempty" validate:"omitempty,gte=0"`
}

type SeekResponse struct {
	Time  float64        `json:"time"`
	Frame timeline.Frame `json:"frame"`
}

// ScrubRequest drags the playhead from one timeline pixel to another.
type ScrubRequest struct {
	FromPx float64 `json:"from_px" validate:"gte=0"`
	ToPx   float64 `json:"to_px" validate:"gte=0"`
}

type TrackResizeRequest struct {
	DeltaPx float64 `json:"delta_px"`
}

type TrackResizeResponse struct {
	Track  timeline.TrackKind `json:"track"`
	Height float64            `json:"height"`
}

type ZoomRequest struct {
	Direction   timeline.ZoomDirection `json:"direction" validate:"required,oneof=in out"`
	ClientWidth *float64               `json:"client_width,omitempty" validate:"omitempty,gt=0"`
}

type RulerResponse struct {
	Ruler        timeline.Ruler                 `json:"ruler"`
	Viewport     timeline.Viewport              `json:"viewport"`
	Markers      []timeline.Marker              `json:"markers"`
	TrackHeights map[timeline.TrackKind]float64 `json:"track_heights"`
}

type KeyRequest struct {
	Key string `json:"key" validate:"required"`
}

type KeyResponse struct {
	Handled bool `json:"handled"`
}

type PlayRequest struct {
	Playing bool `json:"playing"`
}

type TickRequest struct {
	Elapsed float64 `json:"elapsed" validate:"gte=0,lte=10"`
}

type PresetsResponse struct {
	Platforms       []export.Platform `json:"platforms"`
	Qualities       []export.Quality  `json:"qualities"`
	DefaultPlatform string            `json:"default_platform"`
	DefaultQuality  string            `json:"default_quality"`
}

type ExportStartResponse struct {
	JobID string `json:"job_id"`
}

type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

type JobResponse struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	Subject   string `json:"subject,omitempty"`
	Progress  int    `json:"progress"`
	Error     string `json:"error,omitempty"`
	Output    string `json:"output,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	// Fields lists per-field validation failures.
	Fields map[string]string `json:"fields,omitempty"`
}

func JobToResponse(j *library.Job) JobResponse {
	return JobResponse{
		ID:        j.ID,
		Type:      j.Type,
		Status:    j.Status,
		Subject:   j.Subject,
		Progress:  j.Progress,
		Error:     j.Error,
		Output:    j.Output,
		CreatedAt: j.CreatedAt.Format(time.RFC3339),
		UpdatedAt: j.UpdatedAt.Format(time.RFC3339),
	}
}
