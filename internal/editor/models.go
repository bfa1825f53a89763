package editor

import (
	"errors"
	"math"
)

// MinClipDuration is the shortest trimmed length, in seconds, any clip may have.
const MinClipDuration = 0.1

// epsilon absorbs float drift from repeated pixel/second conversions.
const epsilon = 1e-9

var (
	ErrInvalidClip        = errors.New("invalid video clip")
	ErrInvalidAudioTrack  = errors.New("invalid audio track")
	ErrInvalidCaption     = errors.New("invalid caption")
	ErrInvalidPatch       = errors.New("invalid patch")
	ErrUnknownAspectRatio = errors.New("unknown aspect ratio")
	ErrInvalidDimensions  = errors.New("canvas dimensions must be positive")
)

// MediaRef points at externally owned media. The model never reads through it.
type MediaRef struct {
	ID   string `json:"id"`
	Path string `json:"path"`
	Name string `json:"name,omitempty"`
	// Silent marks media without an audio stream.
	Silent bool `json:"silent,omitempty"`
}

type VideoClip struct {
	ID             string   `json:"id"`
	Source         MediaRef `json:"source"`
	SourceDuration float64  `json:"source_duration"`
	TrimStart      float64  `json:"trim_start"`
	TrimEnd        float64  `json:"trim_end"`
	Position       float64  `json:"position"`
	Track          int      `json:"track"`
}

// Duration is the trimmed length of the clip.
func (c VideoClip) Duration() float64 {
	return c.TrimEnd - c.TrimStart
}

// End is the timeline time at which the clip stops playing.
func (c VideoClip) End() float64 {
	return c.Position + c.Duration()
}

// Contains reports whether timeline time t falls inside [Position, End).
func (c VideoClip) Contains(t float64) bool {
	return t >= c.Position && t < c.End()
}

type AudioTrack struct {
	ID       string   `json:"id"`
	Source   MediaRef `json:"source"`
	Duration float64  `json:"duration"`
	Volume   float64  `json:"volume"`
	Position float64  `json:"position"`
	Track    int      `json:"track"`
}

func (a AudioTrack) End() float64 {
	return a.Position + a.Duration
}

type CaptionStyle string

const (
	StyleDefault CaptionStyle = "default"
	StyleBold    CaptionStyle = "bold"
	StyleMinimal CaptionStyle = "minimal"
)

func (s CaptionStyle) Valid() bool {
	switch s {
	case StyleDefault, StyleBold, StyleMinimal:
		return true
	}
	return false
}

type CaptionAnchor string

const (
	AnchorTop    CaptionAnchor = "top"
	AnchorCenter CaptionAnchor = "center"
	AnchorBottom CaptionAnchor = "bottom"
)

func (a CaptionAnchor) Valid() bool {
	switch a {
	case AnchorTop, AnchorCenter, AnchorBottom:
		return true
	}
	return false
}

type Caption struct {
	ID        string        `json:"id"`
	Text      string        `json:"text"`
	StartTime float64       `json:"start_time"`
	EndTime   float64       `json:"end_time"`
	Style     CaptionStyle  `json:"style"`
	Anchor    CaptionAnchor `json:"position"`
	Color     string        `json:"color"`
	FontSize  int           `json:"font_size"`
}

// Defaults applied to captions produced by transcription.
const (
	DefaultCaptionColor    = "#ffffff"
	DefaultCaptionFontSize = 16
)

type CaptionStage string

const (
	StageIdle         CaptionStage = "idle"
	StageLoadingModel CaptionStage = "loading-model"
	StageTranscribing CaptionStage = "transcribing"
	StageSuccess      CaptionStage = "success"
	StageError        CaptionStage = "error"
)

// CaptionStatus is the caption generation state shown to the user.
// An error status always carries a message.
type CaptionStatus struct {
	Stage   CaptionStage `json:"stage"`
	Message string       `json:"message,omitempty"`
}

type Playback struct {
	CurrentTime float64 `json:"current_time"`
	IsPlaying   bool    `json:"is_playing"`
}

type AspectRatio string

const (
	Aspect16x9   AspectRatio = "16:9"
	Aspect9x16   AspectRatio = "9:16"
	Aspect1x1    AspectRatio = "1:1"
	Aspect4x3    AspectRatio = "4:3"
	AspectCustom AspectRatio = "custom"
)

type Canvas struct {
	Width       int         `json:"width"`
	Height      int         `json:"height"`
	AspectRatio AspectRatio `json:"aspect_ratio"`
}

var aspectPresets = map[AspectRatio]Canvas{
	Aspect16x9: {Width: 1920, Height: 1080, AspectRatio: Aspect16x9},
	Aspect9x16: {Width: 1080, Height: 1920, AspectRatio: Aspect9x16},
	Aspect1x1:  {Width: 1080, Height: 1080, AspectRatio: Aspect1x1},
	Aspect4x3:  {Width: 1440, Height: 1080, AspectRatio: Aspect4x3},
}

type ExportState struct {
	IsExporting bool   `json:"is_exporting"`
	Progress    int    `json:"progress"`
	Error       string `json:"error,omitempty"`
}

// State is a point-in-time copy of everything the model owns.
type State struct {
	Revision       uint64        `json:"revision"`
	VideoClips     []VideoClip   `json:"video_clips"`
	AudioTracks    []AudioTrack  `json:"audio_tracks"`
	Captions       []Caption     `json:"captions"`
	SelectedClipID string        `json:"selected_clip_id,omitempty"`
	Playback       Playback      `json:"playback"`
	Canvas         Canvas        `json:"canvas"`
	Export         ExportState   `json:"export"`
	CaptionStatus  CaptionStatus `json:"caption_status"`
}

// ContentDuration is the furthest end time of any clip or audio track.
func (s State) ContentDuration() float64 {
	end := 0.0
	for _, c := range s.VideoClips {
		end = math.Max(end, c.End())
	}
	for _, a := range s.AudioTracks {
		end = math.Max(end, a.End())
	}
	return end
}

// FindClip returns the clip with id, if present.
func (s State) FindClip(id string) (VideoClip, bool) {
	for _, c := range s.VideoClips {
		if c.ID == id {
			return c, true
		}
	}
	return VideoClip{}, false
}

func initialState() State {
	return State{
		VideoClips:    []VideoClip{},
		AudioTracks:   []AudioTrack{},
		Captions:      []Caption{},
		Canvas:        aspectPresets[Aspect16x9],
		CaptionStatus: CaptionStatus{Stage: StageIdle},
	}
}

func (s State) clone() State {
	out := s
	out.VideoClips = append([]VideoClip(nil), s.VideoClips...)
	out.AudioTracks = append([]AudioTrack(nil), s.AudioTracks...)
	out.Captions = append([]Caption(nil), s.Captions...)
	if out.VideoClips == nil {
		out.VideoClips = []VideoClip{}
	}
	if out.AudioTracks == nil {
		out.AudioTracks = []AudioTrack{}
	}
	if out.Captions == nil {
		out.Captions = []Caption{}
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
