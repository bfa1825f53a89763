// Package timeline translates pointer, keyboard and playback events into
// edit model mutations. All clamping of user-driven values happens here.
package timeline

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/easyclips/easyclips-agent/internal/editor"
	"github.com/easyclips/easyclips-agent/internal/timecode"
)

// MinClipSegment is the margin around clip edges inside which split is disabled.
const MinClipSegment = 0.1

const (
	TrackMinHeight = 64.0
	TrackMaxHeight = 260.0
)

type TrackKind string

const (
	TrackVideo    TrackKind = "video"
	TrackAudio    TrackKind = "audio"
	TrackCaptions TrackKind = "captions"
)

var defaultTrackHeights = map[TrackKind]float64{
	TrackVideo:    128,
	TrackAudio:    100,
	TrackCaptions: 80,
}

var (
	ErrGestureActive = errors.New("another gesture is already in progress")
	ErrGestureClosed = errors.New("gesture already finished")
	ErrClipNotFound  = errors.New("clip not found")
	ErrUnknownTrack  = errors.New("unknown track")
)

type Marker struct {
	ID    string  `json:"id"`
	Time  float64 `json:"time"`
	Label string  `json:"label"`
}

// Controller owns the viewport and transient interaction state for one editor.
type Controller struct {
	model  *editor.Model
	logger *slog.Logger

	mu           sync.Mutex
	view         Viewport
	active       *gesture
	markers      []Marker
	trackHeights map[TrackKind]float64
}

func NewController(model *editor.Model, logger *slog.Logger) *Controller {
	heights := make(map[TrackKind]float64, len(defaultTrackHeights))
	for k, v := range defaultTrackHeights {
		heights[k] = v
	}
	return &Controller{
		model:        model,
		logger:       logger,
		view:         Viewport{Zoom: timecode.DefaultZoom, ClientWidth: 1280},
		trackHeights: heights,
	}
}

func (c *Controller) Viewport() Viewport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// SetClientWidth records the visible width in pixels of the timeline.
func (c *Controller) SetClientWidth(width float64) {
	if width < 0 || math.IsNaN(width) {
		width = 0
	}
	c.mu.Lock()
	c.view.ClientWidth = width
	c.mu.Unlock()
}

func (c *Controller) SetScrollLeft(px float64) {
	if px < 0 || math.IsNaN(px) {
		px = 0
	}
	c.mu.Lock()
	c.view.ScrollLeft = px
	c.mu.Unlock()
}

// Duration is the effective timeline extent at the current zoom.
func (c *Controller) Duration() float64 {
	c.mu.Lock()
	zoom := c.view.Zoom
	c.mu.Unlock()
	return c.durationAt(c.model.Snapshot(), zoom)
}

func (c *Controller) durationAt(s editor.State, zoom float64) float64 {
	projected := timecode.ProjectedDuration(s.ContentDuration(), s.Playback.CurrentTime)
	return timecode.EffectiveDuration(projected, zoom)
}

// clampPixels converts a pixel offset to a time inside the visible timeline.
func (c *Controller) clampPixels(px float64) float64 {
	c.mu.Lock()
	zoom := c.view.Zoom
	c.mu.Unlock()
	return c.clampSeconds(timecode.PixelsToSeconds(px, zoom), zoom)
}

func (c *Controller) clampSeconds(t, zoom float64) float64 {
	if math.IsNaN(t) {
		return 0
	}
	limit := c.durationAt(c.model.Snapshot(), zoom)
	return math.Max(0, math.Min(t, limit))
}

// SeekToPixel handles a click on empty timeline: moves the cursor and clears the selection.
func (c *Controller) SeekToPixel(px float64) float64 {
	t := c.clampPixels(px)
	c.model.SetCurrentTime(t)
	c.model.SetSelectedClip("")
	return t
}

// SeekTo moves the cursor to a time in seconds, clamped to the timeline.
func (c *Controller) SeekTo(seconds float64) float64 {
	c.mu.Lock()
	zoom := c.view.Zoom
	c.mu.Unlock()
	t := c.clampSeconds(seconds, zoom)
	c.model.SetCurrentTime(t)
	return t
}

// Zoom steps the zoom level and recenters the scroll position on the cursor.
func (c *Controller) Zoom(dir ZoomDirection) Viewport {
	s := c.model.Snapshot()

	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.view.Zoom
	step := timecode.ZoomStep(prev)
	if dir == ZoomOut {
		step = -step
	}
	next := timecode.ClampZoom(prev + step)

	c.view.Zoom = next
	c.view.ScrollLeft = recenter(s.Playback.CurrentTime, c.durationAt(s, next), next, c.view.ClientWidth)
	return c.view
}

// Ruler returns tick positions and labels for the current zoom.
func (c *Controller) Ruler() Ruler {
	c.mu.Lock()
	zoom := c.view.Zoom
	c.mu.Unlock()
	return buildRuler(c.durationAt(c.model.Snapshot(), zoom), zoom)
}

// CanSplit reports whether the cursor is strictly inside clip with a margin.
func CanSplit(clip editor.VideoClip, cursor float64) bool {
	return cursor > clip.Position+MinClipSegment && cursor < clip.End()-MinClipSegment
}

// SplitAtCursor splits the clip under the cursor. It is a no-op when CanSplit is false.
func (c *Controller) SplitAtCursor(clipID string) (string, bool) {
	s := c.model.Snapshot()
	clip, ok := s.FindClip(clipID)
	if !ok || !CanSplit(clip, s.Playback.CurrentTime) {
		return "", false
	}
	return c.model.SplitVideoClip(clipID, s.Playback.CurrentTime)
}

// RemoveSelected deletes the selected clip, if any.
func (c *Controller) RemoveSelected() bool {
	id := c.model.Snapshot().SelectedClipID
	if id == "" {
		return false
	}
	c.model.RemoveVideoClip(id)
	c.model.SetSelectedClip("")
	return true
}

// HandleKey applies the editor keyboard shortcuts. It reports whether key was handled.
func (c *Controller) HandleKey(key string) bool {
	switch key {
	case "Delete", "Backspace":
		return c.RemoveSelected()
	case "+", "=":
		c.Zoom(ZoomIn)
		return true
	case "-":
		c.Zoom(ZoomOut)
		return true
	}
	return false
}

// AddMarker bookmarks the current cursor position.
func (c *Controller) AddMarker() Marker {
	t := c.model.Snapshot().Playback.CurrentTime

	c.mu.Lock()
	defer c.mu.Unlock()
	m := Marker{
		ID:    c.model.NewID(),
		Time:  t,
		Label: fmt.Sprintf("Marker %d", len(c.markers)+1),
	}
	c.markers = append(c.markers, m)
	return m
}

func (c *Controller) Markers() []Marker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Marker(nil), c.markers...)
}

func (c *Controller) TrackHeights() map[TrackKind]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[TrackKind]float64, len(c.trackHeights))
	for k, v := range c.trackHeights {
		out[k] = v
	}
	return out
}

// Reset drops markers, track heights and viewport state along with the model.
func (c *Controller) Reset() {
	c.mu.Lock()
	if c.active != nil {
		c.active.closed = true
		c.active = nil
	}
	c.markers = nil
	for k, v := range defaultTrackHeights {
		c.trackHeights[k] = v
	}
	c.view.Zoom = timecode.DefaultZoom
	c.view.ScrollLeft = 0
	c.mu.Unlock()

	c.model.Reset()
}
