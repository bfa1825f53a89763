package timeline

import (
	"math"

	"github.com/easyclips/easyclips-agent/internal/editor"
	"github.com/easyclips/easyclips-agent/internal/timecode"
)

// Edge selects which side of a clip a trim gesture drags.
type Edge string

const (
	EdgeStart Edge = "start"
	EdgeEnd   Edge = "end"
)

// gesture is the state shared by every drag session. At most one is
// registered on the controller at a time.
type gesture struct {
	c      *Controller
	closed bool
	cancel func()
}

func (c *Controller) begin(g *gesture) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		return ErrGestureActive
	}
	g.c = c
	c.active = g
	return nil
}

// finish releases the controller slot. It returns false when the session
// was already ended or cancelled.
func (g *gesture) finish() bool {
	g.c.mu.Lock()
	defer g.c.mu.Unlock()
	if g.closed {
		return false
	}
	g.closed = true
	if g.c.active == g {
		g.c.active = nil
	}
	return true
}

func (g *gesture) isClosed() bool {
	g.c.mu.Lock()
	defer g.c.mu.Unlock()
	return g.closed
}

func (g *gesture) pps() float64 {
	g.c.mu.Lock()
	defer g.c.mu.Unlock()
	return g.c.view.Zoom
}

// Cancel abandons the session and undoes any preview it applied.
func (g *gesture) Cancel() {
	if !g.finish() {
		return
	}
	if g.cancel != nil {
		g.cancel()
	}
}

// Close cancels the session unless End or Cancel already ran. Safe to defer.
func (g *gesture) Close() {
	g.Cancel()
}

// MoveSession drags a clip along the timeline. Nothing is committed until End.
type MoveSession struct {
	gesture
	clipID   string
	original float64
	preview  float64
}

// BeginMove starts dragging clip id.
func (c *Controller) BeginMove(id string) (*MoveSession, error) {
	clip, ok := c.model.Snapshot().FindClip(id)
	if !ok {
		return nil, ErrClipNotFound
	}
	s := &MoveSession{clipID: id, original: clip.Position, preview: clip.Position}
	if err := c.begin(&s.gesture); err != nil {
		return nil, err
	}
	return s, nil
}

// Update previews the position for a pointer offset of deltaPx from the press point.
func (s *MoveSession) Update(deltaPx float64) (float64, error) {
	if s.isClosed() {
		return 0, ErrGestureClosed
	}
	pos := math.Max(0, s.original+timecode.PixelsToSeconds(deltaPx, s.pps()))
	s.c.mu.Lock()
	s.preview = pos
	s.c.mu.Unlock()
	return pos, nil
}

// Preview is the position the clip would land on if released now.
func (s *MoveSession) Preview() float64 {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	return s.preview
}

// End commits the previewed position.
func (s *MoveSession) End() error {
	if !s.finish() {
		return ErrGestureClosed
	}
	pos := s.Preview()
	if pos == s.original {
		return nil
	}
	if err := s.c.model.UpdateVideoClip(s.clipID, editor.VideoClipPatch{Position: &pos}); err != nil {
		s.c.logDebug("move rejected", "clip_id", s.clipID, "error", err)
	}
	return nil
}

// TrimSession drags one edge of a clip. Every update is applied to the model
// immediately; updates that would break a clip invariant are ignored.
type TrimSession struct {
	gesture
	clipID       string
	edge         Edge
	initialStart float64
	initialEnd   float64
	sourceDur    float64
}

// BeginTrim starts dragging edge of clip id.
func (c *Controller) BeginTrim(id string, edge Edge) (*TrimSession, error) {
	if edge != EdgeStart && edge != EdgeEnd {
		return nil, editor.ErrInvalidPatch
	}
	clip, ok := c.model.Snapshot().FindClip(id)
	if !ok {
		return nil, ErrClipNotFound
	}
	s := &TrimSession{
		clipID:       id,
		edge:         edge,
		initialStart: clip.TrimStart,
		initialEnd:   clip.TrimEnd,
		sourceDur:    clip.SourceDuration,
	}
	s.cancel = s.restore
	if err := c.begin(&s.gesture); err != nil {
		return nil, err
	}
	return s, nil
}

// TrimBounds computes the trim range for a drag of delta seconds on edge.
func TrimBounds(edge Edge, initialStart, initialEnd, sourceDuration, delta float64) (start, end float64) {
	start, end = initialStart, initialEnd
	switch edge {
	case EdgeStart:
		start = clamp(initialStart+delta, 0, initialEnd-editor.MinClipDuration)
	case EdgeEnd:
		end = clamp(initialEnd+delta, initialStart+editor.MinClipDuration, sourceDuration)
	}
	return start, end
}

// Update applies the trim for a pointer offset of deltaPx from the press point.
func (s *TrimSession) Update(deltaPx float64) error {
	if s.isClosed() {
		return ErrGestureClosed
	}
	d := timecode.PixelsToSeconds(deltaPx, s.pps())
	start, end := TrimBounds(s.edge, s.initialStart, s.initialEnd, s.sourceDur, d)

	var patch editor.VideoClipPatch
	if s.edge == EdgeStart {
		patch.TrimStart = &start
	} else {
		patch.TrimEnd = &end
	}
	if err := s.c.model.UpdateVideoClip(s.clipID, patch); err != nil {
		s.c.logDebug("trim update ignored", "clip_id", s.clipID, "error", err)
	}
	return nil
}

// End keeps the current trim and selects the clip.
func (s *TrimSession) End() error {
	if !s.finish() {
		return ErrGestureClosed
	}
	if _, ok := s.c.model.Snapshot().FindClip(s.clipID); ok {
		s.c.model.SetSelectedClip(s.clipID)
	}
	return nil
}

func (s *TrimSession) restore() {
	start, end := s.initialStart, s.initialEnd
	_ = s.c.model.UpdateVideoClip(s.clipID, editor.VideoClipPatch{TrimStart: &start, TrimEnd: &end})
}

// ScrubSession drags the playhead. Unlike a click on the timeline it keeps the selection.
type ScrubSession struct {
	gesture
	startTime float64
}

// BeginScrub starts a playhead drag at timeline pixel px.
func (c *Controller) BeginScrub(px float64) (*ScrubSession, error) {
	s := &ScrubSession{startTime: c.model.Snapshot().Playback.CurrentTime}
	s.cancel = func() { s.c.model.SetCurrentTime(s.startTime) }
	if err := c.begin(&s.gesture); err != nil {
		return nil, err
	}
	c.model.SetCurrentTime(c.clampPixels(px))
	return s, nil
}

// Update moves the cursor to timeline pixel px.
func (s *ScrubSession) Update(px float64) (float64, error) {
	if s.isClosed() {
		return 0, ErrGestureClosed
	}
	t := s.c.clampPixels(px)
	s.c.model.SetCurrentTime(t)
	return t, nil
}

func (s *ScrubSession) End() error {
	if !s.finish() {
		return ErrGestureClosed
	}
	return nil
}

// ResizeSession drags the bottom border of a track header.
type ResizeSession struct {
	gesture
	track   TrackKind
	startY  float64
	initial float64
}

// BeginTrackResize starts resizing track from pointer position y.
func (c *Controller) BeginTrackResize(track TrackKind, y float64) (*ResizeSession, error) {
	c.mu.Lock()
	h, ok := c.trackHeights[track]
	c.mu.Unlock()
	if !ok {
		return nil, ErrUnknownTrack
	}
	s := &ResizeSession{track: track, startY: y, initial: h}
	s.cancel = func() { s.c.setTrackHeight(s.track, s.initial) }
	if err := c.begin(&s.gesture); err != nil {
		return nil, err
	}
	return s, nil
}

// Update sets the track height for pointer position y, clamped to the allowed range.
func (s *ResizeSession) Update(y float64) (float64, error) {
	if s.isClosed() {
		return 0, ErrGestureClosed
	}
	h := clamp(s.initial+(y-s.startY), TrackMinHeight, TrackMaxHeight)
	s.c.setTrackHeight(s.track, h)
	return h, nil
}

func (s *ResizeSession) End() error {
	if !s.finish() {
		return ErrGestureClosed
	}
	return nil
}

func (c *Controller) setTrackHeight(track TrackKind, h float64) {
	c.mu.Lock()
	c.trackHeights[track] = h
	c.mu.Unlock()
}

func (c *Controller) logDebug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(v, hi))
}
