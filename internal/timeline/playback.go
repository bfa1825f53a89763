package timeline

import (
	"math"

	"github.com/easyclips/easyclips-agent/internal/editor"
)

// Frame is what the preview should show after a playback step.
type Frame struct {
	Time         float64 `json:"time"`
	IsPlaying    bool    `json:"is_playing"`
	ActiveClipID string  `json:"active_clip_id,omitempty"`
	SourceTime   float64 `json:"source_time"`
}

// ActiveClip returns the clip under timeline time t.
func ActiveClip(clips []editor.VideoClip, t float64) (editor.VideoClip, bool) {
	for _, c := range clips {
		if c.Contains(t) {
			return c, true
		}
	}
	return editor.VideoClip{}, false
}

// nextTime returns where playback continues once it leaves active. A clip
// still running at active's end wins; otherwise the cursor jumps to the first
// clip starting after it. The result never precedes active.End().
func nextTime(clips []editor.VideoClip, active editor.VideoClip) (float64, bool) {
	end := active.End()
	for _, c := range clips {
		if c.ID != active.ID && c.Contains(end) {
			return end, true
		}
	}
	for _, c := range clips {
		if c.Position >= end {
			return c.Position, true
		}
	}
	return 0, false
}

func frameAt(s editor.State, t float64) Frame {
	f := Frame{Time: t, IsPlaying: s.Playback.IsPlaying}
	if clip, ok := ActiveClip(s.VideoClips, t); ok {
		f.ActiveClipID = clip.ID
		f.SourceTime = clip.TrimStart + (t - clip.Position)
	}
	return f
}

// Preview describes the frame at the current cursor without advancing it.
func (c *Controller) Preview() Frame {
	s := c.model.Snapshot()
	return frameAt(s, s.Playback.CurrentTime)
}

// Play starts or stops playback. Starting with no clips is ignored.
func (c *Controller) Play(playing bool) Frame {
	if playing && len(c.model.Snapshot().VideoClips) == 0 {
		playing = false
	}
	c.model.SetIsPlaying(playing)
	return c.Preview()
}

// Tick advances the cursor by elapsed seconds while playing. When the cursor
// leaves the active clip it jumps to the start of the next clip; past the
// last clip playback stops and the cursor returns to 0.
func (c *Controller) Tick(elapsed float64) Frame {
	s := c.model.Snapshot()
	if !s.Playback.IsPlaying || elapsed <= 0 || math.IsNaN(elapsed) {
		return frameAt(s, s.Playback.CurrentTime)
	}

	cur := s.Playback.CurrentTime
	next := cur + elapsed

	active, ok := ActiveClip(s.VideoClips, cur)
	switch {
	case ok && next >= active.End():
		if t, found := nextTime(s.VideoClips, active); found {
			next = t
		} else {
			return c.stop()
		}
	case !ok && next >= lastClipEnd(s.VideoClips):
		return c.stop()
	}

	c.model.SetCurrentTime(next)
	return c.Preview()
}

func (c *Controller) stop() Frame {
	c.model.SetIsPlaying(false)
	c.model.SetCurrentTime(0)
	return c.Preview()
}

func lastClipEnd(clips []editor.VideoClip) float64 {
	end := 0.0
	for _, c := range clips {
		end = math.Max(end, c.End())
	}
	return end
}
