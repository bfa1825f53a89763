package timeline

import (
	"math"

	"github.com/easyclips/easyclips-agent/internal/timecode"
)

// Viewport is the visible window onto the timeline. Zoom is in pixels per second.
type Viewport struct {
	Zoom        float64 `json:"zoom"`
	ScrollLeft  float64 `json:"scroll_left"`
	ClientWidth float64 `json:"client_width"`
}

type ZoomDirection string

const (
	ZoomIn  ZoomDirection = "in"
	ZoomOut ZoomDirection = "out"
)

// Tick is a labelled ruler mark.
type Tick struct {
	Time   float64 `json:"time"`
	Offset float64 `json:"offset"`
	Label  string  `json:"label"`
}

// Ruler describes everything needed to draw the time ruler at the current zoom.
type Ruler struct {
	Duration        float64   `json:"duration"`
	Width           float64   `json:"width"`
	PixelsPerSecond float64   `json:"pixels_per_second"`
	PrimaryInterval float64   `json:"primary_interval"`
	SubInterval     float64   `json:"sub_interval"`
	PrimaryTicks    []Tick    `json:"primary_ticks"`
	SubTicks        []float64 `json:"sub_ticks"`
}

func buildRuler(duration, pps float64) Ruler {
	primary := timecode.PrimaryInterval(pps)
	sub := timecode.SubInterval(primary)

	r := Ruler{
		Duration:        duration,
		Width:           timecode.SecondsToPixels(duration, pps),
		PixelsPerSecond: pps,
		PrimaryInterval: primary,
		SubInterval:     sub,
		SubTicks:        []float64{},
	}
	for _, t := range timecode.PrimaryTicks(duration, primary) {
		r.PrimaryTicks = append(r.PrimaryTicks, Tick{
			Time:   t,
			Offset: timecode.SecondsToPixels(t, pps),
			Label:  timecode.FormatTimestamp(t),
		})
	}
	if timecode.SubTicksVisible(pps) {
		r.SubTicks = timecode.SubTicks(duration, primary, sub)
	}
	return r
}

// recenter returns the scroll offset that puts cursor in the middle of the
// viewport at zoom, bounded by the scrollable width.
func recenter(cursor, duration, zoom, clientWidth float64) float64 {
	target := cursor*zoom - clientWidth/2
	maxScroll := math.Max(0, duration*zoom-clientWidth)
	return math.Max(0, math.Min(target, maxScroll))
}
