// Package timecode converts between timeline pixels, seconds and the
// human-readable timestamps shown on the ruler and in EDL handoffs.
package timecode

import (
	"fmt"
	"math"
)

const (
	// PreviewFPS is the frame rate assumed when formatting ruler timestamps.
	PreviewFPS = 30

	MinTimelineDuration = 10.0
	MaxTimelineDuration = 2 * 60 * 60.0

	MinZoom     = 2.0
	MaxZoom     = 240.0
	DefaultZoom = 24.0

	// ZoomedOutThreshold is the zoom at or below which the timeline is
	// stretched to MaxTimelineDuration.
	ZoomedOutThreshold = 20.0

	// SubTickMinZoom is the zoom above which sub-ticks are drawn.
	SubTickMinZoom = 40.0
)

// SecondsToPixels returns the horizontal offset of t at the given scale.
func SecondsToPixels(seconds, pixelsPerSecond float64) float64 {
	return seconds * pixelsPerSecond
}

// PixelsToSeconds is the inverse of SecondsToPixels. A non-positive scale yields 0.
func PixelsToSeconds(pixels, pixelsPerSecond float64) float64 {
	if pixelsPerSecond <= 0 {
		return 0
	}
	return pixels / pixelsPerSecond
}

var primaryIntervals = []struct {
	maxPPS   float64
	interval float64
}{
	{3, 600},
	{6, 300},
	{10, 180},
	{18, 120},
	{30, 60},
	{60, 30},
	{120, 10},
	{180, 5},
	{200, 2},
}

// PrimaryInterval picks the labelled tick spacing, in seconds, for a scale.
func PrimaryInterval(pixelsPerSecond float64) float64 {
	for _, p := range primaryIntervals {
		if pixelsPerSecond <= p.maxPPS {
			return p.interval
		}
	}
	return 1
}

// SubInterval divides a primary interval into unlabelled sub-ticks.
func SubInterval(primary float64) float64 {
	switch {
	case primary >= 300:
		return primary / 5
	case primary >= 60:
		return primary / 6
	case primary >= 10:
		return primary / 5
	case primary >= 2:
		return primary / 4
	default:
		return primary / 2
	}
}

// SubTicksVisible reports whether sub-ticks should be drawn at this zoom.
func SubTicksVisible(pixelsPerSecond float64) bool {
	return pixelsPerSecond > SubTickMinZoom
}

// PrimaryTicks lists every multiple of primary from 0 up to and including
// the first multiple at or past duration.
func PrimaryTicks(duration, primary float64) []float64 {
	if primary <= 0 || duration < 0 {
		return nil
	}
	total := int(math.Ceil(duration / primary))
	ticks := make([]float64, 0, total+1)
	for i := 0; i <= total; i++ {
		ticks = append(ticks, round4(float64(i)*primary))
	}
	return ticks
}

// SubTicks lists multiples of sub that do not land on a primary tick.
func SubTicks(duration, primary, sub float64) []float64 {
	if sub <= 0 || primary <= 0 || duration < 0 {
		return nil
	}
	total := int(math.Ceil(duration / sub))
	ticks := make([]float64, 0, total+1)
	for i := 0; i <= total; i++ {
		t := round4(float64(i) * sub)
		if isInteger(t / primary) {
			continue
		}
		ticks = append(ticks, t)
	}
	return ticks
}

// FormatTimestamp renders seconds as [HH:]MM:SS:FF at PreviewFPS.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	hrs := int(seconds / 3600)
	mins := int(math.Mod(seconds, 3600) / 60)
	secs := int(math.Mod(seconds, 60))
	frames := int(math.Floor(math.Mod(seconds, 1) * PreviewFPS))

	if hrs > 0 {
		return fmt.Sprintf("%02d:%02d:%02d:%02d", hrs, mins, secs, frames)
	}
	return fmt.Sprintf("%02d:%02d:%02d", mins, secs, frames)
}

// FormatClock renders seconds as MM:SS for the preview transport.
func FormatClock(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	mins := int(seconds / 60)
	secs := int(math.Mod(seconds, 60))
	return fmt.Sprintf("%02d:%02d", mins, secs)
}

// FrameTimecode renders milliseconds as a non-drop HH:MM:SS:FF timecode.
func FrameTimecode(ms int, fps int) string {
	if fps <= 0 {
		fps = PreviewFPS
	}
	totalFrames := int(math.Round(float64(ms) * float64(fps) / 1000.0))
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	secs := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	mins := totalMinutes % 60
	hrs := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hrs, mins, secs, frames)
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

func isInteger(v float64) bool {
	return v == math.Trunc(v)
}
