package timecode

import "math"

// ClampZoom keeps a zoom level inside [MinZoom, MaxZoom].
func ClampZoom(z float64) float64 {
	return math.Min(MaxZoom, math.Max(MinZoom, z))
}

// ZoomStep is the increment applied by a single zoom in/out from z.
func ZoomStep(z float64) float64 {
	switch {
	case z >= 120:
		return 30
	case z >= 80:
		return 20
	case z >= 30:
		return 10
	case z >= 12:
		return 4
	default:
		return 2
	}
}

// IsZoomedOut reports whether the timeline should be stretched to its maximum extent.
func IsZoomedOut(z float64) bool {
	return z <= ZoomedOutThreshold
}

// ProjectedDuration is the visible extent implied by content and cursor,
// bounded to [MinTimelineDuration, MaxTimelineDuration].
func ProjectedDuration(content, cursor float64) float64 {
	return math.Max(MinTimelineDuration, math.Min(MaxTimelineDuration, math.Max(content, cursor)))
}

// EffectiveDuration widens projected to MaxTimelineDuration when zoomed out.
func EffectiveDuration(projected, zoom float64) float64 {
	if IsZoomedOut(zoom) {
		return math.Max(projected, MaxTimelineDuration)
	}
	return projected
}
