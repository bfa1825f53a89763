package editor

import (
	"fmt"
	"strings"
)

// FieldError names the field that made a value or patch invalid.
type FieldError struct {
	Kind   error
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%v: %s %s", e.Kind, e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error {
	return e.Kind
}

// VideoClipPatch lists the clip fields a caller may change. Nil means unchanged.
type VideoClipPatch struct {
	TrimStart *float64 `json:"trim_start,omitempty"`
	TrimEnd   *float64 `json:"trim_end,omitempty"`
	Position  *float64 `json:"position,omitempty"`
	Track     *int     `json:"track,omitempty"`
}

func (p VideoClipPatch) IsEmpty() bool {
	return p.TrimStart == nil && p.TrimEnd == nil && p.Position == nil && p.Track == nil
}

func (p VideoClipPatch) apply(c VideoClip) VideoClip {
	if p.TrimStart != nil {
		c.TrimStart = *p.TrimStart
	}
	if p.TrimEnd != nil {
		c.TrimEnd = *p.TrimEnd
	}
	if p.Position != nil {
		c.Position = *p.Position
	}
	if p.Track != nil {
		c.Track = *p.Track
	}
	return c
}

// AudioTrackPatch lists the audio track fields a caller may change.
type AudioTrackPatch struct {
	Volume   *float64 `json:"volume,omitempty"`
	Position *float64 `json:"position,omitempty"`
	Track    *int     `json:"track,omitempty"`
}

func (p AudioTrackPatch) apply(a AudioTrack) AudioTrack {
	if p.Volume != nil {
		a.Volume = *p.Volume
	}
	if p.Position != nil {
		a.Position = *p.Position
	}
	if p.Track != nil {
		a.Track = *p.Track
	}
	return a
}

// CaptionPatch lists the caption fields a caller may change.
type CaptionPatch struct {
	Text      *string        `json:"text,omitempty"`
	StartTime *float64       `json:"start_time,omitempty"`
	EndTime   *float64       `json:"end_time,omitempty"`
	Style     *CaptionStyle  `json:"style,omitempty"`
	Anchor    *CaptionAnchor `json:"position,omitempty"`
	Color     *string        `json:"color,omitempty"`
	FontSize  *int           `json:"font_size,omitempty"`
}

func (p CaptionPatch) apply(c Caption) Caption {
	if p.Text != nil {
		c.Text = *p.Text
	}
	if p.StartTime != nil {
		c.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		c.EndTime = *p.EndTime
	}
	if p.Style != nil {
		c.Style = *p.Style
	}
	if p.Anchor != nil {
		c.Anchor = *p.Anchor
	}
	if p.Color != nil {
		c.Color = *p.Color
	}
	if p.FontSize != nil {
		c.FontSize = *p.FontSize
	}
	return c
}

// ValidateClip checks the clip invariants field by field.
func ValidateClip(c VideoClip) error {
	return validateClip(ErrInvalidClip, c)
}

func validateClip(kind error, c VideoClip) error {
	fail := func(field, reason string) error {
		return &FieldError{Kind: kind, Field: field, Reason: reason}
	}
	switch {
	case !finite(c.SourceDuration) || c.SourceDuration < MinClipDuration:
		return fail("source_duration", fmt.Sprintf("must be at least %.1fs", MinClipDuration))
	case !finite(c.TrimStart) || c.TrimStart < 0:
		return fail("trim_start", "must be >= 0")
	case !finite(c.TrimEnd) || c.TrimEnd > c.SourceDuration+epsilon:
		return fail("trim_end", "must not exceed the source duration")
	case c.TrimEnd-c.TrimStart < MinClipDuration-epsilon:
		return fail("trim_end", fmt.Sprintf("must be at least %.1fs after trim_start", MinClipDuration))
	case !finite(c.Position) || c.Position < 0:
		return fail("position", "must be >= 0")
	case c.Track < 0:
		return fail("track", "must be >= 0")
	}
	return nil
}

func validateAudioTrack(kind error, a AudioTrack) error {
	fail := func(field, reason string) error {
		return &FieldError{Kind: kind, Field: field, Reason: reason}
	}
	switch {
	case !finite(a.Duration) || a.Duration <= 0:
		return fail("duration", "must be > 0")
	case !finite(a.Volume) || a.Volume < 0 || a.Volume > 1:
		return fail("volume", "must be within [0, 1]")
	case !finite(a.Position) || a.Position < 0:
		return fail("position", "must be >= 0")
	case a.Track < 0:
		return fail("track", "must be >= 0")
	}
	return nil
}

func validateCaption(kind error, c Caption) error {
	fail := func(field, reason string) error {
		return &FieldError{Kind: kind, Field: field, Reason: reason}
	}
	switch {
	case strings.TrimSpace(c.Text) == "":
		return fail("text", "must not be empty")
	case !finite(c.StartTime) || c.StartTime < 0:
		return fail("start_time", "must be >= 0")
	case !finite(c.EndTime) || c.EndTime <= c.StartTime:
		return fail("end_time", "must be after start_time")
	case !c.Style.Valid():
		return fail("style", "must be default, bold or minimal")
	case !c.Anchor.Valid():
		return fail("position", "must be top, center or bottom")
	case c.FontSize <= 0:
		return fail("font_size", "must be > 0")
	}
	return nil
}
