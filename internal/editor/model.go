// Package editor holds the in-memory edit model: video clips, audio tracks,
// captions, the playback cursor, canvas settings and export/caption status.
//
// Model is the single owner of that state. Every mutation takes the write
// lock for its whole duration, so concurrent callers observe mutations as
// atomic. Readers get deep copies through Snapshot.
package editor

import (
	"math"
	"sort"
	"sync"
)

type Model struct {
	mu    sync.RWMutex
	state State
	ids   IDGenerator

	onChange func(State)
}

// NewModel creates an empty model. A nil generator falls back to UUIDs.
func NewModel(ids IDGenerator) *Model {
	if ids == nil {
		ids = UUIDGenerator{}
	}
	return &Model{state: initialState(), ids: ids}
}

// OnChange registers fn to receive a snapshot after every committed mutation.
// fn runs outside the model lock.
func (m *Model) OnChange(fn func(State)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Snapshot returns a deep copy of the current state.
func (m *Model) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.clone()
}

// NewID hands out an id from the model's generator.
func (m *Model) NewID() string {
	return m.ids.NewID()
}

// mutate runs fn under the write lock. fn reports whether it changed anything.
func (m *Model) mutate(fn func(s *State) bool) {
	m.mu.Lock()
	changed := fn(&m.state)
	var (
		notify   func(State)
		snapshot State
	)
	if changed {
		m.state.Revision++
		if m.onChange != nil {
			notify = m.onChange
			snapshot = m.state.clone()
		}
	}
	m.mu.Unlock()

	if notify != nil {
		notify(snapshot)
	}
}

// AddVideoClip appends clip, keeps clips ordered by position and selects it.
// An empty id is filled from the generator.
func (m *Model) AddVideoClip(clip VideoClip) (VideoClip, error) {
	if clip.ID == "" {
		clip.ID = m.ids.NewID()
	}
	if err := ValidateClip(clip); err != nil {
		return VideoClip{}, err
	}
	var err error
	m.mutate(func(s *State) bool {
		if clipIndex(s.VideoClips, clip.ID) >= 0 {
			err = duplicateID(ErrInvalidClip)
			return false
		}
		s.VideoClips = append(s.VideoClips, clip)
		sortClips(s.VideoClips)
		s.SelectedClipID = clip.ID
		return true
	})
	if err != nil {
		return VideoClip{}, err
	}
	return clip, nil
}

func duplicateID(kind error) error {
	return &FieldError{Kind: kind, Field: "id", Reason: "already exists"}
}

// ImportVideo adds a clip spanning the whole source, placed after the last video clip.
func (m *Model) ImportVideo(ref MediaRef, duration float64) (VideoClip, error) {
	clip := VideoClip{
		ID:             m.ids.NewID(),
		Source:         ref,
		SourceDuration: duration,
		TrimStart:      0,
		TrimEnd:        duration,
	}
	if err := ValidateClip(clip); err != nil {
		return VideoClip{}, err
	}

	m.mutate(func(s *State) bool {
		end := 0.0
		for _, c := range s.VideoClips {
			end = math.Max(end, c.End())
		}
		clip.Position = end
		s.VideoClips = append(s.VideoClips, clip)
		sortClips(s.VideoClips)
		s.SelectedClipID = clip.ID
		return true
	})
	return clip, nil
}

// RemoveVideoClip deletes the clip with id. Unknown ids are ignored.
func (m *Model) RemoveVideoClip(id string) {
	m.mutate(func(s *State) bool {
		idx := clipIndex(s.VideoClips, id)
		if idx < 0 {
			return false
		}
		s.VideoClips = append(s.VideoClips[:idx], s.VideoClips[idx+1:]...)
		if s.SelectedClipID == id {
			s.SelectedClipID = ""
		}
		return true
	})
}

// UpdateVideoClip validates the patched clip before committing it.
// Unknown ids are ignored; an invalid patch changes nothing.
func (m *Model) UpdateVideoClip(id string, patch VideoClipPatch) error {
	var err error
	m.mutate(func(s *State) bool {
		idx := clipIndex(s.VideoClips, id)
		if idx < 0 || patch.IsEmpty() {
			return false
		}
		next := patch.apply(s.VideoClips[idx])
		if err = validateClip(ErrInvalidPatch, next); err != nil {
			return false
		}
		s.VideoClips[idx] = next
		if patch.Position != nil {
			sortClips(s.VideoClips)
		}
		return true
	})
	return err
}

// SplitVideoClip cuts the clip at absolute timeline time t. The left half
// keeps the id, the right half gets a new one, is placed directly after the
// left and becomes the selection. Cuts within MinClipDuration of either edge
// are ignored.
func (m *Model) SplitVideoClip(id string, t float64) (string, bool) {
	var rightID string
	m.mutate(func(s *State) bool {
		idx := clipIndex(s.VideoClips, id)
		if idx < 0 || !finite(t) {
			return false
		}
		clip := s.VideoClips[idx]
		rel := t - clip.Position
		if rel <= MinClipDuration || rel >= clip.Duration()-MinClipDuration {
			return false
		}

		cut := clip.TrimStart + rel
		left := clip
		left.TrimEnd = cut

		right := clip
		right.ID = m.ids.NewID()
		right.TrimStart = cut
		right.Position = clip.Position + rel

		clips := make([]VideoClip, 0, len(s.VideoClips)+1)
		clips = append(clips, s.VideoClips[:idx]...)
		clips = append(clips, left, right)
		clips = append(clips, s.VideoClips[idx+1:]...)
		s.VideoClips = clips
		s.SelectedClipID = right.ID
		rightID = right.ID
		return true
	})
	return rightID, rightID != ""
}

// SetSelectedClip selects id, or clears the selection when id is empty.
func (m *Model) SetSelectedClip(id string) {
	m.mutate(func(s *State) bool {
		if s.SelectedClipID == id {
			return false
		}
		s.SelectedClipID = id
		return true
	})
}

// AddAudioTrack appends track in arrival order.
func (m *Model) AddAudioTrack(track AudioTrack) (AudioTrack, error) {
	if track.ID == "" {
		track.ID = m.ids.NewID()
	}
	if err := validateAudioTrack(ErrInvalidAudioTrack, track); err != nil {
		return AudioTrack{}, err
	}
	var err error
	m.mutate(func(s *State) bool {
		for _, a := range s.AudioTracks {
			if a.ID == track.ID {
				err = duplicateID(ErrInvalidAudioTrack)
				return false
			}
		}
		s.AudioTracks = append(s.AudioTracks, track)
		return true
	})
	if err != nil {
		return AudioTrack{}, err
	}
	return track, nil
}

// ImportAudio adds a full-volume track at the start of the timeline.
func (m *Model) ImportAudio(ref MediaRef, duration float64) (AudioTrack, error) {
	return m.AddAudioTrack(AudioTrack{
		Source:   ref,
		Duration: duration,
		Volume:   1,
		Position: 0,
		Track:    0,
	})
}

func (m *Model) RemoveAudioTrack(id string) {
	m.mutate(func(s *State) bool {
		for i, a := range s.AudioTracks {
			if a.ID == id {
				s.AudioTracks = append(s.AudioTracks[:i], s.AudioTracks[i+1:]...)
				return true
			}
		}
		return false
	})
}

func (m *Model) UpdateAudioTrack(id string, patch AudioTrackPatch) error {
	var err error
	m.mutate(func(s *State) bool {
		for i, a := range s.AudioTracks {
			if a.ID != id {
				continue
			}
			next := patch.apply(a)
			if err = validateAudioTrack(ErrInvalidPatch, next); err != nil {
				return false
			}
			s.AudioTracks[i] = next
			return true
		}
		return false
	})
	return err
}

// AddCaption appends caption. Missing style, anchor, color and size take the defaults.
func (m *Model) AddCaption(c Caption) (Caption, error) {
	if c.ID == "" {
		c.ID = m.ids.NewID()
	}
	if c.Style == "" {
		c.Style = StyleDefault
	}
	if c.Anchor == "" {
		c.Anchor = AnchorBottom
	}
	if c.Color == "" {
		c.Color = DefaultCaptionColor
	}
	if c.FontSize == 0 {
		c.FontSize = DefaultCaptionFontSize
	}
	if err := validateCaption(ErrInvalidCaption, c); err != nil {
		return Caption{}, err
	}
	var err error
	m.mutate(func(s *State) bool {
		for _, existing := range s.Captions {
			if existing.ID == c.ID {
				err = duplicateID(ErrInvalidCaption)
				return false
			}
		}
		s.Captions = append(s.Captions, c)
		return true
	})
	if err != nil {
		return Caption{}, err
	}
	return c, nil
}

func (m *Model) RemoveCaption(id string) {
	m.mutate(func(s *State) bool {
		for i, c := range s.Captions {
			if c.ID == id {
				s.Captions = append(s.Captions[:i], s.Captions[i+1:]...)
				return true
			}
		}
		return false
	})
}

func (m *Model) UpdateCaption(id string, patch CaptionPatch) error {
	var err error
	m.mutate(func(s *State) bool {
		for i, c := range s.Captions {
			if c.ID != id {
				continue
			}
			next := patch.apply(c)
			if err = validateCaption(ErrInvalidPatch, next); err != nil {
				return false
			}
			s.Captions[i] = next
			return true
		}
		return false
	})
	return err
}

// ClearCaptions removes every caption.
func (m *Model) ClearCaptions() {
	m.mutate(func(s *State) bool {
		if len(s.Captions) == 0 {
			return false
		}
		s.Captions = []Caption{}
		return true
	})
}

// SetCurrentTime moves the cursor. Callers clamp t; negative or non-finite values become 0.
func (m *Model) SetCurrentTime(t float64) {
	if !finite(t) || t < 0 {
		t = 0
	}
	m.mutate(func(s *State) bool {
		if s.Playback.CurrentTime == t {
			return false
		}
		s.Playback.CurrentTime = t
		return true
	})
}

func (m *Model) SetIsPlaying(playing bool) {
	m.mutate(func(s *State) bool {
		if s.Playback.IsPlaying == playing {
			return false
		}
		s.Playback.IsPlaying = playing
		return true
	})
}

// SetAspectRatio applies a preset label and its dimensions together.
// "custom" changes the label only.
func (m *Model) SetAspectRatio(label AspectRatio) error {
	preset, ok := aspectPresets[label]
	if !ok && label != AspectCustom {
		return ErrUnknownAspectRatio
	}
	m.mutate(func(s *State) bool {
		if label == AspectCustom {
			s.Canvas.AspectRatio = AspectCustom
		} else {
			s.Canvas = preset
		}
		return true
	})
	return nil
}

// SetCanvasDimensions sets explicit output dimensions without touching the label.
func (m *Model) SetCanvasDimensions(width, height int) error {
	if width <= 0 || height <= 0 {
		return ErrInvalidDimensions
	}
	m.mutate(func(s *State) bool {
		s.Canvas.Width = width
		s.Canvas.Height = height
		return true
	})
	return nil
}

func (m *Model) SetIsExporting(exporting bool) {
	m.mutate(func(s *State) bool {
		s.Export.IsExporting = exporting
		return true
	})
}

// SetExportProgress stores progress clamped to [0, 100].
func (m *Model) SetExportProgress(progress int) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	m.mutate(func(s *State) bool {
		if s.Export.Progress == progress {
			return false
		}
		s.Export.Progress = progress
		return true
	})
}

// SetExportError records the message shown in the export panel. Empty clears it.
func (m *Model) SetExportError(msg string) {
	m.mutate(func(s *State) bool {
		if s.Export.Error == msg {
			return false
		}
		s.Export.Error = msg
		return true
	})
}

// SetCaptionStatus replaces the caption status. An error stage without a
// message gets a generic one so the invariant holds.
func (m *Model) SetCaptionStatus(status CaptionStatus) {
	if status.Stage == StageError && status.Message == "" {
		status.Message = "Caption generation failed."
	}
	m.mutate(func(s *State) bool {
		if s.CaptionStatus == status {
			return false
		}
		s.CaptionStatus = status
		return true
	})
}

// Reset restores the initial empty state.
func (m *Model) Reset() {
	m.mutate(func(s *State) bool {
		rev := s.Revision
		*s = initialState()
		s.Revision = rev
		return true
	})
}

// ContentDuration is the furthest end time of any clip or audio track.
func (m *Model) ContentDuration() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ContentDuration()
}

func clipIndex(clips []VideoClip, id string) int {
	for i, c := range clips {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func sortClips(clips []VideoClip) {
	sort.SliceStable(clips, func(i, j int) bool {
		return clips[i].Position < clips[j].Position
	})
}
