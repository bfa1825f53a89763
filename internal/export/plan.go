package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/easyclips/easyclips-agent/internal/editor"
)

var ErrEmptyTimeline = errors.New("timeline has no video clips")

const (
	Container    = "mp4"
	VideoCodec   = "libx264"
	AudioCodec   = "aac"
	AudioBitrate = "128k"

	OutputName = "output.mp4"
	ConcatList = "concat.txt"
	JoinedName = "joined.mp4"
)

type OpKind string

const (
	// OpTrim cuts one source to a range and normalises it for lossless joining.
	OpTrim OpKind = "trim"
	// OpConcat joins inputs listed in a concat-list resource without re-encoding.
	OpConcat OpKind = "concat"
	// OpTranscode produces the final container at the target size and bitrate.
	OpTranscode OpKind = "transcode"
)

// Input binds a plan-local file name to imported media.
type Input struct {
	Name  string          `json:"name" yaml:"name"`
	Media editor.MediaRef `json:"media" yaml:"media"`
}

// Resource is a file the backend writes before running the operations.
type Resource struct {
	Name    string   `json:"name" yaml:"name"`
	Kind    string   `json:"kind" yaml:"kind"`
	Entries []string `json:"entries" yaml:"entries"`
}

// AudioMix places an audio input on the output timeline.
type AudioMix struct {
	Input  string  `json:"input" yaml:"input"`
	Delay  float64 `json:"delay" yaml:"delay"`
	Volume float64 `json:"volume" yaml:"volume"`
}

type Operation struct {
	Kind         OpKind     `json:"kind" yaml:"kind"`
	Inputs       []string   `json:"inputs" yaml:"inputs"`
	Output       string     `json:"output" yaml:"output"`
	TrimStart    float64    `json:"trim_start,omitempty" yaml:"trim_start,omitempty"`
	TrimDuration float64    `json:"trim_duration,omitempty" yaml:"trim_duration,omitempty"`
	VideoFilter  string     `json:"video_filter,omitempty" yaml:"video_filter,omitempty"`
	VideoBitrate string     `json:"video_bitrate,omitempty" yaml:"video_bitrate,omitempty"`
	AudioMix     []AudioMix `json:"audio_mix,omitempty" yaml:"audio_mix,omitempty"`
	StreamCopy   bool       `json:"stream_copy,omitempty" yaml:"stream_copy,omitempty"`
	// PadAudio replaces the missing audio of a silent source with silence so
	// every segment carries the same streams.
	PadAudio bool `json:"pad_audio,omitempty" yaml:"pad_audio,omitempty"`
	// Duration is the expected length of Output in seconds.
	Duration float64 `json:"duration" yaml:"duration"`
}

// Plan is an ordered, backend-agnostic description of an export.
type Plan struct {
	Inputs           []Input     `json:"inputs" yaml:"inputs"`
	Resources        []Resource  `json:"resources,omitempty" yaml:"resources,omitempty"`
	Operations       []Operation `json:"operations" yaml:"operations"`
	Temporaries      []string    `json:"temporaries,omitempty" yaml:"temporaries,omitempty"`
	Output           string      `json:"output" yaml:"output"`
	Container        string      `json:"container" yaml:"container"`
	VideoCodec       string      `json:"video_codec" yaml:"video_codec"`
	AudioCodec       string      `json:"audio_codec" yaml:"audio_codec"`
	AudioBitrate     string      `json:"audio_bitrate" yaml:"audio_bitrate"`
	Width            int         `json:"width" yaml:"width"`
	Height           int         `json:"height" yaml:"height"`
	VideoBitrate     string      `json:"video_bitrate" yaml:"video_bitrate"`
	ExpectedDuration float64     `json:"expected_duration" yaml:"expected_duration"`
}

// CompileInput is everything the compiler reads.
type CompileInput struct {
	Clips   []editor.VideoClip
	Audio   []editor.AudioTrack
	Width   int
	Height  int
	Quality Quality
}

// ScalePadFilter fits the picture inside width x height and centres it on padding.
func ScalePadFilter(width, height int) string {
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		width, height, width, height)
}

// Compile turns the timeline into a render plan. Clips are taken in the
// given order. It performs no I/O and is deterministic.
func Compile(in CompileInput) (Plan, error) {
	if len(in.Clips) == 0 {
		return Plan{}, ErrEmptyTimeline
	}
	if in.Width <= 0 || in.Height <= 0 {
		return Plan{}, fmt.Errorf("invalid output size %dx%d", in.Width, in.Height)
	}
	if in.Quality.Bitrate == "" {
		return Plan{}, ErrUnknownQuality
	}

	plan := Plan{
		Output:       OutputName,
		Container:    Container,
		VideoCodec:   VideoCodec,
		AudioCodec:   AudioCodec,
		AudioBitrate: AudioBitrate,
		Width:        in.Width,
		Height:       in.Height,
		VideoBitrate: in.Quality.Bitrate,
	}
	filter := ScalePadFilter(in.Width, in.Height)

	videoNames := make([]string, len(in.Clips))
	for i, c := range in.Clips {
		videoNames[i] = fmt.Sprintf("video%d.mp4", i)
		plan.Inputs = append(plan.Inputs, Input{Name: videoNames[i], Media: c.Source})
		plan.ExpectedDuration += c.Duration()
	}
	var mix []AudioMix
	for i, a := range in.Audio {
		name := fmt.Sprintf("audio%d%s", i, audioExt(a.Source))
		plan.Inputs = append(plan.Inputs, Input{Name: name, Media: a.Source})
		mix = append(mix, AudioMix{Input: name, Delay: a.Position, Volume: a.Volume})
	}

	if len(in.Clips) == 1 && len(in.Audio) == 0 {
		c := in.Clips[0]
		plan.Operations = []Operation{{
			Kind:         OpTranscode,
			Inputs:       []string{videoNames[0]},
			Output:       OutputName,
			TrimStart:    c.TrimStart,
			TrimDuration: c.Duration(),
			VideoFilter:  filter,
			VideoBitrate: in.Quality.Bitrate,
			Duration:     c.Duration(),
		}}
		return plan, nil
	}

	segments := make([]string, len(in.Clips))
	for i, c := range in.Clips {
		segments[i] = fmt.Sprintf("segment%d.mp4", i)
		plan.Operations = append(plan.Operations, Operation{
			Kind:         OpTrim,
			Inputs:       []string{videoNames[i]},
			Output:       segments[i],
			TrimStart:    c.TrimStart,
			TrimDuration: c.Duration(),
			VideoFilter:  filter,
			PadAudio:     c.Source.Silent,
			Duration:     c.Duration(),
		})
	}

	plan.Resources = []Resource{{Name: ConcatList, Kind: "concat-list", Entries: segments}}
	plan.Operations = append(plan.Operations,
		Operation{
			Kind:       OpConcat,
			Inputs:     []string{ConcatList},
			Output:     JoinedName,
			StreamCopy: true,
			Duration:   plan.ExpectedDuration,
		},
		Operation{
			Kind:         OpTranscode,
			Inputs:       append([]string{JoinedName}, mixInputs(mix)...),
			Output:       OutputName,
			VideoFilter:  filter,
			VideoBitrate: in.Quality.Bitrate,
			AudioMix:     mix,
			Duration:     plan.ExpectedDuration,
		},
	)
	plan.Temporaries = append(append(segments, ConcatList), JoinedName)
	return plan, nil
}

// CompileState compiles a model snapshot for a platform preset and quality tier.
func CompileState(s editor.State, platform Platform, quality Quality) (Plan, error) {
	return Compile(CompileInput{
		Clips:   s.VideoClips,
		Audio:   s.AudioTracks,
		Width:   platform.Width,
		Height:  platform.Height,
		Quality: quality,
	})
}

func mixInputs(mix []AudioMix) []string {
	names := make([]string, len(mix))
	for i, m := range mix {
		names[i] = m.Input
	}
	return names
}

func audioExt(ref editor.MediaRef) string {
	for _, name := range []string{ref.Name, ref.Path} {
		if ext := strings.ToLower(filepath.Ext(name)); ext != "" {
			return ext
		}
	}
	return ".m4a"
}
