package export

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easyclips/easyclips-agent/internal/editor"
)

func clip(id string, trimStart, trimEnd, position float64) editor.VideoClip {
	return editor.VideoClip{
		ID:             id,
		Source:         editor.MediaRef{ID: "m-" + id, Path: "/media/" + id + ".mp4", Name: id + ".mp4"},
		SourceDuration: 60,
		TrimStart:      trimStart,
		TrimEnd:        trimEnd,
		Position:       position,
	}
}

func mustQuality(t *testing.T, key string) Quality {
	t.Helper()
	q, err := LookupQuality(key)
	require.NoError(t, err)
	return q
}

func TestCompile_SingleClip(t *testing.T) {
	plan, err := Compile(CompileInput{
		Clips:   []editor.VideoClip{clip("a", 2, 8, 0)},
		Width:   1280,
		Height:  720,
		Quality: mustQuality(t, "720p"),
	})
	require.NoError(t, err)

	require.Len(t, plan.Operations, 1)
	op := plan.Operations[0]
	assert.Equal(t, OpTranscode, op.Kind)
	assert.Equal(t, []string{"video0.mp4"}, op.Inputs)
	assert.Equal(t, OutputName, op.Output)
	assert.Equal(t, 2.0, op.TrimStart)
	assert.InDelta(t, 6.0, op.TrimDuration, 1e-9)
	assert.Equal(t, "scale=1280:720:force_original_aspect_ratio=decrease,pad=1280:720:(ow-iw)/2:(oh-ih)/2", op.VideoFilter)
	assert.Equal(t, "2500k", op.VideoBitrate)

	assert.Equal(t, "2500k", plan.VideoBitrate)
	assert.Equal(t, "aac", plan.AudioCodec)
	assert.Equal(t, "128k", plan.AudioBitrate)
	assert.Equal(t, "mp4", plan.Container)
	assert.Empty(t, plan.Temporaries)
	assert.Empty(t, plan.Resources)
	assert.InDelta(t, 6.0, plan.ExpectedDuration, 1e-9)
	require.Len(t, plan.Inputs, 1)
	assert.Equal(t, "/media/a.mp4", plan.Inputs[0].Media.Path)
}

func TestCompile_MultiClipHonorsTrimRanges(t *testing.T) {
	plan, err := Compile(CompileInput{
		Clips: []editor.VideoClip{
			clip("a", 1, 4, 0),
			clip("b", 10, 15, 3),
		},
		Width:   1080,
		Height:  1920,
		Quality: mustQuality(t, "1080p"),
	})
	require.NoError(t, err)

	require.Len(t, plan.Operations, 4)
	assert.Equal(t, OpTrim, plan.Operations[0].Kind)
	assert.Equal(t, "segment0.mp4", plan.Operations[0].Output)
	assert.Equal(t, 1.0, plan.Operations[0].TrimStart)
	assert.Equal(t, 3.0, plan.Operations[0].TrimDuration)
	assert.Equal(t, []string{"video1.mp4"}, plan.Operations[1].Inputs)
	assert.Equal(t, 10.0, plan.Operations[1].TrimStart)
	assert.Equal(t, 5.0, plan.Operations[1].TrimDuration)

	concat := plan.Operations[2]
	assert.Equal(t, OpConcat, concat.Kind)
	assert.True(t, concat.StreamCopy)
	assert.Equal(t, []string{ConcatList}, concat.Inputs)

	final := plan.Operations[3]
	assert.Equal(t, OpTranscode, final.Kind)
	assert.Equal(t, []string{JoinedName}, final.Inputs)
	assert.Equal(t, "5000k", final.VideoBitrate)
	assert.Contains(t, final.VideoFilter, "pad=1080:1920")
	assert.Zero(t, final.TrimDuration)

	require.Len(t, plan.Resources, 1)
	assert.Equal(t, []string{"segment0.mp4", "segment1.mp4"}, plan.Resources[0].Entries)
	assert.ElementsMatch(t, []string{"segment0.mp4", "segment1.mp4", ConcatList, JoinedName}, plan.Temporaries)
	assert.InDelta(t, 8.0, plan.ExpectedDuration, 1e-9)
}

func TestCompile_AudioForcesConcatPathAndIsMixed(t *testing.T) {
	audio := editor.AudioTrack{
		ID:       "music",
		Source:   editor.MediaRef{ID: "m-music", Path: "/media/music.MP3", Name: "music.MP3"},
		Duration: 30,
		Volume:   0.4,
		Position: 2.5,
	}
	plan, err := Compile(CompileInput{
		Clips:   []editor.VideoClip{clip("a", 0, 10, 0)},
		Audio:   []editor.AudioTrack{audio},
		Width:   1920,
		Height:  1080,
		Quality: mustQuality(t, "480p"),
	})
	require.NoError(t, err)

	require.Len(t, plan.Operations, 3)
	final := plan.Operations[2]
	assert.Equal(t, []string{JoinedName, "audio0.mp3"}, final.Inputs)
	require.Len(t, final.AudioMix, 1)
	assert.Equal(t, AudioMix{Input: "audio0.mp3", Delay: 2.5, Volume: 0.4}, final.AudioMix[0])
	assert.Equal(t, "1000k", plan.VideoBitrate)
}

func TestCompile_PadsSilentSources(t *testing.T) {
	mute := clip("b", 0, 5, 10)
	mute.Source.Silent = true
	plan, err := Compile(CompileInput{
		Clips:   []editor.VideoClip{clip("a", 0, 10, 0), mute},
		Width:   1920,
		Height:  1080,
		Quality: mustQuality(t, "1080p"),
	})
	require.NoError(t, err)

	require.Equal(t, OpTrim, plan.Operations[0].Kind)
	assert.False(t, plan.Operations[0].PadAudio)
	assert.True(t, plan.Operations[1].PadAudio)
}

func TestCompile_Errors(t *testing.T) {
	_, err := Compile(CompileInput{Width: 1280, Height: 720, Quality: mustQuality(t, "720p")})
	assert.ErrorIs(t, err, ErrEmptyTimeline)

	_, err = Compile(CompileInput{Clips: []editor.VideoClip{clip("a", 0, 1, 0)}, Quality: mustQuality(t, "720p")})
	assert.Error(t, err)

	_, err = Compile(CompileInput{Clips: []editor.VideoClip{clip("a", 0, 1, 0)}, Width: 10, Height: 10})
	assert.ErrorIs(t, err, ErrUnknownQuality)
}

func TestCompile_Deterministic(t *testing.T) {
	in := CompileInput{
		Clips:   []editor.VideoClip{clip("a", 0, 5, 0), clip("b", 0, 5, 5)},
		Width:   1280,
		Height:  720,
		Quality: mustQuality(t, "720p"),
	}
	first, err := Compile(in)
	require.NoError(t, err)
	second, err := Compile(in)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCompileState_UsesPlatformSize(t *testing.T) {
	m := editor.NewModel(editor.NewSequenceIDs("id"))
	_, err := m.ImportVideo(editor.MediaRef{ID: "v", Path: "/v.mp4", Name: "v.mp4"}, 12)
	require.NoError(t, err)

	platform, err := LookupPlatform("tiktok")
	require.NoError(t, err)
	plan, err := CompileState(m.Snapshot(), platform, mustQuality(t, "720p"))
	require.NoError(t, err)

	assert.Equal(t, 1080, plan.Width)
	assert.Equal(t, 1920, plan.Height)
	assert.Equal(t, "2500k", plan.VideoBitrate)
}

func TestPresets(t *testing.T) {
	tests := []struct {
		key           string
		width, height int
	}{
		{"tiktok", 1080, 1920},
		{"youtube-shorts", 1080, 1920},
		{"instagram-reels", 1080, 1920},
		{"twitter", 1280, 720},
		{"custom", 1920, 1080},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			p, err := LookupPlatform(tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.width, p.Width)
			assert.Equal(t, tt.height, p.Height)
		})
	}

	_, err := LookupPlatform("myspace")
	assert.ErrorIs(t, err, ErrUnknownPlatform)
	_, err = LookupQuality("4k")
	assert.ErrorIs(t, err, ErrUnknownQuality)

	p, err := LookupPlatform("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPlatform, p.Key)
	assert.Len(t, Platforms(), 5)
	assert.Equal(t, "1080p", Qualities()[0].Key)
}

func TestOutputFilename(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	assert.Equal(t, "easy-clips-tiktok-1700000000123.mp4", OutputFilename("tiktok", at))
}
