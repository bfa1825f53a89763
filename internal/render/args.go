package render

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/easyclips/easyclips-agent/internal/export"
)

// Segments are re-encoded to identical parameters so the concat step can copy them.
var normalizeArgs = []string{
	"-c:v", export.VideoCodec, "-preset", "veryfast", "-crf", "18", "-pix_fmt", "yuv420p", "-r", "30",
	"-c:a", export.AudioCodec, "-b:a", export.AudioBitrate, "-ar", "48000", "-ac", "2",
}

// silenceArgs adds a generated silent track as input 1 and maps it in place
// of the source audio.
var silenceArgs = []string{
	"-f", "lavfi", "-i", "anullsrc=channel_layout=stereo:sample_rate=48000",
	"-map", "0:v:0", "-map", "1:a:0", "-shortest",
}

// buildArgs turns one plan operation into ffmpeg arguments. path maps plan
// names to files on disk.
func buildArgs(plan export.Plan, op export.Operation, path func(string) string) ([]string, error) {
	if len(op.Inputs) == 0 {
		return nil, fmt.Errorf("%s %s: no inputs", op.Kind, op.Output)
	}

	switch op.Kind {
	case export.OpTrim:
		args := []string{"-i", path(op.Inputs[0])}
		if op.PadAudio {
			args = append(args, silenceArgs...)
		}
		args = append(args, trimArgs(op)...)
		if op.VideoFilter != "" {
			args = append(args, "-vf", op.VideoFilter)
		}
		args = append(args, normalizeArgs...)
		return append(args, path(op.Output)), nil

	case export.OpConcat:
		return []string{
			"-f", "concat",
			"-safe", "0",
			"-i", path(op.Inputs[0]),
			"-c", "copy",
			path(op.Output),
		}, nil

	case export.OpTranscode:
		args := []string{"-i", path(op.Inputs[0])}
		args = append(args, trimArgs(op)...)
		for _, m := range op.AudioMix {
			args = append(args, "-i", path(m.Input))
		}
		if len(op.AudioMix) > 0 {
			args = append(args, "-filter_complex", audioMixGraph(op.AudioMix), "-map", "0:v", "-map", "[aout]")
		}
		if op.VideoFilter != "" {
			args = append(args, "-vf", op.VideoFilter)
		}
		args = append(args, "-c:v", plan.VideoCodec)
		if op.VideoBitrate != "" {
			args = append(args, "-b:v", op.VideoBitrate)
		}
		args = append(args,
			"-c:a", plan.AudioCodec,
			"-b:a", plan.AudioBitrate,
			"-movflags", "+faststart",
			path(op.Output),
		)
		return args, nil
	}
	return nil, fmt.Errorf("unsupported operation %q", op.Kind)
}

func trimArgs(op export.Operation) []string {
	if op.TrimDuration <= 0 {
		return nil
	}
	return []string{"-ss", formatSeconds(op.TrimStart), "-t", formatSeconds(op.TrimDuration)}
}

// audioMixGraph delays and attenuates each extra audio input and mixes them
// over the main programme audio.
func audioMixGraph(mix []export.AudioMix) string {
	var b strings.Builder
	labels := []string{"[0:a]"}
	for i, m := range mix {
		label := fmt.Sprintf("[a%d]", i+1)
		delayMs := int64(m.Delay * 1000)
		fmt.Fprintf(&b, "[%d:a]adelay=%d:all=1,volume=%s%s;", i+1, delayMs, formatSeconds(m.Volume), label)
		labels = append(labels, label)
	}
	fmt.Fprintf(&b, "%samix=inputs=%d:duration=first:normalize=0[aout]", strings.Join(labels, ""), len(labels))
	return b.String()
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// concatList renders an ffmpeg concat demuxer list.
func concatList(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(p, "'", `'\''`))
	}
	return b.String()
}
