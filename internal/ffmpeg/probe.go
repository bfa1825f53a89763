package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

var ErrNoDuration = errors.New("media has no readable duration")

type ProbeResult struct {
	Duration   float64 `json:"duration"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	VideoCodec string  `json:"video_codec,omitempty"`
	Bitrate    int64   `json:"bitrate,omitempty"`
	FrameRate  float64 `json:"frame_rate,omitempty"`
	AudioCodec string  `json:"audio_codec,omitempty"`
	HasVideo   bool    `json:"has_video"`
	HasAudio   bool    `json:"has_audio"`
}

// Probe reads container and stream metadata with ffprobe.
func (e *Executor) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	if path == "" {
		return nil, errors.New("file path is required")
	}
	cmd := exec.CommandContext(ctx, e.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}
	return parseProbe(output)
}

// probeOutput matches the ffprobe JSON output structure.
type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
		Duration   string `json:"duration"`
	} `json:"streams"`
}

func parseProbe(data []byte) (*ProbeResult, error) {
	var probe probeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	res := &ProbeResult{}
	if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
		res.Duration = d
	}
	if br, err := strconv.ParseInt(probe.Format.BitRate, 10, 64); err == nil {
		res.Bitrate = br
	}

	for _, s := range probe.Streams {
		switch s.CodecType {
		case "video":
			if res.HasVideo {
				continue
			}
			res.HasVideo = true
			res.Width = s.Width
			res.Height = s.Height
			res.VideoCodec = s.CodecName
			res.FrameRate = parseFrameRate(s.RFrameRate)
		case "audio":
			if res.HasAudio {
				continue
			}
			res.HasAudio = true
			res.AudioCodec = s.CodecName
		default:
			continue
		}
		if res.Duration <= 0 {
			if d, err := strconv.ParseFloat(s.Duration, 64); err == nil {
				res.Duration = d
			}
		}
	}

	if res.Duration <= 0 {
		return res, ErrNoDuration
	}
	return res, nil
}

// parseFrameRate turns "30000/1001" or "25" into frames per second.
func parseFrameRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
