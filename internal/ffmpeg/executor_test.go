package ffmpeg

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func TestParseProgress(t *testing.T) {
	input := strings.Join([]string{
		"frame=10",
		"fps=25.0",
		"out_time_us=400000",
		"out_time_ms=400000",
		"speed=1.5x",
		"progress=continue",
		"frame=20",
		"out_time_us=800000",
		"progress=end",
	}, "\n")

	var got []Progress
	parseProgress(strings.NewReader(input), func(p Progress) { got = append(got, p) })

	if len(got) != 2 {
		t.Fatalf("got %d progress blocks, want 2", len(got))
	}
	if got[0].Frame != 10 || got[0].OutTime != 400*time.Millisecond || got[0].Speed != "1.5x" || got[0].Done {
		t.Errorf("first block = %+v", got[0])
	}
	if got[1].Frame != 20 || got[1].OutTime != 800*time.Millisecond || !got[1].Done {
		t.Errorf("second block = %+v", got[1])
	}
}

func TestParseProgress_IgnoresNegativeTime(t *testing.T) {
	var got Progress
	parseProgress(strings.NewReader("out_time_us=-9223372036854775807\nprogress=continue\n"), func(p Progress) { got = p })
	if got.OutTime != 0 {
		t.Errorf("OutTime = %v, want 0", got.OutTime)
	}
}

func TestExitError_UsesLastStderrLine(t *testing.T) {
	err := &ExitError{ExitCode: 1, StderrTail: "[mov] moov atom not found\nvideo0.mp4: Invalid data found when processing input\n\n"}
	if got := err.Error(); got != "video0.mp4: Invalid data found when processing input" {
		t.Errorf("Error() = %q", got)
	}

	empty := &ExitError{ExitCode: 187}
	if got := empty.Error(); got != "ffmpeg exited with code 187" {
		t.Errorf("Error() = %q", got)
	}

	var target *ExitError
	if !errors.As(error(err), &target) {
		t.Error("errors.As failed")
	}
}

func TestLimitedWriter_KeepsTail(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 8}
	lw.Write([]byte("0123456789"))
	lw.Write([]byte("abc"))
	if got := buf.String(); got != "56789abc" {
		t.Errorf("tail = %q, want %q", got, "56789abc")
	}
}

func TestParseProbe(t *testing.T) {
	data := []byte(`{
		"streams": [
			{"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "r_frame_rate": "30000/1001"},
			{"codec_type": "audio", "codec_name": "aac"}
		],
		"format": {"duration": "12.480000", "bit_rate": "4000000"}
	}`)
	res, err := parseProbe(data)
	if err != nil {
		t.Fatalf("parseProbe: %v", err)
	}
	if res.Duration != 12.48 || res.Width != 1920 || res.Height != 1080 {
		t.Errorf("result = %+v", res)
	}
	if res.VideoCodec != "h264" || res.AudioCodec != "aac" || !res.HasAudio || !res.HasVideo {
		t.Errorf("codecs = %+v", res)
	}
	if math.Abs(res.FrameRate-29.97) > 0.01 {
		t.Errorf("frame rate = %v", res.FrameRate)
	}
}

func TestParseProbe_StreamDurationFallback(t *testing.T) {
	data := []byte(`{"streams": [{"codec_type": "audio", "codec_name": "mp3", "duration": "3.5"}], "format": {}}`)
	res, err := parseProbe(data)
	if err != nil {
		t.Fatalf("parseProbe: %v", err)
	}
	if res.Duration != 3.5 || res.HasVideo {
		t.Errorf("result = %+v", res)
	}
}

func TestParseProbe_Errors(t *testing.T) {
	if _, err := parseProbe([]byte("not json")); err == nil {
		t.Error("expected parse error")
	}
	if _, err := parseProbe([]byte(`{"streams": [], "format": {"duration": "N/A"}}`)); !errors.Is(err, ErrNoDuration) {
		t.Errorf("got %v, want ErrNoDuration", err)
	}
}

func TestParseFrameRate(t *testing.T) {
	tests := map[string]float64{
		"30/1":       30,
		"25":         25,
		"0/0":        0,
		"":           0,
		"24000/1001": 24000.0 / 1001.0,
	}
	for in, want := range tests {
		if got := parseFrameRate(in); math.Abs(got-want) > 1e-9 {
			t.Errorf("parseFrameRate(%q) = %v, want %v", in, got, want)
		}
	}
}
