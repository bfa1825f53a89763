package render

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/easyclips/easyclips-agent/internal/editor"
	"github.com/easyclips/easyclips-agent/internal/export"
	"github.com/easyclips/easyclips-agent/internal/ffmpeg"
)

// fakeRunner writes the last argument (the output file) and replays progress.
type fakeRunner struct {
	calls   [][]string
	runFunc func(ctx context.Context, args []string, onProgress func(ffmpeg.Progress)) error
}

func (f *fakeRunner) Run(ctx context.Context, args []string, onProgress func(ffmpeg.Progress)) error {
	f.calls = append(f.calls, args)
	if f.runFunc != nil {
		return f.runFunc(ctx, args, onProgress)
	}
	onProgress(ffmpeg.Progress{OutTime: 500 * time.Millisecond})
	onProgress(ffmpeg.Progress{Done: true})
	return os.WriteFile(args[len(args)-1], []byte("out"), 0o644)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sourceFile(t *testing.T, dir, name string) editor.MediaRef {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("src"), 0o644); err != nil {
		t.Fatal(err)
	}
	return editor.MediaRef{ID: name, Path: p, Name: name}
}

func compile(t *testing.T, clips []editor.VideoClip, audio []editor.AudioTrack) export.Plan {
	t.Helper()
	q, _ := export.LookupQuality("720p")
	plan, err := export.Compile(export.CompileInput{Clips: clips, Audio: audio, Width: 1280, Height: 720, Quality: q})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return plan
}

func TestRender_SingleClip(t *testing.T) {
	src := t.TempDir()
	work := t.TempDir()
	ref := sourceFile(t, src, "a.mp4")
	plan := compile(t, []editor.VideoClip{{ID: "a", Source: ref, SourceDuration: 10, TrimStart: 2, TrimEnd: 8}}, nil)

	runner := &fakeRunner{}
	b := NewFFmpegBackend(runner, work, testLogger())

	var progress []int
	out, err := b.Render(context.Background(), plan, func(p int) { progress = append(progress, p) })
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if len(runner.calls) != 1 {
		t.Fatalf("ffmpeg calls = %d, want 1", len(runner.calls))
	}
	args := strings.Join(runner.calls[0], " ")
	for _, want := range []string{"-i " + ref.Path, "-ss 2 -t 6", "-b:v 2500k", "-c:a aac -b:a 128k", "pad=1280:720"} {
		if !strings.Contains(args, want) {
			t.Errorf("args missing %q: %s", want, args)
		}
	}

	if progress[len(progress)-1] != 100 {
		t.Errorf("final progress = %d, want 100", progress[len(progress)-1])
	}
	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Errorf("progress went backwards: %v", progress)
		}
	}
	if filepath.Dir(out.Path) != work || out.Size != 3 {
		t.Errorf("output = %+v", out)
	}
	entries, _ := os.ReadDir(work)
	if len(entries) != 1 {
		t.Errorf("work dir should only hold the output, has %d entries", len(entries))
	}
}

func TestRender_ConcatWritesListAndCleansUp(t *testing.T) {
	src := t.TempDir()
	work := t.TempDir()
	a := sourceFile(t, src, "a.mp4")
	b := sourceFile(t, src, "it's.mp4")
	plan := compile(t, []editor.VideoClip{
		{ID: "a", Source: a, SourceDuration: 10, TrimStart: 0, TrimEnd: 4},
		{ID: "b", Source: b, SourceDuration: 10, TrimStart: 1, TrimEnd: 5, Position: 4},
	}, nil)

	var list string
	runner := &fakeRunner{}
	runner.runFunc = func(ctx context.Context, args []string, onProgress func(ffmpeg.Progress)) error {
		for i, a := range args {
			if a == "concat" {
				data, err := os.ReadFile(args[i+4])
				if err != nil {
					return err
				}
				list = string(data)
			}
		}
		return os.WriteFile(args[len(args)-1], []byte("out"), 0o644)
	}

	if _, err := NewFFmpegBackend(runner, work, testLogger()).Render(context.Background(), plan, nil); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(runner.calls) != 4 {
		t.Fatalf("ffmpeg calls = %d, want 4", len(runner.calls))
	}
	if !strings.Contains(strings.Join(runner.calls[1], " "), "-ss 1 -t 4") {
		t.Errorf("second segment not trimmed: %v", runner.calls[1])
	}
	if strings.Count(list, "file '") != 2 || !strings.Contains(list, "segment1.mp4'") {
		t.Errorf("concat list = %q", list)
	}
	entries, _ := os.ReadDir(work)
	if len(entries) != 1 {
		t.Errorf("temporaries left behind: %d entries", len(entries))
	}
}

func TestRender_MissingSource(t *testing.T) {
	plan := compile(t, []editor.VideoClip{{
		ID:             "a",
		Source:         editor.MediaRef{Path: "/does/not/exist.mp4", Name: "exist.mp4"},
		SourceDuration: 5, TrimEnd: 5,
	}}, nil)
	runner := &fakeRunner{}
	_, err := NewFFmpegBackend(runner, t.TempDir(), testLogger()).Render(context.Background(), plan, nil)
	if !errors.Is(err, ErrSourceUnreachable) {
		t.Fatalf("got %v, want ErrSourceUnreachable", err)
	}
	if len(runner.calls) != 0 {
		t.Error("ffmpeg ran despite unreachable source")
	}
}

func TestRender_PropagatesFFmpegError(t *testing.T) {
	src := t.TempDir()
	plan := compile(t, []editor.VideoClip{{ID: "a", Source: sourceFile(t, src, "a.mp4"), SourceDuration: 5, TrimEnd: 5}}, nil)
	runner := &fakeRunner{runFunc: func(ctx context.Context, args []string, onProgress func(ffmpeg.Progress)) error {
		return &ffmpeg.ExitError{ExitCode: 1, StderrTail: "a.mp4: Invalid data found when processing input"}
	}}
	_, err := NewFFmpegBackend(runner, t.TempDir(), testLogger()).Render(context.Background(), plan, nil)
	if err == nil || err.Error() != "a.mp4: Invalid data found when processing input" {
		t.Fatalf("err = %v", err)
	}
}

func TestBuildArgs_AudioMix(t *testing.T) {
	src := t.TempDir()
	plan := compile(t,
		[]editor.VideoClip{{ID: "a", Source: sourceFile(t, src, "a.mp4"), SourceDuration: 5, TrimEnd: 5}},
		[]editor.AudioTrack{{ID: "m", Source: sourceFile(t, src, "m.mp3"), Duration: 5, Volume: 0.5, Position: 1.25}},
	)
	final := plan.Operations[len(plan.Operations)-1]
	args, err := buildArgs(plan, final, func(name string) string { return "/w/" + name })
	if err != nil {
		t.Fatal(err)
	}
	joined := strings.Join(args, " ")
	want := "[1:a]adelay=1250:all=1,volume=0.5[a1];[0:a][a1]amix=inputs=2:duration=first:normalize=0[aout]"
	if !strings.Contains(joined, want) {
		t.Errorf("filter graph missing: %s", joined)
	}
	if !strings.Contains(joined, "-i /w/joined.mp4 -i /w/audio0.mp3") {
		t.Errorf("inputs wrong: %s", joined)
	}
	if !strings.Contains(joined, "-map 0:v -map [aout]") {
		t.Errorf("maps wrong: %s", joined)
	}
}

func TestBuildArgs_SilentSourceGetsPaddedAudio(t *testing.T) {
	src := t.TempDir()
	mute := sourceFile(t, src, "screen.mp4")
	mute.Silent = true
	plan := compile(t,
		[]editor.VideoClip{
			{ID: "a", Source: sourceFile(t, src, "a.mp4"), SourceDuration: 5, TrimEnd: 5},
			{ID: "b", Source: mute, SourceDuration: 5, TrimStart: 1, TrimEnd: 4, Position: 5},
		},
		[]editor.AudioTrack{{ID: "m", Source: sourceFile(t, src, "m.mp3"), Duration: 5, Volume: 1}},
	)
	path := func(name string) string { return "/w/" + name }

	args, err := buildArgs(plan, plan.Operations[0], path)
	if err != nil {
		t.Fatal(err)
	}
	if joined := strings.Join(args, " "); strings.Contains(joined, "anullsrc") {
		t.Errorf("source with audio was padded: %s", joined)
	}

	args, err = buildArgs(plan, plan.Operations[1], path)
	if err != nil {
		t.Fatal(err)
	}
	joined := strings.Join(args, " ")
	want := "-i /w/video1.mp4 -f lavfi -i anullsrc=channel_layout=stereo:sample_rate=48000 -map 0:v:0 -map 1:a:0 -shortest -ss 1 -t 3"
	if !strings.Contains(joined, want) {
		t.Errorf("silent segment args = %s", joined)
	}
	if args[len(args)-1] != "/w/segment1.mp4" {
		t.Errorf("output = %s, want segment1.mp4", args[len(args)-1])
	}
}

func TestBuildArgs_Unsupported(t *testing.T) {
	_, err := buildArgs(export.Plan{}, export.Operation{Kind: "blur", Inputs: []string{"x"}}, func(s string) string { return s })
	if err == nil {
		t.Error("expected error for unknown operation")
	}
}

func TestConcatList_EscapesQuotes(t *testing.T) {
	got := concatList([]string{"/tmp/a.mp4", "/tmp/it's.mp4"})
	want := "file '/tmp/a.mp4'\nfile '/tmp/it'\\''s.mp4'\n"
	if got != want {
		t.Errorf("concatList = %q, want %q", got, want)
	}
}
