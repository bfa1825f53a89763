package captions

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/easyclips/easyclips-agent/internal/editor"
	"github.com/easyclips/easyclips-agent/internal/events"
)

type fakeTranscriber struct {
	transcribeFunc func(ctx context.Context, src Source) (Transcript, error)
	calls          []Source
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, src Source) (Transcript, error) {
	f.calls = append(f.calls, src)
	if f.transcribeFunc != nil {
		return f.transcribeFunc(ctx, src)
	}
	return Transcript{}, nil
}

type preparingTranscriber struct {
	fakeTranscriber
	prepareErr error
	prepared   bool
}

func (p *preparingTranscriber) Prepare(ctx context.Context) error {
	p.prepared = true
	return p.prepareErr
}

type fakeJobs struct {
	mu        sync.Mutex
	created   []string
	completed map[string]string
	failed    map[string]string
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{completed: map[string]string{}, failed: map[string]string{}}
}

func (f *fakeJobs) CreateJob(ctx context.Context, jobType, subject string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, jobType)
	return "job-1", nil
}

func (f *fakeJobs) CompleteJob(ctx context.Context, id, output string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed[id] = output
	return nil
}

func (f *fakeJobs) FailJob(ctx context.Context, id, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = message
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr(v float64) *float64 { return &v }

func modelWithMedia(t *testing.T, video, audio bool) *editor.Model {
	t.Helper()
	m := editor.NewModel(editor.NewSequenceIDs("id"))
	if video {
		if _, err := m.ImportVideo(editor.MediaRef{ID: "vid", Path: "/media/v.mp4", Name: "v.mp4"}, 20); err != nil {
			t.Fatal(err)
		}
	}
	if audio {
		if _, err := m.ImportAudio(editor.MediaRef{ID: "aud", Path: "/media/a.mp3", Name: "a.mp3"}, 20); err != nil {
			t.Fatal(err)
		}
	}
	return m
}

func TestGenerate_DropsEmptySegments(t *testing.T) {
	m := modelWithMedia(t, true, false)
	tr := &fakeTranscriber{transcribeFunc: func(ctx context.Context, src Source) (Transcript, error) {
		return Transcript{Segments: []Segment{
			{Text: "hi", Start: ptr(0), End: ptr(1.2)},
			{Text: "", Start: ptr(1.2), End: ptr(2.0)},
		}}, nil
	}}
	g := NewGenerator(m, tr, testLogger(), WithIdleAfter(time.Hour))

	n, err := g.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if n != 1 {
		t.Errorf("added = %d, want 1", n)
	}

	s := m.Snapshot()
	if len(s.Captions) != 1 {
		t.Fatalf("captions = %d, want 1", len(s.Captions))
	}
	c := s.Captions[0]
	if c.Text != "hi" || c.StartTime != 0 || c.EndTime != 1.2 {
		t.Errorf("caption = %+v", c)
	}
	if c.Style != editor.StyleDefault || c.Anchor != editor.AnchorBottom || c.Color != "#ffffff" || c.FontSize != 16 {
		t.Errorf("caption defaults not applied: %+v", c)
	}
	if s.CaptionStatus.Stage != editor.StageSuccess || s.CaptionStatus.Message != MsgSuccess {
		t.Errorf("status = %+v", s.CaptionStatus)
	}
}

func TestGenerate_DropsMalformedSegments(t *testing.T) {
	m := modelWithMedia(t, true, false)
	tr := &fakeTranscriber{transcribeFunc: func(ctx context.Context, src Source) (Transcript, error) {
		return Transcript{Segments: []Segment{
			{Text: "missing end", Start: ptr(0)},
			{Text: "nan", Start: ptr(math.NaN()), End: ptr(1)},
			{Text: "inf", Start: ptr(1), End: ptr(math.Inf(1))},
			{Text: "   ", Start: ptr(1), End: ptr(2)},
			{Text: "backwards", Start: ptr(3), End: ptr(2)},
			{Text: "  kept  ", Start: ptr(4), End: ptr(5)},
		}}, nil
	}}
	g := NewGenerator(m, tr, testLogger(), WithIdleAfter(time.Hour))

	n, err := g.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if n != 1 {
		t.Fatalf("added = %d, want 1", n)
	}
	if got := m.Snapshot().Captions[0].Text; got != "kept" {
		t.Errorf("text = %q, want trimmed %q", got, "kept")
	}
}

func TestGenerate_ReplacesExistingCaptions(t *testing.T) {
	m := modelWithMedia(t, true, false)
	if _, err := m.AddCaption(editor.Caption{Text: "old", StartTime: 0, EndTime: 1}); err != nil {
		t.Fatal(err)
	}
	tr := &fakeTranscriber{transcribeFunc: func(ctx context.Context, src Source) (Transcript, error) {
		return Transcript{Segments: []Segment{{Text: "new", Start: ptr(2), End: ptr(3)}}}, nil
	}}
	g := NewGenerator(m, tr, testLogger(), WithIdleAfter(time.Hour))
	if _, err := g.Generate(context.Background()); err != nil {
		t.Fatal(err)
	}
	caps := m.Snapshot().Captions
	if len(caps) != 1 || caps[0].Text != "new" {
		t.Errorf("captions = %+v, want only the new one", caps)
	}
}

func TestGenerate_PrefersAudioTrack(t *testing.T) {
	m := modelWithMedia(t, true, true)
	tr := &fakeTranscriber{}
	g := NewGenerator(m, tr, testLogger(), WithIdleAfter(time.Hour))
	if _, err := g.Generate(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(tr.calls) != 1 || tr.calls[0].Kind != SourceAudio || tr.calls[0].Path != "/media/a.mp3" {
		t.Errorf("transcribed %+v, want the audio track", tr.calls)
	}
}

func TestGenerate_NoSource(t *testing.T) {
	m := modelWithMedia(t, false, false)
	g := NewGenerator(m, &fakeTranscriber{}, testLogger())
	if _, err := g.Generate(context.Background()); !errors.Is(err, ErrNoSource) {
		t.Errorf("got %v, want ErrNoSource", err)
	}
	if st := m.Snapshot().CaptionStatus.Stage; st != editor.StageIdle {
		t.Errorf("stage = %s, want idle", st)
	}
}

func TestGenerate_FailureSetsErrorAndReturnsIt(t *testing.T) {
	m := modelWithMedia(t, true, false)
	boom := errors.New("model crashed")
	tr := &fakeTranscriber{transcribeFunc: func(ctx context.Context, src Source) (Transcript, error) {
		return Transcript{}, boom
	}}
	jobs := newFakeJobs()
	g := NewGenerator(m, tr, testLogger(), WithJobs(jobs))

	_, err := g.Generate(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want wrapped %v", err, boom)
	}
	st := m.Snapshot().CaptionStatus
	if st.Stage != editor.StageError || st.Message != MsgError {
		t.Errorf("status = %+v", st)
	}
	if _, ok := jobs.failed["job-1"]; !ok {
		t.Error("job not marked failed")
	}
	if g.InFlight() {
		t.Error("in-flight flag not released after failure")
	}
}

func TestGenerate_PrepareFailure(t *testing.T) {
	m := modelWithMedia(t, true, false)
	tr := &preparingTranscriber{prepareErr: errors.New("download failed")}
	g := NewGenerator(m, tr, testLogger())

	if _, err := g.Generate(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if !tr.prepared {
		t.Error("Prepare not called")
	}
	if len(tr.calls) != 0 {
		t.Error("Transcribe called after Prepare failed")
	}
}

func TestGenerate_RejectsConcurrentRun(t *testing.T) {
	m := modelWithMedia(t, true, false)
	release := make(chan struct{})
	entered := make(chan struct{})
	tr := &fakeTranscriber{transcribeFunc: func(ctx context.Context, src Source) (Transcript, error) {
		close(entered)
		<-release
		return Transcript{Segments: []Segment{{Text: "a", Start: ptr(0), End: ptr(1)}}}, nil
	}}
	g := NewGenerator(m, tr, testLogger(), WithIdleAfter(time.Hour))

	done := make(chan error, 1)
	go func() {
		_, err := g.Generate(context.Background())
		done <- err
	}()
	<-entered

	before := m.Snapshot()
	if _, err := g.Generate(context.Background()); !errors.Is(err, ErrInFlight) {
		t.Errorf("second call: got %v, want ErrInFlight", err)
	}
	if after := m.Snapshot(); after.Revision != before.Revision {
		t.Errorf("rejected call changed the model: revision %d -> %d", before.Revision, after.Revision)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first call: %v", err)
	}
}

func TestGenerate_StatusSequenceAndIdleReturn(t *testing.T) {
	m := modelWithMedia(t, true, false)
	bus := events.NewBus(nil)
	ch, unsub := bus.Subscribe(16)
	defer unsub()

	jobs := newFakeJobs()
	g := NewGenerator(m, &fakeTranscriber{}, testLogger(),
		WithEvents(bus), WithJobs(jobs), WithIdleAfter(10*time.Millisecond))

	if _, err := g.Generate(context.Background()); err != nil {
		t.Fatal(err)
	}

	want := []editor.CaptionStage{
		editor.StageLoadingModel,
		editor.StageTranscribing,
		editor.StageSuccess,
		editor.StageIdle,
	}
	for i, stage := range want {
		select {
		case e := <-ch:
			st := e.Data.(editor.CaptionStatus)
			if st.Stage != stage {
				t.Fatalf("event %d stage = %s, want %s", i, st.Stage, stage)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", stage)
		}
	}
	if st := m.Snapshot().CaptionStatus.Stage; st != editor.StageIdle {
		t.Errorf("stage = %s, want idle", st)
	}
	if jobs.completed["job-1"] != "0 captions" {
		t.Errorf("job output = %q", jobs.completed["job-1"])
	}
}

func TestGenerate_NewTransitionCancelsIdleTimer(t *testing.T) {
	m := modelWithMedia(t, true, false)
	g := NewGenerator(m, &fakeTranscriber{}, testLogger(), WithIdleAfter(30*time.Millisecond))

	if _, err := g.Generate(context.Background()); err != nil {
		t.Fatal(err)
	}
	g.setStatus(editor.StageTranscribing, MsgTranscribing)
	time.Sleep(80 * time.Millisecond)

	if st := m.Snapshot().CaptionStatus.Stage; st != editor.StageTranscribing {
		t.Errorf("stage = %s, idle timer should have been cancelled", st)
	}
}

func TestGenerate_PassesContext(t *testing.T) {
	m := modelWithMedia(t, true, false)
	tr := &fakeTranscriber{transcribeFunc: func(ctx context.Context, src Source) (Transcript, error) {
		<-ctx.Done()
		return Transcript{}, ctx.Err()
	}}
	g := NewGenerator(m, tr, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Generate(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}
