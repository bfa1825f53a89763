package events

import (
	"io"
	"log/slog"
	"testing"
)

func TestBus_FanOut(t *testing.T) {
	b := NewBus(slog.New(slog.NewTextHandler(io.Discard, nil)))

	a, unsubA := b.Subscribe(4)
	c, unsubC := b.Subscribe(4)
	defer unsubA()
	defer unsubC()

	b.Publish(ExportProgress, 42)

	for name, ch := range map[string]<-chan Event{"a": a, "c": c} {
		select {
		case e := <-ch:
			if e.Type != ExportProgress || e.Data != 42 {
				t.Errorf("%s: got %+v", name, e)
			}
		default:
			t.Errorf("%s: no event delivered", name)
		}
	}
}

func TestBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBus(nil)
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(ExportProgress, 1)
	b.Publish(ExportProgress, 2)

	if e := <-ch; e.Data != 1 {
		t.Errorf("first event = %v, want 1", e.Data)
	}
	select {
	case e := <-ch:
		t.Errorf("unexpected buffered event %+v", e)
	default:
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	b := NewBus(nil)
	ch, unsub := b.Subscribe(0)
	if b.Subscribers() != 1 {
		t.Fatalf("subscribers = %d, want 1", b.Subscribers())
	}
	unsub()
	unsub()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after unsubscribe")
	}
	if b.Subscribers() != 0 {
		t.Errorf("subscribers = %d, want 0", b.Subscribers())
	}
	b.Publish(ProjectChanged, nil)
}
