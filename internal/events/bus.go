// Package events fans out agent state changes to websocket clients and the tray.
package events

import (
	"log/slog"
	"sync"
	"time"
)

const (
	ExportStarted   = "export.started"
	ExportProgress  = "export.progress"
	ExportFinished  = "export.finished"
	ExportFailed    = "export.failed"
	CaptionsStatus  = "captions.status"
	ProjectChanged  = "project.changed"
	MediaImported   = "media.imported"
	defaultChanSize = 64
)

type Event struct {
	Type string    `json:"type"`
	Data any       `json:"data,omitempty"`
	Time time.Time `json:"time"`
}

// Publisher is the write side of the bus.
type Publisher interface {
	Publish(eventType string, data any)
}

// Bus delivers every published event to every subscriber. A subscriber that
// falls behind loses events instead of blocking publishers.
type Bus struct {
	logger *slog.Logger

	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Event
}

func NewBus(logger *slog.Logger) *Bus {
	return &Bus{logger: logger, subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of events and a function that unsubscribes and
// closes it. size <= 0 uses a default buffer.
func (b *Bus) Subscribe(size int) (<-chan Event, func()) {
	if size <= 0 {
		size = defaultChanSize
	}
	ch := make(chan Event, size)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Bus) Publish(eventType string, data any) {
	e := Event{Type: eventType, Data: data, Time: time.Now().UTC()}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- e:
		default:
			if b.logger != nil {
				b.logger.Warn("dropping event for slow subscriber", "subscriber", id, "type", eventType)
			}
		}
	}
}

// Subscribers reports how many subscribers are attached.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Discard is a Publisher that drops everything.
type Discard struct{}

func (Discard) Publish(string, any) {}
