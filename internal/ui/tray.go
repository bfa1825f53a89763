package ui

import (
	_ "embed"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/getlantern/systray"

	"github.com/easyclips/easyclips-agent/internal/editor"
	"github.com/easyclips/easyclips-agent/internal/events"
	"github.com/easyclips/easyclips-agent/internal/export"
)

//go:embed icon.png
var iconBytes []byte

// Subscriber is the read side of the event bus.
type Subscriber interface {
	Subscribe(size int) (<-chan events.Event, func())
}

type Tray struct {
	bus    Subscriber
	logger *slog.Logger

	exportItem  *systray.MenuItem
	captionItem *systray.MenuItem
	cancelItem  *systray.MenuItem

	mu          sync.Mutex
	unsubscribe func()

	apiURL   string
	onCancel func() bool
	onOpen   func(url string) error
	onQuit   func()
}

type TrayConfig struct {
	Bus    Subscriber
	Logger *slog.Logger
	// APIURL is shown in the menu and handed to OnOpen.
	APIURL string
	// OnCancelExport stops a running export and reports whether one was running.
	OnCancelExport func() bool
	OnOpen         func(url string) error
	OnQuit         func()
}

func NewTray(cfg TrayConfig) *Tray {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Tray{
		bus:      cfg.Bus,
		logger:   logger.With("component", "tray"),
		apiURL:   cfg.APIURL,
		onCancel: cfg.OnCancelExport,
		onOpen:   cfg.OnOpen,
		onQuit:   cfg.OnQuit,
	}
}

// Run blocks on the platform event loop until Quit.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Easy Clips")
	systray.SetTooltip("Easy Clips Agent")

	t.exportItem = systray.AddMenuItem("Export: Idle", "Current export")
	t.exportItem.Disable()

	t.captionItem = systray.AddMenuItem("Captions: Idle", "Caption generation")
	t.captionItem.Disable()

	systray.AddSeparator()

	t.cancelItem = systray.AddMenuItem("Cancel Export", "Stop the running export")
	t.cancelItem.Disable()

	openItem := systray.AddMenuItem("Open Editor", t.apiURL)

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Easy Clips Agent")

	go func() {
		for {
			select {
			case <-t.cancelItem.ClickedCh:
				t.handleCancel()
			case <-openItem.ClickedCh:
				t.handleOpen()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	if t.bus != nil {
		ch, unsub := t.bus.Subscribe(0)
		t.mu.Lock()
		t.unsubscribe = unsub
		t.mu.Unlock()
		go t.follow(ch)
	}

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.mu.Lock()
	unsub := t.unsubscribe
	t.unsubscribe = nil
	t.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	t.logger.Info("system tray exiting")
}

func (t *Tray) follow(ch <-chan events.Event) {
	for e := range ch {
		u, ok := statusFor(e)
		if !ok {
			continue
		}
		t.apply(u)
	}
}

func (t *Tray) apply(u statusUpdate) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch u.line {
	case lineExport:
		t.exportItem.SetTitle(u.title)
		if u.exporting {
			t.cancelItem.Enable()
		} else {
			t.cancelItem.Disable()
		}
	case lineCaptions:
		t.captionItem.SetTitle(u.title)
	}
}

func (t *Tray) handleCancel() {
	if t.onCancel == nil {
		return
	}
	if t.onCancel() {
		t.logger.Info("export cancelled from tray")
	}
}

func (t *Tray) handleOpen() {
	if t.onOpen == nil {
		return
	}
	if err := t.onOpen(t.apiURL); err != nil {
		t.logger.Error("failed to open editor", "error", err)
	}
}

func (t *Tray) Quit() {
	systray.Quit()
}

type menuLine int

const (
	lineExport menuLine = iota
	lineCaptions
)

type statusUpdate struct {
	line      menuLine
	title     string
	exporting bool
}

// statusFor maps a bus event to the menu line it changes.
func statusFor(e events.Event) (statusUpdate, bool) {
	switch e.Type {
	case events.ExportStarted:
		return statusUpdate{line: lineExport, title: "Export: Starting…", exporting: true}, true
	case events.ExportProgress:
		data, _ := e.Data.(map[string]any)
		p, _ := data["progress"].(int)
		return statusUpdate{line: lineExport, title: fmt.Sprintf("Export: %d%%", p), exporting: true}, true
	case events.ExportFinished:
		title := "Export: Done"
		if res, ok := e.Data.(export.Result); ok && res.Path != "" {
			title = "Export: Saved " + filepath.Base(res.Path)
		}
		return statusUpdate{line: lineExport, title: title}, true
	case events.ExportFailed:
		return statusUpdate{line: lineExport, title: "Export: Failed"}, true
	case events.CaptionsStatus:
		status, ok := e.Data.(editor.CaptionStatus)
		if !ok {
			return statusUpdate{}, false
		}
		return statusUpdate{line: lineCaptions, title: "Captions: " + stageTitle(status.Stage)}, true
	}
	return statusUpdate{}, false
}

func stageTitle(s editor.CaptionStage) string {
	switch s {
	case editor.StageLoadingModel:
		return "Loading model"
	case editor.StageTranscribing:
		return "Transcribing"
	case editor.StageSuccess:
		return "Done"
	case editor.StageError:
		return "Failed"
	default:
		return "Idle"
	}
}
