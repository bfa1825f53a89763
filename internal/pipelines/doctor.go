package pipelines

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const defaultCacheTTL = 5 * time.Minute

// CachedDoctor remembers the last doctor report so caption runs and /status
// do not each spawn a Python process.
type CachedDoctor struct {
	runner Runner
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu        sync.RWMutex
	cached    *Capabilities
	fetchedAt time.Time
}

type DoctorOption func(*CachedDoctor)

// WithTTL sets how long a report stays fresh.
func WithTTL(ttl time.Duration) DoctorOption {
	return func(d *CachedDoctor) {
		if ttl > 0 {
			d.ttl = ttl
		}
	}
}

func withClock(now func() time.Time) DoctorOption {
	return func(d *CachedDoctor) { d.now = now }
}

func NewCachedDoctor(runner Runner, logger *slog.Logger, opts ...DoctorOption) *CachedDoctor {
	if logger == nil {
		logger = slog.Default()
	}
	d := &CachedDoctor{
		runner: runner,
		ttl:    defaultCacheTTL,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *CachedDoctor) fresh() (*Capabilities, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.cached == nil || d.now().Sub(d.fetchedAt) >= d.ttl {
		return nil, false
	}
	return d.cached, true
}

// Get serves the cached report while fresh and probes again once it expires.
func (d *CachedDoctor) Get(ctx context.Context) (*Capabilities, error) {
	if caps, ok := d.fresh(); ok {
		return caps, nil
	}
	return d.Refresh(ctx)
}

// Peek never probes.
func (d *CachedDoctor) Peek() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Refresh probes unconditionally. A failed probe falls back to the previous
// report when there is one.
func (d *CachedDoctor) Refresh(ctx context.Context) (*Capabilities, error) {
	caps, err := d.runner.RunDoctor(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		if d.cached != nil {
			d.logger.Warn("doctor probe failed, keeping previous report", "error", err)
			return d.cached, nil
		}
		return nil, err
	}
	d.cached = caps
	d.fetchedAt = d.now()
	return caps, nil
}

// RequireSpeech fails with ErrSpeechUnavailable unless the speech pipeline
// reports itself usable.
func (d *CachedDoctor) RequireSpeech(ctx context.Context) error {
	caps, err := d.Get(ctx)
	if err != nil {
		return fmt.Errorf("probe speech pipeline: %w", err)
	}
	if !caps.HasSpeech {
		return ErrSpeechUnavailable
	}
	return nil
}

// Invalidate drops the cached report so the next Get probes again.
func (d *CachedDoctor) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.fetchedAt = time.Time{}
	d.mu.Unlock()
}
