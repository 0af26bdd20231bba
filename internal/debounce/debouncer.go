// Package debounce limits how often reactions to bursts of events run.
package debounce

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/wandb/runlens/internal/observability"
)

// Debouncer rate-limits a callback that only needs to run when something
// changed since its last run.
//
// It is safe for concurrent use.
type Debouncer struct {
	mu sync.Mutex

	limiter *rate.Limiter
	logger  *observability.CoreLogger

	// dirty is set when the callback needs to run.
	dirty bool

	stopped bool
}

// NewDebouncer returns a Debouncer allowing eventRate calls per second
// with bursts of burstSize.
func NewDebouncer(
	eventRate rate.Limit,
	burstSize int,
	logger *observability.CoreLogger,
) *Debouncer {
	return &Debouncer{
		limiter: rate.NewLimiter(eventRate, burstSize),
		logger:  observability.OrNoOp(logger),
	}
}

// MarkDirty records that the callback needs to run.
func (d *Debouncer) MarkDirty() {
	if d == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.dirty = true
}

// Debounce runs f if the debouncer is dirty and the rate limit allows.
//
// f runs while the debouncer's lock is held and must not use it.
func (d *Debouncer) Debounce(f func()) {
	if d == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || !d.dirty || !d.limiter.Allow() {
		return
	}
	d.runLocked(f)
}

// Flush runs f if the debouncer is dirty, ignoring the rate limit.
func (d *Debouncer) Flush(f func()) {
	if d == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || !d.dirty {
		return
	}
	d.runLocked(f)
}

func (d *Debouncer) runLocked(f func()) {
	d.logger.Debug("debounce: flushing")
	d.dirty = false
	f()
}

// Stop makes all future calls no-ops.
func (d *Debouncer) Stop() {
	if d == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
}
