// Package timers provides the per-dial background tasks: a self-rescheduling
// repeater for polling and a trailing-edge debouncer for writes.
package timers

import (
	"context"
	"sync"
	"time"
)

// Repeater runs a task, waits interval, and runs it again. A cycle always
// finishes before the next wait begins, so cycles never overlap.
type Repeater struct {
	interval time.Duration
	task     func(ctx context.Context) bool

	mu      sync.Mutex
	timer   *time.Timer
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	stopped bool
}

// NewRepeater creates a stopped repeater. task returns false to end the loop.
func NewRepeater(interval time.Duration, task func(ctx context.Context) bool) *Repeater {
	return &Repeater{interval: interval, task: task}
}

// Start schedules the first cycle one interval from now. Starting twice, or
// after Stop, does nothing.
func (r *Repeater) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started || r.stopped {
		return
	}
	r.started = true
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.timer = time.AfterFunc(r.interval, r.cycle)
}

func (r *Repeater) cycle() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	ctx := r.ctx
	r.mu.Unlock()

	again := r.task(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	if !again {
		r.stopLocked()
		return
	}
	r.timer = time.AfterFunc(r.interval, r.cycle)
}

// Stop prevents any further cycle from starting and cancels the context of a
// cycle in progress. It does not wait for that cycle, so a task may call Stop
// on its own repeater. Stop is idempotent.
func (r *Repeater) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

func (r *Repeater) stopLocked() {
	if r.stopped {
		return
	}
	r.stopped = true
	if r.timer != nil {
		r.timer.Stop()
	}
	if r.cancel != nil {
		r.cancel()
	}
}

// Running reports whether the repeater has started and not stopped.
func (r *Repeater) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started && !r.stopped
}
