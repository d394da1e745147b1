package collection

import (
	"sync"
	"time"
)

// reconciler coalesces refetch requests: each request cancels the pending
// one and restarts the delay.
type reconciler struct {
	delay time.Duration
	run   func()

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
}

func newReconciler(delay time.Duration, run func()) *reconciler {
	return &reconciler{delay: delay, run: run}
}

func (r *reconciler) request() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.delay, r.run)
}

func (r *reconciler) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
