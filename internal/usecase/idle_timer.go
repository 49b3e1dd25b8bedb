package usecase

import "time"

// idleTimer is a cancellable delayed task. Each arm bumps a generation
// counter so a callback that already fired can tell it was superseded.
// Callers hold the owning resource's lock around arm and cancel.
type idleTimer struct {
	timer *time.Timer
	gen   uint64
}

// arm replaces any pending task with fire(gen) after d
func (t *idleTimer) arm(d time.Duration, fire func(gen uint64)) uint64 {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.timer = time.AfterFunc(d, func() { fire(gen) })
	return gen
}

// cancel stops the pending task and invalidates callbacks already in flight
func (t *idleTimer) cancel() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
}

// current reports whether gen belongs to the latest armed task
func (t *idleTimer) current(gen uint64) bool {
	return t.timer != nil && t.gen == gen
}
