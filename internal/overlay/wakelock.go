package overlay

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/michaelquigley/pfxlog"
)

// WakeLock keeps the device awake for a bounded time.
type WakeLock struct {
	clock    clockwork.Clock
	onChange func(held bool)

	mu    sync.Mutex
	timer clockwork.Timer
	gen   uint64
}

// NewWakeLock creates a released wake lock. onChange, if set, is called when
// the lock is taken or let go.
func NewWakeLock(clock clockwork.Clock, onChange func(held bool)) *WakeLock {
	return &WakeLock{clock: clock, onChange: onChange}
}

// Acquire holds the lock for d. Acquiring a held lock extends it.
func (w *WakeLock) Acquire(d time.Duration) {
	w.mu.Lock()
	wasHeld := w.timer != nil
	if wasHeld {
		w.timer.Stop()
	}
	w.gen++
	gen := w.gen
	w.timer = w.clock.AfterFunc(d, func() { w.expire(gen) })
	w.mu.Unlock()

	if !wasHeld {
		pfxlog.ContextLogger("wakelock").Debugf("held for %s", d)
		w.changed(true)
	}
}

func (w *WakeLock) expire(gen uint64) {
	w.mu.Lock()
	if w.gen != gen || w.timer == nil {
		w.mu.Unlock()
		return
	}
	w.timer = nil
	w.mu.Unlock()
	w.changed(false)
}

// Release lets the lock go early.
func (w *WakeLock) Release() {
	w.mu.Lock()
	held := w.timer != nil
	if held {
		w.timer.Stop()
		w.timer = nil
	}
	w.gen++
	w.mu.Unlock()

	if held {
		w.changed(false)
	}
}

// Held reports whether the lock is currently held.
func (w *WakeLock) Held() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.timer != nil
}

func (w *WakeLock) changed(held bool) {
	if w.onChange != nil {
		w.onChange(held)
	}
}
