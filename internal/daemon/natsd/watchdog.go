package natsd

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// watchdog reports a daemon dead once heartbeats stop or the connection closes.
type watchdog struct {
	clock    clockwork.Clock
	interval time.Duration
	misses   int
	isClosed func() bool
	onDead   func(reason string)

	mu    sync.Mutex
	last  time.Time
	fired bool

	stop     chan struct{}
	stopOnce sync.Once
}

func newWatchdog(clock clockwork.Clock, interval time.Duration, misses int, isClosed func() bool, onDead func(string)) *watchdog {
	return &watchdog{
		clock:    clock,
		interval: interval,
		misses:   misses,
		isClosed: isClosed,
		onDead:   onDead,
		last:     clock.Now(),
		stop:     make(chan struct{}),
	}
}

func (w *watchdog) beat() {
	w.mu.Lock()
	w.last = w.clock.Now()
	w.mu.Unlock()
}

func (w *watchdog) start() {
	ticker := w.clock.NewTicker(w.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-w.stop:
				return
			case <-ticker.Chan():
				if reason, dead := w.check(); dead {
					w.dead(reason)
					return
				}
			}
		}
	}()
}

func (w *watchdog) check() (string, bool) {
	if w.isClosed != nil && w.isClosed() {
		return "connection closed", true
	}
	w.mu.Lock()
	silent := w.clock.Since(w.last)
	w.mu.Unlock()
	if silent > time.Duration(w.misses)*w.interval {
		return "heartbeat lost", true
	}
	return "", false
}

// dead fires onDead at most once.
func (w *watchdog) dead(reason string) {
	w.mu.Lock()
	if w.fired {
		w.mu.Unlock()
		return
	}
	w.fired = true
	w.mu.Unlock()

	w.close()
	w.onDead(reason)
}

func (w *watchdog) close() {
	w.stopOnce.Do(func() { close(w.stop) })
}

// disarm stops the watchdog without reporting death.
func (w *watchdog) disarm() {
	w.mu.Lock()
	w.fired = true
	w.mu.Unlock()
	w.close()
}
