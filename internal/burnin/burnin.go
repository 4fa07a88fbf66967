// Package burnin produces the slow positional drift applied to the overlay
// while the display is dreaming, so a static icon does not wear the panel.
package burnin

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/michaelquigley/pfxlog"
)

// Period is how often a new offset is produced while dreaming.
const Period = time.Minute

// MaxOffset is the largest drift, in pixels, for an overlay of the given size.
func MaxOffset(size int) int {
	return int(float32(size) * 0.1)
}

// Offsets returns the drift for the given number of minutes since the epoch.
// Both values lie in [-maxOffset, maxOffset].
func Offsets(minutes int64, maxOffset int) (x, y int) {
	if maxOffset <= 0 {
		return 0, 0
	}
	m := int64(maxOffset)

	rawX := minutes % (m * 4)
	if rawX > m*2 {
		rawX = m*4 - rawX
	}

	// y runs out of phase with x so the icon traces an area instead of a line
	rawY := (minutes + m/3) % (m * 2)
	if rawY > m*2 {
		rawY = m*4 - rawY
	}

	return int(rawX - m), int(rawY - m)
}

// Generator emits a fresh offset pair once per Period while started.
type Generator struct {
	clock     clockwork.Clock
	maxOffset int
	emit      func(x, y int)

	mu   sync.Mutex
	stop chan struct{}
}

// NewGenerator creates a stopped generator. emit is called from the
// generator's own goroutine.
func NewGenerator(clock clockwork.Clock, maxOffset int, emit func(x, y int)) *Generator {
	return &Generator{
		clock:     clock,
		maxOffset: maxOffset,
		emit:      emit,
	}
}

// Start begins ticking. The first offset is emitted one Period after Start.
// Starting a running generator restarts its period.
func (g *Generator) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.stop != nil {
		close(g.stop)
	}
	g.stop = make(chan struct{})

	ticker := g.clock.NewTicker(Period)
	go g.run(ticker, g.stop)
}

// Stop cancels the ticker. Ticks that fire after Stop are dropped.
func (g *Generator) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.stop != nil {
		close(g.stop)
		g.stop = nil
	}
}

// Running reports whether the generator is started.
func (g *Generator) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stop != nil
}

func (g *Generator) run(ticker clockwork.Ticker, stop <-chan struct{}) {
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.Chan():
			g.mu.Lock()
			stopped := g.stop == nil || isClosed(stop)
			g.mu.Unlock()
			if stopped {
				return
			}

			x, y := Offsets(now.Unix()/60, g.maxOffset)
			pfxlog.ContextLogger("burnin").Debugf("offset (%d, %d)", x, y)
			g.emit(x, y)
		}
	}
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
