// Package lockstate fans keyguard, bouncer, dream and screen events out to
// explicitly registered listeners.
package lockstate

import (
	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"go.uber.org/atomic"
)

// Listener receives lock-state changes. Methods are called on the publisher's
// goroutine and must not block.
type Listener interface {
	DreamingStateChanged(dreaming bool)
	KeyguardVisibilityChanged(showing bool)
	KeyguardBouncerChanged(bouncer bool)
	ScreenTurnedOff()
	// FingerprintDetectionChanged fires when the sensor starts or stops
	// listening for a finger.
	FingerprintDetectionChanged(running bool)
}

// Token identifies one subscription.
type Token string

// Notifier is the registry listeners subscribe to. The zero value is not usable;
// call NewNotifier.
type Notifier struct {
	listeners cmap.ConcurrentMap[string, Listener]

	detecting *atomic.Bool
	dreaming  *atomic.Bool
	keyguard  *atomic.Bool
	bouncer   *atomic.Bool
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{
		listeners: cmap.New[Listener](),
		detecting: atomic.NewBool(false),
		dreaming:  atomic.NewBool(false),
		keyguard:  atomic.NewBool(false),
		bouncer:   atomic.NewBool(false),
	}
}

// Subscribe registers l and returns the token to unsubscribe it with.
func (n *Notifier) Subscribe(l Listener) Token {
	token := uuid.NewString()
	n.listeners.Set(token, l)
	return Token(token)
}

// Unsubscribe removes the listener registered under t. Unknown tokens are ignored.
func (n *Notifier) Unsubscribe(t Token) {
	n.listeners.Remove(string(t))
}

// Len returns the number of registered listeners.
func (n *Notifier) Len() int {
	return n.listeners.Count()
}

func (n *Notifier) each(fn func(Listener)) {
	for _, l := range n.listeners.Items() {
		fn(l)
	}
}

// SetDreaming publishes a dream-state change.
func (n *Notifier) SetDreaming(dreaming bool) {
	n.dreaming.Store(dreaming)
	n.each(func(l Listener) { l.DreamingStateChanged(dreaming) })
}

// SetKeyguardVisible publishes a keyguard visibility change.
func (n *Notifier) SetKeyguardVisible(showing bool) {
	n.keyguard.Store(showing)
	n.each(func(l Listener) { l.KeyguardVisibilityChanged(showing) })
}

// SetBouncer publishes a bouncer change.
func (n *Notifier) SetBouncer(bouncer bool) {
	n.bouncer.Store(bouncer)
	n.each(func(l Listener) { l.KeyguardBouncerChanged(bouncer) })
}

// ScreenTurnedOff publishes a screen-off event.
func (n *Notifier) ScreenTurnedOff() {
	n.each(func(l Listener) { l.ScreenTurnedOff() })
}

// SetFingerprintDetectionRunning records whether the sensor is listening and
// publishes the change. Repeating the current value publishes nothing.
func (n *Notifier) SetFingerprintDetectionRunning(running bool) {
	if n.detecting.Swap(running) == running {
		return
	}
	n.each(func(l Listener) { l.FingerprintDetectionChanged(running) })
}

// FingerprintDetectionRunning reports whether the sensor is listening.
func (n *Notifier) FingerprintDetectionRunning() bool {
	return n.detecting.Load()
}

// Snapshot is the last published value of each flag.
type Snapshot struct {
	Dreaming  bool
	Keyguard  bool
	Bouncer   bool
	Detecting bool
}

// Snapshot returns the last published flags.
func (n *Notifier) Snapshot() Snapshot {
	return Snapshot{
		Dreaming:  n.dreaming.Load(),
		Keyguard:  n.keyguard.Load(),
		Bouncer:   n.bouncer.Load(),
		Detecting: n.detecting.Load(),
	}
}
