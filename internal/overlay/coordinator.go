// Package overlay coordinates the fingerprint sensor marker: whether it and
// the recognition animation are visible, where they sit, and what the sensor
// daemon is told about it.
package overlay

import (
	"context"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/michaelquigley/pfxlog"
	"github.com/phinze/fodcircle/internal/animation"
	"github.com/phinze/fodcircle/internal/burnin"
	"github.com/phinze/fodcircle/internal/daemon"
	"github.com/phinze/fodcircle/internal/geometry"
	"github.com/phinze/fodcircle/internal/lockstate"
	"github.com/phinze/fodcircle/internal/metrics"
	"github.com/phinze/fodcircle/internal/settings"
	"github.com/phinze/fodcircle/internal/surface"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	wakeHold           = 500 * time.Millisecond
	defaultQueueSize   = 64
	overlayWindowTitle = "Fingerprint on display"
)

// Daemon is the part of the sensor daemon bridge the coordinator drives.
type Daemon interface {
	SetCallback(ctx context.Context, cb daemon.Callback)
	QueryGeometry(ctx context.Context) (daemon.Geometry, error)
	DimAmount(ctx context.Context, brightness int) (int, error)
	NotifyPress(ctx context.Context) bool
	NotifyRelease(ctx context.Context) bool
	NotifyShow(ctx context.Context) bool
	NotifyHide(ctx context.Context) bool
}

// LockState is the lock-screen event source.
type LockState interface {
	Subscribe(l lockstate.Listener) lockstate.Token
	Unsubscribe(t lockstate.Token)
	FingerprintDetectionRunning() bool
}

// Options wires a Coordinator to its collaborators. Daemon, Surface, Settings
// and LockState are required.
type Options struct {
	Daemon    Daemon
	Surface   surface.Surface
	Settings  settings.Store
	LockState LockState

	Clock    clockwork.Clock
	WakeLock *WakeLock
	Recorder metrics.Recorder

	NavBarSize    int
	AnimationSize int
	CircleColor   color.Color
	QueueSize     int
}

func (o *Options) validate() error {
	switch {
	case o.Daemon == nil:
		return errors.New("daemon is required")
	case o.Surface == nil:
		return errors.New("surface is required")
	case o.Settings == nil:
		return errors.New("settings store is required")
	case o.LockState == nil:
		return errors.New("lock state is required")
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.WakeLock == nil {
		o.WakeLock = NewWakeLock(o.Clock, nil)
	}
	if o.Recorder == nil {
		o.Recorder = metrics.NoopRecorder{}
	}
	if o.CircleColor == nil {
		o.CircleColor = color.NRGBA{R: 0x39, G: 0x80, B: 0xff, A: 0xff}
	}
	if o.QueueSize <= 0 {
		o.QueueSize = defaultQueueSize
	}
	return nil
}

type dispatched int

const (
	dispatchedNone dispatched = iota
	dispatchedPress
	dispatchedRelease
)

// Coordinator owns the overlay state. All inputs are queued and applied one
// at a time by Run, so handlers never race each other.
type Coordinator struct {
	cfg      Config
	daemon   Daemon
	surface  surface.Surface
	settings settings.Store
	lock     LockState
	wake     *WakeLock
	recorder metrics.Recorder
	log      *logrus.Entry

	view   *view
	anim   *animation.Controller
	jitter *burnin.Generator
	token  lockstate.Token

	events chan event
	done   chan struct{}
	// held while an event is applied so Close never runs mid-handler
	loopMu sync.Mutex

	// owned by the loop
	state           State
	params          surface.LayoutParams
	layoutDirty     bool
	lastDispatch    dispatched
	recognizingAnim bool
	defaultIcon     image.Image

	// copies published for readers outside the loop
	mu        sync.Mutex
	pubState  State
	pubParams surface.LayoutParams
	closeOnce sync.Once
}

// New queries the daemon for the sensor geometry, places the hidden overlay on
// the surface and subscribes to lock-state events. It fails if the daemon
// cannot be reached or does not answer the geometry query.
func New(ctx context.Context, opts Options) (*Coordinator, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	c := &Coordinator{
		daemon:   opts.Daemon,
		surface:  opts.Surface,
		settings: opts.Settings,
		lock:     opts.LockState,
		wake:     opts.WakeLock,
		recorder: opts.Recorder,
		log:      pfxlog.ContextLogger("overlay").Entry,
		events:   make(chan event, opts.QueueSize),
		done:     make(chan struct{}),
	}

	c.daemon.SetCallback(ctx, c)
	g, err := c.daemon.QueryGeometry(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read sensor geometry")
	}
	c.cfg = NewConfig(g, opts.NavBarSize)
	c.log = c.log.WithField("size", c.cfg.Size)

	animSize := opts.AnimationSize
	if animSize <= 0 {
		animSize = c.cfg.Size * 2
	}

	c.view = newView(c.cfg.Size, opts.CircleColor, c.handleTouch)
	c.defaultIcon = surface.DefaultIcon(c.cfg.Size, color.White)
	c.params = surface.LayoutParams{
		Width:   c.cfg.Size,
		Height:  c.cfg.Size,
		Gravity: surface.TopLeft,
		Layer:   surface.LayerOverlay,
		Title:   overlayWindowTitle,
	}
	if err := c.surface.Add(c.view, &c.params); err != nil {
		return nil, errors.Wrap(err, "unable to add overlay to surface")
	}

	c.anim = animation.New(c.surface, opts.Clock, animSize, c.cfg.PositionY)
	c.jitter = burnin.NewGenerator(opts.Clock, c.cfg.DreamingMaxOffset, func(x, y int) {
		c.enqueue(jitterEvent{x: x, y: y})
	})

	c.updatePosition()
	c.hide(ctx)
	c.layoutPass(ctx)
	c.publish()

	c.token = c.lock.Subscribe(c)

	c.log.Infof("overlay ready at %d,%d", c.cfg.PositionX, c.cfg.PositionY)
	return c, nil
}

// Config returns the geometry the coordinator was built with.
func (c *Coordinator) Config() Config {
	return c.cfg
}

// State returns the state as of the last applied event.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pubState
}

// Layout returns the overlay layout as of the last applied event.
func (c *Coordinator) Layout() surface.LayoutParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pubParams
}

// Run applies queued events until ctx is done or the coordinator is closed.
func (c *Coordinator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		case ev := <-c.events:
			c.loopMu.Lock()
			select {
			case <-c.done:
				c.loopMu.Unlock()
				return nil
			default:
			}
			c.apply(ctx, ev)
			c.loopMu.Unlock()
		}
	}
}

// Flush waits until every event queued before it has been applied.
func (c *Coordinator) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if !c.enqueue(flushEvent{done: done}) {
		return errors.New("coordinator closed")
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Show makes the overlay visible unless the bouncer is up.
func (c *Coordinator) Show() { c.enqueue(showEvent{}) }

// Hide hides the overlay and resets the pressed state.
func (c *Coordinator) Hide() { c.enqueue(hideEvent{}) }

// ConfigurationChanged recomputes the position after a rotation or display
// size change.
func (c *Coordinator) ConfigurationChanged() { c.enqueue(configChangedEvent{}) }

// DreamingStateChanged implements lockstate.Listener.
func (c *Coordinator) DreamingStateChanged(dreaming bool) {
	c.enqueue(dreamingEvent{dreaming: dreaming})
}

// KeyguardVisibilityChanged implements lockstate.Listener.
func (c *Coordinator) KeyguardVisibilityChanged(showing bool) {
	c.enqueue(keyguardEvent{showing: showing})
}

// KeyguardBouncerChanged implements lockstate.Listener.
func (c *Coordinator) KeyguardBouncerChanged(bouncer bool) {
	c.enqueue(bouncerEvent{bouncer: bouncer})
}

// ScreenTurnedOff implements lockstate.Listener.
func (c *Coordinator) ScreenTurnedOff() { c.enqueue(screenOffEvent{}) }

// FingerprintDetectionChanged implements lockstate.Listener. The overlay shows
// while the sensor listens and hides when it stops.
func (c *Coordinator) FingerprintDetectionChanged(running bool) {
	if running {
		c.Show()
	} else {
		c.Hide()
	}
}

// FingerDown implements daemon.Callback.
func (c *Coordinator) FingerDown() { c.enqueue(fingerDownEvent{}) }

// FingerUp implements daemon.Callback.
func (c *Coordinator) FingerUp() { c.enqueue(fingerUpEvent{}) }

// handleTouch runs on the surface's input goroutine.
func (c *Coordinator) handleTouch(phase surface.TouchPhase) bool {
	switch phase {
	case surface.TouchDown, surface.TouchUp:
		c.enqueue(touchEvent{phase: phase})
		return true
	case surface.TouchMove:
		return true
	default:
		c.enqueue(touchEvent{phase: phase})
		return false
	}
}

func (c *Coordinator) enqueue(ev event) bool {
	// a ready buffer slot must not win over a closed coordinator
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

func (c *Coordinator) apply(ctx context.Context, ev event) {
	c.recorder.IncEvent(ev.kind())

	switch ev := ev.(type) {
	case keyguardEvent:
		c.state.Keyguard = ev.showing
		c.updatePosition()
		c.anim.SetKeyguard(ev.showing)

	case dreamingEvent:
		c.state.Dreaming = ev.dreaming
		c.updateAlpha()
		if ev.dreaming {
			c.jitter.Start()
		} else {
			c.jitter.Stop()
		}

	case bouncerEvent:
		c.state.Bouncer = ev.bouncer
		if ev.bouncer {
			c.hide(ctx)
		} else if c.lock.FingerprintDetectionRunning() {
			c.show(ctx)
		}

	case screenOffEvent:
		c.hideCircle(ctx)

	case fingerDownEvent:
		c.showCircle(ctx)

	case fingerUpEvent:
		c.hideCircle(ctx)

	case touchEvent:
		c.applyTouch(ctx, ev.phase)

	case jitterEvent:
		// ticks already in flight when dreaming stopped are dropped
		if !c.state.Dreaming {
			return
		}
		c.state.DreamingOffsetX, c.state.DreamingOffsetY = ev.x, ev.y
		c.recorder.IncJitterApplied()
		c.updatePosition()

	case configChangedEvent:
		c.updatePosition()

	case showEvent:
		c.show(ctx)

	case hideEvent:
		c.hide(ctx)

	case flushEvent:
		close(ev.done)
		return
	}

	c.layoutPass(ctx)
	c.publish()
}

func (c *Coordinator) applyTouch(ctx context.Context, phase surface.TouchPhase) {
	switch phase {
	case surface.TouchDown:
		c.showCircle(ctx)
		c.recognizingAnim = c.settings.Int(settings.KeyRecognizingAnimation, 0) != 0
		if c.recognizingAnim {
			c.anim.Attach()
		}
	case surface.TouchUp:
		c.hideCircle(ctx)
		c.anim.Detach()
	default:
		c.anim.Detach()
	}
}

// layoutPass tells the daemon about press state changes. Only transitions are
// dispatched, so a finger down then up is exactly one press and one release.
// A command the daemon never received is not recorded: the next pass retries
// it, and a release is not sent for a press that was dropped.
func (c *Coordinator) layoutPass(ctx context.Context) {
	if !c.layoutDirty {
		return
	}
	c.layoutDirty = false

	want := dispatchedRelease
	if c.state.CircleShowing {
		want = dispatchedPress
	}
	if want == c.lastDispatch {
		return
	}

	var delivered bool
	if want == dispatchedPress {
		delivered = c.daemon.NotifyPress(ctx)
	} else {
		delivered = c.daemon.NotifyRelease(ctx)
	}
	if delivered {
		c.lastDispatch = want
	}
}

func (c *Coordinator) publish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pubState = c.state
	c.pubParams = c.params
}

func (c *Coordinator) show(ctx context.Context) {
	if c.state.Bouncer {
		return
	}
	c.state.Showing = true

	c.daemon.NotifyShow(ctx)
	c.view.setVisible(true)
	c.surface.Redraw(c.view)
	c.layoutDirty = true
}

func (c *Coordinator) hide(ctx context.Context) {
	c.state.Showing = false

	c.view.setVisible(false)
	c.surface.Redraw(c.view)
	c.layoutDirty = true
	c.hideCircle(ctx)
	c.daemon.NotifyHide(ctx)
}

func (c *Coordinator) showCircle(ctx context.Context) {
	c.state.CircleShowing = true
	c.params.KeepScreenOn = true

	if c.state.Dreaming {
		c.wake.Acquire(wakeHold)
	}
	c.setDim(ctx, true)
	c.updateAlpha()

	c.view.setPressed(true)
	c.surface.Redraw(c.view)
	c.recorder.IncCircleShown()
}

func (c *Coordinator) hideCircle(ctx context.Context) {
	c.state.CircleShowing = false

	c.view.setPressed(false)
	c.setCustomIcon()
	c.anim.SetAnimationAsset(c.settings.Int(settings.KeyAnimation, 0))
	c.surface.Redraw(c.view)

	c.setDim(ctx, false)
	c.updateAlpha()

	c.params.KeepScreenOn = false
	c.updateLayout()
}

func (c *Coordinator) updateAlpha() {
	c.view.setAlpha(1)
}

// setCustomIcon loads the user's icon, falling back to the built-in one.
func (c *Coordinator) setCustomIcon() {
	c.recognizingAnim = c.settings.Int(settings.KeyRecognizingAnimation, 0) != 0

	path := c.settings.String(settings.KeyCustomIcon)
	if path == "" {
		c.view.setIcon(c.defaultIcon)
		return
	}

	icon, err := surface.LoadIcon(path, c.cfg.Size)
	if err != nil {
		c.log.WithError(err).Warn("custom icon unusable, using default")
		c.view.setIcon(c.defaultIcon)
		return
	}
	c.view.setIcon(icon)
}

func (c *Coordinator) setDim(ctx context.Context, dim bool) {
	if dim {
		brightness := c.settings.Int(settings.KeyScreenBrightness, settings.DefaultScreenBrightness)
		amount, err := c.daemon.DimAmount(ctx, brightness)
		if err != nil {
			c.log.WithError(err).Debug("dim amount unavailable")
			amount = 0
		}
		if c.cfg.ShouldBoostBrightness {
			c.params.ScreenBrightness = 1
		}
		c.params.DimAmount = float32(amount) / 255
	} else {
		c.params.ScreenBrightness = 0
		c.params.DimAmount = 0
	}
	c.updateLayout()
}

// updatePosition places the overlay for the current rotation. The keyguard
// always uses the natural anchor; dreaming shifts y only.
func (c *Coordinator) updatePosition() {
	base := geometry.Point{X: c.cfg.PositionX, Y: c.cfg.PositionY}

	rot := c.surface.Rotation()
	p, err := geometry.Resolve(rot, base, c.cfg.Size, c.surface.RealSize(), c.cfg.NavBarSize)
	if err != nil {
		panic(errors.Wrap(err, "display reported an impossible rotation"))
	}

	if c.state.Keyguard {
		p = base
	}

	if c.state.Dreaming {
		p.Y += c.state.DreamingOffsetY
		c.anim.Reposition(p.Y)
	}

	c.params.X, c.params.Y = p.X, p.Y
	c.updateLayout()
}

func (c *Coordinator) updateLayout() {
	if err := c.surface.Update(c.view, &c.params); err != nil {
		c.log.WithError(err).Debug("unable to update overlay layout")
	}
	c.layoutDirty = true
}

// Close unsubscribes from lock-state events, stops timers and removes the
// overlay and animation from the surface. Queued events are discarded.
func (c *Coordinator) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.loopMu.Lock()
		defer c.loopMu.Unlock()

		c.lock.Unsubscribe(c.token)
		c.jitter.Stop()
		c.anim.Detach()
		c.wake.Release()
		if err := c.surface.Remove(c.view); err != nil {
			c.log.WithError(err).Debug("overlay already removed")
		}
		c.log.Info("overlay closed")
	})
	return nil
}
