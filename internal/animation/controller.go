// Package animation plays the recognition animation around the sensor while a
// finger is down on the lock screen.
package animation

import (
	"image"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/michaelquigley/pfxlog"
	"github.com/phinze/fodcircle/internal/surface"
	"github.com/sirupsen/logrus"
)

// Controller is a surface client that shows a looping asset centered on the
// sensor. It is detached until a gesture attaches it.
type Controller struct {
	surface surface.Surface
	clock   clockwork.Clock
	size    int
	log     *logrus.Entry

	mu       sync.Mutex
	params   surface.LayoutParams
	attached bool
	keyguard bool
	asset    Asset
	frame    int
	stop     chan struct{}
}

// New creates a detached controller. size is the square animation size and
// anchorY the sensor's vertical position.
func New(s surface.Surface, clock clockwork.Clock, size, anchorY int) *Controller {
	c := &Controller{
		surface: s,
		clock:   clock,
		size:    size,
		log:     pfxlog.ContextLogger("animation").Entry,
		asset:   Assets[0],
		params: surface.LayoutParams{
			Width:   size,
			Height:  size,
			Gravity: surface.TopCenter,
			Layer:   surface.LayerAnimation,
			Title:   "fod-animation",
		},
	}
	c.params.Y = anchorY - size/2
	return c
}

// Name implements surface.Client.
func (c *Controller) Name() string { return "fod-animation" }

// Visible implements surface.Client.
func (c *Controller) Visible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attached
}

// Render implements surface.Client.
func (c *Controller) Render(size image.Point) image.Image {
	c.mu.Lock()
	asset, frame := c.asset, c.frame
	c.mu.Unlock()

	dim := size.X
	if size.Y < dim {
		dim = size.Y
	}
	return asset.Render(frame, dim)
}

// SetKeyguard records whether the lock screen is showing. Attach only works
// while it is.
func (c *Controller) SetKeyguard(showing bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keyguard = showing
}

// Attached reports whether the animation is on the surface.
func (c *Controller) Attached() bool {
	return c.Visible()
}

// Frame returns the current frame index.
func (c *Controller) Frame() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame
}

// Asset returns the selected asset.
func (c *Controller) Asset() Asset {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.asset
}

// Attach adds the animation to the surface and starts it looping. It does
// nothing unless the keyguard is showing and the animation is detached.
func (c *Controller) Attach() {
	c.mu.Lock()
	if c.attached || !c.keyguard {
		c.mu.Unlock()
		return
	}
	params := c.params
	c.mu.Unlock()

	if err := c.surface.Add(c, &params); err != nil {
		c.log.WithError(err).Warn("unable to attach animation")
		return
	}

	c.mu.Lock()
	c.attached = true
	c.startLocked()
	c.mu.Unlock()
}

// Detach stops the animation, rewinds it and removes it from the surface.
// Calling it while detached is a no-op.
func (c *Controller) Detach() {
	c.mu.Lock()
	c.stopLocked()
	c.frame = 0
	wasAttached := c.attached
	c.attached = false
	c.mu.Unlock()

	if !wasAttached {
		return
	}
	if err := c.surface.Remove(c); err != nil {
		c.log.WithError(err).Debug("animation already removed")
	}
}

// Reposition centers the animation vertically on anchorY. An attached
// animation moves immediately.
func (c *Controller) Reposition(anchorY int) {
	c.mu.Lock()
	c.params.Y = anchorY - c.size/2
	attached := c.attached
	params := c.params
	c.mu.Unlock()

	if attached {
		if err := c.surface.Update(c, &params); err != nil {
			c.log.WithError(err).Debug("unable to move animation")
		}
	}
}

// Y returns the top edge the animation is placed at.
func (c *Controller) Y() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params.Y
}

// SetAnimationAsset selects the asset for the given setting value and rewinds
// to its first frame.
func (c *Controller) SetAnimationAsset(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()
	c.asset = AssetByID(id)
	c.frame = 0
	if c.attached {
		c.startLocked()
	}
}

func (c *Controller) startLocked() {
	c.stopLocked()
	stop := make(chan struct{})
	c.stop = stop
	ticker := c.clock.NewTicker(c.asset.Interval)
	go c.loop(ticker, stop)
}

func (c *Controller) stopLocked() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

func (c *Controller) loop(ticker clockwork.Ticker, stop <-chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			c.mu.Lock()
			select {
			case <-stop:
				c.mu.Unlock()
				return
			default:
			}
			c.frame = (c.frame + 1) % c.asset.Frames
			c.mu.Unlock()
			c.surface.Redraw(c)
		}
	}
}
