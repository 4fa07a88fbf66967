package surface

import (
	"image"
	"image/color"
	"image/draw"
	"sort"
	"sync"

	"github.com/michaelquigley/pfxlog"
	"github.com/phinze/fodcircle/internal/geometry"
	"github.com/pkg/errors"
)

// ErrUnknownClient is returned when updating or removing a client that was
// never added.
var ErrUnknownClient = errors.New("client not on surface")

type entry struct {
	client Client
	params LayoutParams
}

// Scene is an in-memory Surface. Backends render it and feed it input. Clients
// draw in layer order, then in the order they were added. It is safe for
// concurrent use.
type Scene struct {
	mu       sync.Mutex
	entries  []*entry
	rotation geometry.Rotation
	size     geometry.Size
	captured TouchHandler
	capRect  image.Rectangle
	awake    bool
	changed  chan struct{}
}

// NewScene creates an empty scene for a screen of the given real size.
func NewScene(size geometry.Size, rotation geometry.Rotation) *Scene {
	return &Scene{
		size:     size,
		rotation: rotation,
		changed:  make(chan struct{}, 1),
	}
}

// Changes is signalled, coalesced, whenever the scene needs repainting.
func (s *Scene) Changes() <-chan struct{} {
	return s.changed
}

func (s *Scene) notify() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// Add places c on the scene with a copy of p.
func (s *Scene) Add(c Client, p *LayoutParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.find(c) != nil {
		return errors.Errorf("client %s already added", c.Name())
	}
	s.entries = append(s.entries, &entry{client: c, params: *p})
	pfxlog.ContextLogger("surface").Debugf("added %s at %d,%d", c.Name(), p.X, p.Y)
	s.notify()
	return nil
}

// Update replaces the stored layout of c.
func (s *Scene) Update(c Client, p *LayoutParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.find(c)
	if e == nil {
		return errors.Wrap(ErrUnknownClient, c.Name())
	}
	e.params = *p
	s.notify()
	return nil
}

// Remove takes c off the scene.
func (s *Scene) Remove(c Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.entries {
		if e.client == c {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			if h, ok := c.(TouchHandler); ok && s.captured == h {
				s.captured = nil
			}
			s.notify()
			return nil
		}
	}
	return errors.Wrap(ErrUnknownClient, c.Name())
}

// Redraw requests a repaint.
func (s *Scene) Redraw(Client) {
	s.notify()
}

// Contains reports whether c is on the scene.
func (s *Scene) Contains(c Client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(c) != nil
}

// Params returns the stored layout of c.
func (s *Scene) Params(c Client) (LayoutParams, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.find(c); e != nil {
		return e.params, true
	}
	return LayoutParams{}, false
}

func (s *Scene) find(c Client) *entry {
	for _, e := range s.entries {
		if e.client == c {
			return e
		}
	}
	return nil
}

// Rotation returns the current display rotation.
func (s *Scene) Rotation() geometry.Rotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotation
}

// SetRotation changes the display rotation. Width and height swap on quarter
// turns.
func (s *Scene) SetRotation(r geometry.Rotation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if (int(s.rotation)/90)%2 != (int(r)/90)%2 {
		s.size.Width, s.size.Height = s.size.Height, s.size.Width
	}
	s.rotation = r
	s.notify()
}

// RealSize returns the screen size in the current rotation.
func (s *Scene) RealSize() geometry.Size {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

func (s *Scene) snapshot() ([]entry, geometry.Size) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].params.Layer < out[j].params.Layer
	})
	return out, s.size
}

// Brightness returns the strongest brightness override among visible clients.
func (s *Scene) Brightness() float32 {
	entries, _ := s.snapshot()
	var b float32
	for _, e := range entries {
		if e.client.Visible() && e.params.ScreenBrightness > b {
			b = e.params.ScreenBrightness
		}
	}
	return b
}

// HoldAwake keeps the screen on regardless of clients, for as long as a wake
// lock is held.
func (s *Scene) HoldAwake(held bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.awake == held {
		return
	}
	s.awake = held
	s.notify()
}

// KeepScreenOn reports whether the screen is held awake or any visible
// client holds it on.
func (s *Scene) KeepScreenOn() bool {
	s.mu.Lock()
	awake := s.awake
	s.mu.Unlock()
	if awake {
		return true
	}

	entries, _ := s.snapshot()
	for _, e := range entries {
		if e.client.Visible() && e.params.KeepScreenOn {
			return true
		}
	}
	return false
}

// Render paints the scene over background into a new image of the screen size.
func (s *Scene) Render(background color.Color) *image.RGBA {
	entries, size := s.snapshot()

	img := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{background}, image.Point{}, draw.Src)

	for _, e := range entries {
		if !e.client.Visible() {
			continue
		}

		// dim applies to everything already painted below this client
		if e.params.DimAmount > 0 {
			a := uint8(clamp01(e.params.DimAmount) * 255)
			draw.Draw(img, img.Bounds(), &image.Uniform{color.NRGBA{A: a}}, image.Point{}, draw.Over)
		}

		r := e.params.Bounds(size.Width)
		src := e.client.Render(r.Size())
		if src == nil {
			continue
		}
		draw.Draw(img, r, src, src.Bounds().Min, draw.Over)
	}
	return img
}

// Touch routes a screen-coordinate touch to the topmost visible touch client
// under it. A client that accepts the down keeps receiving the gesture until
// up or cancel. It reports whether a client consumed the event.
func (s *Scene) Touch(phase TouchPhase, x, y int) bool {
	entries, size := s.snapshot()
	pt := image.Pt(x, y)

	s.mu.Lock()
	captured, capRect := s.captured, s.capRect
	s.mu.Unlock()

	if phase != TouchDown {
		if captured == nil {
			return false
		}
		if phase == TouchUp || phase == TouchCancel {
			s.mu.Lock()
			s.captured = nil
			s.mu.Unlock()
		}
		local := pt.Sub(capRect.Min)
		return captured.HandleTouch(TouchEvent{Phase: phase, X: local.X, Y: local.Y})
	}

	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		h, ok := e.client.(TouchHandler)
		if !ok || !e.client.Visible() {
			continue
		}
		r := e.params.Bounds(size.Width)
		if !pt.In(r) {
			continue
		}
		local := pt.Sub(r.Min)
		if h.HandleTouch(TouchEvent{Phase: TouchDown, X: local.X, Y: local.Y}) {
			s.mu.Lock()
			s.captured, s.capRect = h, r
			s.mu.Unlock()
			return true
		}
	}

	for _, e := range entries {
		if h, ok := e.client.(TouchHandler); ok && e.client.Visible() {
			h.HandleTouch(TouchEvent{Phase: TouchOutside, X: x, Y: y})
		}
	}
	return false
}

func clamp01(v float32) float32 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// TouchTarget returns the screen-coordinate center of the topmost visible
// touch client.
func (s *Scene) TouchTarget() (image.Point, bool) {
	entries, size := s.snapshot()
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if _, ok := e.client.(TouchHandler); !ok || !e.client.Visible() {
			continue
		}
		r := e.params.Bounds(size.Width)
		return image.Pt(r.Min.X+r.Dx()/2, r.Min.Y+r.Dy()/2), true
	}
	return image.Point{}, false
}
