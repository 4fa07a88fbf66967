// Package surface is the presentation layer the overlay draws into: positioned
// client regions with dim and brightness attributes, plus touch routing back to
// the clients.
package surface

import (
	"image"

	"github.com/phinze/fodcircle/internal/geometry"
)

// Gravity selects how LayoutParams.X is interpreted.
type Gravity int

const (
	// TopLeft places the client at (X, Y) from the top-left corner.
	TopLeft Gravity = iota
	// TopCenter centers the client horizontally; X is an offset from center.
	TopCenter
)

// LayoutParams describes where and how a client is shown. The surface keeps a
// copy; callers push changes with Update.
type LayoutParams struct {
	X, Y          int
	Width, Height int

	// DimAmount darkens everything behind the client, 0 (none) to 1 (black).
	DimAmount float32
	// ScreenBrightness overrides the panel brightness while the client is
	// visible: 0 means no override, 1 means full.
	ScreenBrightness float32
	KeepScreenOn     bool

	Gravity Gravity
	Layer   Layer
	Title   string
}

// Layer orders clients; higher layers draw on top and see touches first.
type Layer int

const (
	LayerAnimation Layer = iota
	LayerOverlay
)

// Bounds returns the client rectangle on a screen of the given width.
func (p LayoutParams) Bounds(screenWidth int) image.Rectangle {
	x := p.X
	if p.Gravity == TopCenter {
		x += (screenWidth - p.Width) / 2
	}
	return image.Rect(x, p.Y, x+p.Width, p.Y+p.Height)
}

// Client is something the surface can show.
type Client interface {
	// Name identifies the client in logs.
	Name() string

	// Visible reports whether the client should currently be drawn.
	Visible() bool

	// Render returns the client's pixels for a region of the given size.
	// A nil image draws nothing.
	Render(size image.Point) image.Image
}

// TouchHandler is implemented by clients that consume touch input.
type TouchHandler interface {
	// HandleTouch receives events in client-local coordinates and reports
	// whether the event was consumed.
	HandleTouch(ev TouchEvent) bool
}

// TouchPhase is the kind of touch event.
type TouchPhase int

const (
	TouchDown TouchPhase = iota
	TouchUp
	TouchMove
	TouchCancel
	// TouchOutside is delivered to visible touch clients when a gesture
	// starts outside all of them.
	TouchOutside
)

// String returns the phase name.
func (p TouchPhase) String() string {
	switch p {
	case TouchDown:
		return "down"
	case TouchUp:
		return "up"
	case TouchMove:
		return "move"
	case TouchCancel:
		return "cancel"
	case TouchOutside:
		return "outside"
	default:
		return "unknown"
	}
}

// TouchEvent is a single touch sample.
type TouchEvent struct {
	Phase TouchPhase
	X, Y  int
}

// Surface hosts overlay clients.
type Surface interface {
	Add(c Client, p *LayoutParams) error
	Update(c Client, p *LayoutParams) error
	Remove(c Client) error

	// Redraw marks the client's pixels as stale.
	Redraw(c Client)

	Rotation() geometry.Rotation
	RealSize() geometry.Size
}
