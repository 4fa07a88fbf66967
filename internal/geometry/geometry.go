// Package geometry maps the sensor's canonical anchor onto screen coordinates
// for each display rotation.
package geometry

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrUnknownRotation is returned for a rotation outside the four quarter turns.
var ErrUnknownRotation = errors.New("unknown rotation")

// Rotation is the display rotation in clockwise degrees.
type Rotation int

// Supported rotations.
const (
	Rotation0   Rotation = 0
	Rotation90  Rotation = 90
	Rotation180 Rotation = 180
	Rotation270 Rotation = 270
)

// String returns the rotation in degrees.
func (r Rotation) String() string {
	return fmt.Sprintf("%d°", int(r))
}

// Next returns the rotation one quarter turn clockwise.
func (r Rotation) Next() Rotation {
	return Rotation((int(r) + 90) % 360)
}

// ParseRotation validates a rotation given in degrees.
func ParseRotation(degrees int) (Rotation, error) {
	switch r := Rotation(degrees); r {
	case Rotation0, Rotation90, Rotation180, Rotation270:
		return r, nil
	default:
		return 0, errors.Wrapf(ErrUnknownRotation, "%d", degrees)
	}
}

// Point is an absolute position in screen pixels.
type Point struct {
	X, Y int
}

// Size is the real (unrotated-aware) screen size in pixels.
type Size struct {
	Width, Height int
}

// Resolve returns the overlay's top-left corner for the given rotation.
// base is the sensor anchor reported by the daemon for the natural orientation.
func Resolve(rot Rotation, base Point, size int, screen Size, navBarSize int) (Point, error) {
	switch rot {
	case Rotation0:
		return Point{X: base.X, Y: base.Y}, nil
	case Rotation90:
		return Point{X: base.Y, Y: base.X}, nil
	case Rotation180:
		return Point{X: base.X, Y: screen.Height - base.Y - size}, nil
	case Rotation270:
		return Point{X: screen.Width - base.Y - size - navBarSize, Y: base.X}, nil
	default:
		return Point{}, errors.Wrapf(ErrUnknownRotation, "%d", int(rot))
	}
}
