package overlay

import (
	"image"
	"image/color"
	"sync"

	"github.com/phinze/fodcircle/internal/surface"
	"golang.org/x/image/draw"
)

// view is the surface client for the sensor marker. It draws the pressed
// circle while a finger is down and the icon otherwise.
type view struct {
	size    int
	circle  image.Image
	onTouch func(surface.TouchPhase) bool

	mu      sync.Mutex
	visible bool
	pressed bool
	icon    image.Image
	alpha   float32
}

func newView(size int, circleColor color.Color, onTouch func(surface.TouchPhase) bool) *view {
	return &view{
		size:    size,
		circle:  surface.Circle(size, circleColor),
		onTouch: onTouch,
		alpha:   1,
	}
}

func (v *view) Name() string { return "fod-circle" }

func (v *view) Visible() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.visible
}

func (v *view) setVisible(visible bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.visible = visible
}

// setPressed switches between the circle and the icon. Pressing clears the icon.
func (v *view) setPressed(pressed bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pressed = pressed
	if pressed {
		v.icon = nil
	}
}

func (v *view) setIcon(icon image.Image) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.icon = icon
}

func (v *view) setAlpha(a float32) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.alpha = a
}

func (v *view) Render(size image.Point) image.Image {
	v.mu.Lock()
	pressed, icon, alpha := v.pressed, v.icon, v.alpha
	v.mu.Unlock()

	src := icon
	if pressed {
		src = v.circle
	}
	if src == nil || alpha <= 0 {
		return nil
	}

	dst := image.NewRGBA(image.Rectangle{Max: size})
	var mask image.Image
	if alpha < 1 {
		mask = image.NewUniform(color.Alpha{A: uint8(alpha * 255)})
	}
	src = scaled(src, size)
	draw.DrawMask(dst, dst.Bounds(), src, src.Bounds().Min, mask, image.Point{}, draw.Over)
	return dst
}

func scaled(src image.Image, size image.Point) image.Image {
	if src.Bounds().Size() == size {
		return src
	}
	dst := image.NewRGBA(image.Rectangle{Max: size})
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

// HandleTouch answers the surface synchronously; the work happens on the
// coordinator loop.
func (v *view) HandleTouch(ev surface.TouchEvent) bool {
	inside := ev.X > 0 && ev.X < v.size && ev.Y > 0 && ev.Y < v.size

	phase := ev.Phase
	if phase == surface.TouchDown && !inside {
		phase = surface.TouchOutside
	}
	return v.onTouch(phase)
}
