// Package window shows a surface.Scene in a desktop window. The mouse stands in
// for the finger and R rotates the display.
package window

import (
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/michaelquigley/pfxlog"
	"github.com/phinze/fodcircle/internal/geometry"
	"github.com/phinze/fodcircle/internal/surface"
)

// Background is the simulated panel color.
var Background = color.RGBA{R: 0x20, G: 0x22, B: 0x28, A: 0xff}

// Window is an ebiten.Game rendering a scene.
type Window struct {
	scene    *surface.Scene
	scale    float64
	onRotate func(geometry.Rotation, geometry.Size)
	done     <-chan struct{}

	frame   *ebiten.Image
	pressed bool
}

// New creates a window for scene. The window is scaled down by scale so tall
// phone panels fit on a desktop. onRotate is called after R rotates the scene.
func New(scene *surface.Scene, scale float64, onRotate func(geometry.Rotation, geometry.Size)) *Window {
	if scale <= 0 {
		scale = 1
	}
	return &Window{scene: scene, scale: scale, onRotate: onRotate}
}

// Run opens the window and blocks until it is closed or done is closed. It
// must be called from the main goroutine.
func (w *Window) Run(done <-chan struct{}) error {
	w.done = done
	size := w.scene.RealSize()
	ebiten.SetWindowSize(int(float64(size.Width)*w.scale), int(float64(size.Height)*w.scale))
	ebiten.SetWindowTitle("fodcircle")
	ebiten.SetWindowResizable(true)
	ebiten.SetRunnableOnUnfocused(true)
	return ebiten.RunGame(w)
}

// Update polls input.
func (w *Window) Update() error {
	if ebiten.IsWindowBeingClosed() {
		return ebiten.Termination
	}
	select {
	case <-w.done:
		return ebiten.Termination
	default:
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		next := w.scene.Rotation().Next()
		w.scene.SetRotation(next)
		size := w.scene.RealSize()
		ebiten.SetWindowSize(int(float64(size.Width)*w.scale), int(float64(size.Height)*w.scale))
		pfxlog.ContextLogger("window").Infof("rotated to %s", next)
		if w.onRotate != nil {
			w.onRotate(next, size)
		}
	}

	x, y := ebiten.CursorPosition()
	switch {
	case inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft):
		w.pressed = true
		w.scene.Touch(surface.TouchDown, x, y)
	case inpututil.IsMouseButtonJustReleased(ebiten.MouseButtonLeft):
		w.pressed = false
		w.scene.Touch(surface.TouchUp, x, y)
	case w.pressed:
		w.scene.Touch(surface.TouchMove, x, y)
	}
	return nil
}

// Draw paints the scene, dimmed unless a client raises the brightness and
// dimmer still when nothing holds the screen on.
func (w *Window) Draw(screen *ebiten.Image) {
	img := w.scene.Render(Background)
	b := img.Bounds()
	if w.frame == nil || w.frame.Bounds().Dx() != b.Dx() || w.frame.Bounds().Dy() != b.Dy() {
		w.frame = ebiten.NewImage(b.Dx(), b.Dy())
	}
	w.frame.WritePixels(img.Pix)

	op := &ebiten.DrawImageOptions{}
	switch {
	case w.scene.Brightness() > 0:
	case w.scene.KeepScreenOn():
		op.ColorScale.Scale(0.85, 0.85, 0.85, 1)
	default:
		op.ColorScale.Scale(0.6, 0.6, 0.6, 1)
	}
	screen.DrawImage(w.frame, op)
}

// Layout keeps the logical screen at the scene's real size.
func (w *Window) Layout(_, _ int) (int, int) {
	size := w.scene.RealSize()
	return size.Width, size.Height
}
