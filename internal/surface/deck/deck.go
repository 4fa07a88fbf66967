// Package deck mirrors a surface.Scene onto a Stream Deck touch strip. Holding
// key 1 presses the sensor; tapping the strip touches the matching point.
package deck

import (
	"context"
	"image"
	"image/color"
	"time"

	"github.com/michaelquigley/pfxlog"
	"github.com/phinze/fodcircle/internal/surface"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
	"rafaelmartins.com/p/streamdeck"
)

const (
	idleBrightness   = 20
	normalBrightness = 60
	fullBrightness   = 100
)

// Deck drives one device.
type Deck struct {
	device *streamdeck.Device
	scene  *surface.Scene
	strip  image.Rectangle
	log    *logrus.Entry
}

// Open finds and opens the first attached device.
func Open(scene *surface.Scene) (*Deck, error) {
	device, err := streamdeck.GetDevice("")
	if err != nil {
		return nil, errors.Wrap(err, "find stream deck")
	}
	if err := device.Open(); err != nil {
		return nil, errors.Wrap(err, "open stream deck")
	}
	if !device.GetTouchStripSupported() {
		device.Close()
		return nil, errors.Errorf("%s has no touch strip", device.GetModelName())
	}
	strip, err := device.GetTouchStripImageRectangle()
	if err != nil {
		device.Close()
		return nil, errors.Wrap(err, "touch strip size")
	}

	return &Deck{
		device: device,
		scene:  scene,
		strip:  strip,
		log:    pfxlog.ContextLogger("deck").WithField("model", device.GetModelName()),
	}, nil
}

// Run handles input and repaints on scene changes until ctx is done.
func (d *Deck) Run(ctx context.Context) error {
	defer d.device.Close()

	d.device.SetBrightness(idleBrightness)
	d.device.ForEachKey(func(key streamdeck.KeyID) error {
		return d.device.ClearKey(key)
	})

	if err := d.device.AddKeyHandler(streamdeck.KEY_1, func(_ *streamdeck.Device, k *streamdeck.Key) error {
		pt, ok := d.scene.TouchTarget()
		if !ok {
			return nil
		}
		d.scene.Touch(surface.TouchDown, pt.X, pt.Y)
		held := k.WaitForRelease()
		d.log.Debugf("sensor held for %s", held)
		d.scene.Touch(surface.TouchUp, pt.X, pt.Y)
		return nil
	}); err != nil {
		return errors.Wrap(err, "key handler")
	}

	if err := d.device.AddTouchStripTouchHandler(func(_ *streamdeck.Device, _ streamdeck.TouchStripTouchType, p image.Point) error {
		x, y := d.toScene(p)
		d.scene.Touch(surface.TouchDown, x, y)
		d.scene.Touch(surface.TouchUp, x, y)
		return nil
	}); err != nil {
		return errors.Wrap(err, "touch strip handler")
	}

	errChan := make(chan error, 1)
	go func() {
		if err := d.device.Listen(errChan); err != nil {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	d.log.Info("mirroring overlay on touch strip")
	d.paint()

	// repaint at least every few seconds in case a frame was lost over USB
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errChan:
			return errors.Wrap(err, "device disconnected")
		case <-d.scene.Changes():
			d.paint()
		case <-ticker.C:
			d.paint()
		}
	}
}

func (d *Deck) paint() {
	frame := d.scene.Render(color.Black)

	dst := image.NewRGBA(d.strip)
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), frame, frame.Bounds(), draw.Src, nil)
	if err := d.device.SetTouchStripImage(dst); err != nil {
		d.log.WithError(err).Debug("unable to paint touch strip")
	}

	switch {
	case d.scene.Brightness() > 0:
		d.device.SetBrightness(fullBrightness)
	case d.scene.KeepScreenOn():
		d.device.SetBrightness(normalBrightness)
	default:
		d.device.SetBrightness(idleBrightness)
	}
}

// toScene maps a strip point to scene coordinates.
func (d *Deck) toScene(p image.Point) (int, int) {
	size := d.scene.RealSize()
	x := (p.X - d.strip.Min.X) * size.Width / d.strip.Dx()
	y := (p.Y - d.strip.Min.Y) * size.Height / d.strip.Dy()
	return x, y
}
