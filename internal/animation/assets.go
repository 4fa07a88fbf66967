package animation

import (
	"image"
	"image/color"
	"math"
	"time"

	"github.com/srwiley/rasterx"
	"golang.org/x/image/math/fixed"
)

// Asset is one selectable recognition animation.
type Asset struct {
	Name     string
	Frames   int
	Interval time.Duration
	Color    color.RGBA
	style    style
}

type style int

const (
	stylePulse style = iota
	styleRipple
	styleSpin
)

// Assets are indexed by the fod_anim setting.
var Assets = []Asset{
	{Name: "miui_normal", Frames: 24, Interval: 30 * time.Millisecond, Color: color.RGBA{0x3d, 0xb8, 0xff, 0xff}, style: stylePulse},
	{Name: "miui_aod", Frames: 24, Interval: 30 * time.Millisecond, Color: color.RGBA{0xff, 0xff, 0xff, 0xff}, style: stylePulse},
	{Name: "miui_light", Frames: 24, Interval: 30 * time.Millisecond, Color: color.RGBA{0xff, 0xf4, 0xc2, 0xff}, style: styleRipple},
	{Name: "miui_pop", Frames: 16, Interval: 40 * time.Millisecond, Color: color.RGBA{0xff, 0x6f, 0x91, 0xff}, style: stylePulse},
	{Name: "miui_pulse", Frames: 30, Interval: 30 * time.Millisecond, Color: color.RGBA{0x39, 0x80, 0xff, 0xff}, style: styleRipple},
	{Name: "miui_pulse_white", Frames: 30, Interval: 30 * time.Millisecond, Color: color.RGBA{0xff, 0xff, 0xff, 0xff}, style: styleRipple},
	{Name: "miui_rhythm", Frames: 20, Interval: 35 * time.Millisecond, Color: color.RGBA{0x7c, 0x4d, 0xff, 0xff}, style: styleSpin},
	{Name: "op_cosmos", Frames: 32, Interval: 25 * time.Millisecond, Color: color.RGBA{0x9b, 0x6b, 0xff, 0xff}, style: styleSpin},
	{Name: "op_mclaren", Frames: 24, Interval: 30 * time.Millisecond, Color: color.RGBA{0xff, 0x80, 0x00, 0xff}, style: styleSpin},
	{Name: "op_stripe", Frames: 24, Interval: 30 * time.Millisecond, Color: color.RGBA{0xe0, 0x30, 0x30, 0xff}, style: styleSpin},
	{Name: "op_wave", Frames: 28, Interval: 30 * time.Millisecond, Color: color.RGBA{0x00, 0xc8, 0xd7, 0xff}, style: styleRipple},
	{Name: "pureview_dna", Frames: 24, Interval: 30 * time.Millisecond, Color: color.RGBA{0x00, 0xe6, 0x76, 0xff}, style: styleSpin},
	{Name: "pureview_future", Frames: 24, Interval: 30 * time.Millisecond, Color: color.RGBA{0x18, 0xff, 0xff, 0xff}, style: stylePulse},
	{Name: "pureview_halo_ring", Frames: 24, Interval: 30 * time.Millisecond, Color: color.RGBA{0xff, 0xd7, 0x40, 0xff}, style: styleRipple},
	{Name: "pureview_molecular", Frames: 24, Interval: 30 * time.Millisecond, Color: color.RGBA{0x64, 0xff, 0xda, 0xff}, style: styleSpin},
}

// AssetByID returns the asset for a setting value; out of range selects the
// first one.
func AssetByID(id int) Asset {
	if id < 0 || id >= len(Assets) {
		return Assets[0]
	}
	return Assets[id]
}

// Render draws frame n of the asset into a size x size image.
func (a Asset) Render(n, size int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	if size <= 0 || a.Frames <= 0 {
		return img
	}

	phase := float64(n%a.Frames) / float64(a.Frames)
	half := float64(size) / 2

	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	switch a.style {
	case stylePulse:
		filler := rasterx.NewFiller(size, size, scanner)
		filler.SetColor(color.NRGBA{R: a.Color.R, G: a.Color.G, B: a.Color.B, A: uint8(255 * (1 - phase))})
		rasterx.AddCircle(half, half, half*(0.4+0.6*phase), filler)
		filler.Draw()

	case styleRipple:
		stroker := rasterx.NewStroker(size, size, scanner)
		stroker.SetColor(a.Color)
		stroker.SetStroke(strokeWidth(size), 0, rasterx.RoundCap, rasterx.RoundCap, rasterx.RoundGap, rasterx.ArcClip)
		for ring := 0; ring < 3; ring++ {
			p := math.Mod(phase+float64(ring)/3, 1)
			rasterx.AddCircle(half, half, 1+(half-2)*p, stroker)
		}
		stroker.Draw()

	case styleSpin:
		filler := rasterx.NewFiller(size, size, scanner)
		filler.SetColor(a.Color)
		for dot := 0; dot < 6; dot++ {
			angle := 2 * math.Pi * (phase + float64(dot)/6)
			r := half * 0.7
			rasterx.AddCircle(half+r*math.Cos(angle), half+r*math.Sin(angle), half*0.12, filler)
		}
		filler.Draw()
	}
	return img
}

func strokeWidth(size int) fixed.Int26_6 {
	w := size / 24
	if w < 1 {
		w = 1
	}
	return fixed.I(w)
}
