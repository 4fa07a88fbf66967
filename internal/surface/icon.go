package surface

import (
	_ "embed"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strconv"
	"strings"

	"github.com/michaelquigley/pfxlog"
	"github.com/pkg/errors"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/colornames"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

//go:embed icons/fingerprint.svg
var fingerprintSVG string

// DefaultCircleColor is the pressed-circle color when none is configured.
const DefaultCircleColor = "#3980ff"

// DefaultIcon renders the built-in fingerprint glyph in col.
func DefaultIcon(size int, col color.Color) image.Image {
	return renderSVGIcon(fingerprintSVG, size, col)
}

// renderSVGIcon renders an SVG string, substituting currentColor with col.
func renderSVGIcon(svgContent string, size int, col color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	if size <= 0 {
		return img
	}

	r, g, b, _ := col.RGBA()
	hexColor := fmt.Sprintf("#%02x%02x%02x", r>>8, g>>8, b>>8)
	svgContent = strings.ReplaceAll(svgContent, "currentColor", hexColor)

	icon, err := oksvg.ReadIconStream(strings.NewReader(svgContent))
	if err != nil {
		pfxlog.ContextLogger("surface").WithError(err).Error("unable to parse icon")
		return img
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)
	return img
}

// Circle renders a filled disc of the given diameter.
func Circle(size int, col color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	if size <= 0 {
		return img
	}

	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	filler := rasterx.NewFiller(size, size, scanner)
	filler.SetColor(col)
	half := float64(size) / 2
	rasterx.AddCircle(half, half, half, filler)
	filler.Draw()
	return img
}

// LoadIcon decodes an image file (png, jpeg, bmp or webp) and scales it to a
// square of the given size. A leading file:// is accepted.
func LoadIcon(path string, size int) (image.Image, error) {
	path = strings.TrimPrefix(path, "file://")

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open icon")
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decode icon %s", path)
	}
	return scaleImageSquare(src, size), nil
}

// scaleImageSquare center-crops src to a square and scales it to size.
func scaleImageSquare(src image.Image, size int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	var crop image.Rectangle
	if w > h {
		off := (w - h) / 2
		crop = image.Rect(b.Min.X+off, b.Min.Y, b.Min.X+off+h, b.Max.Y)
	} else {
		off := (h - w) / 2
		crop = image.Rect(b.Min.X, b.Min.Y+off, b.Max.X, b.Min.Y+off+w)
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Over, nil)
	return dst
}

// ParseColor accepts #rrggbb, #aarrggbb or an SVG color name.
func ParseColor(s string) (color.Color, error) {
	s = strings.TrimSpace(s)
	if c, ok := colornames.Map[strings.ToLower(s)]; ok {
		return c, nil
	}

	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 && len(hex) != 8 {
		return nil, errors.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid color %q", s)
	}

	a := uint8(0xff)
	if len(hex) == 8 {
		a = uint8(v >> 24)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: a}, nil
}
