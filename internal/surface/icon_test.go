package surface

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseColor(t *testing.T) {
	c, err := ParseColor(DefaultCircleColor)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 0x39, G: 0x80, B: 0xff, A: 0xff}, c)

	c, err = ParseColor("#80ff0000")
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 0xff, A: 0x80}, c)

	c, err = ParseColor("White")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, c)

	_, err = ParseColor("#12")
	assert.Error(t, err)
	_, err = ParseColor("#zzzzzz")
	assert.Error(t, err)
}

func TestCircleIsFilledInsideOnly(t *testing.T) {
	img := Circle(40, color.RGBA{R: 255, A: 255})
	assert.Equal(t, image.Rect(0, 0, 40, 40), img.Bounds())

	_, _, _, center := img.At(20, 20).RGBA()
	_, _, _, corner := img.At(0, 0).RGBA()
	assert.NotZero(t, center)
	assert.Zero(t, corner)
}

func TestDefaultIconHasPixels(t *testing.T) {
	img := DefaultIcon(64, color.White)
	require.Equal(t, image.Rect(0, 0, 64, 64), img.Bounds())

	painted := 0
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a > 0 {
				painted++
			}
		}
	}
	assert.Greater(t, painted, 0)
}

func TestLoadIconScalesToSquare(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 40, 20))
	path := filepath.Join(t.TempDir(), "icon.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, src))
	require.NoError(t, f.Close())

	img, err := LoadIcon("file://"+path, 16)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 16), img.Bounds())
}

func TestLoadIconMissing(t *testing.T) {
	_, err := LoadIcon(filepath.Join(t.TempDir(), "nope.png"), 16)
	assert.Error(t, err)
}
