package model

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, c color.Color) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestPreprocessImageNHWC(t *testing.T) {
	meta := DefaultMetadata()
	meta.ImageSize = 4

	data := PreprocessImage(solidImage(10, 6, color.NRGBA{R: 255, G: 0, B: 51, A: 255}), meta)
	require.Len(t, data, meta.ImageLen())

	for i := 0; i < len(data); i += 3 {
		assert.InDelta(t, 1.0, data[i], 0.01)
		assert.InDelta(t, 0.0, data[i+1], 0.01)
		assert.InDelta(t, 0.2, data[i+2], 0.01)
	}
}

func TestPreprocessImageNCHW(t *testing.T) {
	meta := DefaultMetadata()
	meta.ImageSize = 4
	meta.Layout = LayoutNCHW

	data := PreprocessImage(solidImage(8, 8, color.NRGBA{R: 0, G: 255, B: 0, A: 255}), meta)
	require.Len(t, data, meta.ImageLen())

	plane := 16
	for i := 0; i < plane; i++ {
		assert.InDelta(t, 0.0, data[i], 0.01)
		assert.InDelta(t, 1.0, data[plane+i], 0.01)
		assert.InDelta(t, 0.0, data[2*plane+i], 0.01)
	}
}

func TestPreprocessImageDropsAlpha(t *testing.T) {
	meta := DefaultMetadata()
	meta.ImageSize = 2

	data := PreprocessImage(solidImage(2, 2, color.NRGBA{R: 0, G: 0, B: 255, A: 0}), meta)
	require.Len(t, data, meta.ImageLen())
	for i := 0; i < len(data); i += 3 {
		assert.InDelta(t, 1.0, data[i+2], 0.01)
	}
}

func TestPreprocessImageOffsetBounds(t *testing.T) {
	meta := DefaultMetadata()
	meta.ImageSize = 2

	src := solidImage(6, 6, color.NRGBA{R: 255, G: 255, B: 255, A: 255}).(*image.NRGBA)
	sub := src.SubImage(image.Rect(2, 2, 6, 6))

	data := PreprocessImage(sub, meta)
	require.Len(t, data, meta.ImageLen())
	for _, v := range data {
		assert.InDelta(t, 1.0, v, 0.01)
	}
}
