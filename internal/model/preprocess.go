package model

import (
	"image"
	"image/color"

	"github.com/nfnt/resize"
	"k8s.io/klog/v2"
)

// PreprocessImage converts an image to the tensor layout expected by the model:
// opaque RGB, resized to ImageSize x ImageSize, channels scaled to [0, 1].
func PreprocessImage(img image.Image, meta Metadata) []float32 {
	targetSize := uint(meta.ImageSize)
	resized := resize.Resize(targetSize, targetSize, toRGB(img), resize.Bicubic)

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height

	inputData := make([]float32, 3*plane)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()

			rNorm := float32(r>>8) / 255.0
			gNorm := float32(g>>8) / 255.0
			bNorm := float32(b>>8) / 255.0

			pixelIndex := y*width + x
			if meta.Layout == LayoutNCHW {
				inputData[pixelIndex] = rNorm
				inputData[plane+pixelIndex] = gNorm
				inputData[2*plane+pixelIndex] = bNorm
				continue
			}
			inputData[3*pixelIndex] = rNorm
			inputData[3*pixelIndex+1] = gNorm
			inputData[3*pixelIndex+2] = bNorm
		}
	}

	klog.V(4).InfoS("Preprocessed image",
		"values", len(inputData), "width", width, "height", height, "layout", meta.Layout)
	return inputData
}

// toRGB drops the alpha channel without compositing, so transparent pixels
// keep their colour instead of turning black.
func toRGB(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			out.SetRGBA(x-bounds.Min.X, y-bounds.Min.Y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}
	return out
}
