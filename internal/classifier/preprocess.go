package classifier

import (
	"image"
	"image/color"

	"github.com/nfnt/resize"

	"github.com/Brownie44l1/plant-disease-api/internal/model"
)

// Preprocess resizes img to size x size, drops alpha and scales 8-bit
// RGB intensities to [0,1]. The result is one batch element in the given
// layout: [1,H,W,3] for NHWC or [1,3,H,W] for NCHW.
func Preprocess(img image.Image, size int, layout string) []float32 {
	resized := resize.Resize(uint(size), uint(size), img, resize.Bicubic)

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height
	out := make([]float32, 3*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			// Non-premultiplied so that dropping alpha keeps the stored colour.
			c := color.NRGBAModel.Convert(resized.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			rNorm := float32(c.R) / 255.0
			gNorm := float32(c.G) / 255.0
			bNorm := float32(c.B) / 255.0

			pixel := y*width + x
			if layout == model.LayoutNCHW {
				out[pixel] = rNorm
				out[plane+pixel] = gNorm
				out[2*plane+pixel] = bNorm
			} else {
				out[3*pixel] = rNorm
				out[3*pixel+1] = gNorm
				out[3*pixel+2] = bNorm
			}
		}
	}
	return out
}
