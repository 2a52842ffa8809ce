package export

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
)

type Dimensions struct {
	Width  int
	Height int
}

// Normalize converts an arbitrary decoded image into an opaque RGB bitmap
// and, when dims is non-nil, resizes it to exactly those dimensions.
//
// Sources that carry transparency are flattened onto a fully opaque white
// canvas using their alpha channel as the blend mask; everything else is
// converted directly. The result never has a meaningful alpha channel.
func Normalize(src image.Image, dims *Dimensions) *image.NRGBA {
	out := flattenToRGB(src)
	if dims != nil {
		out = imaging.Resize(out, dims.Width, dims.Height, imaging.Lanczos)
	}
	return out
}

func flattenToRGB(src image.Image) *image.NRGBA {
	if nrgba, ok := src.(*image.NRGBA); ok && nrgba.Opaque() {
		return nrgba
	}

	bounds := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	if hasAlpha(src) {
		draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Over)
	} else {
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Src)
	}

	forceOpaque(dst)
	return dst
}

func hasAlpha(img image.Image) bool {
	type opaquer interface{ Opaque() bool }
	if o, ok := img.(opaquer); ok {
		return !o.Opaque()
	}
	return false
}

// forceOpaque pins every alpha byte to 255 so downstream encoders see a
// plain RGB bitmap regardless of how the pixels got here.
func forceOpaque(img *image.NRGBA) {
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xFF
	}
}
