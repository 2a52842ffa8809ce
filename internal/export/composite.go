package export

import (
	"fmt"
	"image"
	"os"
)

// Weight of the generated image in the composite blend; the base image
// fills the remainder.
const generatedBlendWeight = 0.7

// Composite blends the generated image with the image stored at baseRef,
// weighting the generated pixels at 70% and the base at 30%.
//
// This is a best-effort aesthetic step. On any failure the generated image
// is returned unchanged together with a non-nil error the caller is
// expected to log at warning level; the returned image is always usable.
func Composite(generated *image.NRGBA, baseRef string) (*image.NRGBA, error) {
	f, err := os.Open(baseRef)
	if err != nil {
		return generated, fmt.Errorf("open base image %s: %w", baseRef, err)
	}
	defer f.Close()

	decoded, _, err := image.Decode(f)
	if err != nil {
		return generated, fmt.Errorf("decode base image %s: %w", baseRef, err)
	}

	bounds := generated.Bounds()
	base := Normalize(decoded, &Dimensions{Width: bounds.Dx(), Height: bounds.Dy()})
	if !base.Bounds().Eq(bounds) {
		// Normalization targets the generated size exactly, so this branch
		// should be unreachable; fall back to the generated image anyway.
		return generated, fmt.Errorf("base image size %v does not match generated %v", base.Bounds(), bounds)
	}

	return blend(generated, base, generatedBlendWeight), nil
}

// blend linearly interpolates two equally sized opaque bitmaps per channel.
func blend(a, b *image.NRGBA, weightA float64) *image.NRGBA {
	out := image.NewNRGBA(a.Bounds())
	weightB := 1 - weightA
	for i := 0; i < len(out.Pix); i += 4 {
		out.Pix[i] = mix(a.Pix[i], b.Pix[i], weightA, weightB)
		out.Pix[i+1] = mix(a.Pix[i+1], b.Pix[i+1], weightA, weightB)
		out.Pix[i+2] = mix(a.Pix[i+2], b.Pix[i+2], weightA, weightB)
		out.Pix[i+3] = 0xFF
	}
	return out
}

func mix(a, b uint8, wa, wb float64) uint8 {
	v := wa*float64(a) + wb*float64(b) + 0.5
	if v > 255 {
		return 255
	}
	return uint8(v)
}
