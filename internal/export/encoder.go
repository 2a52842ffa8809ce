package export

import "image"

// Encoder serializes a normalized bitmap into one delivery format. The
// concrete implementation is selected at build time: libvips when the
// govips tag (and cgo) is available, the standard library otherwise.
type Encoder interface {
	Encode(img *image.NRGBA, format Format, params Params) ([]byte, error)
}

func NewEncoder() (Encoder, error) {
	return newEncoder()
}
