//go:build !govips || !cgo

package export

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
)

type stdEncoder struct{}

func (stdEncoder) Encode(img *image.NRGBA, format Format, params Params) ([]byte, error) {
	params = params.normalized()
	var buf bytes.Buffer

	switch format {
	case FormatPNG:
		encoder := png.Encoder{CompressionLevel: pngLevel(params.PNGCompression)}
		if err := encoder.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case FormatJPEG:
		// image/jpeg has no Huffman-table optimization knob; quality is the
		// only lever in this runtime.
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: params.JPEGQuality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case FormatWebP:
		return nil, errors.New("webp export requires govips build tag")
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	return buf.Bytes(), nil
}

// pngLevel maps the 0-9 effort scale onto the four levels image/png knows.
func pngLevel(compression int) png.CompressionLevel {
	switch {
	case compression == 0:
		return png.NoCompression
	case compression <= 3:
		return png.BestSpeed
	case compression <= 6:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}
