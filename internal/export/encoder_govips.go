//go:build govips && cgo

package export

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/davidbyttow/govips/v2/vips"
)

type vipsEncoder struct{}

func (vipsEncoder) Encode(img *image.NRGBA, format Format, params Params) ([]byte, error) {
	params = params.normalized()

	// libvips imports from an encoded buffer, so spool the bitmap through a
	// cheap PNG first.
	var spool bytes.Buffer
	fast := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := fast.Encode(&spool, img); err != nil {
		return nil, fmt.Errorf("spool bitmap: %w", err)
	}

	ref, err := vips.NewImageFromBuffer(spool.Bytes())
	if err != nil {
		return nil, fmt.Errorf("import bitmap: %w", err)
	}
	defer ref.Close()

	switch format {
	case FormatPNG:
		opts := vips.NewPngExportParams()
		opts.Compression = params.PNGCompression
		data, _, err := ref.ExportPng(opts)
		if err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		return data, nil
	case FormatJPEG:
		opts := vips.NewJpegExportParams()
		opts.Quality = params.JPEGQuality
		opts.OptimizeCoding = true
		data, _, err := ref.ExportJpeg(opts)
		if err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		return data, nil
	case FormatWebP:
		opts := vips.NewWebpExportParams()
		opts.Quality = params.WebPQuality
		data, _, err := ref.ExportWebp(opts)
		if err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}
