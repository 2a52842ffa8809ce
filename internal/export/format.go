package export

// Format is the closed set of delivery formats every export batch produces.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatWebP Format = "webp"
)

// Formats returns the batch order. Every entry is attempted on each export;
// there is no way to opt a format out of a batch.
func Formats() []Format {
	return []Format{FormatPNG, FormatJPEG, FormatWebP}
}

func (f Format) Extension() string {
	switch f {
	case FormatJPEG:
		return ".jpg"
	case FormatWebP:
		return ".webp"
	default:
		return ".png"
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatWebP:
		return "image/webp"
	default:
		return "image/png"
	}
}

// DisplayName is the spelling recorded in export descriptors.
func (f Format) DisplayName() string {
	switch f {
	case FormatJPEG:
		return "JPEG"
	case FormatWebP:
		return "WebP"
	default:
		return "PNG"
	}
}

// Params holds the per-format encode knobs. PNGCompression is the 0-9
// effort level; the two quality values are independent 1-100 scales.
type Params struct {
	PNGCompression int
	JPEGQuality    int
	WebPQuality    int
}

func (p Params) normalized() Params {
	out := p
	if out.PNGCompression < 0 || out.PNGCompression > 9 {
		out.PNGCompression = 6
	}
	if out.JPEGQuality < 1 || out.JPEGQuality > 100 {
		out.JPEGQuality = 85
	}
	if out.WebPQuality < 1 || out.WebPQuality > 100 {
		out.WebPQuality = 80
	}
	return out
}
