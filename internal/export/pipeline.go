package export

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "golang.org/x/image/webp"
)

// ErrDecode marks input bytes that are not a decodable image. The failure
// is terminal for that variation; nothing in this pipeline retries.
var ErrDecode = errors.New("input is not a decodable image")

// URLProvider turns a stored file name into its access URL.
type URLProvider interface {
	URLFor(fileName string) string
}

// Pipeline drives one generated image through normalize, optional
// composite, and multi-format export.
type Pipeline struct {
	exporter *Exporter
	urls     URLProvider
	tempDir  string
	logger   *log.Logger
}

func NewPipeline(exporter *Exporter, urls URLProvider, tempDir string, logger *log.Logger) (*Pipeline, error) {
	if exporter == nil {
		return nil, errors.New("exporter is required")
	}
	if urls == nil {
		return nil, errors.New("url provider is required")
	}
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}

	return &Pipeline{
		exporter: exporter,
		urls:     urls,
		tempDir:  tempDir,
		logger:   logger,
	}, nil
}

// ProcessAndExport spools the raw bytes to a temp file, decodes and
// normalizes them, blends in the base image when one is referenced, and
// exports the result in every delivery format. Errors at any stage other
// than compositing propagate to the caller; compositing degrades to the
// generated image with a warning.
func (p *Pipeline) ProcessAndExport(ctx context.Context, imageData []byte, baseRef string, dims *Dimensions, metadata map[string]string) (Batch, error) {
	select {
	case <-ctx.Done():
		return Batch{}, ctx.Err()
	default:
	}

	tempPath := filepath.Join(p.tempDir, fmt.Sprintf("temp_%s.png", uuid.NewString()))
	if err := os.WriteFile(tempPath, imageData, 0o644); err != nil {
		return Batch{}, fmt.Errorf("spool image to temp file: %w", err)
	}

	decoded, err := decodeFile(tempPath)
	if err != nil {
		// The spooled file stays behind for the retention sweep.
		return Batch{}, err
	}

	img := Normalize(decoded, dims)

	if baseRef != "" {
		blended, err := Composite(img, baseRef)
		if err != nil {
			p.logger.Printf("WARN composite with base image failed, using generated image: %v", err)
		}
		img = blended
	}

	batch, err := p.exporter.ExportFormats(img, metadata)
	if err != nil {
		return Batch{}, err
	}

	for format, desc := range batch.Exports {
		desc.URL = p.urls.URLFor(filepath.Base(desc.FilePath))
		batch.Exports[format] = desc
	}

	if err := os.Remove(tempPath); err != nil {
		p.logger.Printf("WARN remove temp file %s: %v", tempPath, err)
	}

	return batch, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open temp file: %w", err)
	}
	defer f.Close()

	decoded, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return decoded, nil
}
