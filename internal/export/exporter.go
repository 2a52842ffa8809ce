package export

import (
	"fmt"
	"image"
	"maps"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/thumbsmith/thumbsmith/internal/domain"
)

// Batch is the result of exporting one normalized image into every
// delivery format. All descriptors share the batch identifier, timestamp
// and metadata. A batch is all-or-nothing: a failed encode removes any
// sibling files already written and no partial batch is returned.
type Batch struct {
	ID         string
	ExportedAt time.Time
	Exports    map[Format]domain.Export
}

type Exporter struct {
	encoder   Encoder
	outputDir string
	params    Params
	now       func() time.Time
	newID     func() string
}

func NewExporter(outputDir string, params Params, encoder Encoder) (*Exporter, error) {
	if encoder == nil {
		built, err := NewEncoder()
		if err != nil {
			return nil, fmt.Errorf("build encoder: %w", err)
		}
		encoder = built
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	return &Exporter{
		encoder:   encoder,
		outputDir: outputDir,
		params:    params,
		now:       time.Now,
		newID:     uuid.NewString,
	}, nil
}

func (e *Exporter) ExportFormats(img *image.NRGBA, metadata map[string]string) (Batch, error) {
	batchID := e.newID()
	exportedAt := e.now().UTC()

	var meta map[string]string
	if len(metadata) > 0 {
		meta = maps.Clone(metadata)
	}

	batch := Batch{
		ID:         batchID,
		ExportedAt: exportedAt,
		Exports:    make(map[Format]domain.Export, 3),
	}

	var written []string
	for _, format := range Formats() {
		data, err := e.encoder.Encode(img, format, e.params)
		if err != nil {
			removeAll(written)
			return Batch{}, fmt.Errorf("export %s: %w", format, err)
		}

		filePath := filepath.Join(e.outputDir, fmt.Sprintf("export_%s%s", batchID, format.Extension()))
		if err := os.WriteFile(filePath, data, 0o644); err != nil {
			removeAll(written)
			return Batch{}, fmt.Errorf("write %s export: %w", format, err)
		}
		written = append(written, filePath)

		// Size comes from the filesystem, not the encode buffer, so the
		// descriptor reflects what a download will actually serve.
		info, err := os.Stat(filePath)
		if err != nil {
			removeAll(written)
			return Batch{}, fmt.Errorf("stat %s export: %w", format, err)
		}

		batch.Exports[format] = domain.Export{
			Format:     format.DisplayName(),
			FilePath:   filePath,
			Size:       info.Size(),
			ExportedAt: exportedAt,
			Metadata:   meta,
		}
	}

	return batch, nil
}

func removeAll(paths []string) {
	for _, p := range paths {
		_ = os.Remove(p)
	}
}
