package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	RequestStatusCreated    = "created"
	RequestStatusQueued     = "queued"
	RequestStatusProcessing = "processing"
	RequestStatusSucceeded  = "succeeded"
	RequestStatusPartial    = "partial"
	RequestStatusFailed     = "failed"
)

type AspectRatio string

const (
	AspectRatio16x9 AspectRatio = "16:9"
	AspectRatio9x16 AspectRatio = "9:16"
	AspectRatio1x1  AspectRatio = "1:1"
	AspectRatio4x3  AspectRatio = "4:3"
	AspectRatio3x4  AspectRatio = "3:4"
)

var ErrInvalidAspectRatio = errors.New("invalid aspect ratio")

var aspectRatios = map[AspectRatio]struct{ W, H int }{
	AspectRatio16x9: {1280, 720},
	AspectRatio9x16: {720, 1280},
	AspectRatio1x1:  {1024, 1024},
	AspectRatio4x3:  {1024, 768},
	AspectRatio3x4:  {768, 1024},
}

// ParseAspectRatio accepts the canonical "16:9" spelling and the "16x9"
// variant the web client sends.
func ParseAspectRatio(raw string) (AspectRatio, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	normalized = strings.ReplaceAll(normalized, "x", ":")
	ratio := AspectRatio(normalized)
	if _, ok := aspectRatios[ratio]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidAspectRatio, raw)
	}
	return ratio, nil
}

// TargetDimensions returns the pixel size variations are normalized to
// before export.
func (r AspectRatio) TargetDimensions() (width, height int) {
	dims := aspectRatios[r]
	return dims.W, dims.H
}

type CreateThumbnailRequest struct {
	Script      string `json:"script"`
	AspectRatio string `json:"aspect_ratio"`
	Count       int    `json:"count"`
	WebhookURL  string `json:"webhook_url,omitempty"`
}

func (r CreateThumbnailRequest) Validate() error {
	if strings.TrimSpace(r.Script) == "" {
		return errors.New("script text cannot be empty")
	}
	if _, err := ParseAspectRatio(r.AspectRatio); err != nil {
		return err
	}
	if r.Count < 0 {
		return errors.New("count must not be negative")
	}
	return nil
}

// Export describes one delivered file of a variation's export batch.
type Export struct {
	Format     string            `json:"format"`
	FilePath   string            `json:"file_path"`
	URL        string            `json:"url"`
	Size       int64             `json:"size"`
	ExportedAt time.Time         `json:"exported_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Variation is one independently generated thumbnail candidate.
type Variation struct {
	ID          string            `json:"id"`
	StoragePath string            `json:"storage_path"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Exports     map[string]Export `json:"exports,omitempty"`
}

type Request struct {
	ID          string
	Status      string
	Script      string
	AspectRatio AspectRatio
	Count       int
	ImagePath   string
	WebhookURL  string
	Variations  []Variation
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
