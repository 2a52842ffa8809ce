package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/thumbsmith/thumbsmith/internal/domain"
)

const TypeGenerateThumbnails = "thumbnails:generate"

type GenerateThumbnailsPayload struct {
	RequestID   string             `json:"request_id"`
	Script      string             `json:"script"`
	AspectRatio domain.AspectRatio `json:"aspect_ratio"`
	Count       int                `json:"count"`
	ImagePath   string             `json:"image_path"`
	WebhookURL  string             `json:"webhook_url,omitempty"`
	RequestedAt time.Time          `json:"requested_at"`
}

func NewGenerateThumbnailsTask(payload GenerateThumbnailsPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal generate payload: %w", err)
	}
	return asynq.NewTask(TypeGenerateThumbnails, body), nil
}

func ParseGenerateThumbnailsPayload(task *asynq.Task) (GenerateThumbnailsPayload, error) {
	var payload GenerateThumbnailsPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return GenerateThumbnailsPayload{}, fmt.Errorf("unmarshal generate payload: %w", err)
	}
	return payload, nil
}
