package queue

import (
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/thumbsmith/thumbsmith/internal/domain"
)

func TestGenerateThumbnailsTaskRoundTrip(t *testing.T) {
	payload := GenerateThumbnailsPayload{
		RequestID:   "req-123",
		Script:      "a video about espresso",
		AspectRatio: domain.AspectRatio16x9,
		Count:       3,
		ImagePath:   "storage/uploads/ref.png",
		WebhookURL:  "https://example.com/hook",
		RequestedAt: time.Now().UTC(),
	}

	task, err := NewGenerateThumbnailsTask(payload)
	if err != nil {
		t.Fatalf("NewGenerateThumbnailsTask returned error: %v", err)
	}
	if task.Type() != TypeGenerateThumbnails {
		t.Fatalf("expected task type %q, got %q", TypeGenerateThumbnails, task.Type())
	}

	parsed, err := ParseGenerateThumbnailsPayload(task)
	if err != nil {
		t.Fatalf("ParseGenerateThumbnailsPayload returned error: %v", err)
	}

	if parsed.RequestID != payload.RequestID {
		t.Fatalf("expected request_id %q, got %q", payload.RequestID, parsed.RequestID)
	}
	if parsed.AspectRatio != domain.AspectRatio16x9 {
		t.Fatalf("expected aspect ratio 16:9, got %q", parsed.AspectRatio)
	}
	if parsed.Count != 3 {
		t.Fatalf("expected count 3, got %d", parsed.Count)
	}
}

func TestParseGenerateThumbnailsPayloadRejectsGarbage(t *testing.T) {
	task := asynq.NewTask(TypeGenerateThumbnails, []byte("{not json"))
	if _, err := ParseGenerateThumbnailsPayload(task); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
