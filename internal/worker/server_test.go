package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/thumbsmith/thumbsmith/internal/domain"
	"github.com/thumbsmith/thumbsmith/internal/export"
	"github.com/thumbsmith/thumbsmith/internal/queue"
	"github.com/thumbsmith/thumbsmith/internal/store"
	"go.opentelemetry.io/otel"
)

type fakeGenerator struct {
	calls   int
	failOn  map[int]bool
	failAll bool
}

func (f *fakeGenerator) GenerateImage(context.Context, string, domain.AspectRatio) ([]byte, error) {
	call := f.calls
	f.calls++
	if f.failAll || f.failOn[call] {
		return nil, errors.New("model unavailable")
	}
	return []byte("image bytes"), nil
}

type fakePipeline struct {
	calls  int
	failOn map[int]bool
}

func (f *fakePipeline) ProcessAndExport(_ context.Context, _ []byte, _ string, _ *export.Dimensions, metadata map[string]string) (export.Batch, error) {
	call := f.calls
	f.calls++
	if f.failOn[call] {
		return export.Batch{}, errors.New("encode failure")
	}

	id := fmt.Sprintf("batch-%d", call)
	exports := make(map[export.Format]domain.Export, 3)
	for _, format := range export.Formats() {
		exports[format] = domain.Export{
			Format:   format.DisplayName(),
			FilePath: "/out/export_" + id + format.Extension(),
			URL:      "/static/output/export_" + id + format.Extension(),
			Size:     int64(100 + call),
			Metadata: metadata,
		}
	}
	return export.Batch{ID: id, ExportedAt: time.Now().UTC(), Exports: exports}, nil
}

type fakeWebhooks struct {
	events []string
	bodies []any
}

func (f *fakeWebhooks) Send(_ context.Context, _ string, event string, payload any) error {
	f.events = append(f.events, event)
	f.bodies = append(f.bodies, payload)
	return nil
}

type fakeArchive struct {
	objects map[string]string
}

func (f *fakeArchive) WriteObject(_ context.Context, objectKey string, _ []byte, contentType string) error {
	if f.objects == nil {
		f.objects = make(map[string]string)
	}
	f.objects[objectKey] = contentType
	return nil
}

func (f *fakeArchive) PresignedGetURL(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	return "https://archive.example.com/" + objectKey, nil
}

func newTestWorker(t *testing.T, gen *fakeGenerator, pipe *fakePipeline, requests store.RequestStore, hooks *fakeWebhooks) *Server {
	t.Helper()

	s := &Server{
		logger:        log.New(io.Discard, "", 0),
		generator:     gen,
		pipeline:      pipe,
		requestStore:  requests,
		webhookClient: hooks,
		generatedDir:  t.TempDir(),
		model:         "dall-e-3",
		metrics:       newMetrics(),
		tracer:        otel.Tracer("test"),
	}
	return s
}

func seedRequest(t *testing.T, requests store.RequestStore, id string, count int) queue.GenerateThumbnailsPayload {
	t.Helper()

	now := time.Now().UTC()
	if err := requests.Create(context.Background(), domain.Request{
		ID:          id,
		Status:      domain.RequestStatusQueued,
		Script:      "a video about tea",
		AspectRatio: domain.AspectRatio16x9,
		Count:       count,
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		t.Fatalf("seed request: %v", err)
	}

	return queue.GenerateThumbnailsPayload{
		RequestID:   id,
		Script:      "a video about tea",
		AspectRatio: domain.AspectRatio16x9,
		Count:       count,
		WebhookURL:  "https://example.com/hook",
		RequestedAt: now,
	}
}

func runTask(t *testing.T, s *Server, payload queue.GenerateThumbnailsPayload) error {
	t.Helper()

	task, err := queue.NewGenerateThumbnailsTask(payload)
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	return s.handleGenerateThumbnails(context.Background(), task)
}

func TestHandleGenerateThumbnailsAllSucceed(t *testing.T) {
	requests := store.NewMemoryRequestStore()
	hooks := &fakeWebhooks{}
	s := newTestWorker(t, &fakeGenerator{}, &fakePipeline{}, requests, hooks)

	payload := seedRequest(t, requests, "req-1", 3)
	if err := runTask(t, s, payload); err != nil {
		t.Fatalf("handle task: %v", err)
	}

	final, ok, err := requests.Get(context.Background(), "req-1")
	if err != nil || !ok {
		t.Fatalf("load request: ok=%t err=%v", ok, err)
	}
	if final.Status != domain.RequestStatusSucceeded {
		t.Fatalf("expected succeeded, got %s", final.Status)
	}
	if len(final.Variations) != 3 {
		t.Fatalf("expected 3 variations, got %d", len(final.Variations))
	}

	for _, variation := range final.Variations {
		if len(variation.Exports) != 3 {
			t.Fatalf("expected 3 exports per variation, got %d", len(variation.Exports))
		}
		for _, key := range []string{"png", "jpeg", "webp"} {
			if _, ok := variation.Exports[key]; !ok {
				t.Fatalf("missing %s export in variation", key)
			}
		}
		if _, err := os.Stat(variation.StoragePath); err != nil {
			t.Fatalf("expected raw generated file on disk: %v", err)
		}
		if variation.Metadata["model"] != "dall-e-3" {
			t.Fatalf("expected model metadata, got %v", variation.Metadata)
		}
	}

	if len(hooks.events) != 1 || hooks.events[0] != "request.completed" {
		t.Fatalf("expected request.completed webhook, got %v", hooks.events)
	}
}

func TestHandleGenerateThumbnailsPartialSuccess(t *testing.T) {
	requests := store.NewMemoryRequestStore()
	hooks := &fakeWebhooks{}
	gen := &fakeGenerator{failOn: map[int]bool{0: true}}
	pipe := &fakePipeline{failOn: map[int]bool{1: true}}
	s := newTestWorker(t, gen, pipe, requests, hooks)

	// Variation 0 fails generation, variation 2 fails export, variation 1
	// survives.
	payload := seedRequest(t, requests, "req-2", 3)
	if err := runTask(t, s, payload); err != nil {
		t.Fatalf("handle task: %v", err)
	}

	final, _, err := requests.Get(context.Background(), "req-2")
	if err != nil {
		t.Fatalf("load request: %v", err)
	}
	if final.Status != domain.RequestStatusPartial {
		t.Fatalf("expected partial, got %s", final.Status)
	}
	if len(final.Variations) != 1 {
		t.Fatalf("expected 1 surviving variation, got %d", len(final.Variations))
	}
	if len(hooks.events) != 1 || hooks.events[0] != "request.completed" {
		t.Fatalf("expected request.completed webhook, got %v", hooks.events)
	}
}

func TestHandleGenerateThumbnailsTotalFailure(t *testing.T) {
	requests := store.NewMemoryRequestStore()
	hooks := &fakeWebhooks{}
	s := newTestWorker(t, &fakeGenerator{failAll: true}, &fakePipeline{}, requests, hooks)

	payload := seedRequest(t, requests, "req-3", 2)
	err := runTask(t, s, payload)
	if err == nil {
		t.Fatal("expected error when every variation fails")
	}

	final, _, getErr := requests.Get(context.Background(), "req-3")
	if getErr != nil {
		t.Fatalf("load request: %v", getErr)
	}
	if final.Status != domain.RequestStatusFailed {
		t.Fatalf("expected failed, got %s", final.Status)
	}
	if final.Error == "" {
		t.Fatal("expected error message recorded")
	}
	if len(hooks.events) != 1 || hooks.events[0] != "request.failed" {
		t.Fatalf("expected request.failed webhook, got %v", hooks.events)
	}
}

func TestHandleGenerateThumbnailsArchivesExports(t *testing.T) {
	requests := store.NewMemoryRequestStore()
	archive := &fakeArchive{}
	s := newTestWorker(t, &fakeGenerator{}, &fakePipeline{}, requests, &fakeWebhooks{})
	s.archive = archive

	payload := seedRequest(t, requests, "req-4", 1)
	if err := runTask(t, s, payload); err != nil {
		t.Fatalf("handle task: %v", err)
	}

	// Exports reference files the fake pipeline never wrote, so nothing can
	// be mirrored; the request must still complete.
	if len(archive.objects) != 0 {
		t.Fatalf("expected no archived objects for missing files, got %d", len(archive.objects))
	}

	final, _, err := requests.Get(context.Background(), "req-4")
	if err != nil {
		t.Fatalf("load request: %v", err)
	}
	if final.Status != domain.RequestStatusSucceeded {
		t.Fatalf("expected succeeded despite archive misses, got %s", final.Status)
	}
}

func TestHandleGenerateThumbnailsBadPayloadSkipsRetry(t *testing.T) {
	s := newTestWorker(t, &fakeGenerator{}, &fakePipeline{}, store.NewMemoryRequestStore(), &fakeWebhooks{})

	task := asynq.NewTask(queue.TypeGenerateThumbnails, []byte("{broken"))
	err := s.handleGenerateThumbnails(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

func TestArchiveVariationsMirrorsRealFiles(t *testing.T) {
	archive := &fakeArchive{}
	s := newTestWorker(t, &fakeGenerator{}, &fakePipeline{}, store.NewMemoryRequestStore(), &fakeWebhooks{})
	s.archive = archive

	dir := t.TempDir()
	filePath := dir + "/export_real.png"
	if err := os.WriteFile(filePath, []byte("png"), 0o644); err != nil {
		t.Fatalf("write export: %v", err)
	}

	urls := s.archiveVariations(context.Background(), "req-5", []domain.Variation{
		{
			ID: "var-1",
			Exports: map[string]domain.Export{
				"png": {Format: "PNG", FilePath: filePath},
			},
		},
	})

	wantKey := "archive/req-5/export_real.png"
	if contentType, ok := archive.objects[wantKey]; !ok || contentType != "image/png" {
		t.Fatalf("expected archived object %s as image/png, got %v", wantKey, archive.objects)
	}
	if !strings.HasSuffix(urls[wantKey], wantKey) {
		t.Fatalf("expected presigned URL for %s, got %v", wantKey, urls)
	}
}
