package worker

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/thumbsmith/thumbsmith/internal/config"
	"github.com/thumbsmith/thumbsmith/internal/domain"
	"github.com/thumbsmith/thumbsmith/internal/export"
	"github.com/thumbsmith/thumbsmith/internal/genai"
	"github.com/thumbsmith/thumbsmith/internal/queue"
	"github.com/thumbsmith/thumbsmith/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Server struct {
	logger        *log.Logger
	server        *asynq.Server
	generator     imageGenerator
	pipeline      exportPipeline
	requestStore  store.RequestStore
	webhookClient webhookSender
	archive       archiveWriter
	generatedDir  string
	model         string
	metrics       *metrics
	tracer        trace.Tracer
}

type imageGenerator interface {
	GenerateImage(ctx context.Context, prompt string, ratio domain.AspectRatio) ([]byte, error)
}

type exportPipeline interface {
	ProcessAndExport(ctx context.Context, imageData []byte, baseRef string, dims *export.Dimensions, metadata map[string]string) (export.Batch, error)
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

type archiveWriter interface {
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
	PresignedGetURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
}

type Deps struct {
	Generator    imageGenerator
	Pipeline     exportPipeline
	Requests     store.RequestStore
	Webhooks     webhookSender
	Archive      archiveWriter
	GeneratedDir string
	Model        string
}

func NewServer(logger *log.Logger, queueCfg config.QueueConfig, workerCfg config.WorkerConfig, deps Deps) (*Server, error) {
	if deps.Generator == nil {
		return nil, fmt.Errorf("image generator is required")
	}
	if deps.Pipeline == nil {
		return nil, fmt.Errorf("export pipeline is required")
	}
	if err := os.MkdirAll(deps.GeneratedDir, 0o755); err != nil {
		return nil, fmt.Errorf("create generated dir: %w", err)
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: workerCfg.Concurrency,
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
				}),
			},
		),
		generator:     deps.Generator,
		pipeline:      deps.Pipeline,
		requestStore:  deps.Requests,
		webhookClient: deps.Webhooks,
		archive:       deps.Archive,
		generatedDir:  deps.GeneratedDir,
		model:         deps.Model,
		metrics:       newMetrics(),
		tracer:        otel.Tracer("thumbsmith/worker"),
	}
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeGenerateThumbnails, s.handleGenerateThumbnails)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleGenerateThumbnails(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := domain.RequestStatusFailed

	payload, err := queue.ParseGenerateThumbnailsPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.generate_thumbnails", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("request.id", payload.RequestID),
		attribute.String("request.aspect_ratio", string(payload.AspectRatio)),
		attribute.Int("request.count", payload.Count),
	)
	defer span.End()
	defer func() {
		s.metrics.requestDuration.WithLabelValues(outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.requestsTotal.WithLabelValues(outcome).Inc()
	}()

	s.logger.Printf(
		"Working... request_id=%s aspect_ratio=%s count=%d image_path=%s",
		payload.RequestID,
		payload.AspectRatio,
		payload.Count,
		payload.ImagePath,
	)

	s.updateStatus(ctx, payload.RequestID, domain.RequestStatusProcessing)

	variations := s.generateVariations(ctx, payload)

	if len(variations) == 0 {
		errMsg := "failed to generate any thumbnails"
		s.setResult(ctx, payload.RequestID, domain.RequestStatusFailed, nil, errMsg)
		span.SetStatus(codes.Error, errMsg)
		s.dispatchWebhook(ctx, payload, "request.failed", map[string]any{
			"request_id":   payload.RequestID,
			"status":       domain.RequestStatusFailed,
			"requested_at": payload.RequestedAt,
			"failed_at":    time.Now().UTC(),
			"error":        errMsg,
		})
		return fmt.Errorf("request %s: %s", payload.RequestID, errMsg)
	}

	// Partial success is still success: the surviving variations are
	// delivered, the status records that some were dropped.
	status := domain.RequestStatusSucceeded
	if len(variations) < payload.Count {
		status = domain.RequestStatusPartial
	}
	s.setResult(ctx, payload.RequestID, status, variations, "")

	archiveURLs := s.archiveVariations(ctx, payload.RequestID, variations)

	s.logger.Printf("Processed request_id=%s variations=%d status=%s", payload.RequestID, len(variations), status)

	if err := s.dispatchWebhook(ctx, payload, "request.completed", map[string]any{
		"request_id":   payload.RequestID,
		"status":       status,
		"requested_at": payload.RequestedAt,
		"completed_at": time.Now().UTC(),
		"variations":   variations,
		"archive":      archiveURLs,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook dispatch failed")
		return err
	}

	outcome = status
	span.SetStatus(codes.Ok, "processed")
	return nil
}

// generateVariations runs the per-variation loop: each candidate is
// generated and exported independently, and a failed one is skipped so the
// rest of the request can still deliver.
func (s *Server) generateVariations(ctx context.Context, payload queue.GenerateThumbnailsPayload) []domain.Variation {
	prompt := genai.BuildPrompt(payload.Script, payload.AspectRatio)
	width, height := payload.AspectRatio.TargetDimensions()
	dims := &export.Dimensions{Width: width, Height: height}

	variations := make([]domain.Variation, 0, payload.Count)
	for i := 0; i < payload.Count; i++ {
		if ctx.Err() != nil {
			break
		}

		data, err := s.generator.GenerateImage(ctx, prompt, payload.AspectRatio)
		if err != nil {
			s.logger.Printf("variation %d generation failed request_id=%s err=%v", i, payload.RequestID, err)
			s.metrics.variationsTotal.WithLabelValues("generate_failed").Inc()
			continue
		}

		storagePath, err := s.saveGenerated(data)
		if err != nil {
			s.logger.Printf("variation %d raw save failed request_id=%s err=%v", i, payload.RequestID, err)
			s.metrics.variationsTotal.WithLabelValues("save_failed").Inc()
			continue
		}

		metadata := map[string]string{
			"prompt":       prompt,
			"model":        s.model,
			"index":        strconv.Itoa(i),
			"aspect_ratio": string(payload.AspectRatio),
		}

		batch, err := s.pipeline.ProcessAndExport(ctx, data, payload.ImagePath, dims, metadata)
		if err != nil {
			s.logger.Printf("variation %d export failed request_id=%s err=%v", i, payload.RequestID, err)
			s.metrics.variationsTotal.WithLabelValues("export_failed").Inc()
			continue
		}

		exports := make(map[string]domain.Export, len(batch.Exports))
		var exportBytes int64
		for format, desc := range batch.Exports {
			exports[string(format)] = desc
			exportBytes += desc.Size
		}

		variations = append(variations, domain.Variation{
			ID:          uuid.NewString(),
			StoragePath: storagePath,
			Metadata:    metadata,
			Exports:     exports,
		})
		s.metrics.variationsTotal.WithLabelValues("succeeded").Inc()
		s.metrics.exportedFilesTotal.Add(float64(len(batch.Exports)))
		s.metrics.exportedBytesTotal.Add(float64(exportBytes))
	}

	return variations
}

// saveGenerated keeps the raw model output on disk next to the exports so
// a variation can be re-exported without another model call.
func (s *Server) saveGenerated(data []byte) (string, error) {
	path := filepath.Join(s.generatedDir, uuid.NewString()+".png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write generated image: %w", err)
	}
	return path, nil
}

// archiveVariations mirrors every exported file of a completed request to
// the object bucket. Best effort: an archive failure never fails the
// request.
func (s *Server) archiveVariations(ctx context.Context, requestID string, variations []domain.Variation) map[string]string {
	if s.archive == nil {
		return nil
	}

	urls := make(map[string]string)
	for _, variation := range variations {
		for formatKey, desc := range variation.Exports {
			data, err := os.ReadFile(desc.FilePath)
			if err != nil {
				s.logger.Printf("archive read failed request_id=%s file=%s err=%v", requestID, desc.FilePath, err)
				continue
			}

			objectKey := fmt.Sprintf("archive/%s/%s", requestID, filepath.Base(desc.FilePath))
			contentType := export.Format(formatKey).ContentType()
			if err := s.archive.WriteObject(ctx, objectKey, data, contentType); err != nil {
				s.logger.Printf("archive write failed request_id=%s key=%s err=%v", requestID, objectKey, err)
				continue
			}

			url, err := s.archive.PresignedGetURL(ctx, objectKey, 24*time.Hour)
			if err != nil {
				s.logger.Printf("archive presign failed request_id=%s key=%s err=%v", requestID, objectKey, err)
				continue
			}
			urls[objectKey] = url
			s.metrics.archivedFilesTotal.Inc()
		}
	}

	if len(urls) == 0 {
		return nil
	}
	return urls
}

func (s *Server) updateStatus(ctx context.Context, requestID, status string) {
	if s.requestStore == nil {
		return
	}
	if _, err := s.requestStore.UpdateStatus(ctx, requestID, status); err != nil {
		s.logger.Printf("request status update failed request_id=%s status=%s err=%v", requestID, status, err)
	}
}

func (s *Server) setResult(ctx context.Context, requestID, status string, variations []domain.Variation, errMsg string) {
	if s.requestStore == nil {
		return
	}
	if _, err := s.requestStore.SetResult(ctx, requestID, status, variations, errMsg); err != nil {
		s.logger.Printf("request result update failed request_id=%s status=%s err=%v", requestID, status, err)
	}
}

func (s *Server) dispatchWebhook(ctx context.Context, payload queue.GenerateThumbnailsPayload, event string, body map[string]any) error {
	if payload.WebhookURL == "" || s.webhookClient == nil {
		return nil
	}

	if err := s.webhookClient.Send(ctx, payload.WebhookURL, event, body); err != nil {
		s.logger.Printf("webhook delivery failed request_id=%s event=%s err=%v", payload.RequestID, event, err)
		return fmt.Errorf("dispatch webhook: %w", err)
	}

	return nil
}
