package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/thumbsmith/thumbsmith/internal/domain"
	"github.com/thumbsmith/thumbsmith/internal/id"
	"github.com/thumbsmith/thumbsmith/internal/queue"
	"github.com/thumbsmith/thumbsmith/internal/sign"
	"github.com/thumbsmith/thumbsmith/internal/store"
	"go.opentelemetry.io/otel/trace"
)

const maxUploadBytes = 32 << 20

var allowedUploadTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

type Server struct {
	logger        *log.Logger
	queueClient   queueEnqueuer
	requestStore  store.RequestStore
	signer        *sign.Signer
	uploadDir     string
	outputDir     string
	maxVariations int
	metrics       *metrics
	tracer        trace.Tracer
	rateLimiter   RateLimiter
	mux           *http.ServeMux
}

type queueEnqueuer interface {
	EnqueueGenerateThumbnails(ctx context.Context, payload queue.GenerateThumbnailsPayload) (*asynq.TaskInfo, error)
}

type Deps struct {
	Queue         queueEnqueuer
	Requests      store.RequestStore
	Signer        *sign.Signer
	UploadDir     string
	OutputDir     string
	MaxVariations int
	RateLimiter   RateLimiter
	Tracer        trace.Tracer
}

func NewServer(logger *log.Logger, deps Deps) *Server {
	maxVariations := deps.MaxVariations
	if maxVariations < 1 {
		maxVariations = 1
	}

	s := &Server{
		logger:        logger,
		queueClient:   deps.Queue,
		requestStore:  deps.Requests,
		signer:        deps.Signer,
		uploadDir:     deps.UploadDir,
		outputDir:     deps.OutputDir,
		maxVariations: maxVariations,
		metrics:       newMetrics(),
		tracer:        deps.Tracer,
		rateLimiter:   deps.RateLimiter,
		mux:           http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.mux
	handler = s.withRateLimit(handler)
	handler = s.withTracing(handler)
	handler = s.metrics.withHTTPMetrics(handler)
	return handler
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("POST /v1/thumbnails", s.handleCreateThumbnails)
	s.mux.HandleFunc("GET /v1/thumbnails/{id}", s.handleGetRequest)
	s.mux.HandleFunc("GET /api/download/{file}", s.handleDownload)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())

	if !s.signer.Signed() {
		// Static mode exposes the output directory read-only; signed mode
		// keeps every download behind the validation handler.
		fileServer := http.FileServer(http.Dir(s.outputDir))
		s.mux.Handle("GET /static/output/", http.StripPrefix("/static/output/", fileServer))
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateThumbnails(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}

	req := domain.CreateThumbnailRequest{
		Script:      r.FormValue("script"),
		AspectRatio: r.FormValue("aspect_ratio"),
		WebhookURL:  r.FormValue("webhook_url"),
		Count:       1,
	}
	if raw := strings.TrimSpace(r.FormValue("count")); raw != "" {
		count, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "count must be an integer"})
			return
		}
		req.Count = count
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	ratio, _ := domain.ParseAspectRatio(req.AspectRatio)

	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reference image is required"})
		return
	}
	defer file.Close()

	uploadPath, err := s.saveUpload(file, header)
	if err != nil {
		if errors.Is(err, errUnsupportedUpload) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid image format, supported formats: JPEG, PNG, WEBP"})
			return
		}
		s.logger.Printf("save upload failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to store reference image"})
		return
	}

	count := req.Count
	if count < 1 {
		count = 1
	}
	if count > s.maxVariations {
		count = s.maxVariations
	}

	now := time.Now().UTC()
	request := domain.Request{
		ID:          id.New(),
		Status:      domain.RequestStatusCreated,
		Script:      req.Script,
		AspectRatio: ratio,
		Count:       count,
		ImagePath:   uploadPath,
		WebhookURL:  req.WebhookURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.requestStore.Create(r.Context(), request); err != nil {
		s.logger.Printf("create request failed for request %s: %v", request.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create request"})
		return
	}

	taskInfo, err := s.queueClient.EnqueueGenerateThumbnails(r.Context(), queue.GenerateThumbnailsPayload{
		RequestID:   request.ID,
		Script:      request.Script,
		AspectRatio: request.AspectRatio,
		Count:       request.Count,
		ImagePath:   request.ImagePath,
		WebhookURL:  request.WebhookURL,
		RequestedAt: now,
	})
	if err != nil {
		s.logger.Printf("enqueue failed for request %s: %v", request.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to enqueue request"})
		return
	}

	if _, err := s.requestStore.UpdateStatus(r.Context(), request.ID, domain.RequestStatusQueued); err != nil {
		s.logger.Printf("update status failed for request %s: %v", request.ID, err)
	}

	s.metrics.queueEnqueued.WithLabelValues(taskInfo.Queue).Inc()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"request_id":   request.ID,
		"status":       domain.RequestStatusQueued,
		"count":        request.Count,
		"aspect_ratio": request.AspectRatio,
		"status_url":   fmt.Sprintf("/v1/thumbnails/%s", request.ID),
	})
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("id")

	request, ok, err := s.requestStore.Get(r.Context(), requestID)
	if err != nil {
		s.logger.Printf("fetch request failed for request %s: %v", requestID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load request"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "request not found"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"request_id":   request.ID,
		"status":       request.Status,
		"aspect_ratio": request.AspectRatio,
		"count":        request.Count,
		"variations":   request.Variations,
		"error":        request.Error,
		"created_at":   request.CreatedAt,
		"updated_at":   request.UpdatedAt,
	})
}

// handleDownload enforces the signed-URL protocol. Rejection reasons stay
// distinct: an expired link can be re-requested, a tampered one cannot.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	fileName := r.PathValue("file")

	if !s.signer.Signed() {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "downloads are served from /static/output/"})
		return
	}

	expires, err := strconv.ParseInt(r.URL.Query().Get("expires"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "expires must be a unix timestamp"})
		return
	}
	signature := r.URL.Query().Get("signature")

	if err := s.signer.Validate(fileName, expires, signature); err != nil {
		switch {
		case errors.Is(err, sign.ErrLinkExpired):
			s.metrics.downloadRejected.WithLabelValues("expired").Inc()
			writeJSON(w, http.StatusGone, map[string]string{"error": "download link expired"})
		case errors.Is(err, sign.ErrBadSignature):
			s.metrics.downloadRejected.WithLabelValues("bad_signature").Inc()
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "invalid signature"})
		case errors.Is(err, sign.ErrOutsideRoot):
			s.metrics.downloadRejected.WithLabelValues("path_traversal").Inc()
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "invalid file path"})
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		return
	}

	resolved, err := s.signer.ResolvePath(fileName)
	if err != nil {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "invalid file path"})
		return
	}
	if _, err := os.Stat(resolved); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "file not found"})
		return
	}

	http.ServeFile(w, r, resolved)
}

var errUnsupportedUpload = errors.New("unsupported upload content type")

func (s *Server) saveUpload(file multipart.File, header *multipart.FileHeader) (string, error) {
	contentType := header.Header.Get("Content-Type")
	ext, ok := allowedUploadTypes[contentType]
	if !ok {
		return "", fmt.Errorf("%w: %s", errUnsupportedUpload, contentType)
	}
	if headerExt := strings.ToLower(filepath.Ext(header.Filename)); headerExt != "" {
		ext = headerExt
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	path := filepath.Join(s.uploadDir, uuid.NewString()+ext)
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	return path, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
