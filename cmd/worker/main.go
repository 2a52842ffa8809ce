package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/thumbsmith/thumbsmith/internal/config"
	"github.com/thumbsmith/thumbsmith/internal/export"
	"github.com/thumbsmith/thumbsmith/internal/genai"
	"github.com/thumbsmith/thumbsmith/internal/sign"
	"github.com/thumbsmith/thumbsmith/internal/storage"
	"github.com/thumbsmith/thumbsmith/internal/store"
	"github.com/thumbsmith/thumbsmith/internal/telemetry"
	"github.com/thumbsmith/thumbsmith/internal/webhook"
	"github.com/thumbsmith/thumbsmith/internal/worker"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[worker] ", log.LstdFlags|log.Lmsgprefix)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := export.Startup(); err != nil {
		logger.Fatalf("image runtime startup failed: %v", err)
	}
	defer export.Shutdown()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "thumbsmith-worker",
		Exporter:     cfg.Trace.Exporter,
		OTLPEndpoint: cfg.Trace.OTLPEndpoint,
		OTLPInsecure: cfg.Trace.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatalf("tracing setup failed: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Printf("tracing shutdown failed: %v", err)
		}
	}()

	requestStore, closeStore, err := buildRequestStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("request store setup failed: %v", err)
	}
	defer closeStore()

	signer := sign.New(sign.Config{
		SignURLs:  cfg.Signing.SignURLs,
		Secret:    cfg.Signing.Secret,
		Expiry:    cfg.Signing.Expiry,
		OutputDir: cfg.Export.OutputDir,
	})

	exporter, err := export.NewExporter(cfg.Export.OutputDir, export.Params{
		PNGCompression: cfg.Export.PNGCompression,
		JPEGQuality:    cfg.Export.JPEGQuality,
		WebPQuality:    cfg.Export.WebPQuality,
	}, nil)
	if err != nil {
		logger.Fatalf("exporter setup failed: %v", err)
	}

	pipeline, err := export.NewPipeline(exporter, signer, cfg.Export.TempDir, logger)
	if err != nil {
		logger.Fatalf("pipeline setup failed: %v", err)
	}

	generator := genai.NewClient(genai.Config{
		APIKey:     cfg.Generate.APIKey,
		BaseURL:    cfg.Generate.BaseURL,
		Model:      cfg.Generate.Model,
		MaxRetries: cfg.Generate.MaxRetries,
		RetryDelay: cfg.Generate.RetryDelay,
	}, logger)
	if generator.Mock() {
		logger.Printf("no GENAI_API_KEY set, generating mock images")
	}

	webhooks := webhook.NewClient(webhook.Config{
		SigningSecret: cfg.Signing.Secret,
	})

	deps := worker.Deps{
		Generator:    generator,
		Pipeline:     pipeline,
		Requests:     requestStore,
		Webhooks:     webhooks,
		GeneratedDir: cfg.Export.GeneratedDir,
		Model:        cfg.Generate.Model,
	}
	if archive := buildArchive(ctx, cfg, logger); archive != nil {
		deps.Archive = archive
	}

	srv, err := worker.NewServer(logger, cfg.Queue, cfg.Worker, deps)
	if err != nil {
		logger.Fatalf("worker setup failed: %v", err)
	}

	go srv.RunSweeper(ctx, cfg.Worker, cfg.Export)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", srv.MetricsHandler())
		addr := env("THUMBSMITH_WORKER_METRICS_ADDR", ":9090")
		logger.Printf("metrics listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Printf("metrics server failed: %v", err)
		}
	}()

	logger.Printf(
		"starting worker concurrency=%d queue=%s redis=%s",
		cfg.Worker.Concurrency,
		cfg.Queue.Name,
		cfg.Queue.RedisAddr,
	)

	if err := srv.Run(); err != nil {
		logger.Fatalf("worker failed: %v", err)
	}
}

func buildRequestStore(ctx context.Context, cfg config.Config, logger *log.Logger) (store.RequestStore, func(), error) {
	if cfg.Database.DSN == "" {
		logger.Printf("no POSTGRES_DSN set, using in-memory request store")
		return store.NewMemoryRequestStore(), func() {}, nil
	}

	pg, err := store.NewPostgresRequestStore(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}
	return pg, func() {
		if err := pg.Close(); err != nil {
			logger.Printf("postgres close error: %v", err)
		}
	}, nil
}

// buildArchive is best effort: a missing or unreachable object store
// disables archiving rather than blocking generation.
func buildArchive(ctx context.Context, cfg config.Config, logger *log.Logger) *storage.Client {
	if !cfg.Storage.Enabled {
		return nil
	}

	client, err := storage.NewClient(storage.Config{
		Endpoint: cfg.Storage.Endpoint,
		Access:   cfg.Storage.AccessKey,
		Secret:   cfg.Storage.SecretKey,
		Bucket:   cfg.Storage.Bucket,
		UseSSL:   cfg.Storage.UseSSL,
	})
	if err != nil {
		logger.Printf("archive disabled, storage client setup failed: %v", err)
		return nil
	}

	if err := client.EnsureBucket(ctx); err != nil {
		logger.Printf("archive disabled, bucket setup failed: %v", err)
		return nil
	}

	logger.Printf("archiving exports to bucket %s", client.Bucket())
	return client
}

func env(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}
