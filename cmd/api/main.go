package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/thumbsmith/thumbsmith/internal/api"
	"github.com/thumbsmith/thumbsmith/internal/config"
	"github.com/thumbsmith/thumbsmith/internal/queue"
	"github.com/thumbsmith/thumbsmith/internal/ratelimit"
	"github.com/thumbsmith/thumbsmith/internal/sign"
	"github.com/thumbsmith/thumbsmith/internal/store"
	"github.com/thumbsmith/thumbsmith/internal/telemetry"
	"go.opentelemetry.io/otel"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.Lmsgprefix)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "thumbsmith-api",
		Exporter:     cfg.Trace.Exporter,
		OTLPEndpoint: cfg.Trace.OTLPEndpoint,
		OTLPInsecure: cfg.Trace.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatalf("tracing setup failed: %v", err)
	}

	queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Printf("queue client close error: %v", err)
		}
	}()

	requestStore, closeStore, err := buildRequestStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("request store setup failed: %v", err)
	}
	defer closeStore()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Queue.RedisAddr,
		Password: cfg.Queue.RedisPassword,
		DB:       cfg.Queue.RedisDB,
	})
	defer redisClient.Close()

	limiter, err := ratelimit.NewRedisTokenBucket(redisClient, cfg.API.RateLimitPerMin, time.Minute, "")
	if err != nil {
		logger.Fatalf("rate limiter setup failed: %v", err)
	}

	signer := sign.New(sign.Config{
		SignURLs:  cfg.Signing.SignURLs,
		Secret:    cfg.Signing.Secret,
		Expiry:    cfg.Signing.Expiry,
		OutputDir: cfg.Export.OutputDir,
	})

	app := api.NewServer(logger, api.Deps{
		Queue:         queueClient,
		Requests:      requestStore,
		Signer:        signer,
		UploadDir:     cfg.Export.UploadDir,
		OutputDir:     cfg.Export.OutputDir,
		MaxVariations: cfg.Generate.MaxVariations,
		RateLimiter:   limiter,
		Tracer:        otel.Tracer("thumbsmith/api"),
	})

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s signed_urls=%t", cfg.API.Addr, signer.Signed())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Println("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Printf("tracing shutdown failed: %v", err)
	}
}

// buildRequestStore prefers postgres when a DSN is configured and falls
// back to the in-memory store, which is enough for single-node setups.
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
