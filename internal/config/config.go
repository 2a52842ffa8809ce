package config

import (
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
)

type Config struct {
	API      APIConfig
	Queue    QueueConfig
	Worker   WorkerConfig
	Export   ExportConfig
	Signing  SigningConfig
	Generate GenerateConfig
	Storage  StorageConfig
	Database DatabaseConfig
	Trace    TraceConfig
}

type APIConfig struct {
	Addr            string
	RateLimitPerMin int
}

type QueueConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Name          string
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

type WorkerConfig struct {
	Concurrency   int
	SweepInterval time.Duration
	TempMaxAge    time.Duration
	OutputMaxAge  time.Duration
}

// ExportConfig carries the per-format encode parameters and the directories
// the export pipeline reads and writes under.
type ExportConfig struct {
	OutputDir      string
	TempDir        string
	UploadDir      string
	GeneratedDir   string
	PNGCompression int
	JPEGQuality    int
	WebPQuality    int
}

type SigningConfig struct {
	SignURLs bool
	Secret   string
	Expiry   time.Duration
}

type GenerateConfig struct {
	APIKey        string
	BaseURL       string
	Model         string
	MaxVariations int
	MaxRetries    int
	RetryDelay    time.Duration
}

type StorageConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type DatabaseConfig struct {
	DSN string
}

type TraceConfig struct {
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
}

func Load() Config {
	return Config{
		API: APIConfig{
			Addr:            env("THUMBSMITH_API_ADDR", ":8080"),
			RateLimitPerMin: envInt("API_RATE_LIMIT_PER_MIN", 60),
		},
		Queue: QueueConfig{
			RedisAddr:     env("REDIS_ADDR", "localhost:6379"),
			RedisPassword: env("REDIS_PASSWORD", ""),
			RedisDB:       envInt("REDIS_DB", 0),
			Name:          env("ASYNC_QUEUE", "default"),
		},
		Worker: WorkerConfig{
			Concurrency:   envInt("WORKER_CONCURRENCY", max(2, runtime.NumCPU())),
			SweepInterval: envDuration("SWEEP_INTERVAL", time.Hour),
			TempMaxAge:    envDuration("TEMP_MAX_AGE", 24*time.Hour),
			OutputMaxAge:  envDuration("OUTPUT_MAX_AGE", 7*24*time.Hour),
		},
		Export: ExportConfig{
			OutputDir:      env("OUTPUT_DIR", "./storage/output"),
			TempDir:        env("TEMP_DIR", "./storage/temp"),
			UploadDir:      env("UPLOAD_DIR", "./storage/uploads"),
			GeneratedDir:   env("GENERATED_DIR", "./storage/generated"),
			PNGCompression: envInt("PNG_COMPRESSION", 9),
			JPEGQuality:    envInt("JPEG_QUALITY", 85),
			WebPQuality:    envInt("WEBP_QUALITY", 80),
		},
		Signing: SigningConfig{
			SignURLs: envBool("SIGN_URLS", false),
			// The literal fallback is a known weakness: a deployment that
			// never sets SIGNING_SECRET mints guessable download links.
			Secret: env("SIGNING_SECRET", "default-secret"),
			Expiry: envDuration("URL_SIGNATURE_EXPIRY", time.Hour),
		},
		Generate: GenerateConfig{
			APIKey:        env("GENAI_API_KEY", ""),
			BaseURL:       env("GENAI_BASE_URL", ""),
			Model:         env("GENAI_MODEL_NAME", "dall-e-3"),
			MaxVariations: envInt("MAX_VARIATIONS", 5),
			MaxRetries:    envInt("GENAI_MAX_RETRIES", 3),
			RetryDelay:    envDuration("GENAI_RETRY_DELAY", 2*time.Second),
		},
		Storage: StorageConfig{
			Enabled:   envBool("ARCHIVE_ENABLED", false),
			Endpoint:  env("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: env("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: env("MINIO_SECRET_KEY", "minioadmin"),
			Bucket:    env("MINIO_BUCKET", "thumbsmith-exports"),
			UseSSL:    envBool("MINIO_USE_SSL", false),
		},
		Database: DatabaseConfig{
			DSN: env("POSTGRES_DSN", ""),
		},
		Trace: TraceConfig{
			Exporter:     env("TRACE_EXPORTER", "none"),
			OTLPEndpoint: env("TRACE_OTLP_ENDPOINT", ""),
			OTLPInsecure: envBool("TRACE_OTLP_INSECURE", false),
		},
	}
}

func env(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func envInt(key string, fallback int) int {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// envDuration accepts either a Go duration string ("90s") or a bare number
// of seconds, which is how the deployment templates spell expiries.
func envDuration(key string, fallback time.Duration) time.Duration {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
