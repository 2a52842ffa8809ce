// Package genai wraps the OpenAI-compatible image generation endpoint used
// to produce thumbnail variations. The model is treated as an opaque
// producer of raw image bytes; everything downstream is format-agnostic.
package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/thumbsmith/thumbsmith/internal/domain"
)

type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
	RetryDelay time.Duration
}

type Client struct {
	api        *openai.Client
	model      string
	maxRetries int
	retryDelay time.Duration
	logger     *log.Logger
	sleep      func(context.Context, time.Duration) error
}

// NewClient builds a generation client. Without an API key the client runs
// in mock mode and synthesizes placeholder images locally, which keeps the
// rest of the pipeline exercisable in development.
func NewClient(cfg Config, logger *log.Logger) *Client {
	var api *openai.Client
	if cfg.APIKey != "" {
		clientCfg := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
		api = openai.NewClientWithConfig(clientCfg)
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}

	return &Client{
		api:        api,
		model:      cfg.Model,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		logger:     logger,
		sleep:      sleepCtx,
	}
}

// Mock reports whether the client synthesizes images instead of calling
// the model.
func (c *Client) Mock() bool {
	return c.api == nil
}

// BuildPrompt renders the generation prompt for one request.
func BuildPrompt(script string, ratio domain.AspectRatio) string {
	return fmt.Sprintf(
		"Generate a high-quality YouTube thumbnail based on the following video script. Aspect Ratio: %s. Script: %s",
		ratio, script,
	)
}

// GenerateImage requests one thumbnail variation and returns its raw
// bytes. Rate-limit responses are retried with exponential backoff up to
// the configured attempt budget; other API errors are not retried.
func (c *Client) GenerateImage(ctx context.Context, prompt string, ratio domain.AspectRatio) ([]byte, error) {
	if c.api == nil {
		return mockImage(ratio)
	}

	delay := c.retryDelay
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, err := c.api.CreateImage(ctx, openai.ImageRequest{
			Prompt:         prompt,
			Model:          c.model,
			N:              1,
			Size:           imageSizeFor(ratio),
			ResponseFormat: openai.CreateImageResponseFormatB64JSON,
		})
		if err == nil {
			if len(resp.Data) == 0 {
				return nil, errors.New("model returned no images")
			}
			data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
			if err != nil {
				return nil, fmt.Errorf("decode model response: %w", err)
			}
			return data, nil
		}

		lastErr = err
		if !isRateLimited(err) {
			return nil, fmt.Errorf("generate image: %w", err)
		}

		c.logger.Printf("rate limit hit, retrying in %s (attempt %d/%d)", delay, attempt+1, c.maxRetries)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
		delay *= 2
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func isRateLimited(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}

func imageSizeFor(ratio domain.AspectRatio) string {
	switch ratio {
	case domain.AspectRatio16x9, domain.AspectRatio4x3:
		return openai.CreateImageSize1792x1024
	case domain.AspectRatio9x16, domain.AspectRatio3x4:
		return openai.CreateImageSize1024x1792
	default:
		return openai.CreateImageSize1024x1024
	}
}

// mockImage renders a decodable gradient PNG at the ratio's target size so
// exports behave exactly as they would with real model output.
func mockImage(ratio domain.AspectRatio) ([]byte, error) {
	w, h := ratio.TargetDimensions()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 96,
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode mock image: %w", err)
	}
	return buf.Bytes(), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
