package genai

import (
	"bytes"
	"context"
	"image"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/thumbsmith/thumbsmith/internal/domain"
)

func TestClientWithoutKeyRunsInMockMode(t *testing.T) {
	client := NewClient(Config{Model: "dall-e-3"}, log.New(io.Discard, "", 0))

	if !client.Mock() {
		t.Fatal("expected mock mode without API key")
	}

	data, err := client.GenerateImage(context.Background(), "prompt", domain.AspectRatio16x9)
	if err != nil {
		t.Fatalf("generate mock image: %v", err)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode mock image: %v", err)
	}
	if format != "png" {
		t.Fatalf("expected png, got %s", format)
	}

	bounds := img.Bounds()
	if bounds.Dx() != 1280 || bounds.Dy() != 720 {
		t.Fatalf("expected 1280x720 mock image, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestClientWithKeyIsNotMock(t *testing.T) {
	client := NewClient(Config{APIKey: "sk-test", Model: "dall-e-3"}, log.New(io.Discard, "", 0))
	if client.Mock() {
		t.Fatal("expected real mode with API key")
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("how to sharpen knives", domain.AspectRatio9x16)

	if !strings.Contains(prompt, "how to sharpen knives") {
		t.Fatalf("expected script in prompt, got %q", prompt)
	}
	if !strings.Contains(prompt, "9:16") {
		t.Fatalf("expected aspect ratio in prompt, got %q", prompt)
	}
}

func TestMockImageMatchesRatioDimensions(t *testing.T) {
	for _, ratio := range []domain.AspectRatio{
		domain.AspectRatio16x9,
		domain.AspectRatio9x16,
		domain.AspectRatio1x1,
	} {
		data, err := mockImage(ratio)
		if err != nil {
			t.Fatalf("mock image for %s: %v", ratio, err)
		}
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("decode mock image for %s: %v", ratio, err)
		}

		wantW, wantH := ratio.TargetDimensions()
		bounds := img.Bounds()
		if bounds.Dx() != wantW || bounds.Dy() != wantH {
			t.Fatalf("expected %dx%d for %s, got %dx%d", wantW, wantH, ratio, bounds.Dx(), bounds.Dy())
		}
	}
}

func TestSleepCtxHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sleepCtx(ctx, time.Minute); err == nil {
		t.Fatal("expected cancelled sleep to return error")
	}
}
