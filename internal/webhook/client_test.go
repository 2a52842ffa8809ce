package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestSendSignsPayload(t *testing.T) {
	secret := "hook-secret"
	var gotEvent, gotTimestamp, gotSignature string
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEvent = r.Header.Get(HeaderEvent)
		gotTimestamp = r.Header.Get(HeaderTimestamp)
		gotSignature = r.Header.Get(HeaderSignature)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(Config{SigningSecret: secret})
	payload := map[string]string{"request_id": "req-1"}

	if err := client.Send(context.Background(), server.URL, "request.completed", payload); err != nil {
		t.Fatalf("send: %v", err)
	}

	if gotEvent != "request.completed" {
		t.Fatalf("expected event header, got %q", gotEvent)
	}
	if gotTimestamp == "" {
		t.Fatal("expected timestamp header")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gotTimestamp))
	mac.Write([]byte("."))
	mac.Write(gotBody)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if gotSignature != want {
		t.Fatalf("expected signature %q, got %q", want, gotSignature)
	}
}

func TestSendRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(Config{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	})

	if err := client.Send(context.Background(), server.URL, "request.completed", nil); err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestSendGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(Config{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	})

	if err := client.Send(context.Background(), server.URL, "request.failed", nil); err == nil {
		t.Fatal("expected delivery failure")
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestSendEmptyEndpointIsNoOp(t *testing.T) {
	client := NewClient(Config{})
	if err := client.Send(context.Background(), "  ", "request.completed", nil); err != nil {
		t.Fatalf("expected empty endpoint to be a no-op, got %v", err)
	}
}
