package sign

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"
)

func newTestSigner(t *testing.T, signURLs bool) *Signer {
	t.Helper()

	s := New(Config{
		SignURLs:  signURLs,
		Secret:    "test-secret",
		Expiry:    time.Hour,
		OutputDir: t.TempDir(),
	})
	s.now = func() time.Time {
		return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	}
	return s
}

func TestURLForStaticMode(t *testing.T) {
	s := newTestSigner(t, false)

	got := s.URLFor("export_abc.png")
	if got != "/static/output/export_abc.png" {
		t.Fatalf("expected static path, got %q", got)
	}
}

func TestURLForSignedModeRoundTrip(t *testing.T) {
	s := newTestSigner(t, true)

	raw := s.URLFor("export_abc.png")
	if !strings.HasPrefix(raw, "/api/download/export_abc.png?") {
		t.Fatalf("unexpected signed URL shape: %q", raw)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse signed URL: %v", err)
	}
	expires, err := strconv.ParseInt(parsed.Query().Get("expires"), 10, 64)
	if err != nil {
		t.Fatalf("parse expires: %v", err)
	}

	wantExpires := time.Date(2026, 8, 30, 13, 0, 0, 0, time.UTC).Unix()
	if expires != wantExpires {
		t.Fatalf("expected expires %d, got %d", wantExpires, expires)
	}

	signature := parsed.Query().Get("signature")
	if err := s.Validate("export_abc.png", expires, signature); err != nil {
		t.Fatalf("expected freshly minted link to validate: %v", err)
	}

	// Validation is stateless, a second check succeeds too.
	if err := s.Validate("export_abc.png", expires, signature); err != nil {
		t.Fatalf("expected repeated validation to pass: %v", err)
	}
}

func TestValidateRejectsExpiredLink(t *testing.T) {
	s := newTestSigner(t, true)

	expires := s.now().Add(-time.Minute).Unix()
	signature := s.signature("export_abc.png", expires)

	if err := s.Validate("export_abc.png", expires, signature); !errors.Is(err, ErrLinkExpired) {
		t.Fatalf("expected ErrLinkExpired, got %v", err)
	}
}

func TestValidateRejectsTamperedSignature(t *testing.T) {
	s := newTestSigner(t, true)

	expires := s.now().Add(time.Hour).Unix()
	signature := s.signature("export_abc.png", expires)

	flipped := "0" + signature[1:]
	if flipped == signature {
		flipped = "1" + signature[1:]
	}
	if err := s.Validate("export_abc.png", expires, flipped); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}

	// A signature minted for one file never opens another.
	other := s.signature("export_other.png", expires)
	if err := s.Validate("export_abc.png", expires, other); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature for wrong file, got %v", err)
	}
}

func TestValidateRejectsPathTraversal(t *testing.T) {
	s := newTestSigner(t, true)

	for _, name := range []string{"../secrets.txt", "..", "../../etc/passwd"} {
		expires := s.now().Add(time.Hour).Unix()
		signature := s.signature(name, expires)

		if err := s.Validate(name, expires, signature); !errors.Is(err, ErrOutsideRoot) {
			t.Fatalf("expected ErrOutsideRoot for %q, got %v", name, err)
		}
	}
}

func TestResolvePathStaysInsideOutputDir(t *testing.T) {
	s := newTestSigner(t, true)

	resolved, err := s.ResolvePath("export_abc.png")
	if err != nil {
		t.Fatalf("resolve path: %v", err)
	}
	if !strings.HasSuffix(resolved, "export_abc.png") {
		t.Fatalf("unexpected resolved path %q", resolved)
	}

	if _, err := s.ResolvePath("../outside.png"); !errors.Is(err, ErrOutsideRoot) {
		t.Fatalf("expected ErrOutsideRoot, got %v", err)
	}
}
