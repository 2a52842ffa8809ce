package domain

import "testing"

func TestParseAspectRatio(t *testing.T) {
	cases := []struct {
		in   string
		want AspectRatio
	}{
		{"16:9", AspectRatio16x9},
		{"16x9", AspectRatio16x9},
		{" 9:16 ", AspectRatio9x16},
		{"1x1", AspectRatio1x1},
		{"4:3", AspectRatio4x3},
		{"3x4", AspectRatio3x4},
	}
	for _, tc := range cases {
		got, err := ParseAspectRatio(tc.in)
		if err != nil {
			t.Fatalf("ParseAspectRatio(%q) returned error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseAspectRatio(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	for _, in := range []string{"", "21:9", "banana", "16/9"} {
		if _, err := ParseAspectRatio(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestTargetDimensions(t *testing.T) {
	w, h := AspectRatio16x9.TargetDimensions()
	if w != 1280 || h != 720 {
		t.Fatalf("expected 1280x720, got %dx%d", w, h)
	}

	w, h = AspectRatio9x16.TargetDimensions()
	if w != 720 || h != 1280 {
		t.Fatalf("expected 720x1280, got %dx%d", w, h)
	}
}

func TestCreateThumbnailRequestValidate(t *testing.T) {
	valid := CreateThumbnailRequest{
		Script:      "a video about sourdough starters",
		AspectRatio: "16:9",
		Count:       3,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid request, got error: %v", err)
	}

	emptyScript := CreateThumbnailRequest{AspectRatio: "16:9"}
	if err := emptyScript.Validate(); err == nil {
		t.Fatal("expected validation error for empty script")
	}

	badRatio := CreateThumbnailRequest{Script: "x", AspectRatio: "2:1"}
	if err := badRatio.Validate(); err == nil {
		t.Fatal("expected validation error for unsupported aspect ratio")
	}

	negativeCount := CreateThumbnailRequest{Script: "x", AspectRatio: "16:9", Count: -1}
	if err := negativeCount.Validate(); err == nil {
		t.Fatal("expected validation error for negative count")
	}
}
