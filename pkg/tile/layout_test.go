package tile

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestNames(t *testing.T) {
	if got := ProcessedName(1, 2, FormatJPEG); got != "tile_1_2.jpg" {
		t.Errorf("Expected tile_1_2.jpg, got %s", got)
	}
	if got := OriginalName(0, 3, FormatPNG); got != "orig_tile_0_3.png" {
		t.Errorf("Expected orig_tile_0_3.png, got %s", got)
	}
	if got := SourcePath("work", FormatJPEG); got != filepath.Join("work", "original_source.jpg") {
		t.Errorf("Unexpected source path %s", got)
	}
}

func TestCandidates(t *testing.T) {
	processed := filepath.Join("session", "tile_2_1.png")
	got := Candidates(processed, 2, 1)
	want := []string{
		processed,
		filepath.Join("session", "orig_tile_2_1.png"),
		filepath.Join("session", "orig_tile_2_1.jpg"),
		filepath.Join("session", "orig_tile_2_1.jpeg"),
	}
	if len(got) != len(want) {
		t.Fatalf("Expected %d candidates, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Candidate %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestDataURL(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G', 0, 1, 2, 3, 0xff}

	url := EncodeDataURL(FormatPNG, payload)
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Fatalf("Unexpected data URL prefix: %s", url)
	}
	if jpg := EncodeDataURL(FormatJPEG, payload); !strings.HasPrefix(jpg, "data:image/jpeg;base64,") {
		t.Errorf("Unexpected JPEG data URL prefix: %s", jpg)
	}

	testCases := []struct {
		name  string
		input string
	}{
		{"Data URL", url},
		{"Bare base64", strings.TrimPrefix(url, "data:image/png;base64,")},
		{"Trailing newline", url + "\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeDataURL(tc.input)
			if err != nil {
				t.Fatalf("DecodeDataURL failed: %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Errorf("Expected % x, got % x", payload, got)
			}
		})
	}

	if _, err := DecodeDataURL("data:image/png;base64,***"); err == nil {
		t.Error("Expected error for invalid base64")
	}
}
