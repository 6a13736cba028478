package stitcher

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/kiesman99/tilestitch/pkg/tile"
)

var (
	red   = color.NRGBA{255, 0, 0, 255}
	white = color.NRGBA{255, 255, 255, 255}
)

func splitGradient(t *testing.T, s *Stitcher, w, h int, opts SplitOptions) (*image.NRGBA, *SplitResult) {
	t.Helper()
	dir := t.TempDir()
	src := gradient(w, h)
	source := filepath.Join(dir, "input.png")
	writePNG(t, source, src)

	res, err := s.Split(source, dir, opts)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	return src, res
}

func TestMerge_RoundTripWithOriginals(t *testing.T) {
	testCases := []struct {
		name string
		w, h int
		opts SplitOptions
	}{
		{"2x2 with 10% overlap", 120, 90, SplitOptions{Rows: 2, Cols: 2, OverlapX: 0.1, OverlapY: 0.1}},
		{"3x4 with 25% overlap", 97, 61, SplitOptions{Rows: 3, Cols: 4, OverlapX: 0.25, OverlapY: 0.25}},
		{"1x5 without overlap", 64, 16, SplitOptions{Rows: 1, Cols: 5}},
		{"Single tile", 33, 21, SplitOptions{Rows: 1, Cols: 1, OverlapX: 0.5, OverlapY: 0.5}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := newTestStitcher(t)
			src, split := splitGradient(t, s, tc.w, tc.h, tc.opts)

			res, err := s.Merge(MergeRequest{
				Tiles:    locations(split.Tiles),
				Width:    split.Width,
				Height:   split.Height,
				OverlapX: tc.opts.OverlapX,
				OverlapY: tc.opts.OverlapY,
				Key:      tile.NewChromaKey("white", 10),
			})
			if err != nil {
				t.Fatalf("Merge failed: %v", err)
			}

			if res.Image.Rect != src.Rect {
				t.Fatalf("Expected bounds %v, got %v", src.Rect, res.Image.Rect)
			}
			if !bytes.Equal(res.Image.Pix, src.Pix) {
				t.Error("Merged canvas differs from the source image")
			}
			if res.Format != tile.FormatJPEG {
				t.Errorf("Expected JPEG output, got %v", res.Format)
			}
			if !bytes.HasPrefix(res.Data, []byte{0xff, 0xd8}) {
				t.Error("Expected encoded JPEG data")
			}
			if len(res.Fallbacks) != len(split.Tiles) {
				t.Errorf("Expected %d fallbacks, got %d", len(split.Tiles), len(res.Fallbacks))
			}
		})
	}
}

func TestMerge_ProcessedTileTakesPrecedence(t *testing.T) {
	s, hook := newTestStitcher(t)
	src, split := splitGradient(t, s, 100, 100, SplitOptions{Rows: 2, Cols: 2, OverlapX: 0.1, OverlapY: 0.1})

	// processed result at a different size, resampled back on merge
	var first tile.Descriptor
	for _, d := range split.Tiles {
		if d.Row == 0 && d.Col == 0 {
			first = d
		}
	}
	writePNG(t, first.Path, solid(first.Width/2, first.Height/2, red))

	res, err := s.Merge(MergeRequest{
		Tiles:    locations(split.Tiles),
		Width:    split.Width,
		Height:   split.Height,
		OverlapX: 0.1,
		OverlapY: 0.1,
	})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	if c := res.Image.NRGBAAt(5, 5); c != red {
		t.Errorf("Expected processed red at 5,5, got %v", c)
	}
	if c, want := res.Image.NRGBAAt(95, 95), src.NRGBAAt(95, 95); c != want {
		t.Errorf("Expected original pixel %v at 95,95, got %v", want, c)
	}
	if len(res.Fallbacks) != 3 {
		t.Errorf("Expected 3 fallbacks, got %d", len(res.Fallbacks))
	}
	for _, f := range res.Fallbacks {
		if f.Row == 0 && f.Col == 0 {
			t.Error("Processed tile reported as fallback")
		}
	}

	warnings := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warnings++
		}
	}
	if warnings != 3 {
		t.Errorf("Expected 3 fallback warnings, got %d", warnings)
	}
}

func TestMerge_FallbackAcrossExtensions(t *testing.T) {
	s, _ := newTestStitcher(t)
	_, split := splitGradient(t, s, 60, 60, SplitOptions{Rows: 2, Cols: 2, OverlapX: 0.1, OverlapY: 0.1})

	// ask for .jpg results although split wrote PNG originals
	locs := locations(split.Tiles)
	for i := range locs {
		locs[i].Path = filepath.Join(filepath.Dir(locs[i].Path), tile.ProcessedName(locs[i].Row, locs[i].Col, tile.FormatJPEG))
	}

	res, err := s.Merge(MergeRequest{Tiles: locs, Width: 60, Height: 60, OverlapX: 0.1, OverlapY: 0.1})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if len(res.Fallbacks) != 4 {
		t.Errorf("Expected 4 fallbacks, got %d", len(res.Fallbacks))
	}
}

func TestMerge_OrderIndependent(t *testing.T) {
	s, _ := newTestStitcher(t)
	_, split := splitGradient(t, s, 80, 60, SplitOptions{Rows: 2, Cols: 3, OverlapX: 0.3, OverlapY: 0.3})

	// processed tiles that differ, so the blend order matters
	for i, d := range split.Tiles {
		writePNG(t, d.Path, solid(d.Width, d.Height, color.NRGBA{uint8(40 * i), uint8(200 - 30*i), 90, 255}))
	}

	forward := locations(split.Tiles)
	reversed := make([]tile.Location, len(forward))
	for i, l := range forward {
		reversed[len(forward)-1-i] = l
	}

	a, err := s.Merge(MergeRequest{Tiles: forward, Width: 80, Height: 60, OverlapX: 0.3, OverlapY: 0.3})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	b, err := s.Merge(MergeRequest{Tiles: reversed, Width: 80, Height: 60, OverlapX: 0.3, OverlapY: 0.3})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if !bytes.Equal(a.Image.Pix, b.Image.Pix) {
		t.Error("Merge result depends on input order")
	}
}

// Two tiles side by side: 20x4 image, 1x2 grid, 50% overlap gives 14px
// tiles with a 7px band at x in [7, 14).
func twoTiles(t *testing.T, left, right color.NRGBA) []tile.Location {
	t.Helper()
	dir := t.TempDir()
	l := filepath.Join(dir, "tile_0_0.png")
	r := filepath.Join(dir, "tile_0_1.png")
	writePNG(t, l, solid(14, 4, left))
	writePNG(t, r, solid(13, 4, right))
	return []tile.Location{{Row: 0, Col: 0, Path: l}, {Row: 0, Col: 1, Path: r}}
}

func TestMerge_FeatherBlend(t *testing.T) {
	s, _ := newTestStitcher(t)
	res, err := s.Merge(MergeRequest{Tiles: twoTiles(t, red, white), Width: 20, Height: 4, OverlapX: 0.5})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	testCases := []struct {
		x    int
		want color.NRGBA
	}{
		{3, red},
		{7, red}, // factor 0 at the start of the band
		{10, color.NRGBA{255, 109, 109, 255}},
		{14, white},
		{19, white},
	}
	for _, tc := range testCases {
		got := res.Image.NRGBAAt(tc.x, 2)
		if absDiff(got.G, tc.want.G) > 1 || got.R != tc.want.R || got.A != tc.want.A {
			t.Errorf("Pixel %d: expected %v, got %v", tc.x, tc.want, got)
		}
	}

	// green rises monotonically across the band
	for x := 8; x < 14; x++ {
		if res.Image.NRGBAAt(x, 0).G < res.Image.NRGBAAt(x-1, 0).G {
			t.Errorf("Blend not monotonic at x=%d", x)
		}
	}
}

func TestMerge_RemoveBackground(t *testing.T) {
	key := tile.NewChromaKey("white", 10)

	t.Run("Foreground kept over later background", func(t *testing.T) {
		s, _ := newTestStitcher(t)
		res, err := s.Merge(MergeRequest{
			Tiles: twoTiles(t, red, white), Width: 20, Height: 4, OverlapX: 0.5,
			Key: key, RemoveBackground: true,
		})
		if err != nil {
			t.Fatalf("Merge failed: %v", err)
		}
		for x := 0; x < 14; x++ {
			if c := res.Image.NRGBAAt(x, 1); c != red {
				t.Fatalf("Expected pure red at x=%d, got %v", x, c)
			}
		}
		for x := 14; x < 20; x++ {
			if c := res.Image.NRGBAAt(x, 1); c.A != 0 {
				t.Fatalf("Expected transparent background at x=%d, got %v", x, c)
			}
		}
		if res.Format != tile.FormatPNG {
			t.Errorf("Expected PNG output, got %v", res.Format)
		}

		decoded, err := tile.DecodeStored(res.Data)
		if err != nil {
			t.Fatalf("Failed to decode result: %v", err)
		}
		if decoded.NRGBAAt(19, 0).A != 0 || decoded.NRGBAAt(0, 0) != red {
			t.Error("Encoded PNG lost transparency or foreground")
		}
	})

	t.Run("Later foreground replaces background", func(t *testing.T) {
		s, _ := newTestStitcher(t)
		res, err := s.Merge(MergeRequest{
			Tiles: twoTiles(t, white, red), Width: 20, Height: 4, OverlapX: 0.5,
			Key: key, RemoveBackground: true,
		})
		if err != nil {
			t.Fatalf("Merge failed: %v", err)
		}
		for x := 0; x < 7; x++ {
			if c := res.Image.NRGBAAt(x, 1); c.A != 0 {
				t.Fatalf("Expected transparent background at x=%d, got %v", x, c)
			}
		}
		for x := 7; x < 20; x++ {
			if c := res.Image.NRGBAAt(x, 1); c != red {
				t.Fatalf("Expected pure red at x=%d, got %v", x, c)
			}
		}
	})
}

func TestMerge_SingleTileHugeOverlap(t *testing.T) {
	s, _ := newTestStitcher(t)
	dir := t.TempDir()
	source := filepath.Join(dir, "input.png")
	src := gradient(40, 20)
	writePNG(t, source, src)

	res, err := s.Split(source, dir, SplitOptions{Rows: 1, Cols: 1, OverlapX: 1e300, OverlapY: 0.1})
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	merged, err := s.Merge(MergeRequest{
		Tiles:    locations(res.Tiles),
		Width:    res.Width,
		Height:   res.Height,
		OverlapX: 1e300,
		OverlapY: 0.1,
	})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if !bytes.Equal(merged.Image.Pix, src.Pix) {
		t.Error("Merged image differs from the source")
	}
}

func TestMerge_Errors(t *testing.T) {
	s, _ := newTestStitcher(t)
	dir := t.TempDir()
	corrupt := filepath.Join(dir, "tile_0_0.png")
	if err := os.WriteFile(corrupt, []byte("not an image"), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	t.Run("Empty input", func(t *testing.T) {
		_, err := s.Merge(MergeRequest{Width: 10, Height: 10})
		if !errors.Is(err, ErrEmptyInput) {
			t.Errorf("Expected ErrEmptyInput, got %v", err)
		}
	})

	t.Run("Invalid dimensions", func(t *testing.T) {
		_, err := s.Merge(MergeRequest{Tiles: []tile.Location{{Path: corrupt}}, Width: 0, Height: 10})
		var gridErr *InvalidGridError
		if !errors.As(err, &gridErr) {
			t.Errorf("Expected *InvalidGridError, got %v", err)
		}
	})

	t.Run("Negative position", func(t *testing.T) {
		_, err := s.Merge(MergeRequest{Tiles: []tile.Location{{Row: -1, Path: corrupt}}, Width: 10, Height: 10})
		var gridErr *InvalidGridError
		if !errors.As(err, &gridErr) {
			t.Errorf("Expected *InvalidGridError, got %v", err)
		}
	})

	t.Run("Missing tile", func(t *testing.T) {
		missing := filepath.Join(dir, "tile_1_1.png")
		_, err := s.Merge(MergeRequest{
			Tiles:  []tile.Location{{Row: 1, Col: 1, Path: missing}},
			Width:  10,
			Height: 10,
		})
		var missingErr *MissingTileError
		if !errors.As(err, &missingErr) {
			t.Fatalf("Expected *MissingTileError, got %v", err)
		}
		if missingErr.Row != 1 || missingErr.Col != 1 {
			t.Errorf("Expected tile 1,1, got %d,%d", missingErr.Row, missingErr.Col)
		}
		if len(missingErr.Candidates) != 4 || missingErr.Candidates[0] != missing {
			t.Errorf("Unexpected candidates %v", missingErr.Candidates)
		}
	})

	t.Run("Corrupt tile", func(t *testing.T) {
		_, err := s.Merge(MergeRequest{Tiles: []tile.Location{{Path: corrupt}}, Width: 10, Height: 10})
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			t.Fatalf("Expected *DecodeError, got %v", err)
		}
		if decodeErr.Path != corrupt {
			t.Errorf("Expected path %s, got %s", corrupt, decodeErr.Path)
		}
	})
}

func TestMergeResult_DataURL(t *testing.T) {
	r := &MergeResult{Format: tile.FormatPNG, Data: []byte{1, 2, 3}}
	if got := r.DataURL(); got != "data:image/png;base64,AQID" {
		t.Errorf("Unexpected data URL %s", got)
	}
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}
