package stitch

import (
	"context"
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/kiesman99/tilestitch/internal/stitcher"
	"github.com/kiesman99/tilestitch/pkg/tile"
)

func newTestRunner(t *testing.T, workers int) *Runner {
	t.Helper()
	logger, _ := test.NewNullLogger()
	r := NewRunner(stitcher.New(stitcher.Config{Workers: 2, Logger: logger}), workers, logger)
	t.Cleanup(r.Close)
	return r
}

func writeSource(t *testing.T, dir string, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	path := filepath.Join(dir, "input.png")
	if err := tile.Save(path, img, tile.FormatPNG); err != nil {
		t.Fatalf("Failed to write source: %v", err)
	}
	return path
}

func TestRunner_SplitMerge(t *testing.T) {
	r := newTestRunner(t, 2)
	ctx := context.Background()
	dir := t.TempDir()
	source := writeSource(t, dir, 64, 48)

	opts := stitcher.SplitOptions{Rows: 2, Cols: 2, OverlapX: 0.1, OverlapY: 0.1}
	split, err := Await(ctx, r.Split(ctx, source, dir, opts))
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(split.Tiles) != 4 {
		t.Fatalf("Expected 4 tiles, got %d", len(split.Tiles))
	}

	locs := make([]tile.Location, len(split.Tiles))
	for i, d := range split.Tiles {
		locs[i] = tile.Location{Row: d.Row, Col: d.Col, Path: d.Path}
	}
	merged, err := Await(ctx, r.Merge(ctx, stitcher.MergeRequest{
		Tiles: locs, Width: split.Width, Height: split.Height, OverlapX: 0.1, OverlapY: 0.1,
	}))
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if merged.Image.Rect.Dx() != 64 || merged.Image.Rect.Dy() != 48 {
		t.Errorf("Expected 64x48, got %v", merged.Image.Rect)
	}
}

func TestRunner_CropAndResize(t *testing.T) {
	r := newTestRunner(t, 1)
	ctx := context.Background()
	dir := t.TempDir()
	source := writeSource(t, dir, 32, 32)

	path, err := Await(ctx, r.Crop(ctx, source, image.Rect(0, 0, 8, 8), dir))
	if err != nil {
		t.Fatalf("Crop failed: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("Expected crop in %s, got %s", dir, path)
	}

	data, err := tile.EncodeBytes(image.NewNRGBA(image.Rect(0, 0, 4, 4)), tile.FormatPNG)
	if err != nil {
		t.Fatalf("EncodeBytes failed: %v", err)
	}
	dest := filepath.Join(dir, "tile_0_0.png")
	if _, err := Await(ctx, r.ResizeAndSave(ctx, data, 16, 12, dest)); err != nil {
		t.Fatalf("ResizeAndSave failed: %v", err)
	}
	img, err := tile.Open(dest)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if img.Rect.Dx() != 16 || img.Rect.Dy() != 12 {
		t.Errorf("Expected 16x12, got %v", img.Rect)
	}
}

func TestRunner_PropagatesEngineErrors(t *testing.T) {
	r := newTestRunner(t, 1)
	ctx := context.Background()

	_, err := Await(ctx, r.Merge(ctx, stitcher.MergeRequest{Width: 10, Height: 10}))
	if !errors.Is(err, stitcher.ErrEmptyInput) {
		t.Errorf("Expected ErrEmptyInput, got %v", err)
	}
}

func TestRunner_ConcurrentJobs(t *testing.T) {
	r := newTestRunner(t, 3)
	ctx := context.Background()
	dir := t.TempDir()
	source := writeSource(t, dir, 40, 40)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Await(ctx, r.Crop(ctx, source, image.Rect(i, i, i+10, i+10), t.TempDir()))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("Crop failed: %v", err)
		}
	}
}

func TestRunner_SubmitAfterClose(t *testing.T) {
	logger, _ := test.NewNullLogger()
	r := NewRunner(stitcher.New(stitcher.Config{Logger: logger}), 2, logger)
	r.Close()
	r.Close()

	ctx := context.Background()
	_, err := Await(ctx, r.Crop(ctx, "missing.png", image.Rect(0, 0, 1, 1), t.TempDir()))
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestRunner_CloseWhileSubmitting(t *testing.T) {
	logger, _ := test.NewNullLogger()
	r := NewRunner(stitcher.New(stitcher.Config{Workers: 1, Logger: logger}), 1, logger)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Await(ctx, r.Merge(ctx, stitcher.MergeRequest{Width: 1, Height: 1}))
			if !errors.Is(err, stitcher.ErrEmptyInput) && !errors.Is(err, ErrClosed) {
				t.Errorf("Unexpected error %v", err)
			}
		}()
	}
	r.Close()
	wg.Wait()
}

func TestAwait_ContextDone(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	never := make(chan Outcome[int])
	_, err := Await(ctx, never)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context.DeadlineExceeded, got %v", err)
	}
}

func TestAwait_Outcome(t *testing.T) {
	ch := make(chan Outcome[string], 1)
	ch <- Outcome[string]{Value: "done"}
	v, err := Await(context.Background(), ch)
	if err != nil || v != "done" {
		t.Errorf("Expected done, got %q, %v", v, err)
	}
}
