package stitcher

import (
	"image"

	"github.com/sourcegraph/conc/pool"

	"github.com/kiesman99/tilestitch/pkg/tile"
)

// errorPool runs independent tasks on at most s.workers goroutines and
// reports the first failure.
func (s *Stitcher) errorPool() *pool.ErrorPool {
	return pool.New().WithMaxGoroutines(s.workers).WithErrors().WithFirstError()
}

// stripBackground clears every key-colored pixel. Rows are split into
// disjoint bands, one task per band.
func (s *Stitcher) stripBackground(canvas *image.NRGBA, key tile.ChromaKey) {
	h := canvas.Rect.Dy()
	w := canvas.Rect.Dx()
	band := max(1, (h+s.workers-1)/s.workers)

	p := pool.New().WithMaxGoroutines(s.workers)
	for y0 := 0; y0 < h; y0 += band {
		y1 := min(y0+band, h)
		p.Go(func() {
			for y := y0; y < y1; y++ {
				row := canvas.Pix[y*canvas.Stride : y*canvas.Stride+w*4]
				for i := 0; i < len(row); i += 4 {
					if tile.IsKeyColor(row[i], row[i+1], row[i+2], row[i+3], key.Color, key.Tolerance) {
						row[i], row[i+1], row[i+2], row[i+3] = 0, 0, 0, 0
					}
				}
			}
		})
	}
	p.Wait()
}
