package tile

import (
	"fmt"
	"image"
	"math"
)

// InvalidGridError reports a rows/cols/overlap combination (or image size)
// that cannot produce a tile grid.
type InvalidGridError struct {
	Reason string
}

func (e *InvalidGridError) Error() string {
	return "invalid grid: " + e.Reason
}

// GridPlan is the tile geometry shared by split and merge. The same inputs
// always yield the same plan, so a merge recovers the split placement.
type GridPlan struct {
	ImageWidth  int
	ImageHeight int
	Rows        int
	Cols        int

	TileWidth     int
	TileHeight    int
	OverlapWidth  int
	OverlapHeight int
	StrideWidth   int
	StrideHeight  int
}

// Plan computes the grid for an image of w×h pixels cut into rows×cols tiles
// where adjacent tiles share overlapX (resp. overlapY) of the tile size.
func Plan(w, h, rows, cols int, overlapX, overlapY float64) (GridPlan, error) {
	if rows <= 0 || cols <= 0 {
		return GridPlan{}, &InvalidGridError{Reason: fmt.Sprintf("rows and cols must be greater than zero (got %dx%d)", rows, cols)}
	}
	if w <= 0 || h <= 0 {
		return GridPlan{}, &InvalidGridError{Reason: fmt.Sprintf("image dimensions must be positive (got %dx%d)", w, h)}
	}
	if overlapX < 0 || overlapY < 0 {
		return GridPlan{}, &InvalidGridError{Reason: fmt.Sprintf("overlap ratios must not be negative (got %g, %g)", overlapX, overlapY)}
	}

	denomW := float64(cols) - float64(cols-1)*overlapX
	denomH := float64(rows) - float64(rows-1)*overlapY
	// NaN fails the comparison as well
	if !(denomW > 0) || !(denomH > 0) {
		return GridPlan{}, &InvalidGridError{Reason: fmt.Sprintf("overlap %g/%g is too large for a %dx%d grid", overlapX, overlapY, rows, cols)}
	}

	p := GridPlan{
		ImageWidth:  w,
		ImageHeight: h,
		Rows:        rows,
		Cols:        cols,
		TileWidth:   int(math.Ceil(float64(w) / denomW)),
		TileHeight:  int(math.Ceil(float64(h) / denomH)),
	}
	p.OverlapWidth = overlap(p.TileWidth, overlapX)
	p.OverlapHeight = overlap(p.TileHeight, overlapY)
	p.StrideWidth = max(1, p.TileWidth-p.OverlapWidth)
	p.StrideHeight = max(1, p.TileHeight-p.OverlapHeight)
	return p, nil
}

// overlap is floor(size*ratio) clamped to size. The clamp happens before the
// int conversion so huge ratios cannot overflow.
func overlap(size int, ratio float64) int {
	return int(math.Min(math.Floor(float64(size)*ratio), float64(size)))
}

// Cell returns the clamped pixel rectangle of the tile at row, col
func (p GridPlan) Cell(row, col int) image.Rectangle {
	x := min(col*p.StrideWidth, p.ImageWidth-1)
	y := min(row*p.StrideHeight, p.ImageHeight-1)
	w := min(p.TileWidth, p.ImageWidth-x)
	h := min(p.TileHeight, p.ImageHeight-y)
	return image.Rect(x, y, x+w, y+h)
}

// Cells lists every non-empty cell in row-major order
func (p GridPlan) Cells() []Descriptor {
	cells := make([]Descriptor, 0, p.Rows*p.Cols)
	for r := range p.Rows {
		for c := range p.Cols {
			rect := p.Cell(r, c)
			if rect.Empty() {
				continue
			}
			cells = append(cells, Descriptor{
				Row:    r,
				Col:    c,
				X:      rect.Min.X,
				Y:      rect.Min.Y,
				Width:  rect.Dx(),
				Height: rect.Dy(),
			})
		}
	}
	return cells
}
