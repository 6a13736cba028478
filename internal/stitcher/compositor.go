package stitcher

import (
	"image"
	"image/color"

	"github.com/kiesman99/tilestitch/pkg/tile"
)

// compositor writes tiles onto the canvas one at a time. A tile blends with
// whatever earlier tiles left in its top and left overlap bands, so tiles
// must be applied in (row, col) order by a single writer.
type compositor struct {
	overlapW int
	overlapH int
	key      tile.ChromaKey
	removeBG bool
	xRamp    []float32
	yRamp    []float32
}

func newCompositor(plan tile.GridPlan, key tile.ChromaKey, removeBG bool) *compositor {
	return &compositor{
		overlapW: plan.OverlapWidth,
		overlapH: plan.OverlapHeight,
		key:      key,
		removeBG: removeBG,
		xRamp:    ramp(plan.OverlapWidth),
		yRamp:    ramp(plan.OverlapHeight),
	}
}

// ramp is the blend factor across an overlap band: 0 at the edge shared
// with the earlier neighbour, approaching 1 at the far side.
func ramp(n int) []float32 {
	r := make([]float32, n)
	for i := range r {
		r[i] = float32(i) / float32(n)
	}
	return r
}

// apply writes t into canvas and returns it
func (c *compositor) apply(canvas *image.NRGBA, t loadedTile) *image.NRGBA {
	src := t.img
	tw, th := src.Rect.Dx(), src.Rect.Dy()
	cw, ch := canvas.Rect.Dx(), canvas.Rect.Dy()

	hasLeft := t.col > 0 && c.overlapW > 0
	hasTop := t.row > 0 && c.overlapH > 0

	for y := 0; y < th; y++ {
		gy := t.origin.Y + y
		if gy >= ch {
			break
		}
		inY := hasTop && y < c.overlapH
		yFactor := float32(1)
		if inY {
			yFactor = c.yRamp[y]
		}
		srow := src.Pix[y*src.Stride:]
		drow := canvas.Pix[gy*canvas.Stride:]

		for x := 0; x < tw; x++ {
			gx := t.origin.X + x
			if gx >= cw {
				break
			}
			inX := hasLeft && x < c.overlapW
			s := srow[x*4 : x*4+4 : x*4+4]
			d := drow[gx*4 : gx*4+4 : gx*4+4]

			if (!inX && !inY) || d[3] == 0 {
				copy(d, s)
				continue
			}

			if c.removeBG {
				newKey := c.key.IsKeyColor(color.NRGBA{s[0], s[1], s[2], s[3]})
				oldKey := c.key.IsKeyColor(color.NRGBA{d[0], d[1], d[2], d[3]})
				if newKey && !oldKey {
					continue
				}
				if !newKey && oldKey {
					copy(d, s)
					continue
				}
			}

			var f float32
			switch {
			case inX && !inY:
				f = c.xRamp[x]
			case inY && !inX:
				f = yFactor
			default:
				f = max(c.xRamp[x], yFactor)
			}

			if f <= 0 {
				continue
			}
			if f >= 1 {
				copy(d, s)
				continue
			}
			inv := 1 - f
			for i := range 4 {
				d[i] = uint8(inv*float32(d[i]) + f*float32(s[i]) + 0.5)
			}
		}
	}
	return canvas
}
