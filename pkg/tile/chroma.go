package tile

import (
	"image/color"
	"strings"
)

// KeyColor names the background hue treated as chroma key
type KeyColor string

// Supported key colors. Any other value behaves like KeyWhite.
const (
	KeyWhite   KeyColor = "white"
	KeyBlack   KeyColor = "black"
	KeyRed     KeyColor = "red"
	KeyBlue    KeyColor = "blue"
	KeyGreen   KeyColor = "green"
	KeyDefault KeyColor = "default"
)

// nearTransparent is the alpha below which a pixel always counts as background
const nearTransparent = 10

// ChromaKey is the background classification setting used by merge
type ChromaKey struct {
	Color     KeyColor
	Tolerance uint8
}

// NewChromaKey normalises the color name; unknown names are kept and
// classified with the white rule.
func NewChromaKey(name string, tolerance uint8) ChromaKey {
	return ChromaKey{Color: KeyColor(strings.ToLower(strings.TrimSpace(name))), Tolerance: tolerance}
}

// IsKeyColor reports whether the pixel counts as background for the key
func (k ChromaKey) IsKeyColor(p color.NRGBA) bool {
	return IsKeyColor(p.R, p.G, p.B, p.A, k.Color, k.Tolerance)
}

// IsKeyColor is the pixel predicate behind ChromaKey. It is total: every
// channel combination, color name and tolerance gives an answer.
func IsKeyColor(r, g, b, a uint8, key KeyColor, tolerance uint8) bool {
	if a < nearTransparent {
		return true
	}

	t := int(tolerance)
	bright := uint8(max(240-t, 0))
	dark := uint8(min(15+t, 255))
	muted := uint8(min(50+t, 255))

	switch key {
	case KeyBlack:
		return r <= dark && g <= dark && b <= dark
	case KeyRed:
		return r >= bright && g <= muted && b <= muted
	case KeyBlue:
		return r <= muted && g <= muted && b >= bright
	case KeyGreen:
		return r <= muted && g >= bright && b <= muted
	default:
		return r >= bright && g >= bright && b >= bright
	}
}
