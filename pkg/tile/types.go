package tile

import (
	"fmt"
	"strings"
)

// Format selects the on-disk encoding of tiles and results
type Format int

// Output format constants
const (
	FormatPNG Format = iota
	FormatJPEG
)

// Ext returns the file extension (without dot) used for the format
func (f Format) Ext() string {
	if f == FormatJPEG {
		return "jpg"
	}
	return "png"
}

// MIME returns the media type used in data URLs and HTTP responses
func (f Format) MIME() string {
	if f == FormatJPEG {
		return "image/jpeg"
	}
	return "image/png"
}

func (f Format) String() string {
	if f == FormatJPEG {
		return "jpeg"
	}
	return "png"
}

// FormatFromPath picks the encoder for a destination path by its extension.
// Anything that is not .jpg/.jpeg is written as PNG.
func FormatFromPath(path string) Format {
	ext := strings.ToLower(path)
	if strings.HasSuffix(ext, ".jpg") || strings.HasSuffix(ext, ".jpeg") {
		return FormatJPEG
	}
	return FormatPNG
}

// Descriptor is the placement of one split tile in the source image.
// X, Y, Width and Height are absolute pixel coordinates; edge tiles may be
// smaller than the nominal tile size.
type Descriptor struct {
	Row          int    `json:"row" yaml:"row"`
	Col          int    `json:"col" yaml:"col"`
	X            int    `json:"x" yaml:"x"`
	Y            int    `json:"y" yaml:"y"`
	Width        int    `json:"width" yaml:"width"`
	Height       int    `json:"height" yaml:"height"`
	Path         string `json:"path" yaml:"path"`
	OriginalPath string `json:"original_path" yaml:"original_path"`
}

func (d Descriptor) String() string {
	return fmt.Sprintf("tile(%d,%d) %dx%d+%d+%d", d.Row, d.Col, d.Width, d.Height, d.X, d.Y)
}

// Location points merge at the stored result for a grid cell
type Location struct {
	Row  int    `json:"row" yaml:"row"`
	Col  int    `json:"col" yaml:"col"`
	Path string `json:"path" yaml:"path"`
}
