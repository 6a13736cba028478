package stitcher

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kiesman99/tilestitch/pkg/tile"
)

// DecodeError reports unreadable or unsupported image bytes
type DecodeError = tile.DecodeError

// InvalidGridError reports zero rows/cols, empty dimensions or an overlap
// that leaves no positive stride
type InvalidGridError = tile.InvalidGridError

// ErrEmptyInput is returned by Merge when it is given no tiles
var ErrEmptyInput = errors.New("no tiles to merge")

// IOError represents a read or write failure against storage
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// MissingTileError is returned when neither the processed tile nor any
// original crop exists for a cell
type MissingTileError struct {
	Row        int
	Col        int
	Candidates []string
}

func (e *MissingTileError) Error() string {
	return fmt.Sprintf("tile %d,%d: result and original both missing (tried %s)",
		e.Row, e.Col, strings.Join(e.Candidates, ", "))
}
