package stitcher

import (
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"runtime"
	"time"

	"github.com/disintegration/imaging"
	log "github.com/sirupsen/logrus"

	"github.com/kiesman99/tilestitch/pkg/tile"
)

// Config tunes a Stitcher
type Config struct {
	// Workers bounds the goroutines used for crops, tile loads and the
	// background pass. Zero means GOMAXPROCS.
	Workers int
	Logger  log.FieldLogger
}

// Stitcher splits images into overlapping tiles and merges them back
type Stitcher struct {
	workers int
	log     log.FieldLogger
}

// New creates a new stitcher instance
func New(cfg Config) *Stitcher {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Stitcher{workers: workers, log: logger}
}

// SplitOptions contains the grid parameters for Split
type SplitOptions struct {
	Rows       int
	Cols       int
	OverlapX   float64
	OverlapY   float64
	PreferJPEG bool
}

// Format returns the tile encoding selected by the options
func (o SplitOptions) Format() tile.Format {
	if o.PreferJPEG {
		return tile.FormatJPEG
	}
	return tile.FormatPNG
}

// SplitResult describes the tiles written by Split
type SplitResult struct {
	Tiles      []tile.Descriptor
	Width      int
	Height     int
	SourcePath string
	Plan       tile.GridPlan
}

// Split loads source upright, stores a copy of it in destDir and writes
// one original crop per grid cell. On error the directory may hold a
// partial set of files and the result must be discarded.
func (s *Stitcher) Split(source, destDir string, opts SplitOptions) (*SplitResult, error) {
	start := time.Now()
	if opts.Rows <= 0 || opts.Cols <= 0 {
		return nil, &InvalidGridError{Reason: fmt.Sprintf("rows and cols must be greater than zero (got %dx%d)", opts.Rows, opts.Cols)}
	}

	img, err := open(source)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()

	plan, err := tile.Plan(b.Dx(), b.Dy(), opts.Rows, opts.Cols, opts.OverlapX, opts.OverlapY)
	if err != nil {
		return nil, err
	}

	format := opts.Format()
	sourcePath := tile.SourcePath(destDir, format)
	if err := tile.Save(sourcePath, img, format); err != nil {
		return nil, &IOError{Op: "write", Path: sourcePath, Err: err}
	}

	tiles := plan.Cells()
	p := s.errorPool()
	for i := range tiles {
		d := &tiles[i]
		d.Path = filepath.Join(destDir, tile.ProcessedName(d.Row, d.Col, format))
		d.OriginalPath = filepath.Join(destDir, tile.OriginalName(d.Row, d.Col, format))
		p.Go(func() error {
			crop := imaging.Crop(img, image.Rect(d.X, d.Y, d.X+d.Width, d.Y+d.Height))
			if err := tile.Save(d.OriginalPath, crop, format); err != nil {
				return &IOError{Op: "write", Path: d.OriginalPath, Err: err}
			}
			s.log.WithFields(log.Fields{"row": d.Row, "col": d.Col, "path": d.OriginalPath}).Debug("tile written")
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	s.log.WithFields(log.Fields{
		"width":   plan.ImageWidth,
		"height":  plan.ImageHeight,
		"grid":    fmt.Sprintf("%dx%d", plan.Rows, plan.Cols),
		"tile":    fmt.Sprintf("%dx%d", plan.TileWidth, plan.TileHeight),
		"tiles":   len(tiles),
		"elapsed": time.Since(start),
	}).Info("split complete")

	return &SplitResult{
		Tiles:      tiles,
		Width:      plan.ImageWidth,
		Height:     plan.ImageHeight,
		SourcePath: sourcePath,
		Plan:       plan,
	}, nil
}

// Crop cuts the rectangle out of the upright source and stores it as PNG in
// destDir, returning the written path. The rectangle is clipped to the image.
func (s *Stitcher) Crop(source string, rect image.Rectangle, destDir string) (string, error) {
	img, err := open(source)
	if err != nil {
		return "", err
	}
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return "", &InvalidGridError{Reason: "crop region lies outside the image"}
	}

	path := filepath.Join(destDir, fmt.Sprintf("cropped_%d.png", time.Now().UnixMilli()))
	if err := tile.Save(path, imaging.Crop(img, rect), tile.FormatPNG); err != nil {
		return "", &IOError{Op: "write", Path: path, Err: err}
	}
	s.log.WithFields(log.Fields{"rect": rect, "path": path}).Info("crop written")
	return path, nil
}

// ResizeAndSave decodes data, resamples it to exactly width×height and
// writes it to dest with the encoder matching dest's extension.
func (s *Stitcher) ResizeAndSave(data []byte, width, height int, dest string) error {
	if width <= 0 || height <= 0 {
		return &InvalidGridError{Reason: fmt.Sprintf("target size must be positive (got %dx%d)", width, height)}
	}
	img, err := tile.DecodeStored(data)
	if err != nil {
		return err
	}
	resized := imaging.Resize(img, width, height, imaging.Lanczos)
	if err := tile.Save(dest, resized, tile.FormatFromPath(dest)); err != nil {
		return &IOError{Op: "write", Path: dest, Err: err}
	}
	s.log.WithFields(log.Fields{
		"from": fmt.Sprintf("%dx%d", img.Rect.Dx(), img.Rect.Dy()),
		"to":   fmt.Sprintf("%dx%d", width, height),
		"path": dest,
	}).Debug("resized image written")
	return nil
}

// open loads an upright image, keeping decode failures distinct from I/O
func open(path string) (*image.NRGBA, error) {
	img, err := tile.Open(path)
	if err == nil {
		return img, nil
	}
	var derr *DecodeError
	if errors.As(err, &derr) {
		return nil, err
	}
	return nil, &IOError{Op: "read", Path: path, Err: err}
}
