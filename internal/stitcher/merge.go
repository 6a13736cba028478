package stitcher

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"sort"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sourcegraph/conc/pool"
	log "github.com/sirupsen/logrus"

	"github.com/kiesman99/tilestitch/pkg/tile"
)

// MergeRequest contains all merge parameters. Width, Height and the
// overlap ratios must be the ones the tiles were split with.
type MergeRequest struct {
	Tiles            []tile.Location
	Width            int
	Height           int
	OverlapX         float64
	OverlapY         float64
	Key              tile.ChromaKey
	RemoveBackground bool
}

// MergeResult contains the composited image and its encoding
type MergeResult struct {
	Image  *image.NRGBA
	Format tile.Format
	Data   []byte
	// Fallbacks lists the cells whose processed file was missing and were
	// filled from the original crop.
	Fallbacks []tile.Location
}

// DataURL returns the encoded result as a data: URL
func (r *MergeResult) DataURL() string {
	return tile.EncodeDataURL(r.Format, r.Data)
}

// placement is a tile resolved against the grid, ready to be loaded
type placement struct {
	loc    tile.Location
	bounds image.Rectangle
}

// loadedTile is tile content sized to its grid cell
type loadedTile struct {
	row, col int
	origin   image.Point
	img      *image.NRGBA
	path     string
	fallback bool
}

// Merge reassembles tiles into one image. No partial result is returned:
// any missing or unreadable tile fails the whole merge.
func (s *Stitcher) Merge(req MergeRequest) (*MergeResult, error) {
	start := time.Now()
	if len(req.Tiles) == 0 {
		return nil, ErrEmptyInput
	}
	if req.Width <= 0 || req.Height <= 0 {
		return nil, &InvalidGridError{Reason: fmt.Sprintf("invalid original image dimensions %dx%d", req.Width, req.Height)}
	}

	rows, cols := 0, 0
	for _, t := range req.Tiles {
		if t.Row < 0 || t.Col < 0 {
			return nil, &InvalidGridError{Reason: fmt.Sprintf("negative tile position %d,%d", t.Row, t.Col)}
		}
		rows = max(rows, t.Row+1)
		cols = max(cols, t.Col+1)
	}

	plan, err := tile.Plan(req.Width, req.Height, rows, cols, req.OverlapX, req.OverlapY)
	if err != nil {
		return nil, err
	}

	jobs := make([]placement, 0, len(req.Tiles))
	for _, t := range req.Tiles {
		cell := plan.Cell(t.Row, t.Col)
		if cell.Empty() {
			continue
		}
		jobs = append(jobs, placement{loc: t, bounds: cell})
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("no valid tiles: %w", ErrEmptyInput)
	}

	tiles, err := s.loadTiles(jobs)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(tiles, func(i, j int) bool {
		if tiles[i].row != tiles[j].row {
			return tiles[i].row < tiles[j].row
		}
		return tiles[i].col < tiles[j].col
	})

	comp := newCompositor(plan, req.Key, req.RemoveBackground)
	canvas := image.NewNRGBA(image.Rect(0, 0, req.Width, req.Height))
	var fallbacks []tile.Location
	for _, t := range tiles {
		canvas = comp.apply(canvas, t)
		if t.fallback {
			fallbacks = append(fallbacks, tile.Location{Row: t.row, Col: t.col, Path: t.path})
		}
	}

	format := tile.FormatJPEG
	if req.RemoveBackground {
		s.stripBackground(canvas, req.Key)
		format = tile.FormatPNG
	}

	data, err := tile.EncodeBytes(canvas, format)
	if err != nil {
		return nil, &IOError{Op: "encode", Path: format.String(), Err: err}
	}

	s.log.WithFields(log.Fields{
		"grid":      fmt.Sprintf("%dx%d", rows, cols),
		"tiles":     len(tiles),
		"fallbacks": len(fallbacks),
		"format":    format,
		"bytes":     len(data),
		"elapsed":   time.Since(start),
	}).Info("merge complete")

	return &MergeResult{Image: canvas, Format: format, Data: data, Fallbacks: fallbacks}, nil
}

// loadTiles reads every placement concurrently. Each task owns its file and
// its output image; nothing is shared until the results are collected.
func (s *Stitcher) loadTiles(jobs []placement) ([]loadedTile, error) {
	p := pool.NewWithResults[loadedTile]().
		WithMaxGoroutines(s.workers).
		WithErrors().
		WithFirstError()
	for _, job := range jobs {
		p.Go(func() (loadedTile, error) {
			return s.loadTile(job)
		})
	}
	return p.Wait()
}

func (s *Stitcher) loadTile(job placement) (loadedTile, error) {
	path, fallback, err := resolveTile(job.loc)
	if err != nil {
		return loadedTile{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return loadedTile{}, &IOError{Op: "read", Path: path, Err: err}
	}
	img, err := tile.DecodeStored(data)
	if err != nil {
		var derr *DecodeError
		if errors.As(err, &derr) {
			derr.Path = path
		}
		return loadedTile{}, err
	}

	entry := s.log.WithFields(log.Fields{"row": job.loc.Row, "col": job.loc.Col, "path": path})
	want := job.bounds.Size()
	if got := img.Rect.Size(); got != want {
		entry.WithFields(log.Fields{"from": got, "to": want}).Debug("resampling tile")
		img = imaging.Resize(img, want.X, want.Y, imaging.Lanczos)
	}
	if fallback {
		entry.Warn("processed tile missing, using original")
	}

	return loadedTile{
		row:      job.loc.Row,
		col:      job.loc.Col,
		origin:   job.bounds.Min,
		img:      img,
		path:     path,
		fallback: fallback,
	}, nil
}

// resolveTile walks the candidate list for a cell and returns the first
// existing file. fallback is true when it is not the processed location.
func resolveTile(loc tile.Location) (path string, fallback bool, err error) {
	candidates := tile.Candidates(loc.Path, loc.Row, loc.Col)
	for i, c := range candidates {
		info, err := os.Stat(c)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", false, &IOError{Op: "stat", Path: c, Err: err}
		}
		if info.Mode().IsRegular() {
			return c, i > 0, nil
		}
	}
	return "", false, &MissingTileError{Row: loc.Row, Col: loc.Col, Candidates: candidates}
}
