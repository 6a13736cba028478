package stitch

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"

	"github.com/kiesman99/tilestitch/internal/stitcher"
	"github.com/kiesman99/tilestitch/pkg/tile"
)

// ManifestName is the session file written beside the tiles
const ManifestName = "manifest.yaml"

// Manifest records a split so a later merge needs only the directory
type Manifest struct {
	Width    int            `yaml:"width"`
	Height   int            `yaml:"height"`
	Rows     int            `yaml:"rows"`
	Cols     int            `yaml:"cols"`
	OverlapX float64        `yaml:"overlap_x"`
	OverlapY float64        `yaml:"overlap_y"`
	Format   string         `yaml:"format"`
	Source   string         `yaml:"source"`
	Tiles    []ManifestTile `yaml:"tiles"`
}

// ManifestTile is a descriptor plus the BLAKE3 digest of its original crop
type ManifestTile struct {
	tile.Descriptor `yaml:",inline"`
	Checksum        string `yaml:"checksum"`
}

// NewManifest describes res, hashing every original tile
func NewManifest(res *stitcher.SplitResult, opts stitcher.SplitOptions) (*Manifest, error) {
	m := &Manifest{
		Width:    res.Width,
		Height:   res.Height,
		Rows:     opts.Rows,
		Cols:     opts.Cols,
		OverlapX: opts.OverlapX,
		OverlapY: opts.OverlapY,
		Format:   opts.Format().String(),
		Source:   res.SourcePath,
		Tiles:    make([]ManifestTile, 0, len(res.Tiles)),
	}
	for _, d := range res.Tiles {
		sum, err := checksum(d.OriginalPath)
		if err != nil {
			return nil, err
		}
		m.Tiles = append(m.Tiles, ManifestTile{Descriptor: d, Checksum: sum})
	}
	return m, nil
}

// Write stores the manifest in dir
func (m *Manifest) Write(dir string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	path := filepath.Join(dir, ManifestName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &stitcher.IOError{Op: "write", Path: path, Err: err}
	}
	return nil
}

// ReadManifest loads the manifest from dir
func ReadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &stitcher.IOError{Op: "read", Path: path, Err: err}
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &m, nil
}

// MergeRequest builds the merge of every tile in the manifest
func (m *Manifest) MergeRequest(key tile.ChromaKey, removeBG bool) stitcher.MergeRequest {
	locs := make([]tile.Location, len(m.Tiles))
	for i, t := range m.Tiles {
		locs[i] = tile.Location{Row: t.Row, Col: t.Col, Path: t.Path}
	}
	return stitcher.MergeRequest{
		Tiles:            locs,
		Width:            m.Width,
		Height:           m.Height,
		OverlapX:         m.OverlapX,
		OverlapY:         m.OverlapY,
		Key:              key,
		RemoveBackground: removeBG,
	}
}

// Unprocessed lists tiles whose processed slot is empty or still holds
// exactly the original crop.
func (m *Manifest) Unprocessed() ([]tile.Location, error) {
	var out []tile.Location
	for _, t := range m.Tiles {
		sum, err := checksum(t.Path)
		if errors.Is(err, fs.ErrNotExist) {
			out = append(out, tile.Location{Row: t.Row, Col: t.Col, Path: t.Path})
			continue
		}
		if err != nil {
			return nil, err
		}
		if sum == t.Checksum {
			out = append(out, tile.Location{Row: t.Row, Col: t.Col, Path: t.Path})
		}
	}
	return out, nil
}

func checksum(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &stitcher.IOError{Op: "read", Path: path, Err: err}
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
