package tile

import (
	"fmt"
	"path/filepath"
)

// SourceName is the upright copy of the input persisted next to the tiles
const SourceName = "original_source"

// fallbackExts is the order in which original tiles are looked up
var fallbackExts = []string{"png", "jpg", "jpeg"}

// ProcessedName is the slot reserved for the externally processed tile
func ProcessedName(row, col int, f Format) string {
	return fmt.Sprintf("tile_%d_%d.%s", row, col, f.Ext())
}

// OriginalName is the untouched crop written at split time
func OriginalName(row, col int, f Format) string {
	return fmt.Sprintf("orig_tile_%d_%d.%s", row, col, f.Ext())
}

// SourcePath is where split stores the upright source in dir
func SourcePath(dir string, f Format) string {
	return filepath.Join(dir, SourceName+"."+f.Ext())
}

// Candidates lists, in order of preference, the files that may hold the
// content of a tile: the processed location first, then the original crop
// under each known extension in the same directory.
func Candidates(processed string, row, col int) []string {
	dir := filepath.Dir(processed)
	out := make([]string, 0, len(fallbackExts)+1)
	out = append(out, processed)
	for _, ext := range fallbackExts {
		out = append(out, filepath.Join(dir, fmt.Sprintf("orig_tile_%d_%d.%s", row, col, ext)))
	}
	return out
}
