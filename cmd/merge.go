package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/tilestitch/internal/stitch"
	"github.com/kiesman99/tilestitch/internal/stitcher"
	"github.com/kiesman99/tilestitch/pkg/tile"
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge processed tiles back into one image",
	Long: `Merge reassembles a tile grid into a single image, feather-blending the
overlap bands. Cells without a processed tile fall back to the original crop
written by split.

The grid is taken either from a split session directory (--session) or from
explicit --width/--height/--overlap-x/--overlap-y and one --tile per cell.

Without --remove-bg the result is JPEG; with it, PNG with the key color made
transparent. A .png or .jpg output name overrides that choice.

Examples:
  tilestitch merge --session work/ -o result.jpg
  tilestitch merge --width 1000 --height 1000 --tile 0,0,a.png --tile 0,1,b.png -o out.png`,
	Args:    cobra.NoArgs,
	PreRunE: bindFlags,
	RunE:    runMerge,
}

func init() {
	rootCmd.AddCommand(mergeCmd)

	mergeCmd.Flags().String("session", "", "split output directory containing manifest.yaml")
	mergeCmd.Flags().Int("width", 0, "original image width")
	mergeCmd.Flags().Int("height", 0, "original image height")
	mergeCmd.Flags().Float64("overlap-x", 0.1, "horizontal overlap ratio used at split time")
	mergeCmd.Flags().Float64("overlap-y", 0.1, "vertical overlap ratio used at split time")
	mergeCmd.Flags().StringArray("tile", nil, "tile as 'row,col,path' (repeatable)")
	mergeCmd.Flags().String("key-color", string(tile.KeyWhite), "chroma key color (white|black|red|blue|green)")
	mergeCmd.Flags().Uint8("tolerance", 10, "chroma key tolerance")
	mergeCmd.Flags().Bool("remove-bg", false, "treat the key color as background and make it transparent")
	mergeCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	mergeCmd.Flags().Bool("data-url", false, "write the result as a data: URL instead of raw bytes")
}

func runMerge(cmd *cobra.Command, args []string) error {
	tolerance, err := toleranceSetting()
	if err != nil {
		return err
	}
	key := tile.NewChromaKey(viper.GetString("key-color"), tolerance)
	removeBG := viper.GetBool("remove-bg")

	var req stitcher.MergeRequest
	if dir := viper.GetString("session"); dir != "" {
		m, err := stitch.ReadManifest(dir)
		if err != nil {
			return err
		}
		req = m.MergeRequest(key, removeBG)

		pending, err := m.Unprocessed()
		if err != nil {
			return err
		}
		for _, p := range pending {
			log.WithFields(log.Fields{"row": p.Row, "col": p.Col}).Info("tile not processed yet")
		}
	} else {
		specs, err := cmd.Flags().GetStringArray("tile")
		if err != nil {
			return err
		}
		tiles, err := parseTiles(specs)
		if err != nil {
			return err
		}
		if err := requirePositive("width", viper.GetInt("width")); err != nil {
			return err
		}
		if err := requirePositive("height", viper.GetInt("height")); err != nil {
			return err
		}
		req = stitcher.MergeRequest{
			Tiles:            tiles,
			Width:            viper.GetInt("width"),
			Height:           viper.GetInt("height"),
			OverlapX:         viper.GetFloat64("overlap-x"),
			OverlapY:         viper.GetFloat64("overlap-y"),
			Key:              key,
			RemoveBackground: removeBG,
		}
	}

	res, err := runJob(cmd.Context(), func(r *stitch.Runner) <-chan stitch.Outcome[*stitcher.MergeResult] {
		return r.Merge(cmd.Context(), req)
	})
	if err != nil {
		return err
	}

	output := viper.GetString("output")
	if output == "" {
		if viper.GetBool("data-url") {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), res.DataURL())
			return err
		}
		if isTerminal(cmd.OutOrStdout()) {
			return fmt.Errorf("refusing to write binary image data to a terminal, use --output or --data-url")
		}
		_, err := cmd.OutOrStdout().Write(res.Data)
		return err
	}

	if viper.GetBool("data-url") {
		return os.WriteFile(output, []byte(res.DataURL()), 0o644)
	}
	if want := outputFormat(output, res.Format); want != res.Format {
		log.WithFields(log.Fields{"from": res.Format, "to": want}).Debug("re-encoding for output extension")
		return tile.Save(output, res.Image, want)
	}
	return os.WriteFile(output, res.Data, 0o644)
}

// toleranceSetting reads the tolerance from flags, config or environment.
// The flag is bounded by its type; the other sources are not.
func toleranceSetting() (uint8, error) {
	v := viper.GetInt("tolerance")
	if v < 0 || v > 255 {
		return 0, fmt.Errorf("tolerance must be between 0 and 255 (got %d)", v)
	}
	return uint8(v), nil
}

// outputFormat honours an explicit .png/.jpg extension and keeps def otherwise
func outputFormat(path string, def tile.Format) tile.Format {
	ext := strings.ToLower(path)
	switch {
	case strings.HasSuffix(ext, ".png"):
		return tile.FormatPNG
	case strings.HasSuffix(ext, ".jpg"), strings.HasSuffix(ext, ".jpeg"):
		return tile.FormatJPEG
	}
	return def
}

// parseTiles parses "row,col,path" triples; the path may itself contain commas
func parseTiles(specs []string) ([]tile.Location, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("either --session or at least one --tile is required")
	}
	out := make([]tile.Location, 0, len(specs))
	for _, s := range specs {
		parts := strings.SplitN(s, ",", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("tile %q must be in format 'row,col,path'", s)
		}
		row, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid row in tile %q: %v", s, err)
		}
		col, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid col in tile %q: %v", s, err)
		}
		out = append(out, tile.Location{Row: row, Col: col, Path: parts[2]})
	}
	return out, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
