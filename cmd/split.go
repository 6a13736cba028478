package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/tilestitch/internal/stitch"
	"github.com/kiesman99/tilestitch/internal/stitcher"
)

var splitCmd = &cobra.Command{
	Use:   "split INPUT",
	Short: "Split an image into an overlapping grid of tiles",
	Long: `Split loads INPUT (honouring EXIF orientation), stores an upright copy as
original_source.{png,jpg} in the output directory and writes one
orig_tile_{row}_{col} file per grid cell. The processed result of each tile is
expected at tile_{row}_{col} in the same directory.

A manifest.yaml is written next to the tiles so "tilestitch merge --session DIR"
can reassemble them without repeating the grid parameters.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: bindFlags,
	RunE:    runSplit,
}

func init() {
	rootCmd.AddCommand(splitCmd)

	splitCmd.Flags().Int("rows", 2, "number of tile rows")
	splitCmd.Flags().Int("cols", 2, "number of tile columns")
	splitCmd.Flags().Float64("overlap-x", 0.1, "horizontal overlap as a fraction of the tile width")
	splitCmd.Flags().Float64("overlap-y", 0.1, "vertical overlap as a fraction of the tile height")
	splitCmd.Flags().Bool("jpeg", false, "write tiles as JPEG instead of PNG")
	splitCmd.Flags().StringP("out", "o", "", "output directory (created if missing, default: new temp dir)")
	splitCmd.Flags().Bool("no-manifest", false, "do not write manifest.yaml")
}

func runSplit(cmd *cobra.Command, args []string) error {
	opts := stitcher.SplitOptions{
		Rows:       viper.GetInt("rows"),
		Cols:       viper.GetInt("cols"),
		OverlapX:   viper.GetFloat64("overlap-x"),
		OverlapY:   viper.GetFloat64("overlap-y"),
		PreferJPEG: viper.GetBool("jpeg"),
	}
	if err := requirePositive("rows", opts.Rows); err != nil {
		return err
	}
	if err := requirePositive("cols", opts.Cols); err != nil {
		return err
	}

	dir := viper.GetString("out")
	if dir == "" {
		tmp, err := os.MkdirTemp("", "tilestitch-")
		if err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
		dir = tmp
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	res, err := runJob(cmd.Context(), func(r *stitch.Runner) <-chan stitch.Outcome[*stitcher.SplitResult] {
		return r.Split(cmd.Context(), args[0], dir, opts)
	})
	if err != nil {
		return err
	}

	if !viper.GetBool("no-manifest") {
		m, err := stitch.NewManifest(res, opts)
		if err != nil {
			return err
		}
		if err := m.Write(dir); err != nil {
			return err
		}
		log.WithField("dir", dir).Debug("manifest written")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Source: %s (%dx%d)\n", res.SourcePath, res.Width, res.Height)
	fmt.Fprintf(out, "Tiles:  %d in %s\n\n", len(res.Tiles), dir)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tCOL\tX\tY\tWIDTH\tHEIGHT\tORIGINAL")
	for _, t := range res.Tiles {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%d\t%s\n", t.Row, t.Col, t.X, t.Y, t.Width, t.Height, t.OriginalPath)
	}
	return tw.Flush()
}
