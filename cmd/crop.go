package cmd

import (
	"fmt"
	"image"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/tilestitch/internal/stitch"
)

var cropCmd = &cobra.Command{
	Use:   "crop INPUT",
	Short: "Cut a rectangle out of an image",
	Long: `Crop loads INPUT upright, cuts the rectangle given by --x/--y/--width/--height
(clipped to the image) and writes it as cropped_{millis}.png into --out.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: bindFlags,
	RunE:    runCrop,
}

func init() {
	rootCmd.AddCommand(cropCmd)

	cropCmd.Flags().Int("x", 0, "left edge of the crop")
	cropCmd.Flags().Int("y", 0, "top edge of the crop")
	cropCmd.Flags().Int("width", 0, "crop width")
	cropCmd.Flags().Int("height", 0, "crop height")
	cropCmd.Flags().StringP("out", "o", ".", "output directory")
}

func runCrop(cmd *cobra.Command, args []string) error {
	w, h := viper.GetInt("width"), viper.GetInt("height")
	if err := requirePositive("width", w); err != nil {
		return err
	}
	if err := requirePositive("height", h); err != nil {
		return err
	}
	x, y := viper.GetInt("x"), viper.GetInt("y")
	rect := image.Rect(x, y, x+w, y+h)

	dir := viper.GetString("out")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	path, err := runJob(cmd.Context(), func(r *stitch.Runner) <-chan stitch.Outcome[string] {
		return r.Crop(cmd.Context(), args[0], rect, dir)
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
