package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/tilestitch/internal/stitch"
	"github.com/kiesman99/tilestitch/internal/stitcher"
)

// version is reported by the server health endpoint
const version = "1.0.0"

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tilestitch",
	Short: "Split images into overlapping tiles and stitch processed tiles back together",
	Long: `tilestitch cuts a large image into an overlapping grid of tiles so each tile
can be processed on its own (for example by an external upscaler), then merges
the processed tiles back into one seamless image.

Overlap bands are feather-blended. With --remove-bg a chroma key color is
treated as background: it never overwrites foreground in the seams and is made
transparent in the result.

Examples:
  # Split into a 3x3 grid with 10% overlap
  tilestitch split photo.jpg --rows 3 --cols 3 --overlap-x 0.1 --overlap-y 0.1 --out work/

  # Merge whatever is in the session directory (processed or original tiles)
  tilestitch merge --session work/ -o result.jpg

  # Merge with white background removal
  tilestitch merge --session work/ --remove-bg --key-color white --tolerance 10 -o result.png

  # Start HTTP server
  tilestitch serve --port 8080`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tilestitch.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text|json)")
	rootCmd.PersistentFlags().Int("workers", 0, "worker goroutines for tile I/O (default: number of CPUs)")

	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("workers", rootCmd.PersistentFlags().Lookup("workers"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".tilestitch" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".tilestitch")
	}

	viper.SetEnvPrefix("tilestitch")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	configErr := viper.ReadInConfig()

	setupLogging()

	// If a config file is found, read it in.
	if configErr == nil {
		log.WithField("file", viper.ConfigFileUsed()).Debug("using config file")
	}
}

func setupLogging() {
	log.SetOutput(os.Stderr)
	if viper.GetString("log.format") == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level, err := log.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		log.WithError(err).Warn("unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

// bindFlags binds the running command's local flags to viper. Binding at
// run time keeps commands that share flag names from shadowing each other.
func bindFlags(cmd *cobra.Command, _ []string) error {
	return viper.BindPFlags(cmd.LocalFlags())
}

func newStitcher() *stitcher.Stitcher {
	return stitcher.New(stitcher.Config{
		Workers: viper.GetInt("workers"),
		Logger:  log.StandardLogger(),
	})
}

// runJob runs one engine job on a single-worker runner and waits for it
func runJob[T any](ctx context.Context, submit func(r *stitch.Runner) <-chan stitch.Outcome[T]) (T, error) {
	runner := stitch.NewRunner(newStitcher(), 1, log.StandardLogger())
	defer runner.Close()
	return stitch.Await(ctx, submit(runner))
}

func requirePositive(name string, v int) error {
	if v <= 0 {
		return fmt.Errorf("--%s must be greater than zero", name)
	}
	return nil
}
