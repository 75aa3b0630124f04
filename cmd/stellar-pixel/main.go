// Package main is the entry point for the Stellar Pixel artwork service.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/edumarques81/stellar-pixel/internal/config"
	"github.com/edumarques81/stellar-pixel/internal/logging"
	"github.com/edumarques81/stellar-pixel/internal/version"
)

var (
	// Global flags
	configPath string
	debug      bool

	cfg       *config.Config
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "stellar-pixel",
	Short: "Album art for 64x64 pixel displays",
	Long: `Stellar Pixel follows what is playing and turns its album art into a
64x64 image with matching text colors for a pixel display.

Art is looked up in order: the track's own art reference, Spotify, Discogs,
Last.fm, MusicBrainz / Cover Art Archive and finally AI image generation.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, warnings, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
		logCloser = logging.Setup(cfg.Log, debug)
		for _, w := range warnings {
			log.Warn().Msg(w)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	// no config needed
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.GetInfo().String())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd, resolveCmd, showCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
