// Package cli provides the Cobra-based commands of the buildhooks tool:
// publish (rewrite catalog entries and commit metadata), review (run the
// validation battery and report a review status), validate (run the
// battery offline and print the diagnostics) and version.
package cli

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var log zerolog.Logger

var rootCmd = &cobra.Command{
	Use:   "buildhooks",
	Short: "flat-manager publish and review hooks",
	Long: `buildhooks runs as a hook inside flat-manager's build pipeline.

The publish hook rewrites each ref's appstream catalog entry with the
app's current verification, pricing and build-log facts. The review
hook validates a build's metadata and binaries, asks the moderation
backend for a verdict, and reports the outcome back to flat-manager.

Both hooks operate on the build repository in the current directory
unless --repo is given.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := zerolog.InfoLevel
		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			level = zerolog.DebugLevel
		}
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			Level(level).
			With().Timestamp().Logger()
	},
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		log.Error().Err(err).Msg("command failed")
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the JSON config file")
	rootCmd.PersistentFlags().String("repo", ".", "Path to the build repository")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
}
