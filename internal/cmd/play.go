package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"camclip/internal/vision"
)

var playCmd = &cobra.Command{
	Use:   "play [path]",
	Short: "Play a recorded clip or every clip of a directory",
	Long: `Play opens a window and plays the given clip. When path is a directory,
every .mp4 clip in it is played in name order, which is recording order.
Without a path the configured output directory is played.

Press q or Esc to stop.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	path := cfg.OutputDir
	if len(args) == 1 {
		path = args[0]
	}
	return vision.PlayPath(ctx, path, log)
}
