package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"camclip/internal/vision"
)

var camerasCmd = &cobra.Command{
	Use:   "cameras",
	Short: "Print the index of the default camera",
	Long: `Cameras probes device indices 0 through 9 and prints the first one that
opens. record uses the same probe when camera_id is -1.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := vision.DefaultCameraID()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(camerasCmd)
}
