package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "drivelocker",
	Short: "DriveLocker is a personal file vault",
	Long: `A personal file vault with token authentication, email verification
and passkey-protected file storage.`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
