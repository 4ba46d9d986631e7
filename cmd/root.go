package cmd

import (
	"github.com/spf13/cobra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "console",
	Short: "Operator console for the sand booking automation backend",
	Long:  `Runs the operator console service: dependent reference-data resolution, booking form handling and automation session tracking against the remote booking Gateway`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", ".", "path to the directory holding config.yaml")
}
