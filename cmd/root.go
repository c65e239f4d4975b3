package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/pulse/internal/config"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "pulse",
	Short: "Emotional-signal extraction and well-being reporting pipeline",
	Long: `Pulse extracts emotional signals from employee check-in conversations,
rolls them up per department and company every day, generates periodic
well-being reports and raises risk alerts to trusted contacts.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
}
