/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/venuely/apiserver/config"
	"github.com/venuely/apiserver/internal/logging"
)

var logLevel string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "venuely",
	Short: "venuely API server and command-line clients",
	Long: `venuely runs the platform API server and provides command-line
clients for customers and administrators. Usage:

	venuely server
	venuely login
	venuely admin users list
`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg := config.LoadConfig()
		level := cfg.LogLevel
		if logLevel != "" {
			level = logLevel
		}
		logger := logging.Setup(level, cfg.Env)
		cmd.SetContext(logger.WithContext(cmd.Context()))
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
}
