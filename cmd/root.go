/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/bookfinder/apiserver/internal/logging"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bookfinder",
	Short: "BookFinder account API",
	Long: `BookFinder account API: registration, login and OTP password recovery.

	bookfinder migrate up
	bookfinder server
	bookfinder worker
`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger logs text in development and JSON elsewhere.
func newLogger() logging.Logger {
	return logging.New(os.Stdout, os.Getenv("ENV") == "dev")
}
