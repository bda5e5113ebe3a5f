package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ByteMirror/cogs/cmd"
	"github.com/ByteMirror/cogs/log"
)

var version = "0.3.0"

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "cogs",
	Short: "Cogs - bounded worker pools and lock-free primitives",
	PersistentPreRunE: func(c *cobra.Command, args []string) error {
		return log.Initialize(logLevel, nil)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(c *cobra.Command, args []string) {
		fmt.Printf("cogs version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(cmd.BenchCommand())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
