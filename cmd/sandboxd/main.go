package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// Version is set during build
	Version = "dev"
	// GitCommit is set during build
	GitCommit = "none"
)

// rootCmd runs the server when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "sandboxd",
	Short: "Ephemeral git sandbox served over HTTP",
	Long: `sandboxd creates a throwaway working directory and runs a small
allow-list of commands (ls, mkdir, touch, cd, pwd, git) inside it on behalf
of an HTTP client.

Examples:
  sandboxd                      # serve on $PORT (default 3001)
  sandboxd serve --mode docker  # run commands in containers
  sandboxd reap                 # remove sandboxes left by crashed servers`,
	SilenceUsage: true,
	RunE:         runServe,
	Version:      fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to a YAML config file (default: $SANDBOX_CONFIG)")
	flags.String("port", "", "Port to listen on (overrides $PORT)")
	flags.String("mode", "", "Runner mode: host, docker or auto")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	flags.String("log-format", "", "Log format: text or json")

	rootCmd.AddCommand(serveCmd, reapCmd, versionCmd)
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "sandboxd %s (commit: %s)\n", Version, GitCommit)
	},
}
