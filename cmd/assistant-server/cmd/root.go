// Package cmd implements the assistant-server command-line surface on top
// of spf13/cobra, grounded on the teacher's cmd/root.go: a package-level
// rootCmd, an init() wiring persistent flags and subcommands, and an
// Execute() entry point for main.go.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags
// "-X github.com/codeforge/assistant/cmd/assistant-server/cmd.Version=v1.0.0".
var Version = "dev"

var (
	envFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "assistant-server",
	Short: "assistant-server — AI coding-assistant orchestration server",
	Long: "assistant-server runs the multi-stage coding-assistant workflow engine: " +
		"a Supervisor/Planner/Coder/Reviewer/QAGate/SecurityGate/Refiner/Aggregator " +
		"pipeline, its HTTP/SSE/WebSocket surface, and the durable session and " +
		"checkpoint stores behind it.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "path to a .env file (default: ./.env or $ASSISTANT_ENV_FILE)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("assistant-server %s\n", Version)
		},
	}
}

func resolveEnvFile() string {
	if envFile != "" {
		return envFile
	}
	if v := os.Getenv("ASSISTANT_ENV_FILE"); v != "" {
		return v
	}
	return ".env"
}

// Execute runs the root cobra command, exiting the process with a non-zero
// status on failure. Subcommands that need a specific exit code (spec.md
// §6: 0 clean shutdown, 2 config error, 3 persistent storage unavailable)
// call os.Exit directly before returning, bypassing this default.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
