package cmd

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/crmupdater/internal/config"
	"github.com/teemow/crmupdater/internal/logging"
)

// rootCmd represents the base command for the crmupdater application
var rootCmd = &cobra.Command{
	Use:   "crmupdater",
	Short: "Registers companies named in forwarded emails with the Affinity CRM",
	Long: `crmupdater watches a Gmail inbox through Pub/Sub push notifications.
When the latest message says "upload to affinity", the companies named on
that line are added to the Affinity list, with the message's notes and its
attachments (relayed to Google Drive) attached.

It can run as:
  - A webhook server receiving Pub/Sub pushes (default)
  - An MCP (Model Context Protocol) server for AI assistants
  - One-off commands to renew the watch or process a single email`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// Global flags.
var (
	configPath string
	debugMode  bool
	logFormat  string
)

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "crmupdater version %s\n" .Version}}`)

	// If no subcommand is provided, run the webhook server by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file (default: $"+config.EnvConfigPath+")")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", logging.FormatJSON, "Log format: json or text")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newProcessCmd())
	rootCmd.AddCommand(newMCPCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// newLogger writes to w, which must be stderr for the stdio MCP transport.
func newLogger(w io.Writer) *slog.Logger {
	logger := logging.NewLogger(w, logFormat, debugMode)
	slog.SetDefault(logger)
	return logger
}
