package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/systmms/credbroker/cmd/credbroker/commands"
	"github.com/systmms/credbroker/internal/config"
	"github.com/systmms/credbroker/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Global flags
	var (
		configFile     string
		noColor        bool
		debug          bool
		nonInteractive bool
	)

	// Create config placeholder
	cfg := &config.Config{}

	rootCmd := &cobra.Command{
		Use:   "credbroker",
		Short: "Secrets-rotation broker - Propagate PAM credentials to secret stores",
		Long: `credbroker watches a PAM vault for credential-change events and
propagates rotated credentials into third-party secret stores, with an
optional reverse flow pulling plugin-originated credentials back for
comparison.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize logger with parsed flags
			logger := logging.New(debug, noColor)

			// Update config with parsed values
			cfg.Path = configFile
			cfg.Logger = logger
			cfg.NonInteractive = nonInteractive
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "credbroker.yaml", "Config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "Non-interactive mode")

	// Add commands
	rootCmd.AddCommand(
		commands.NewServeCommand(cfg),
		commands.NewStartCommand(cfg),
		commands.NewStopCommand(cfg),
		commands.NewStatusCommand(cfg),
		commands.NewEventsCommand(cfg),
		commands.NewPollCommand(cfg),
		commands.NewPluginsCommand(cfg),
	)

	return rootCmd.Execute()
}
