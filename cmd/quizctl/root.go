package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/quizdesk/internal/config"
	"github.com/JonMunkholm/quizdesk/internal/logging"
)

type rootOptions struct {
	envFile  string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "quizctl",
		Short:         "Validate and import quiz question spreadsheets",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.envFile != "" {
				if err := godotenv.Overload(opts.envFile); err != nil {
					slog.Debug("env file not loaded", "path", opts.envFile, "error", err)
				}
			}
			logging.Setup(opts.logLevel, "text")
		},
	}

	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "environment file to load before reading configuration")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	cmd.AddCommand(
		newValidateCmd(),
		newImportCmd(),
		newMigrateCmd(),
		newDigestCmd(),
	)
	return cmd
}

// loadConfig reads the configuration for commands that touch the database.
// The CLI serves no HTTP, so API keys are not required.
func loadConfig() (*config.Config, error) {
	return config.LoadWith(map[string]string{"REQUIRE_API_KEY": "false"})
}
