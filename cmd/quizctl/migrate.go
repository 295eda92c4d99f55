package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/quizdesk/internal/store"
)

type migrateFunc func(cmd *cobra.Command, mg *store.Migrator, args []string) error

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(
		migrateSubcommand("up", "Apply all pending migrations", cobra.NoArgs,
			func(_ *cobra.Command, mg *store.Migrator, _ []string) error {
				return mg.Up()
			}),
		migrateSubcommand("down [STEPS]", "Roll back migrations (default 1)", cobra.MaximumNArgs(1),
			func(_ *cobra.Command, mg *store.Migrator, args []string) error {
				steps, err := parseSteps(args)
				if err != nil {
					return err
				}
				return mg.Down(steps)
			}),
		migrateSubcommand("version", "Print the applied schema version", cobra.NoArgs,
			func(cmd *cobra.Command, mg *store.Migrator, _ []string) error {
				v, dirty, err := mg.Version()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", v, dirty)
				return nil
			}),
	)
	return cmd
}

func migrateSubcommand(use, short string, args cobra.PositionalArgs, run migrateFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, a []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			mg, err := store.NewMigrator(cfg.Database.URL)
			if err != nil {
				return err
			}
			defer mg.Close()
			return run(cmd, mg, a)
		},
	}
}

func parseSteps(args []string) (int, error) {
	if len(args) == 0 {
		return 1, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("steps must be a positive number, got %q", args[0])
	}
	return n, nil
}
