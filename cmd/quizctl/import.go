package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/quizdesk/internal/app"
	"github.com/JonMunkholm/quizdesk/internal/core"
)

type importOptions struct {
	failedOut string
	dryRun    bool
}

func newImportCmd() *cobra.Command {
	opts := &importOptions{}

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Validate a question file and commit its valid rows",
		Long: `Import decodes and validates FILE, then commits every valid row in its
own transaction. Rows that fail validation or storage are reported and can
be written to a CSV with --failed-out for correction and a second import.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeApp(a, cfg.Server.ShutdownTimeout)

			b, err := loadFile(ctx, a.Imports, args[0])
			if err != nil {
				return userError(err)
			}
			out := cmd.OutOrStdout()
			printBatch(out, b)
			if opts.dryRun {
				return nil
			}

			outcome, err := a.Imports.CommitBatch(ctx, b)
			if err != nil {
				return userError(err)
			}
			fmt.Fprintf(out, "committed %d questions, %d rows unresolved (%s)\n",
				outcome.SuccessCount, outcome.FailureCount, outcome.Duration.Round(time.Millisecond))

			if restaged := outcome.Restage(b); restaged != nil {
				printBatch(out, restaged)
				if opts.failedOut != "" {
					if err := writeFailingCSV(opts.failedOut, restaged); err != nil {
						return err
					}
					fmt.Fprintf(out, "unresolved rows written to %s\n", opts.failedOut)
				}
				return errRowsFailing
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.failedOut, "failed-out", "", "write unresolved rows to this CSV file")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "validate only, do not commit")
	return cmd
}

// writeFailingCSV writes the rows of b in their original columns, so the
// file can be corrected and imported again.
func writeFailingCSV(path string, b *core.Batch) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Write(append(append([]string(nil), b.Headers...), "_source_row"))
	for _, row := range b.Rows {
		rec := make([]string, 0, len(b.Headers)+1)
		for _, h := range b.Headers {
			rec = append(rec, row.Record.Text(h))
		}
		w.Write(append(rec, strconv.Itoa(row.Index)))
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

// closeApp waits for queued notifications before exiting.
func closeApp(a *app.App, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "warning:", err)
	}
}
