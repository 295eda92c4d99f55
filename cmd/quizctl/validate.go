package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/quizdesk/internal/core"
)

// errRowsFailing makes the command exit non-zero when rows need correction.
var errRowsFailing = errors.New("some rows failed validation")

type validateOptions struct {
	charset  string
	maxBytes int64
	asJSON   bool
}

func newValidateCmd() *cobra.Command {
	opts := &validateOptions{}

	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Decode and validate a question file without storing anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := core.NewService(core.ServiceConfig{
				MaxBytes:        opts.maxBytes,
				MaxConcurrent:   1,
				MaxWait:         core.DefaultMaxWait,
				FallbackCharset: opts.charset,
			}, nil, nil)
			if err != nil {
				return err
			}

			b, err := loadFile(cmd.Context(), svc, args[0])
			if err != nil {
				return userError(err)
			}

			out := cmd.OutOrStdout()
			if opts.asJSON {
				if err := writeFailingJSON(out, b); err != nil {
					return err
				}
			} else {
				printBatch(out, b)
			}

			if len(b.Failing()) > 0 {
				return errRowsFailing
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.charset, "charset", "", "fallback charset for non UTF-8 text files (windows-1252, iso-8859-1)")
	cmd.Flags().Int64Var(&opts.maxBytes, "max-bytes", 10<<20, "largest accepted file")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print failing rows as JSON")
	return cmd
}

// loadFile reads path and runs it through intake, decoding and validation.
// Local files carry no content type; the extension decides the kind.
func loadFile(ctx context.Context, svc *core.Service, path string) (*core.Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return svc.Load(ctx, filepath.Base(path), "", data)
}

func printBatch(w io.Writer, b *core.Batch) {
	failing := b.Failing()
	fmt.Fprintf(w, "%s: %d rows, %d valid, %d failing\n", b.FileName, len(b.Rows), b.ValidCount(), len(failing))
	if len(failing) == 0 {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tFIELD\tPROBLEM")
	for _, row := range failing {
		for _, name := range row.Errors.Names() {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", row.Index, name, row.Errors[name])
		}
		if row.RowError != "" {
			fmt.Fprintf(tw, "%d\t-\t%s\n", row.Index, row.RowError)
		}
	}
	tw.Flush()
}

type failingRow struct {
	Index  int               `json:"row_index"`
	Values map[string]string `json:"values"`
	Errors core.FieldErrors  `json:"errors,omitempty"`
	Reason string            `json:"reason,omitempty"`
}

func writeFailingJSON(w io.Writer, b *core.Batch) error {
	rows := []failingRow{}
	for _, r := range b.Failing() {
		rows = append(rows, failingRow{Index: r.Index, Values: r.Record.Texts(), Errors: r.Errors, Reason: r.RowError})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

// userError renders err with its support code.
func userError(err error) error {
	msg := core.MapError(err)
	if msg.Code == "ERR000" {
		return err
	}
	return fmt.Errorf("%s (%s): %s", msg.Message, msg.Code, strings.TrimSpace(msg.Action))
}
