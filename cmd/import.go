package main

import (
	"fmt"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/bid-intel/internal/ingest"
	"github.com/sells-group/bid-intel/internal/sheet"
)

var (
	importFile      string
	importBatchSize int
	importSheet     string
	importSkipRows  int
	importDelimiter string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a bid tabulation (xlsx or csv) into the store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("import"); err != nil {
			return err
		}
		delim, err := parseDelimiter(importDelimiter)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		env, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate")
		}

		rep, err := ingest.Import(ctx, env.Store, importFile, ingest.Options{
			BatchSize: importBatchSize,
			Read: sheet.Options{
				SheetName: importSheet,
				SkipRows:  importSkipRows,
				Delimiter: delim,
			},
		})
		if err != nil {
			return eris.Wrap(err, "import")
		}

		fmt.Fprintf(cmd.OutOrStdout(), "rows: %d  parsed: %d  skipped: %d  duplicates: %d  unpriced: %d  written: %d\n",
			rep.Rows, rep.Parsed, rep.Skipped, rep.Duplicates, rep.Unpriced, rep.Written)
		return nil
	},
}

// parseDelimiter accepts a single character or "tab".
func parseDelimiter(s string) (rune, error) {
	switch s {
	case "":
		return 0, nil
	case "tab", `\t`:
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, eris.Errorf("--delimiter must be a single character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path to an .xlsx or .csv bid tabulation (required)")
	importCmd.Flags().IntVar(&importBatchSize, "batch-size", 1000, "rows per write")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "xlsx sheet name (default first sheet)")
	importCmd.Flags().IntVar(&importSkipRows, "skip-rows", 0, "leading rows to drop before the header")
	importCmd.Flags().StringVar(&importDelimiter, "delimiter", "", `csv field separator, one character or "tab" (default ",")`)
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
