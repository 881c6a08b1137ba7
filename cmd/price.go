package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/bid-intel/internal/estimator"
	"github.com/sells-group/bid-intel/internal/pricing"
)

var (
	priceFile      string
	priceOut       string
	priceDistricts string
	priceYearStart int
	priceYearEnd   int
)

var priceCmd = &cobra.Command{
	Use:   "price",
	Short: "Price a local item-list workbook against the bid history",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("price"); err != nil {
			return err
		}
		ctx := cmd.Context()

		data, err := os.ReadFile(priceFile)
		if err != nil {
			return eris.Wrap(err, "read workbook")
		}

		env, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		engine := pricing.New(env.Querier, pricing.Options{
			WinningBidsOnly: cfg.Pricing.WinningBidsOnly,
			MaxResults:      cfg.Pricing.MaxResults,
		})
		est := estimator.New(engine, estimator.Options{
			MaxItems:    cfg.Estimator.MaxItems,
			Concurrency: cfg.Estimator.Concurrency,
		})

		res, err := est.PriceWorkbook(ctx, data, estimator.Request{
			Districts: pricing.SplitList(priceDistricts),
			YearStart: priceYearStart,
			YearEnd:   priceYearEnd,
		})
		if err != nil {
			return err
		}

		out := priceOut
		if out == "" {
			out = pricedPath(priceFile)
		}
		if err := os.WriteFile(out, res.Workbook, 0o644); err != nil {
			return eris.Wrap(err, "write priced workbook")
		}

		printSummary(cmd.OutOrStdout(), res.Summary, out)
		return nil
	},
}

func init() {
	priceCmd.Flags().StringVar(&priceFile, "file", "", "path to the item-list .xlsx (required)")
	priceCmd.Flags().StringVar(&priceOut, "out", "", "output path (default <file>-priced.xlsx)")
	priceCmd.Flags().StringVar(&priceDistricts, "districts", "", "comma-separated districts to price from")
	priceCmd.Flags().IntVar(&priceYearStart, "year-start", 0, "earliest letting year")
	priceCmd.Flags().IntVar(&priceYearEnd, "year-end", 0, "latest letting year")
	_ = priceCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(priceCmd)
}

// pricedPath derives the default output name next to the input.
func pricedPath(in string) string {
	ext := filepath.Ext(in)
	return strings.TrimSuffix(in, ext) + "-priced.xlsx"
}

func printSummary(w io.Writer, s estimator.Summary, out string) {
	fmt.Fprintf(w, "run:        %s\n", s.RunID)
	fmt.Fprintf(w, "requested:  %d\n", s.ItemsRequested)
	fmt.Fprintf(w, "priced:     %d\n", s.ItemsPriced)
	fmt.Fprintf(w, "not found:  %d\n", s.ItemsNotFound)
	fmt.Fprintf(w, "total:      %s\n", estimator.FormatCurrency(s.TotalValue))
	fmt.Fprintf(w, "written to: %s\n", out)
}
