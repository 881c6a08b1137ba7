package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/bid-intel/internal/estimator"
)

var templateOut string

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Write the blank bulk pricing workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := writeTemplate(templateOut); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", templateOut)
		return nil
	},
}

func init() {
	templateCmd.Flags().StringVar(&templateOut, "out", "bulk-pricing-template.xlsx", "output path")
	rootCmd.AddCommand(templateCmd)
}

func writeTemplate(path string) error {
	data, err := estimator.New(nil, estimator.Options{}).Template()
	if err != nil {
		return err
	}
	return eris.Wrap(os.WriteFile(path, data, 0o644), "write template")
}
