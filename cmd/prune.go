package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/bid-intel/internal/account"
)

var pruneDays int

var pruneCmd = &cobra.Command{
	Use:   "prune-usage",
	Short: "Delete daily search counters older than the retention window",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}
		ctx := cmd.Context()

		env, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		days := pruneDays
		if days == 0 {
			days = cfg.Usage.RetentionDays
		}
		n, err := account.New(env.Querier).PruneUsage(ctx, days)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d usage rows older than %d days\n", n, days)
		return nil
	},
}

func init() {
	pruneCmd.Flags().IntVar(&pruneDays, "days", 0, "retention in days (default from config)")
	rootCmd.AddCommand(pruneCmd)
}
