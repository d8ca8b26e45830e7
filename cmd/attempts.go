package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/mrms-extract/internal/store"
)

var (
	attemptsSource   string
	attemptsStrategy string
	attemptsStatus   string
	attemptsLimit    int
)

var attemptsCmd = &cobra.Command{
	Use:   "attempts",
	Short: "List recorded extraction attempts",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		rows, err := env.Store.ListAttempts(cmd.Context(), store.AttemptFilter{
			SourceID: attemptsSource,
			Strategy: attemptsStrategy,
			Status:   attemptsStatus,
			Limit:    attemptsLimit,
		})
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CREATED\tSOURCE\tSTRATEGY\tSTATUS\tLINES\tMATCHED\tELAPSED\tREASON")
		for _, a := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
				a.CreatedAt.Format("2006-01-02 15:04:05"),
				truncate(a.SourceID, 12), a.Strategy, a.Status,
				a.LinesScanned, a.Matched, a.Elapsed, truncate(a.FailReason, 48),
			)
		}
		return tw.Flush()
	},
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func init() {
	attemptsCmd.Flags().StringVar(&attemptsSource, "source", "", "filter by source identity")
	attemptsCmd.Flags().StringVar(&attemptsStrategy, "strategy", "", "filter by strategy")
	attemptsCmd.Flags().StringVar(&attemptsStatus, "status", "", "filter by status")
	attemptsCmd.Flags().IntVar(&attemptsLimit, "limit", 50, "max rows")
	rootCmd.AddCommand(attemptsCmd)
}
