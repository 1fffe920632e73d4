package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/claimcheck/internal/monitoring"
)

var metricsLimit int

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Print aggregate claim decision metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		snapshot, err := monitoring.NewCollector(env.Store).Collect(ctx, metricsLimit)
		if err != nil {
			return err
		}

		return printJSON(snapshot)
	},
}

func init() {
	metricsCmd.Flags().IntVar(&metricsLimit, "limit", 0, "max number of claims to aggregate (0 = all)")
	rootCmd.AddCommand(metricsCmd)
}
