package main

import (
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <claim-id>",
	Short: "Retrieve a claim record with its audit trail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		rec, err := env.Pipeline.Fetch(ctx, args[0])
		if err != nil {
			return err
		}

		return printJSON(rec)
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
