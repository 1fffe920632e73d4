package main

import (
	"github.com/spf13/cobra"
)

var overrideReason string

var overrideCmd = &cobra.Command{
	Use:   "override <claim-id>",
	Short: "Override a rejected claim to approved",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		rec, err := env.Pipeline.Override(ctx, args[0], overrideReason)
		if err != nil {
			return err
		}

		return printJSON(rec)
	},
}

func init() {
	overrideCmd.Flags().StringVar(&overrideReason, "reason", "", "why the decision is being overridden")
	overrideCmd.MarkFlagRequired("reason")
	rootCmd.AddCommand(overrideCmd)
}
