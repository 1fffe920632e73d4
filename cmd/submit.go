package main

import (
	"encoding/json"
	"os"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/claimcheck/internal/pipeline"
)

var (
	submitClaimID    string
	submitCustomerID string
	submitImagePath  string
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a claim photo for validation",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		imageBytes, err := os.ReadFile(submitImagePath)
		if err != nil {
			return eris.Wrapf(err, "read image %s", submitImagePath)
		}

		claimID := submitClaimID
		if claimID == "" {
			claimID = uuid.New().String()
		}

		outcome, err := env.Pipeline.Submit(ctx, pipeline.SubmitRequest{
			ClaimID:    claimID,
			CustomerID: submitCustomerID,
			Image:      imageBytes,
		})
		if err != nil {
			return err
		}

		return printJSON(outcome)
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitClaimID, "claim-id", "", "claim id (generated if omitted)")
	submitCmd.Flags().StringVar(&submitCustomerID, "customer-id", "", "customer id")
	submitCmd.Flags().StringVar(&submitImagePath, "image", "", "path to the claim photo")
	submitCmd.MarkFlagRequired("customer-id")
	submitCmd.MarkFlagRequired("image")
	rootCmd.AddCommand(submitCmd)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode output")
}
