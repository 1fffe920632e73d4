package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/claimcheck/internal/model"
	"github.com/sells-group/claimcheck/internal/store"
)

var (
	exportOut   string
	exportLimit int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export claim records to an XLSX workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		lister, ok := env.Store.(store.Lister)
		if !ok {
			return eris.Errorf("store driver %s does not support listing claims", cfg.Store.Driver)
		}

		claims, err := lister.ListClaims(ctx, exportLimit)
		if err != nil {
			return err
		}

		if err := writeClaimsXLSX(exportOut, claims); err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.String("file", exportOut),
			zap.Int("claims", len(claims)),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "claims.xlsx", "output file path")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 0, "max number of claims to export (0 = all)")
	rootCmd.AddCommand(exportCmd)
}

func writeClaimsXLSX(path string, claims []model.ClaimRecord) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Claims")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{
		"Claim ID", "Customer ID", "Damage Detected", "Confidence",
		"Quality Score", "System Status", "Effective Status",
		"User Override", "Override Reason", "Override At",
		"Submitted At", "Model Version",
	} {
		header.AddCell().SetString(h)
	}

	for _, c := range claims {
		row := sheet.AddRow()
		row.AddCell().SetString(c.ClaimID)
		row.AddCell().SetString(c.CustomerID)
		row.AddCell().SetBool(c.DamageDetected)
		row.AddCell().SetFloat(c.Confidence)
		row.AddCell().SetFloat(c.QualityScore)
		row.AddCell().SetString(string(c.SystemStatus))
		row.AddCell().SetString(string(c.EffectiveStatus))
		row.AddCell().SetBool(c.UserOverride)
		if c.OverrideReason != nil {
			row.AddCell().SetString(*c.OverrideReason)
		} else {
			row.AddCell().SetString("")
		}
		if c.OverrideTimestamp != nil {
			row.AddCell().SetString(c.OverrideTimestamp.Format(time.RFC3339))
		} else {
			row.AddCell().SetString("")
		}
		row.AddCell().SetString(c.SubmittedAt.Format(time.RFC3339))
		row.AddCell().SetString(c.ModelVersion)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}
