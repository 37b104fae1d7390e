package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/valueboard/internal/recompute"
)

var pricingCmd = &cobra.Command{
	Use:   "pricing",
	Short: "Price ingest commands",
}

var pricingRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Refresh current API prices from the primary and fallback sources",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx, "pricing")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		// Recompute inline so derived metrics are current when the command exits.
		pub := recompute.Sync{Handler: recompute.NewCoordinator(st)}
		res, err := newPricingPipeline(st, pub).RunAndRecord(ctx, time.Now())
		if err != nil {
			return err
		}

		zap.L().Info("pricing run complete",
			zap.String("status", string(res.Status)),
			zap.Int("records", res.RecordsWritten),
			zap.Int("matched", res.ModelsMatched),
			zap.Int("missing", len(res.ModelsMissing)),
			zap.Strings("errors", res.Errors),
		)
		return printJSON(cmd, res)
	},
}

func init() {
	pricingCmd.AddCommand(pricingRunCmd)
	rootCmd.AddCommand(pricingCmd)
}
