package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/valueboard/internal/arena"
	"github.com/sells-group/valueboard/internal/model"
	"github.com/sells-group/valueboard/internal/recompute"
)

var arenaDomains []string

var arenaCmd = &cobra.Command{
	Use:   "arena",
	Short: "Benchmark ingest commands",
}

var arenaIngestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest benchmark leaderboards into quality scores",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		domains, err := parseDomains(arenaDomains)
		if err != nil {
			return err
		}

		st, err := openStore(ctx, "arena")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		pub := recompute.Sync{Handler: recompute.NewCoordinator(st)}
		res, err := newArenaIngestor(st, pub, arena.WithDomains(domains...)).RunAndRecord(ctx, time.Now())
		if err != nil {
			return err
		}

		zap.L().Info("arena ingest complete",
			zap.String("status", string(res.Status)),
			zap.Int("records", res.RecordsWritten),
			zap.Int("unmatched", len(res.ModelsMissing)),
		)
		return printJSON(cmd, res)
	},
}

// parseDomains resolves domain flags. Empty input means every domain.
func parseDomains(in []string) ([]model.Domain, error) {
	if len(in) == 0 {
		return model.Domains, nil
	}
	out := make([]model.Domain, 0, len(in))
	for _, s := range in {
		d, err := model.ResolveDomain(s)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func init() {
	arenaIngestCmd.Flags().StringSliceVar(&arenaDomains, "domains", nil, "domains to ingest (default all)")
	arenaCmd.AddCommand(arenaIngestCmd)
	rootCmd.AddCommand(arenaCmd)
}
