package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/valueboard/internal/leaderboard"
	"github.com/sells-group/valueboard/internal/recompute"
)

var (
	recomputeDomains []string
	recomputeModel   string
)

var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Rebuild derived metrics and value ranks from stored scores and prices",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		domains, err := parseDomains(recomputeDomains)
		if err != nil {
			return err
		}

		st, err := openStore(ctx, "recompute")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var opts []recompute.Option
		if rdb := newRedis(ctx); rdb != nil {
			defer rdb.Close() //nolint:errcheck
			opts = append(opts, recompute.WithInvalidator(
				leaderboard.NewCachedAggregator(leaderboard.NewAggregator(st), rdb, cfg.Redis.CacheTTL())))
		}
		coord := recompute.NewCoordinator(st, opts...)

		if recomputeModel != "" {
			m, err := st.GetModelBySlug(ctx, recomputeModel)
			if err != nil {
				return err
			}
			if m == nil {
				return eris.Errorf("recompute: unknown model %q", recomputeModel)
			}
			for _, d := range domains {
				if err := coord.RecomputeModel(ctx, m.ID, d); err != nil {
					return eris.Wrapf(err, "recompute %s in %s", m.Slug, d)
				}
			}
			zap.L().Info("model recomputed", zap.String("model", m.Slug), zap.Int("domains", len(domains)))
			return nil
		}

		for _, d := range domains {
			n, err := coord.RecomputeDomain(ctx, d)
			if err != nil {
				return eris.Wrapf(err, "recompute %s", d)
			}
			zap.L().Info("domain recomputed", zap.String("domain", string(d)), zap.Int("metrics", n))
		}
		return nil
	},
}

func init() {
	recomputeCmd.Flags().StringSliceVar(&recomputeDomains, "domains", nil, "domains to recompute (default all)")
	recomputeCmd.Flags().StringVar(&recomputeModel, "model", "", "recompute only this model slug")
	rootCmd.AddCommand(recomputeCmd)
}
