package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/sells-group/valueboard/internal/leaderboard"
	"github.com/sells-group/valueboard/internal/model"
)

var lbParams leaderboard.Params

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Print a leaderboard page as JSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx, "leaderboard")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := leaderboard.NewAggregator(st).Query(ctx, lbParams)
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	f := leaderboardCmd.Flags()
	f.StringVar((*string)(&lbParams.Domain), "domain", string(model.DomainText), "domain")
	f.StringVar((*string)(&lbParams.SortField), "sort", string(leaderboard.SortValueScore), "sort field: qualityScore, valueScore, blendedPrice1m, votes")
	f.StringVar((*string)(&lbParams.SortDir), "dir", string(leaderboard.SortDesc), "sort direction: asc or desc")
	f.StringSliceVar(&lbParams.Vendors, "vendors", nil, "vendor slugs to include")
	f.Float64Var(&lbParams.PriceMin, "price-min", 0, "minimum blended price per 1M tokens")
	f.Float64Var(&lbParams.PriceMax, "price-max", 0, "maximum blended price per 1M tokens (0 = no limit)")
	f.IntVar(&lbParams.ContextMin, "context-min", 0, "minimum context window")
	f.StringVar((*string)(&lbParams.Modality), "modality", "", "modality filter")
	f.BoolVar(&lbParams.ArenaOnly, "arena-only", false, "only models with benchmark scores")
	f.StringVar(&lbParams.Search, "search", "", "name, slug or alias substring")
	f.IntVar(&lbParams.Limit, "limit", leaderboard.DefaultLimit, "page size")
	f.IntVar(&lbParams.Offset, "offset", 0, "page offset")
	rootCmd.AddCommand(leaderboardCmd)
}
