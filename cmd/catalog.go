package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/valueboard/internal/catalog"
)

var catalogPath string

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the canonical model catalog",
}

var catalogImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Upsert catalog entries from a YAML or JSON fixture",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if catalogPath != "" {
			cfg.Catalog.Path = catalogPath
		}

		st, err := openStore(ctx, "catalog")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if _, err := catalog.Import(ctx, st, cfg.Catalog.Path); err != nil {
			return eris.Wrap(err, "catalog import")
		}
		return nil
	},
}

func init() {
	catalogImportCmd.Flags().StringVar(&catalogPath, "file", "", "catalog fixture path (default from config)")
	catalogCmd.AddCommand(catalogImportCmd)
	rootCmd.AddCommand(catalogCmd)
}
