package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/paddock-labs/tracker-cli/internal/warehouse"
)

var loadReplace bool

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load the aggregate layer into the warehouse",
	Long:  "Copies the aggregate layer into the configured analytical store (sqlite or postgres). Upserts by default; --replace empties the table first.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initRunEnv(ctx, "load")
		if err != nil {
			return err
		}
		defer env.Close()

		wh, err := warehouse.Open(ctx, cfg.Warehouse)
		if err != nil {
			return err
		}
		defer wh.Close() //nolint:errcheck

		if err := wh.Migrate(ctx); err != nil {
			return err
		}

		loadFn := wh.Load
		if loadReplace {
			loadFn = wh.Replace
		}
		if err := env.Runner().Load(ctx, loadFn); err != nil {
			return err
		}

		total, err := wh.Count(ctx)
		if err != nil {
			return err
		}
		zap.L().Info("warehouse loaded",
			zap.String("driver", cfg.Warehouse.Driver),
			zap.Int64("table_rows", total),
			zap.Bool("replace", loadReplace))
		return nil
	},
}

func init() {
	loadCmd.Flags().BoolVar(&loadReplace, "replace", false, "empty the warehouse table before loading")
	rootCmd.AddCommand(loadCmd)
}
