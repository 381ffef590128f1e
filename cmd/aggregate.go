package main

import (
	"github.com/spf13/cobra"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Build the aggregate layer with month-over-month growth",
	Long:  "Groups the cleaned layer by (constructor, month), sums points, annotates growth against each constructor's previous present month, and writes the aggregate layer.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initRunEnv(ctx, "pipeline")
		if err != nil {
			return err
		}
		defer env.Close()

		return env.Runner().Aggregate(ctx)
	},
}

func init() {
	rootCmd.AddCommand(aggregateCmd)
}
