package main

import (
	"github.com/spf13/cobra"
)

var monthCmd = &cobra.Command{
	Use:   "month",
	Short: "Derive the month-tagged layer from the raw layer",
	Long:  "Parses every race date, annotates each row with the first day of its month, and writes the month-tagged layer in the configured physical layout.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initRunEnv(ctx, "pipeline")
		if err != nil {
			return err
		}
		defer env.Close()

		return env.Runner().Month(ctx)
	},
}

func init() {
	monthCmd.Flags().StringVar(&layoutFlag, "layout", "", "month-tagged layout: single or partitioned (default from config)")
	rootCmd.AddCommand(monthCmd)
}
