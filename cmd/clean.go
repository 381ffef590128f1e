package main

import (
	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Build the cleaned layer with quality counters",
	Long:  "Deduplicates per (race, constructor), sanitizes points, and writes the cleaned layer plus a quality report. Falls back to the raw layer when no month-tagged layer exists.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initRunEnv(ctx, "pipeline")
		if err != nil {
			return err
		}
		defer env.Close()

		return env.Runner().Clean(ctx)
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}
