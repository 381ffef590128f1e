package main

import (
	"github.com/spf13/cobra"

	"github.com/paddock-labs/tracker-cli/internal/ingest"
)

var ingestManifest string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Build the raw layer from the published source tables",
	Long:  "Acquires the races, constructors and constructor_results tables named by the sources manifest, joins them, and writes the raw layer.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initRunEnv(ctx, "ingest")
		if err != nil {
			return err
		}
		defer env.Close()

		manifest := ingestManifest
		if manifest == "" {
			manifest = cfg.Ingest.Manifest
		}

		ing := ingest.New(env.Lake, ingest.Options{
			Manifest:    manifest,
			WorkDir:     cfg.Ingest.WorkDir,
			Concurrency: cfg.Ingest.Concurrency,
		})
		return env.Runner().Ingest(ctx, ing)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestManifest, "manifest", "", "sources manifest path (default from config)")
	rootCmd.AddCommand(ingestCmd)
}
