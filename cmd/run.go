package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/paddock-labs/tracker-cli/internal/ingest"
)

var (
	runEvery  time.Duration
	runIngest bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the full pipeline: month, clean, aggregate",
	Long:  "Regenerates every downstream layer from the raw layer in one pass. --ingest rebuilds the raw layer first; --every repeats the pipeline on a fixed interval until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mode := "pipeline"
		if runIngest {
			mode = "ingest"
		}
		env, err := initRunEnv(ctx, mode)
		if err != nil {
			return err
		}
		defer env.Close()

		if runEvery <= 0 {
			return executePipeline(ctx, env)
		}

		ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return runScheduled(ctx, env, runEvery)
	},
}

// runScheduled repeats the pipeline on a fixed interval until ctx is done.
// Every execution gets its own run id; a failed execution is logged and the
// cadence continues.
func runScheduled(ctx context.Context, env *runEnv, every time.Duration) error {
	scheduler := gocron.NewScheduler(time.UTC)
	_, err := scheduler.Every(every).Do(func() {
		if err := executePipeline(ctx, env); err != nil {
			zap.L().Error("scheduled run failed", zap.Error(err))
		}
	})
	if err != nil {
		return eris.Wrap(err, "schedule pipeline")
	}

	zap.L().Info("pipeline scheduled", zap.Duration("every", every))
	scheduler.StartAsync()
	<-ctx.Done()
	scheduler.Stop()
	zap.L().Info("scheduler stopped")
	return nil
}

// executePipeline performs one full pipeline pass under a fresh run id.
func executePipeline(ctx context.Context, env *runEnv) error {
	r := env.Runner()
	if runIngest {
		ing := ingest.New(env.Lake, ingest.Options{
			Manifest:    cfg.Ingest.Manifest,
			WorkDir:     cfg.Ingest.WorkDir,
			Concurrency: cfg.Ingest.Concurrency,
		})
		if err := r.Ingest(ctx, ing); err != nil {
			return err
		}
	}
	return r.Run(ctx)
}

func init() {
	runCmd.Flags().DurationVar(&runEvery, "every", 0, "repeat the pipeline on this interval (one-shot when unset)")
	runCmd.Flags().BoolVar(&runIngest, "ingest", false, "rebuild the raw layer from sources before the pipeline")
	runCmd.Flags().StringVar(&layoutFlag, "layout", "", "month-tagged layout: single or partitioned (default from config)")
	rootCmd.AddCommand(runCmd)
}
