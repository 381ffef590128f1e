package main

import (
	"context"

	"github.com/paddock-labs/tracker-cli/internal/lake"
	"github.com/paddock-labs/tracker-cli/internal/pipeline"
	"github.com/paddock-labs/tracker-cli/internal/runlog"
)

// layoutFlag overrides lake.layout from the command line. Registered on the
// commands that write the month-tagged layer.
var layoutFlag string

// runEnv bundles what every pipeline command needs: the lake and the
// run-history store.
type runEnv struct {
	Lake   *lake.Lake
	RunLog *runlog.Store
}

// initRunEnv validates the configuration for the given command mode and
// opens the lake and run log. Callers must Close.
func initRunEnv(ctx context.Context, mode string) (*runEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	layoutStr := cfg.Lake.Layout
	if layoutFlag != "" {
		layoutStr = layoutFlag
	}
	layout, err := lake.ParseLayout(layoutStr)
	if err != nil {
		return nil, err
	}

	rl, err := runlog.Open(cfg.RunLog.Path)
	if err != nil {
		return nil, err
	}
	if err := rl.Migrate(ctx); err != nil {
		rl.Close()
		return nil, err
	}

	return &runEnv{
		Lake:   lake.New(lake.Config{Root: cfg.Lake.Root, Layout: layout}),
		RunLog: rl,
	}, nil
}

// Runner builds a pipeline runner with a fresh run id. Each call starts a
// new run-log run.
func (e *runEnv) Runner() *pipeline.Runner {
	return pipeline.NewRunner(e.Lake, e.RunLog)
}

func (e *runEnv) Close() {
	_ = e.RunLog.Close()
}
