package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/paddock-labs/tracker-cli/internal/lake"
	"github.com/paddock-labs/tracker-cli/internal/model"
)

// Stage names as recorded in the run log.
const (
	StageIngest    = "ingest"
	StageMonth     = "month"
	StageClean     = "clean"
	StageAggregate = "aggregate"
	StageLoad      = "load"
)

// Recorder persists per-stage run history.
type Recorder interface {
	Start(ctx context.Context, runID, stage string) (int64, error)
	Complete(ctx context.Context, entryID int64, rowsIn, rowsOut int, report *model.QualityReport) error
	Fail(ctx context.Context, entryID int64, cause error) error
}

// NopRecorder discards run history.
type NopRecorder struct{}

func (NopRecorder) Start(context.Context, string, string) (int64, error) { return 0, nil }
func (NopRecorder) Complete(context.Context, int64, int, int, *model.QualityReport) error {
	return nil
}
func (NopRecorder) Fail(context.Context, int64, error) error { return nil }

// Runner executes pipeline stages against a lake, recording every stage in
// the run log. Stages run strictly in sequence and fully materialize their
// output before the next one starts; the first failure aborts the run.
type Runner struct {
	lake  *lake.Lake
	rec   Recorder
	runID string
}

// NewRunner builds a Runner with a fresh run id. A nil recorder keeps no
// history.
func NewRunner(lk *lake.Lake, rec Recorder) *Runner {
	if rec == nil {
		rec = NopRecorder{}
	}
	return &Runner{lake: lk, rec: rec, runID: uuid.NewString()}
}

// RunID identifies this runner's stage executions in the run log.
func (r *Runner) RunID() string { return r.runID }

// Lake exposes the runner's lake for callers that consume its outputs.
func (r *Runner) Lake() *lake.Lake { return r.lake }

type stageResult struct {
	rowsIn  int
	rowsOut int
	report  *model.QualityReport
}

// runStage wraps one stage execution with run-log bookkeeping and
// structured logging. A stage failure is recorded before it propagates.
func (r *Runner) runStage(ctx context.Context, stage string, fn func() (stageResult, error)) error {
	entryID, err := r.rec.Start(ctx, r.runID, stage)
	if err != nil {
		return eris.Wrapf(err, "record start of %s", stage)
	}

	log := zap.L().With(zap.String("run_id", r.runID), zap.String("stage", stage))
	start := time.Now()

	res, err := fn()
	if err != nil {
		if recErr := r.rec.Fail(ctx, entryID, err); recErr != nil {
			log.Warn("record stage failure", zap.Error(recErr))
		}
		log.Error("stage failed",
			zap.String("kind", model.ErrorKind(err)),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return eris.Wrapf(err, "%s stage", stage)
	}

	if recErr := r.rec.Complete(ctx, entryID, res.rowsIn, res.rowsOut, res.report); recErr != nil {
		log.Warn("record stage completion", zap.Error(recErr))
	}

	fields := []zap.Field{
		zap.Int("rows_in", res.rowsIn),
		zap.Int("rows_out", res.rowsOut),
		zap.Duration("duration", time.Since(start)),
	}
	if res.report != nil {
		fields = append(fields,
			zap.Int("duplicates_dropped", res.report.DuplicatesDropped),
			zap.Int("neg_points_found", res.report.NegativePointsFound),
			zap.Int("missing_points", res.report.MissingPoints),
			zap.Int("missing_constructor_name", res.report.MissingConstructorName))
	}
	log.Info("stage complete", fields...)
	return nil
}

// RawBuilder rebuilds the raw layer from external sources (see
// internal/ingest). Acquisition sits outside the stage chain; it only ever
// runs before it.
type RawBuilder interface {
	BuildRaw(ctx context.Context) (int, error)
}

// Ingest rebuilds the raw layer through b, recorded like any other stage.
func (r *Runner) Ingest(ctx context.Context, b RawBuilder) error {
	return r.runStage(ctx, StageIngest, func() (stageResult, error) {
		n, err := b.BuildRaw(ctx)
		if err != nil {
			return stageResult{}, err
		}
		return stageResult{rowsIn: n, rowsOut: n}, nil
	})
}

// Month derives the month-tagged layer from the raw layer and writes it in
// the configured physical layout.
func (r *Runner) Month(ctx context.Context) error {
	return r.runStage(ctx, StageMonth, func() (stageResult, error) {
		raw, err := r.lake.ReadRaw()
		if err != nil {
			return stageResult{}, err
		}
		tagged, err := DeriveMonths(raw)
		if err != nil {
			return stageResult{rowsIn: len(raw)}, err
		}
		if err := r.lake.WriteMonthLayer(tagged); err != nil {
			return stageResult{rowsIn: len(raw)}, err
		}
		return stageResult{rowsIn: len(raw), rowsOut: len(tagged)}, nil
	})
}

// Clean builds the cleaned layer plus its quality report. It reads the
// month-tagged layer when one exists, otherwise falls back to the raw layer
// and derives months in memory first.
func (r *Runner) Clean(ctx context.Context) error {
	return r.runStage(ctx, StageClean, func() (stageResult, error) {
		tagged, err := r.readCleanInput()
		if err != nil {
			return stageResult{}, err
		}
		cleaned, report, err := Clean(tagged)
		if err != nil {
			return stageResult{rowsIn: len(tagged)}, err
		}
		if err := r.lake.WriteCleaned(cleaned); err != nil {
			return stageResult{rowsIn: len(tagged)}, err
		}
		return stageResult{rowsIn: len(tagged), rowsOut: len(cleaned), report: &report}, nil
	})
}

func (r *Runner) readCleanInput() ([]model.MonthTaggedRecord, error) {
	if r.lake.HasMonthLayer() {
		return r.lake.ReadMonthLayer()
	}
	zap.L().Info("month-tagged layer absent, cleaning from raw",
		zap.String("raw", r.lake.RawPath()))
	raw, err := r.lake.ReadRaw()
	if err != nil {
		return nil, err
	}
	return DeriveMonths(raw)
}

// Aggregate builds the aggregate layer from the cleaned layer.
func (r *Runner) Aggregate(ctx context.Context) error {
	return r.runStage(ctx, StageAggregate, func() (stageResult, error) {
		cleaned, err := r.lake.ReadCleaned()
		if err != nil {
			return stageResult{}, err
		}
		rows, err := Aggregate(cleaned)
		if err != nil {
			return stageResult{rowsIn: len(cleaned)}, err
		}
		if err := r.lake.WriteAggregates(rows); err != nil {
			return stageResult{rowsIn: len(cleaned)}, err
		}
		return stageResult{rowsIn: len(cleaned), rowsOut: len(rows)}, nil
	})
}

// Load copies the aggregate layer into a warehouse through fn, recorded
// like any other stage. fn reports how many rows it loaded.
func (r *Runner) Load(ctx context.Context, fn func(context.Context, []model.MonthlyAggregate) (int64, error)) error {
	return r.runStage(ctx, StageLoad, func() (stageResult, error) {
		rows, err := r.lake.ReadAggregates()
		if err != nil {
			return stageResult{}, err
		}
		n, err := fn(ctx, rows)
		if err != nil {
			return stageResult{rowsIn: len(rows)}, err
		}
		return stageResult{rowsIn: len(rows), rowsOut: int(n)}, nil
	})
}

// Run executes month, clean and aggregate in order, regenerating every
// downstream layer from the raw layer.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.Month(ctx); err != nil {
		return err
	}
	if err := r.Clean(ctx); err != nil {
		return err
	}
	return r.Aggregate(ctx)
}
