package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paddock-labs/tracker-cli/internal/lake"
	"github.com/paddock-labs/tracker-cli/internal/model"
)

type recordedStage struct {
	stage    string
	rowsIn   int
	rowsOut  int
	report   *model.QualityReport
	failed   bool
	errKind  string
	finished bool
}

// fakeRecorder captures run-log calls in memory.
type fakeRecorder struct {
	nextID  int64
	entries map[int64]*recordedStage
	order   []int64
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{entries: map[int64]*recordedStage{}}
}

func (f *fakeRecorder) Start(_ context.Context, _ string, stage string) (int64, error) {
	f.nextID++
	f.entries[f.nextID] = &recordedStage{stage: stage}
	f.order = append(f.order, f.nextID)
	return f.nextID, nil
}

func (f *fakeRecorder) Complete(_ context.Context, id int64, rowsIn, rowsOut int, report *model.QualityReport) error {
	e := f.entries[id]
	e.rowsIn, e.rowsOut, e.report, e.finished = rowsIn, rowsOut, report, true
	return nil
}

func (f *fakeRecorder) Fail(_ context.Context, id int64, cause error) error {
	e := f.entries[id]
	e.failed, e.errKind, e.finished = true, model.ErrorKind(cause), true
	return nil
}

func (f *fakeRecorder) stages() []recordedStage {
	out := make([]recordedStage, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, *f.entries[id])
	}
	return out
}

func seedRaw(t *testing.T, lk *lake.Lake) int {
	t.Helper()
	raw := []model.RawPointRecord{
		rawRec(1, 10, "2021-03-14", "Alpine", "4"),
		rawRec(1, 11, "2021-03-14", "Ferrari", "8"),
		rawRec(2, 10, "2021-03-28", "Alpine", "5"),
		rawRec(2, 10, "2021-03-28", "Alpine", "6"),
		rawRec(2, 11, "2021-03-28", "Ferrari", "-2"),
		rawRec(3, 10, "2021-04-18", "Alpine", "15"),
		rawRec(4, 11, "2021-05-09", "Ferrari", "9"),
	}
	require.NoError(t, lk.WriteRaw(raw))
	return len(raw)
}

func assertSeededAggregates(t *testing.T, rows []model.MonthlyAggregate) {
	t.Helper()
	require.Len(t, rows, 4)

	march10 := findAggregate(t, rows, 10, "2021-03-01")
	assert.Equal(t, 10.0, march10.PointsTotal)
	assert.Nil(t, march10.MoMGrowth)

	april10 := findAggregate(t, rows, 10, "2021-04-01")
	assert.Equal(t, 15.0, april10.PointsTotal)
	require.NotNil(t, april10.MoMGrowth)
	assert.InDelta(t, 0.5, *april10.MoMGrowth, 1e-12)

	march11 := findAggregate(t, rows, 11, "2021-03-01")
	assert.Equal(t, 8.0, march11.PointsTotal, "negative points contribute nothing")
	assert.Nil(t, march11.MoMGrowth)

	// Ferrari skips April entirely: May compares against March.
	may11 := findAggregate(t, rows, 11, "2021-05-01")
	assert.Equal(t, 9.0, may11.PointsTotal)
	require.NotNil(t, may11.MoMGrowth)
	assert.InDelta(t, 0.125, *may11.MoMGrowth, 1e-12)
}

func TestRunnerEndToEnd(t *testing.T) {
	lk := lake.New(lake.Config{Root: t.TempDir()})
	rawRows := seedRaw(t, lk)
	rec := newFakeRecorder()

	r := NewRunner(lk, rec)
	require.NoError(t, r.Run(context.Background()))

	// Row-count conservation into the month-tagged layer.
	tagged, err := lk.ReadMonthTagged()
	require.NoError(t, err)
	assert.Len(t, tagged, rawRows)

	cleaned, err := lk.ReadCleaned()
	require.NoError(t, err)
	assert.Len(t, cleaned, rawRows-1, "exactly one duplicate dropped")

	rows, err := lk.ReadAggregates()
	require.NoError(t, err)
	assertSeededAggregates(t, rows)

	stages := rec.stages()
	require.Len(t, stages, 3)
	assert.Equal(t, StageMonth, stages[0].stage)
	assert.Equal(t, StageClean, stages[1].stage)
	assert.Equal(t, StageAggregate, stages[2].stage)
	for _, s := range stages {
		assert.True(t, s.finished)
		assert.False(t, s.failed)
	}

	require.NotNil(t, stages[1].report)
	assert.Equal(t, 1, stages[1].report.DuplicatesDropped)
	assert.Equal(t, 1, stages[1].report.NegativePointsFound)
	assert.Equal(t, 1, stages[1].report.MissingPoints)
	assert.Equal(t, 0, stages[1].report.MissingConstructorName)
}

func TestRunnerPartitionedLayout(t *testing.T) {
	lk := lake.New(lake.Config{Root: t.TempDir(), Layout: lake.LayoutPartitioned})
	rawRows := seedRaw(t, lk)

	r := NewRunner(lk, nil)
	require.NoError(t, r.Run(context.Background()))

	entries, err := os.ReadDir(lk.PartitionRoot())
	require.NoError(t, err)
	var labels []string
	for _, e := range entries {
		labels = append(labels, e.Name())
	}
	assert.ElementsMatch(t, []string{"m=2021-03-01", "m=2021-04-01", "m=2021-05-01"}, labels)

	// Partition counts add up to the raw row count.
	tagged, err := lk.ReadPartitions()
	require.NoError(t, err)
	assert.Len(t, tagged, rawRows)

	rows, err := lk.ReadAggregates()
	require.NoError(t, err)
	assertSeededAggregates(t, rows)
}

func TestRunnerRerunReplacesPartitions(t *testing.T) {
	lk := lake.New(lake.Config{Root: t.TempDir(), Layout: lake.LayoutPartitioned})
	seedRaw(t, lk)

	r := NewRunner(lk, nil)
	require.NoError(t, r.Run(context.Background()))
	require.DirExists(t, filepath.Join(lk.PartitionRoot(), "m=2021-05-01"))

	// Reingest with May gone: its stale partition must disappear.
	require.NoError(t, lk.WriteRaw([]model.RawPointRecord{
		rawRec(1, 10, "2021-03-14", "Alpine", "4"),
	}))
	require.NoError(t, NewRunner(lk, nil).Run(context.Background()))

	assert.NoDirExists(t, filepath.Join(lk.PartitionRoot(), "m=2021-05-01"))
	assert.DirExists(t, filepath.Join(lk.PartitionRoot(), "m=2021-03-01"))
}

func TestRunnerCleanFallsBackToRaw(t *testing.T) {
	lk := lake.New(lake.Config{Root: t.TempDir()})
	seedRaw(t, lk)

	r := NewRunner(lk, nil)
	require.NoError(t, r.Clean(context.Background()))

	cleaned, err := lk.ReadCleaned()
	require.NoError(t, err)
	assert.NotEmpty(t, cleaned)
	for _, rec := range cleaned {
		assert.Equal(t, 1, rec.Month.Day())
	}
}

func TestRunnerLoad(t *testing.T) {
	lk := lake.New(lake.Config{Root: t.TempDir()})
	seedRaw(t, lk)
	require.NoError(t, NewRunner(lk, nil).Run(context.Background()))

	rec := newFakeRecorder()
	var loaded []model.MonthlyAggregate
	err := NewRunner(lk, rec).Load(context.Background(), func(_ context.Context, rows []model.MonthlyAggregate) (int64, error) {
		loaded = rows
		return int64(len(rows)), nil
	})
	require.NoError(t, err)
	assertSeededAggregates(t, loaded)

	stages := rec.stages()
	require.Len(t, stages, 1)
	assert.Equal(t, StageLoad, stages[0].stage)
	assert.True(t, stages[0].finished)
	assert.Equal(t, len(loaded), stages[0].rowsOut)
}

func TestRunnerRecordsFailure(t *testing.T) {
	lk := lake.New(lake.Config{Root: t.TempDir()})
	rec := newFakeRecorder()

	// No raw layer seeded: the month stage must fail and the failure must
	// land in the run log before the error propagates.
	err := NewRunner(lk, rec).Month(context.Background())
	require.Error(t, err)

	stages := rec.stages()
	require.Len(t, stages, 1)
	assert.Equal(t, StageMonth, stages[0].stage)
	assert.True(t, stages[0].failed)
}
