package pipeline

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/paddock-labs/tracker-cli/internal/model"
)

// Aggregate groups cleaned records by (constructor_id, m), sums the
// non-missing points per group, and annotates each row with growth against
// the constructor's previous present month.
//
// A group whose points are all missing still aggregates to a total of 0: the
// constructor raced that month even if nothing was recorded for it. Growth
// compares against the immediately preceding month the constructor actually
// has a row for — a skipped calendar month is looked across, not treated as
// zero. The ratio is nil when there is no earlier row or the earlier total
// is zero; substituting zero there would fabricate a growth event.
func Aggregate(cleaned []model.CleanedRecord) ([]model.MonthlyAggregate, error) {
	type groupKey struct {
		constructorID int64
		month         string
	}

	totals := make(map[groupKey]*model.MonthlyAggregate)
	order := make([]groupKey, 0)

	for i, rec := range cleaned {
		if !model.FirstOfMonth(rec.Month) {
			return nil, eris.Wrapf(model.ErrSchema, "cleaned row %d %s has no valid month", i, rec.Key())
		}
		key := groupKey{constructorID: rec.ConstructorID, month: model.FormatMonth(rec.Month)}
		group, ok := totals[key]
		if !ok {
			group = &model.MonthlyAggregate{
				ConstructorID: rec.ConstructorID,
				Month:         rec.Month,
			}
			totals[key] = group
			order = append(order, key)
		}
		if group.ConstructorName == "" && strings.TrimSpace(rec.ConstructorName) != "" {
			group.ConstructorName = rec.ConstructorName
		}
		if rec.Points != nil {
			group.PointsTotal += *rec.Points
		}
	}

	rows := make([]model.MonthlyAggregate, 0, len(order))
	for _, key := range order {
		rows = append(rows, *totals[key])
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ConstructorID != rows[j].ConstructorID {
			return rows[i].ConstructorID < rows[j].ConstructorID
		}
		return rows[i].Month.Before(rows[j].Month)
	})

	annotateGrowth(rows)

	if err := checkAggregateInvariants(cleaned, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// annotateGrowth fills MoMGrowth for rows sorted by (constructor_id, month):
// (current - previous) / previous against the constructor's previous present
// month, nil when there is no usable baseline.
func annotateGrowth(rows []model.MonthlyAggregate) {
	var (
		prevID    int64
		prevTotal float64
		hasPrev   bool
	)
	for i := range rows {
		if i == 0 || rows[i].ConstructorID != prevID {
			hasPrev = false
		}
		if hasPrev && prevTotal != 0 {
			rows[i].MoMGrowth = model.Float64((rows[i].PointsTotal - prevTotal) / prevTotal)
		}
		prevID = rows[i].ConstructorID
		prevTotal = rows[i].PointsTotal
		hasPrev = true
	}
}

// checkAggregateInvariants enforces the aggregator postconditions: exactly
// one output row per distinct (constructor_id, m) pair of the input, and no
// key collisions in the output.
func checkAggregateInvariants(cleaned []model.CleanedRecord, rows []model.MonthlyAggregate) error {
	type pair struct {
		constructorID int64
		month         string
	}

	want := make(map[pair]struct{}, len(cleaned))
	for _, rec := range cleaned {
		want[pair{rec.ConstructorID, model.FormatMonth(rec.Month)}] = struct{}{}
	}

	got := make(map[pair]struct{}, len(rows))
	for _, row := range rows {
		p := pair{row.ConstructorID, model.FormatMonth(row.Month)}
		if _, dup := got[p]; dup {
			return eris.Wrapf(model.ErrInvariant, "duplicate aggregate key (constructor_id=%d, m=%s)", row.ConstructorID, model.FormatMonth(row.Month))
		}
		got[p] = struct{}{}
	}

	if len(got) != len(want) {
		return eris.Wrapf(model.ErrIntegrity, "aggregate row count %d does not match %d distinct (constructor_id, m) pairs in the cleaned input", len(got), len(want))
	}
	return nil
}
