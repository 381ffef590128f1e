package lake

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/paddock-labs/tracker-cli/internal/model"
)

// WriteAggregates persists the aggregate layer, the one file downstream
// renderers consume.
func (l *Lake) WriteAggregates(rows []model.MonthlyAggregate) error {
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, []string{
			strconv.FormatInt(row.ConstructorID, 10),
			row.ConstructorName,
			model.FormatMonth(row.Month),
			model.FormatDecimal(row.PointsTotal),
			model.FormatNullableDecimal(row.MoMGrowth),
		})
	}
	return writeTable(l.AggregatePath(), model.AggregateColumns, out)
}

// ReadAggregates loads the aggregate layer.
func (l *Lake) ReadAggregates() ([]model.MonthlyAggregate, error) {
	rows, err := readTable(l.AggregatePath(), model.AggregateColumns)
	if err != nil {
		return nil, err
	}
	out := make([]model.MonthlyAggregate, 0, len(rows))
	for i, row := range rows {
		constructorID, err := parseID("constructor_id", row[0], i)
		if err != nil {
			return nil, eris.Wrap(err, "aggregate layer")
		}
		month, err := model.ParseMonth(row[2])
		if err != nil {
			return nil, eris.Wrapf(model.ErrParse, "aggregate layer: m %q at row %d: %v", row[2], i, err)
		}
		total, err := strconv.ParseFloat(strings.TrimSpace(row[3]), 64)
		if err != nil {
			return nil, eris.Wrapf(model.ErrParse, "aggregate layer: points_m %q at row %d is not a number", row[3], i)
		}
		var growth *float64
		if cell := strings.TrimSpace(row[4]); cell != "" {
			g, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, eris.Wrapf(model.ErrParse, "aggregate layer: mom_growth %q at row %d is not a number", row[4], i)
			}
			growth = &g
		}
		out = append(out, model.MonthlyAggregate{
			ConstructorID:   constructorID,
			ConstructorName: row[1],
			Month:           month,
			PointsTotal:     total,
			MoMGrowth:       growth,
		})
	}
	return out, nil
}
