package lake

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/paddock-labs/tracker-cli/internal/model"
)

// WriteCleaned persists the cleaned layer. Missing points are empty cells.
func (l *Lake) WriteCleaned(records []model.CleanedRecord) error {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			strconv.FormatInt(rec.RaceID, 10),
			model.FormatRaceDate(rec.RaceDate),
			model.FormatMonth(rec.Month),
			strconv.FormatInt(rec.ConstructorID, 10),
			rec.ConstructorName,
			model.FormatNullableDecimal(rec.Points),
		})
	}
	return writeTable(l.CleanedPath(), model.CleanedColumns, rows)
}

// ReadCleaned loads the cleaned layer. The file is a contract: values must
// parse, and points must be non-negative or missing — a violation means the
// layer was produced or edited outside the cleaner.
func (l *Lake) ReadCleaned() ([]model.CleanedRecord, error) {
	rows, err := readTable(l.CleanedPath(), model.CleanedColumns)
	if err != nil {
		return nil, err
	}
	records := make([]model.CleanedRecord, 0, len(rows))
	for i, row := range rows {
		raceID, err := parseID("race_id", row[0], i)
		if err != nil {
			return nil, eris.Wrap(err, "cleaned layer")
		}
		constructorID, err := parseID("constructor_id", row[3], i)
		if err != nil {
			return nil, eris.Wrap(err, "cleaned layer")
		}
		raceDate, err := model.ParseRaceDate(row[1])
		if err != nil {
			return nil, eris.Wrapf(model.ErrParse, "cleaned layer: race_date %q at row %d: %v", row[1], i, err)
		}
		month, err := model.ParseMonth(row[2])
		if err != nil {
			return nil, eris.Wrapf(model.ErrParse, "cleaned layer: m %q at row %d: %v", row[2], i, err)
		}
		points, err := parseCleanPoints(row[5], i)
		if err != nil {
			return nil, err
		}
		records = append(records, model.CleanedRecord{
			RaceID:          raceID,
			RaceDate:        raceDate,
			Month:           month,
			ConstructorID:   constructorID,
			ConstructorName: row[4],
			Points:          points,
		})
	}
	return records, nil
}

func parseCleanPoints(cell string, row int) (*float64, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, eris.Wrapf(model.ErrParse, "cleaned layer: points %q at row %d is not a finite number", cell, row)
	}
	if v < 0 {
		return nil, eris.Wrapf(model.ErrInvariant, "cleaned layer: negative points %s at row %d", cell, row)
	}
	return &v, nil
}
