package lake

import (
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/paddock-labs/tracker-cli/internal/model"
)

// WriteRaw persists the raw layer. Race dates and points are stored exactly
// as ingested; the raw layer makes no promises about their contents beyond
// the column shape.
func (l *Lake) WriteRaw(records []model.RawPointRecord) error {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			strconv.FormatInt(rec.RaceID, 10),
			rec.RaceDate,
			strconv.FormatInt(rec.ConstructorID, 10),
			rec.ConstructorName,
			rec.Points,
		})
	}
	return writeTable(l.RawPath(), model.RawColumns, rows)
}

// ReadRaw loads the raw layer.
func (l *Lake) ReadRaw() ([]model.RawPointRecord, error) {
	rows, err := readTable(l.RawPath(), model.RawColumns)
	if err != nil {
		return nil, err
	}
	records := make([]model.RawPointRecord, 0, len(rows))
	for i, row := range rows {
		raceID, err := parseID("race_id", row[0], i)
		if err != nil {
			return nil, eris.Wrapf(err, "raw layer")
		}
		constructorID, err := parseID("constructor_id", row[2], i)
		if err != nil {
			return nil, eris.Wrapf(err, "raw layer")
		}
		records = append(records, model.RawPointRecord{
			RaceID:          raceID,
			RaceDate:        row[1],
			ConstructorID:   constructorID,
			ConstructorName: row[3],
			Points:          row[4],
		})
	}
	return records, nil
}
