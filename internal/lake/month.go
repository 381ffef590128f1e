package lake

import (
	"os"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/paddock-labs/tracker-cli/internal/model"
)

// WriteMonthLayer persists the month-tagged layer in the configured
// physical layout.
func (l *Lake) WriteMonthLayer(records []model.MonthTaggedRecord) error {
	switch l.layout {
	case LayoutPartitioned:
		return l.WritePartitions(records)
	default:
		return l.WriteMonthTagged(records)
	}
}

// ReadMonthLayer loads the month-tagged layer from the configured physical
// layout.
func (l *Lake) ReadMonthLayer() ([]model.MonthTaggedRecord, error) {
	switch l.layout {
	case LayoutPartitioned:
		return l.ReadPartitions()
	default:
		return l.ReadMonthTagged()
	}
}

// HasMonthLayer reports whether the month-tagged layer exists in the
// configured layout. Callers use this to fall back to the raw layer.
func (l *Lake) HasMonthLayer() bool {
	switch l.layout {
	case LayoutPartitioned:
		entries, err := os.ReadDir(l.PartitionRoot())
		if err != nil {
			return false
		}
		for _, e := range entries {
			if e.IsDir() && isPartitionLabel(e.Name()) {
				return true
			}
		}
		return false
	default:
		_, err := os.Stat(l.MonthPath())
		return err == nil
	}
}

// WriteMonthTagged persists the month-tagged layer as a single file.
func (l *Lake) WriteMonthTagged(records []model.MonthTaggedRecord) error {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, encodeMonthTagged(rec))
	}
	return writeTable(l.MonthPath(), model.MonthTaggedColumns, rows)
}

// ReadMonthTagged loads the single-file month-tagged layer.
func (l *Lake) ReadMonthTagged() ([]model.MonthTaggedRecord, error) {
	rows, err := readTable(l.MonthPath(), model.MonthTaggedColumns)
	if err != nil {
		return nil, err
	}
	records := make([]model.MonthTaggedRecord, 0, len(rows))
	for i, row := range rows {
		rec, err := decodeMonthTagged(row, i)
		if err != nil {
			return nil, eris.Wrap(err, "month-tagged layer")
		}
		records = append(records, rec)
	}
	return records, nil
}

func encodeMonthTagged(rec model.MonthTaggedRecord) []string {
	return []string{
		strconv.FormatInt(rec.RaceID, 10),
		model.FormatRaceDate(rec.RaceDate),
		strconv.FormatInt(rec.ConstructorID, 10),
		rec.ConstructorName,
		rec.Points,
		model.FormatMonth(rec.Month),
	}
}

func decodeMonthTagged(row []string, rowNum int) (model.MonthTaggedRecord, error) {
	var rec model.MonthTaggedRecord

	raceID, err := parseID("race_id", row[0], rowNum)
	if err != nil {
		return rec, err
	}
	constructorID, err := parseID("constructor_id", row[2], rowNum)
	if err != nil {
		return rec, err
	}
	raceDate, err := model.ParseRaceDate(row[1])
	if err != nil {
		return rec, eris.Wrapf(model.ErrParse, "race_date %q at row %d: %v", row[1], rowNum, err)
	}
	month, err := model.ParseMonth(row[5])
	if err != nil {
		return rec, eris.Wrapf(model.ErrParse, "m %q at row %d: %v", row[5], rowNum, err)
	}

	rec = model.MonthTaggedRecord{
		RaceID:          raceID,
		RaceDate:        raceDate,
		ConstructorID:   constructorID,
		ConstructorName: row[3],
		Points:          row[4],
		Month:           month,
	}
	return rec, nil
}
