package lake

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/paddock-labs/tracker-cli/internal/model"
)

// partitionDataFile is the data file inside each partition directory.
const partitionDataFile = "data.csv"

// partitionPrefix labels partition directories; the full label is
// m=<YYYY-MM-01>, fixed for downstream scanners.
const partitionPrefix = "m="

// PartitionLabel returns the directory name for a month's partition.
func PartitionLabel(m time.Time) string {
	return partitionPrefix + model.FormatMonth(m)
}

func isPartitionLabel(name string) bool {
	return strings.HasPrefix(name, partitionPrefix)
}

// WritePartitions persists the month-tagged layer as one directory per
// distinct month under the partition root. Stale partition directories from
// earlier runs are removed first: a reprocessed month fully replaces its
// partition, never appends. After writing, every partition is read back and
// the row counts must add up to the input exactly.
func (l *Lake) WritePartitions(records []model.MonthTaggedRecord) error {
	for i, rec := range records {
		if rec.Month.IsZero() {
			return eris.Wrapf(model.ErrSchema, "record %d %s has no month; derive months before partitioning", i, rec.Key())
		}
		if !model.FirstOfMonth(rec.Month) {
			return eris.Wrapf(model.ErrInvariant, "month %s for %s is not a first-of-month date", rec.Month.Format("2006-01-02 15:04:05"), rec.Key())
		}
	}

	groups := make(map[string][][]string)
	labels := make([]string, 0)
	for _, rec := range records {
		label := PartitionLabel(rec.Month)
		if _, ok := groups[label]; !ok {
			labels = append(labels, label)
		}
		groups[label] = append(groups[label], encodeMonthTagged(rec))
	}
	// ISO date labels sort chronologically.
	sort.Strings(labels)

	root := l.PartitionRoot()
	if err := clearPartitions(root); err != nil {
		return err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return eris.Wrapf(err, "create %s", root)
	}
	for _, label := range labels {
		path := filepath.Join(root, label, partitionDataFile)
		if err := writeTable(path, model.MonthTaggedColumns, groups[label]); err != nil {
			return eris.Wrapf(err, "partition %s", label)
		}
	}

	return l.verifyPartitionCounts(labels, len(records))
}

// verifyPartitionCounts re-reads every written partition and checks that no
// row was lost or duplicated on the way to disk.
func (l *Lake) verifyPartitionCounts(labels []string, want int) error {
	total := 0
	for _, label := range labels {
		rows, err := readTable(filepath.Join(l.PartitionRoot(), label, partitionDataFile), model.MonthTaggedColumns)
		if err != nil {
			return eris.Wrapf(err, "verify partition %s", label)
		}
		total += len(rows)
	}
	if total != want {
		return eris.Wrapf(model.ErrIntegrity, "partition sweep counted %d rows across %d partitions, want %d", total, len(labels), want)
	}
	return nil
}

// clearPartitions removes existing m=* directories under root. Anything
// else in the directory is left alone.
func clearPartitions(root string) error {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return eris.Wrapf(err, "scan %s", root)
	}
	for _, e := range entries {
		if e.IsDir() && isPartitionLabel(e.Name()) {
			if err := os.RemoveAll(filepath.Join(root, e.Name())); err != nil {
				return eris.Wrapf(err, "remove stale partition %s", e.Name())
			}
		}
	}
	return nil
}

// ReadPartitions loads the partitioned month-tagged layer, partitions in
// label order. Every row's month must agree with the directory it was found
// in.
func (l *Lake) ReadPartitions() ([]model.MonthTaggedRecord, error) {
	root := l.PartitionRoot()
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, eris.Wrapf(err, "scan partition root %s", root)
	}

	labels := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && isPartitionLabel(e.Name()) {
			labels = append(labels, e.Name())
		}
	}
	sort.Strings(labels)
	if len(labels) == 0 {
		return nil, eris.Wrapf(model.ErrSchema, "no month partitions under %s", root)
	}

	var records []model.MonthTaggedRecord
	for _, label := range labels {
		month, err := model.ParseMonth(strings.TrimPrefix(label, partitionPrefix))
		if err != nil {
			return nil, eris.Wrapf(model.ErrSchema, "partition directory %q is not a month label", label)
		}
		rows, err := readTable(filepath.Join(root, label, partitionDataFile), model.MonthTaggedColumns)
		if err != nil {
			return nil, eris.Wrapf(err, "partition %s", label)
		}
		for i, row := range rows {
			rec, err := decodeMonthTagged(row, i)
			if err != nil {
				return nil, eris.Wrapf(err, "partition %s", label)
			}
			if !rec.Month.Equal(month) {
				return nil, eris.Wrapf(model.ErrIntegrity, "partition %s row %d carries month %s", label, i, model.FormatMonth(rec.Month))
			}
			records = append(records, rec)
		}
	}
	return records, nil
}
