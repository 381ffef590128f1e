package pipeline

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/paddock-labs/tracker-cli/internal/model"
)

// Clean turns a month-tagged record set into the cleaned layer: one row per
// (race_id, constructor_id), points coerced to a finite non-negative number
// or missing, plus a report of the defects found. The input slice is not
// modified.
//
// Deduplication keeps the row with the highest comparable points value; a
// missing or unparseable value never beats a numeric one, and ties —
// including keys where every candidate is missing — keep the first
// occurrence in input order. Negative points are a recording defect: the
// value becomes missing and is counted, never clamped to zero.
func Clean(tagged []model.MonthTaggedRecord) ([]model.CleanedRecord, model.QualityReport, error) {
	var report model.QualityReport

	normalized, err := normalizeMonths(tagged)
	if err != nil {
		return nil, report, err
	}

	kept := dedupe(normalized, &report)

	cleaned := make([]model.CleanedRecord, 0, len(kept))
	for _, rec := range kept {
		points := coercePoints(rec.Points)
		if points != nil && *points < 0 {
			report.NegativePointsFound++
			points = nil
		}
		if points == nil {
			report.MissingPoints++
		}
		if strings.TrimSpace(rec.ConstructorName) == "" {
			report.MissingConstructorName++
		}
		cleaned = append(cleaned, model.CleanedRecord{
			RaceID:          rec.RaceID,
			RaceDate:        rec.RaceDate,
			Month:           rec.Month,
			ConstructorID:   rec.ConstructorID,
			ConstructorName: rec.ConstructorName,
			Points:          points,
		})
	}

	sort.Slice(cleaned, func(i, j int) bool {
		if cleaned[i].RaceID != cleaned[j].RaceID {
			return cleaned[i].RaceID < cleaned[j].RaceID
		}
		return cleaned[i].ConstructorID < cleaned[j].ConstructorID
	})

	if err := checkCleanInvariants(cleaned); err != nil {
		return nil, report, err
	}
	return cleaned, report, nil
}

// normalizeMonths validates each record's date fields, deriving the month
// from the race date when it was never set. A record with no usable race
// date cannot be cleaned: the schema promised one.
func normalizeMonths(tagged []model.MonthTaggedRecord) ([]model.MonthTaggedRecord, error) {
	out := make([]model.MonthTaggedRecord, 0, len(tagged))
	for i, rec := range tagged {
		if rec.RaceDate.IsZero() {
			return nil, eris.Wrapf(model.ErrSchema, "race_date missing at row %d %s", i, rec.Key())
		}
		if rec.Month.IsZero() {
			rec.Month = model.TruncateToMonth(rec.RaceDate)
		}
		if !model.FirstOfMonth(rec.Month) {
			return nil, eris.Wrapf(model.ErrInvariant, "month %s for %s is not a first-of-month date", rec.Month.Format("2006-01-02 15:04:05"), rec.Key())
		}
		out = append(out, rec)
	}
	return out, nil
}

// dedupe collapses records sharing a (race_id, constructor_id) key down to
// one winner each, counting the losers.
func dedupe(records []model.MonthTaggedRecord, report *model.QualityReport) []model.MonthTaggedRecord {
	type claim struct {
		pos    int
		points *float64
	}

	kept := make([]model.MonthTaggedRecord, 0, len(records))
	claims := make(map[model.RecordKey]claim, len(records))

	for _, rec := range records {
		points := coercePoints(rec.Points)
		prev, seen := claims[rec.Key()]
		if !seen {
			claims[rec.Key()] = claim{pos: len(kept), points: points}
			kept = append(kept, rec)
			continue
		}
		report.DuplicatesDropped++
		// Strictly greater: equal values keep the earlier occurrence.
		if points != nil && (prev.points == nil || *points > *prev.points) {
			kept[prev.pos] = rec
			claims[rec.Key()] = claim{pos: prev.pos, points: points}
		}
	}
	return kept
}

// coercePoints parses a raw points value. Empty, unparseable and non-finite
// values are missing. Negative values are preserved here so duplicate
// resolution can compare them; the sanitization pass decides their fate.
func coercePoints(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// checkCleanInvariants enforces the cleaner postconditions: no duplicate
// keys remain, months still satisfy the first-of-month invariant, and no
// negative points survived sanitization.
func checkCleanInvariants(cleaned []model.CleanedRecord) error {
	seen := make(map[model.RecordKey]struct{}, len(cleaned))
	for _, rec := range cleaned {
		if _, dup := seen[rec.Key()]; dup {
			return eris.Wrapf(model.ErrInvariant, "duplicate key %s remains after deduplication", rec.Key())
		}
		seen[rec.Key()] = struct{}{}
		if !model.FirstOfMonth(rec.Month) {
			return eris.Wrapf(model.ErrInvariant, "month %s for %s is not a first-of-month date", rec.Month.Format("2006-01-02 15:04:05"), rec.Key())
		}
		if rec.Points != nil && *rec.Points < 0 {
			return eris.Wrapf(model.ErrInvariant, "negative points %s survived sanitization for %s", model.FormatDecimal(*rec.Points), rec.Key())
		}
	}
	return nil
}
