package pipeline

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/paddock-labs/tracker-cli/internal/model"
)

// DeriveMonths produces the month-tagged form of raw: every record gains a
// month value holding the first day of the month containing its race date.
// The input slice is not modified.
//
// An absent or unparseable race date is a schema failure: the raw layer
// promises a date-typed column. Offset-bearing dates keep their wall-clock
// reading, so the date as written decides the month.
func DeriveMonths(raw []model.RawPointRecord) ([]model.MonthTaggedRecord, error) {
	tagged := make([]model.MonthTaggedRecord, 0, len(raw))
	for i, rec := range raw {
		if strings.TrimSpace(rec.RaceDate) == "" {
			return nil, eris.Wrapf(model.ErrSchema, "race_date missing at row %d %s", i, rec.Key())
		}
		d, err := model.ParseRaceDate(rec.RaceDate)
		if err != nil {
			return nil, eris.Wrapf(model.ErrSchema, "race_date %q at row %d %s is not a date", rec.RaceDate, i, rec.Key())
		}
		tagged = append(tagged, model.MonthTaggedRecord{
			RaceID:          rec.RaceID,
			RaceDate:        d,
			ConstructorID:   rec.ConstructorID,
			ConstructorName: rec.ConstructorName,
			Points:          rec.Points,
			Month:           model.TruncateToMonth(d),
		})
	}
	if err := checkDeriveInvariants(raw, tagged); err != nil {
		return nil, err
	}
	return tagged, nil
}

// checkDeriveInvariants enforces the derive postconditions: row count
// conserved, key uniqueness unchanged, month always a first-of-month date.
// Pre-existing duplicate keys are not an error here — resolving them is the
// cleaner's job — but the stage must not add or lose any.
func checkDeriveInvariants(raw []model.RawPointRecord, tagged []model.MonthTaggedRecord) error {
	if len(tagged) != len(raw) {
		return eris.Wrapf(model.ErrInvariant, "row count changed during month derivation: got %d, want %d", len(tagged), len(raw))
	}

	before := make(map[model.RecordKey]struct{}, len(raw))
	for _, rec := range raw {
		before[rec.Key()] = struct{}{}
	}
	after := make(map[model.RecordKey]struct{}, len(tagged))
	for _, rec := range tagged {
		after[rec.Key()] = struct{}{}
	}
	if len(after) != len(before) {
		return eris.Wrapf(model.ErrInvariant, "distinct key count changed during month derivation: got %d, want %d", len(after), len(before))
	}

	for _, rec := range tagged {
		if !model.FirstOfMonth(rec.Month) {
			return eris.Wrapf(model.ErrInvariant, "month %s for %s is not a first-of-month date", rec.Month.Format("2006-01-02 15:04:05"), rec.Key())
		}
	}
	return nil
}
