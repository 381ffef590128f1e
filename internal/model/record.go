package model

import (
	"fmt"
	"time"
)

// Layer column headers. These are fixed contracts with the downstream
// renderer and must not be reordered or renamed; files are written with
// columns in exactly this order.
var (
	RawColumns         = []string{"race_id", "race_date", "constructor_id", "constructor_name", "points"}
	MonthTaggedColumns = []string{"race_id", "race_date", "constructor_id", "constructor_name", "points", "m"}
	CleanedColumns     = []string{"race_id", "race_date", "m", "constructor_id", "constructor_name", "points"}
	AggregateColumns   = []string{"constructor_id", "constructor_name", "m", "points_m", "mom_growth"}
)

// RecordKey identifies a row within the raw, month-tagged and cleaned
// layers. The pair must be unique within a layer once cleaned.
type RecordKey struct {
	RaceID        int64
	ConstructorID int64
}

func (k RecordKey) String() string {
	return fmt.Sprintf("(race_id=%d, constructor_id=%d)", k.RaceID, k.ConstructorID)
}

// RawPointRecord is one (race, constructor) observation as ingested.
// RaceDate and Points carry the source text verbatim: raw input may be
// malformed or negative, and nothing is coerced until the later stages.
type RawPointRecord struct {
	RaceID          int64
	RaceDate        string
	ConstructorID   int64
	ConstructorName string
	Points          string
}

// Key returns the record's identity key.
func (r RawPointRecord) Key() RecordKey {
	return RecordKey{RaceID: r.RaceID, ConstructorID: r.ConstructorID}
}

// MonthTaggedRecord is a RawPointRecord whose race date has been parsed and
// annotated with the first day of its containing month. Points is still the
// raw text; sanitization belongs to the cleaner.
type MonthTaggedRecord struct {
	RaceID          int64
	RaceDate        time.Time
	ConstructorID   int64
	ConstructorName string
	Points          string
	Month           time.Time
}

// Key returns the record's identity key.
func (r MonthTaggedRecord) Key() RecordKey {
	return RecordKey{RaceID: r.RaceID, ConstructorID: r.ConstructorID}
}

// CleanedRecord is a deduplicated, sanitized observation. Points is nil when
// the source value was missing, unparseable, or negative; it is never
// negative.
type CleanedRecord struct {
	RaceID          int64
	RaceDate        time.Time
	Month           time.Time
	ConstructorID   int64
	ConstructorName string
	Points          *float64
}

// Key returns the record's identity key.
func (r CleanedRecord) Key() RecordKey {
	return RecordKey{RaceID: r.RaceID, ConstructorID: r.ConstructorID}
}

// MonthlyAggregate is one row of the aggregate layer: a constructor's total
// points for one month plus growth against its previous present month.
// MoMGrowth is nil when the constructor has no earlier aggregated month or
// the earlier month's total is zero.
type MonthlyAggregate struct {
	ConstructorID   int64     `json:"constructor_id"`
	ConstructorName string    `json:"constructor_name"`
	Month           time.Time `json:"m"`
	PointsTotal     float64   `json:"points_m"`
	MoMGrowth       *float64  `json:"mom_growth"`
}

// QualityReport counts the expected data-quality defects found while
// cleaning. These are metrics, not errors: defective values are sanitized
// and the run continues.
type QualityReport struct {
	DuplicatesDropped      int `json:"duplicates_dropped"`
	NegativePointsFound    int `json:"neg_points_found"`
	MissingPoints          int `json:"missing_points"`
	MissingConstructorName int `json:"missing_constructor_name"`
}
