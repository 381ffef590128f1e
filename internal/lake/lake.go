// Package lake owns the physical data layers: where each layer artifact
// lives under the lake root and how records are encoded to and from the
// layer files. Layer schemas are fixed contracts (see internal/model); the
// lake only decides their physical placement.
package lake

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Layout selects the physical form of the month-tagged layer.
type Layout string

const (
	// LayoutSingle stores the month-tagged layer as one file.
	LayoutSingle Layout = "single"
	// LayoutPartitioned stores the month-tagged layer as one directory per
	// month.
	LayoutPartitioned Layout = "partitioned"
)

// ParseLayout normalizes a configured layout value. Empty selects
// LayoutSingle.
func ParseLayout(s string) (Layout, error) {
	switch Layout(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return LayoutSingle, nil
	case LayoutSingle:
		return LayoutSingle, nil
	case LayoutPartitioned:
		return LayoutPartitioned, nil
	}
	return "", eris.Errorf("unknown lake layout %q (want %q or %q)", s, LayoutSingle, LayoutPartitioned)
}

// Config locates the layer artifacts under a root directory. Empty fields
// fall back to the conventional names.
type Config struct {
	Root          string
	Layout        Layout
	RawFile       string
	MonthFile     string
	PartitionDir  string
	CleanedFile   string
	AggregateFile string
}

// Lake is the physical home of the data layers.
type Lake struct {
	root          string
	layout        Layout
	rawFile       string
	monthFile     string
	partitionDir  string
	cleanedFile   string
	aggregateFile string
}

// New builds a Lake from cfg, filling unset fields with the conventional
// bronze/silver/gold names.
func New(cfg Config) *Lake {
	if cfg.Root == "" {
		cfg.Root = "data"
	}
	if cfg.Layout == "" {
		cfg.Layout = LayoutSingle
	}
	if cfg.RawFile == "" {
		cfg.RawFile = filepath.Join("bronze", "race_constructor_points.csv")
	}
	if cfg.MonthFile == "" {
		cfg.MonthFile = filepath.Join("bronze", "race_constructor_points_with_month.csv")
	}
	if cfg.PartitionDir == "" {
		cfg.PartitionDir = filepath.Join("bronze", "by_month")
	}
	if cfg.CleanedFile == "" {
		cfg.CleanedFile = filepath.Join("silver", "constructor_race_points.csv")
	}
	if cfg.AggregateFile == "" {
		cfg.AggregateFile = filepath.Join("gold", "constructor_monthly.csv")
	}
	return &Lake{
		root:          cfg.Root,
		layout:        cfg.Layout,
		rawFile:       cfg.RawFile,
		monthFile:     cfg.MonthFile,
		partitionDir:  cfg.PartitionDir,
		cleanedFile:   cfg.CleanedFile,
		aggregateFile: cfg.AggregateFile,
	}
}

// Layout reports the configured month-tagged layout.
func (l *Lake) Layout() Layout { return l.layout }

// RawPath is the raw layer file.
func (l *Lake) RawPath() string { return filepath.Join(l.root, l.rawFile) }

// MonthPath is the single-file month-tagged layer.
func (l *Lake) MonthPath() string { return filepath.Join(l.root, l.monthFile) }

// PartitionRoot is the directory holding the per-month partitions.
func (l *Lake) PartitionRoot() string { return filepath.Join(l.root, l.partitionDir) }

// CleanedPath is the cleaned layer file.
func (l *Lake) CleanedPath() string { return filepath.Join(l.root, l.cleanedFile) }

// AggregatePath is the aggregate layer file.
func (l *Lake) AggregatePath() string { return filepath.Join(l.root, l.aggregateFile) }
