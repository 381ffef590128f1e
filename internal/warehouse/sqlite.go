package warehouse

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/paddock-labs/tracker-cli/internal/model"
)

// SQLiteWarehouse implements Loader using modernc.org/sqlite. Months are
// stored as YYYY-MM-01 text, which sorts chronologically.
type SQLiteWarehouse struct {
	db *sql.DB
}

var _ Loader = (*SQLiteWarehouse)(nil)

// OpenSQLite opens a sqlite warehouse at the given path and configures WAL
// mode.
func OpenSQLite(path string) (*SQLiteWarehouse, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "warehouse: create %s", dir)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "warehouse: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "warehouse: exec %s", pragma)
		}
	}
	return &SQLiteWarehouse{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS constructor_monthly (
	constructor_id   INTEGER NOT NULL,
	constructor_name TEXT NOT NULL,
	m                TEXT NOT NULL,
	points_m         REAL NOT NULL,
	mom_growth       REAL,
	loaded_at        DATETIME NOT NULL,
	PRIMARY KEY (constructor_id, m)
);

CREATE INDEX IF NOT EXISTS idx_constructor_monthly_m ON constructor_monthly(m);
`

func (w *SQLiteWarehouse) Migrate(ctx context.Context) error {
	_, err := w.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "warehouse: migrate sqlite")
}

func (w *SQLiteWarehouse) Load(ctx context.Context, rows []model.MonthlyAggregate) (int64, error) {
	return w.insert(ctx, rows, false)
}

func (w *SQLiteWarehouse) Replace(ctx context.Context, rows []model.MonthlyAggregate) (int64, error) {
	return w.insert(ctx, rows, true)
}

func (w *SQLiteWarehouse) insert(ctx context.Context, rows []model.MonthlyAggregate, replace bool) (int64, error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "warehouse: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if replace {
		if _, err := tx.ExecContext(ctx, `DELETE FROM constructor_monthly`); err != nil {
			return 0, eris.Wrap(err, "warehouse: clear constructor_monthly")
		}
	}

	loadedAt := time.Now().UTC()
	for _, row := range rows {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO constructor_monthly
			   (constructor_id, constructor_name, m, points_m, mom_growth, loaded_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (constructor_id, m) DO UPDATE SET
			   constructor_name = excluded.constructor_name,
			   points_m = excluded.points_m,
			   mom_growth = excluded.mom_growth,
			   loaded_at = excluded.loaded_at`,
			row.ConstructorID, row.ConstructorName, model.FormatMonth(row.Month),
			row.PointsTotal, row.MoMGrowth, loadedAt,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "warehouse: upsert constructor %d month %s",
				row.ConstructorID, model.FormatMonth(row.Month))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "warehouse: commit tx")
	}
	return int64(len(rows)), nil
}

func (w *SQLiteWarehouse) Count(ctx context.Context) (int64, error) {
	var n int64
	err := w.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM constructor_monthly`).Scan(&n)
	if err != nil {
		return 0, eris.Wrap(err, "warehouse: count")
	}
	return n, nil
}

func (w *SQLiteWarehouse) Close() error {
	return w.db.Close()
}
