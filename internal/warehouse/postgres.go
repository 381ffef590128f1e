package warehouse

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/paddock-labs/tracker-cli/internal/db"
	"github.com/paddock-labs/tracker-cli/internal/model"
)

// PostgresWarehouse implements Loader over a pgx pool.
type PostgresWarehouse struct {
	pool db.Pool
}

var _ Loader = (*PostgresWarehouse)(nil)

// NewPostgres wraps an existing pool. Tests hand in pgxmock here.
func NewPostgres(pool db.Pool) *PostgresWarehouse {
	return &PostgresWarehouse{pool: pool}
}

// OpenPostgres connects to the given database URL and verifies the
// connection.
func OpenPostgres(ctx context.Context, url string) (*PostgresWarehouse, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, eris.Wrap(err, "warehouse: connect postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "warehouse: ping postgres")
	}
	return NewPostgres(pool), nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS constructor_monthly (
	constructor_id   BIGINT NOT NULL,
	constructor_name TEXT NOT NULL,
	m                DATE NOT NULL,
	points_m         DOUBLE PRECISION NOT NULL,
	mom_growth       DOUBLE PRECISION,
	loaded_at        TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (constructor_id, m)
)`

func (w *PostgresWarehouse) Migrate(ctx context.Context) error {
	if _, err := w.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "warehouse: migrate postgres")
	}
	return nil
}

func (w *PostgresWarehouse) Load(ctx context.Context, rows []model.MonthlyAggregate) (int64, error) {
	return db.BulkUpsert(ctx, w.pool, db.UpsertConfig{
		Table:        Table,
		Columns:      Columns,
		ConflictKeys: []string{"constructor_id", "m"},
	}, buildRows(rows))
}

// Replace truncates the table and bulk-copies the rows in. Runs as two
// statements; a failed copy leaves the table empty, and rerunning the load
// restores it.
func (w *PostgresWarehouse) Replace(ctx context.Context, rows []model.MonthlyAggregate) (int64, error) {
	if _, err := w.pool.Exec(ctx, `TRUNCATE TABLE constructor_monthly`); err != nil {
		return 0, eris.Wrap(err, "warehouse: truncate constructor_monthly")
	}
	return db.CopyFrom(ctx, w.pool, Table, Columns, buildRows(rows))
}

func (w *PostgresWarehouse) Count(ctx context.Context) (int64, error) {
	var n int64
	err := w.pool.QueryRow(ctx, `SELECT COUNT(*) FROM constructor_monthly`).Scan(&n)
	if err != nil {
		return 0, eris.Wrap(err, "warehouse: count")
	}
	return n, nil
}

func (w *PostgresWarehouse) Close() error {
	w.pool.Close()
	return nil
}

func buildRows(rows []model.MonthlyAggregate) [][]any {
	loadedAt := time.Now().UTC()
	out := make([][]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, []any{
			row.ConstructorID,
			row.ConstructorName,
			row.Month,
			row.PointsTotal,
			row.MoMGrowth,
			loadedAt,
		})
	}
	return out
}
