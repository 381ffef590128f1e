// Package warehouse loads the aggregate layer into an analytical store so
// SQL consumers can query monthly constructor totals without touching the
// lake files. Two drivers: sqlite for a local single file, postgres for a
// shared server.
package warehouse

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/paddock-labs/tracker-cli/internal/config"
	"github.com/paddock-labs/tracker-cli/internal/model"
)

// Table is the target table in both drivers.
const Table = "constructor_monthly"

// Columns is the column set loaded by both drivers, in insert order.
var Columns = []string{"constructor_id", "constructor_name", "m", "points_m", "mom_growth", "loaded_at"}

// Loader is the driver-independent surface the load command works against.
type Loader interface {
	// Migrate creates the target table if missing.
	Migrate(ctx context.Context) error
	// Load upserts aggregate rows: the same (constructor_id, m) loaded twice
	// updates in place rather than duplicating.
	Load(ctx context.Context, rows []model.MonthlyAggregate) (int64, error)
	// Replace empties the table and loads the rows fresh.
	Replace(ctx context.Context, rows []model.MonthlyAggregate) (int64, error)
	// Count reports how many rows the table holds.
	Count(ctx context.Context) (int64, error)
	Close() error
}

// Open builds the configured driver.
func Open(ctx context.Context, cfg config.WarehouseConfig) (Loader, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return OpenSQLite(cfg.Path)
	case "postgres":
		return OpenPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("warehouse: unknown driver %q (want sqlite or postgres)", cfg.Driver)
	}
}
