package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Querier is an interface satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Ensure interfaces are satisfied.
var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
)

// rosterSchema creates the fleet roster table. Orders are held in memory by
// the console and have no table.
const rosterSchema = `
	CREATE TABLE IF NOT EXISTS vehicles (
		id             TEXT PRIMARY KEY,
		plate_number   TEXT NOT NULL UNIQUE,
		driver_name    TEXT,
		vehicle_type   TEXT,
		wallet_balance INTEGER NOT NULL DEFAULT 0,
		status         TEXT NOT NULL DEFAULT 'OFFLINE'
	)
`

// EnsureSchema creates the roster table if it does not exist yet.
func EnsureSchema(ctx context.Context, q Querier) error {
	if _, err := q.ExecContext(ctx, rosterSchema); err != nil {
		return fmt.Errorf("failed to create vehicles table: %w", err)
	}
	return nil
}
