package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upAddExpenseTimeAndOrder, downAddExpenseTimeAndOrder)
}

func upAddExpenseTimeAndOrder(ctx context.Context, tx *sql.Tx) error {
	// time is nullable: untimed expenses sort by display_order instead.
	_, err := tx.ExecContext(ctx, `ALTER TABLE expenses ADD COLUMN time TIMESTAMPTZ;`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `ALTER TABLE expenses ADD COLUMN display_order INTEGER NOT NULL DEFAULT 0;`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `CREATE INDEX idx_expenses_trip_id_date_display_order ON expenses(trip_id, date, display_order);`)
	return err
}

func downAddExpenseTimeAndOrder(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP INDEX IF EXISTS idx_expenses_trip_id_date_display_order;`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `ALTER TABLE expenses DROP COLUMN IF EXISTS display_order;`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `ALTER TABLE expenses DROP COLUMN IF EXISTS time;`)
	return err
}
