package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upAddBudgets, downAddBudgets)
}

func upAddBudgets(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE budgets (
			trip_id UUID NOT NULL,
			user_id UUID NOT NULL,
			amount_base NUMERIC(15,2) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (trip_id, user_id),
			CONSTRAINT fk_budgets_trip_participant
				FOREIGN KEY(trip_id, user_id)
				REFERENCES trip_participants(trip_id, user_id)
				ON UPDATE CASCADE
				ON DELETE CASCADE
		);
	`)
	return err
}

func downAddBudgets(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS budgets;`)
	return err
}
