package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upInitTables, downInitTables)
}

func upInitTables(ctx context.Context, tx *sql.Tx) error {
	// Create users table
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE users (
			id UUID PRIMARY KEY,
			username VARCHAR(255) NOT NULL UNIQUE,
			email VARCHAR(255) NOT NULL UNIQUE,
			hashed_password VARCHAR(255) NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return err
	}

	// Create trips table
	_, err = tx.ExecContext(ctx, `
		CREATE TABLE trips (
			id UUID PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			start_date DATE NOT NULL,
			end_date DATE NOT NULL,
			status VARCHAR(32) NOT NULL DEFAULT 'Upcoming',
			is_settled BOOLEAN NOT NULL DEFAULT FALSE,
			base_currency VARCHAR(8) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return err
	}

	// Create trip_participants table
	_, err = tx.ExecContext(ctx, `
		CREATE TABLE trip_participants (
			trip_id UUID NOT NULL,
			user_id UUID NOT NULL,
			is_creator BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (trip_id, user_id),
			CONSTRAINT fk_trip_participants_trip
				FOREIGN KEY(trip_id)
				REFERENCES trips(id)
				ON UPDATE CASCADE
				ON DELETE CASCADE,
			CONSTRAINT fk_trip_participants_user
				FOREIGN KEY(user_id)
				REFERENCES users(id)
				ON UPDATE CASCADE
				ON DELETE CASCADE
		);
	`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `CREATE INDEX idx_trip_participants_user_id ON trip_participants(user_id);`)
	if err != nil {
		return err
	}

	// Create expenses table
	_, err = tx.ExecContext(ctx, `
		CREATE TABLE expenses (
			id UUID PRIMARY KEY,
			trip_id UUID NOT NULL,
			payer_id UUID NOT NULL,
			date DATE NOT NULL,
			amount NUMERIC(15,2) NOT NULL,
			currency VARCHAR(8) NOT NULL,
			amount_base NUMERIC(15,2) NOT NULL,
			description VARCHAR(255) NOT NULL,
			category VARCHAR(64) NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT fk_expenses_trip
				FOREIGN KEY(trip_id)
				REFERENCES trips(id)
				ON UPDATE CASCADE
				ON DELETE CASCADE,
			CONSTRAINT fk_expenses_payer
				FOREIGN KEY(payer_id)
				REFERENCES users(id)
				ON UPDATE CASCADE
		);
	`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `CREATE INDEX idx_expenses_trip_id_date ON expenses(trip_id, date);`)
	if err != nil {
		return err
	}

	// Create expense_participants table
	_, err = tx.ExecContext(ctx, `
		CREATE TABLE expense_participants (
			expense_id UUID NOT NULL,
			user_id UUID NOT NULL,
			share_amount_base NUMERIC(15,2) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (expense_id, user_id),
			CONSTRAINT fk_expense_participants_expense
				FOREIGN KEY(expense_id)
				REFERENCES expenses(id)
				ON UPDATE CASCADE
				ON DELETE CASCADE,
			CONSTRAINT fk_expense_participants_user
				FOREIGN KEY(user_id)
				REFERENCES users(id)
				ON UPDATE CASCADE
		);
	`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `CREATE INDEX idx_expense_participants_user_id ON expense_participants(user_id);`)
	if err != nil {
		return err
	}

	// Create exchange_rates table
	_, err = tx.ExecContext(ctx, `
		CREATE TABLE exchange_rates (
			trip_id UUID NOT NULL,
			date DATE NOT NULL,
			currency VARCHAR(8) NOT NULL,
			rate_to_base NUMERIC(20,8) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (trip_id, date, currency),
			CONSTRAINT fk_exchange_rates_trip
				FOREIGN KEY(trip_id)
				REFERENCES trips(id)
				ON UPDATE CASCADE
				ON DELETE CASCADE
		);
	`)
	if err != nil {
		return err
	}

	// Create settlement_results table
	_, err = tx.ExecContext(ctx, `
		CREATE TABLE settlement_results (
			id UUID PRIMARY KEY,
			trip_id UUID NOT NULL UNIQUE,
			base_currency VARCHAR(8) NOT NULL,
			net_balances JSONB NOT NULL,
			transfers JSONB NOT NULL,
			total_expenses_base NUMERIC(15,2) NOT NULL,
			participant_count INTEGER NOT NULL,
			residual_base NUMERIC(15,2) NOT NULL DEFAULT 0,
			summary TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT fk_settlement_results_trip
				FOREIGN KEY(trip_id)
				REFERENCES trips(id)
				ON UPDATE CASCADE
				ON DELETE CASCADE
		);
	`)
	if err != nil {
		return err
	}

	return nil
}

func downInitTables(ctx context.Context, tx *sql.Tx) error {
	for _, table := range []string{
		"settlement_results",
		"exchange_rates",
		"expense_participants",
		"expenses",
		"trip_participants",
		"trips",
		"users",
	} {
		if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+table+`;`); err != nil {
			return err
		}
	}
	return nil
}
