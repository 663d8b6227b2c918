package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbt "checkmate/db/db"
)

// GetExchangeRate looks up a stored rate for (trip, date, currency).
func (s *GORMStore) GetExchangeRate(ctx context.Context, tripID uuid.UUID, date time.Time, currency string) (decimal.Decimal, error) {
	var model ExchangeRateModel
	result := s.db.WithContext(ctx).
		First(&model, "trip_id = ? AND date = ? AND currency = ?", tripID, date, currency)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return decimal.Zero, fmt.Errorf("rate %s on %s for trip %s: %w",
				currency, date.Format("2006-01-02"), tripID, dbt.ErrNotFound)
		}
		return decimal.Zero, fmt.Errorf("failed to get exchange rate: %w", result.Error)
	}
	return model.RateToBase, nil
}

// PutExchangeRate stores a fetched rate; re-fetching the same day upserts.
func (s *GORMStore) PutExchangeRate(ctx context.Context, rate dbt.ExchangeRate) error {
	model := ExchangeRateModel{
		TripID:     rate.TripID,
		Date:       rate.Date,
		Currency:   rate.Currency,
		RateToBase: rate.RateToBase,
	}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "trip_id"}, {Name: "date"}, {Name: "currency"}},
		DoUpdates: clause.AssignmentColumns([]string{"rate_to_base", "updated_at"}),
	}).Create(&model)
	if result.Error != nil {
		return fmt.Errorf("failed to store exchange rate: %w", result.Error)
	}
	return nil
}
