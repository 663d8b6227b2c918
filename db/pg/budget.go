package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbt "checkmate/db/db"
)

// GetBudget retrieves a user's personal budget for a trip.
func (s *GORMStore) GetBudget(ctx context.Context, tripID, userID uuid.UUID) (*dbt.Budget, error) {
	var model BudgetModel
	result := s.db.WithContext(ctx).First(&model, "trip_id = ? AND user_id = ?", tripID, userID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("budget for user %s in trip %s: %w", userID, tripID, dbt.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get budget: %w", result.Error)
	}
	return &dbt.Budget{
		TripID:     model.TripID,
		UserID:     model.UserID,
		AmountBase: model.AmountBase,
	}, nil
}

// UpsertBudget creates or replaces a user's budget for a trip.
func (s *GORMStore) UpsertBudget(ctx context.Context, budget *dbt.Budget) error {
	model := BudgetModel{
		TripID:     budget.TripID,
		UserID:     budget.UserID,
		AmountBase: budget.AmountBase,
	}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "trip_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"amount_base", "updated_at"}),
	}).Create(&model)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert budget: %w", result.Error)
	}
	return nil
}

// SumUserShares totals the user's expense shares across the trip.
func (s *GORMStore) SumUserShares(ctx context.Context, tripID, userID uuid.UUID) (decimal.Decimal, error) {
	var row struct {
		Total decimal.Decimal
	}
	result := s.db.WithContext(ctx).
		Table("expense_participants").
		Select("COALESCE(SUM(expense_participants.share_amount_base), 0) AS total").
		Joins("JOIN expenses ON expenses.id = expense_participants.expense_id").
		Where("expenses.trip_id = ? AND expense_participants.user_id = ?", tripID, userID).
		Scan(&row)
	if result.Error != nil {
		return decimal.Zero, fmt.Errorf("failed to sum shares for user %s in trip %s: %w", userID, tripID, result.Error)
	}
	return row.Total, nil
}
