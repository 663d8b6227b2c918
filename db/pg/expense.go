package pg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbt "checkmate/db/db"
)

// CreateExpense persists an expense and its participant shares in one
// transaction.
func (s *GORMStore) CreateExpense(ctx context.Context, expense *dbt.Expense) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := expenseToModel(expense)
		if err := tx.Create(&model).Error; err != nil {
			if strings.Contains(err.Error(), "violates foreign key constraint") {
				return fmt.Errorf("trip %s for expense %s: %w", expense.TripID, expense.ID, dbt.ErrNotFound)
			}
			return fmt.Errorf("failed to create expense: %w", err)
		}
		return createShares(tx, expense.ID, expense.Shares)
	})
}

// GetExpense retrieves an expense with its shares.
func (s *GORMStore) GetExpense(ctx context.Context, id uuid.UUID) (*dbt.Expense, error) {
	var model ExpenseModel
	result := s.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("expense %s: %w", id, dbt.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get expense %s: %w", id, result.Error)
	}

	shares, err := s.DataLoaderListShares(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	expense := expenseFromModel(&model)
	expense.Shares = shares[id]
	return expense, nil
}

// ListExpensesByDate returns a day's expenses for one trip in display
// order: timed expenses first sorted by time, then untimed ones sorted by
// display_order, id as the final tiebreak.
func (s *GORMStore) ListExpensesByDate(ctx context.Context, tripID uuid.UUID, date time.Time) ([]dbt.Expense, error) {
	var models []ExpenseModel
	result := s.db.WithContext(ctx).
		Where("trip_id = ? AND date = ?", tripID, date).
		Order("time IS NULL, time, display_order, id").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list expenses for trip %s on %s: %w", tripID, date.Format("2006-01-02"), result.Error)
	}
	return s.attachShares(ctx, models)
}

// listTripExpenses loads every expense for the trip, shares included.
func (s *GORMStore) listTripExpenses(ctx context.Context, tripID uuid.UUID) ([]dbt.Expense, error) {
	var models []ExpenseModel
	result := s.db.WithContext(ctx).Where("trip_id = ?", tripID).Order("date, display_order, id").Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list expenses for trip %s: %w", tripID, result.Error)
	}
	return s.attachShares(ctx, models)
}

func (s *GORMStore) attachShares(ctx context.Context, models []ExpenseModel) ([]dbt.Expense, error) {
	ids := make([]uuid.UUID, 0, len(models))
	for _, m := range models {
		ids = append(ids, m.ID)
	}
	shares, err := s.DataLoaderListShares(ctx, ids)
	if err != nil {
		return nil, err
	}

	expenses := make([]dbt.Expense, 0, len(models))
	for i := range models {
		expense := expenseFromModel(&models[i])
		expense.Shares = shares[expense.ID]
		expenses = append(expenses, *expense)
	}
	return expenses, nil
}

// UpdateExpense rewrites an expense's mutable columns and replaces its
// share rows in one transaction.
func (s *GORMStore) UpdateExpense(ctx context.Context, expense *dbt.Expense) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := expenseToModel(expense)
		result := tx.Model(&model).
			Select("date", "time", "amount", "currency", "amount_base", "description", "category", "display_order").
			Where("id = ?", expense.ID).
			Updates(model)
		if result.Error != nil {
			return fmt.Errorf("failed to update expense %s: %w", expense.ID, result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("expense %s: %w", expense.ID, dbt.ErrNotFound)
		}

		if err := tx.Where("expense_id = ?", expense.ID).Delete(&ExpenseParticipantModel{}).Error; err != nil {
			return fmt.Errorf("failed to clear shares for expense %s: %w", expense.ID, err)
		}
		return createShares(tx, expense.ID, expense.Shares)
	})
}

// UpdateExpenseOrder moves an expense within its day.
func (s *GORMStore) UpdateExpenseOrder(ctx context.Context, id uuid.UUID, displayOrder int) error {
	result := s.db.WithContext(ctx).Model(&ExpenseModel{}).Where("id = ?", id).Update("display_order", displayOrder)
	if result.Error != nil {
		return fmt.Errorf("failed to reorder expense %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("expense %s: %w", id, dbt.ErrNotFound)
	}
	return nil
}

// DeleteExpense removes an expense and returns its last known state.
// Share rows go with it via ON DELETE CASCADE.
func (s *GORMStore) DeleteExpense(ctx context.Context, id uuid.UUID) (*dbt.Expense, error) {
	expense, err := s.GetExpense(ctx, id)
	if err != nil {
		return nil, err
	}
	result := s.db.WithContext(ctx).Delete(&ExpenseModel{}, "id = ?", id)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to delete expense %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("expense %s: %w", id, dbt.ErrNotFound)
	}
	return expense, nil
}

// NextDisplayOrder returns one past the highest display_order used on the
// given trip day.
func (s *GORMStore) NextDisplayOrder(ctx context.Context, tripID uuid.UUID, date time.Time) (int, error) {
	var row struct {
		Next int
	}
	result := s.db.WithContext(ctx).
		Model(&ExpenseModel{}).
		Select("COALESCE(MAX(display_order), 0) + 1 AS next").
		Where("trip_id = ? AND date = ?", tripID, date).
		Scan(&row)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to compute next display order: %w", result.Error)
	}
	return row.Next, nil
}

// DataLoaderListShares retrieves the shares of multiple expenses in one
// query. Designed for use with a dataloader to batch list endpoints.
func (s *GORMStore) DataLoaderListShares(ctx context.Context, expenseIDs []uuid.UUID) (map[uuid.UUID][]dbt.ExpenseShare, error) {
	shares := make(map[uuid.UUID][]dbt.ExpenseShare, len(expenseIDs))
	if len(expenseIDs) == 0 {
		return shares, nil
	}

	var models []ExpenseParticipantModel
	result := s.db.WithContext(ctx).Where("expense_id IN ?", expenseIDs).Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to load expense shares: %w", result.Error)
	}
	for _, m := range models {
		shares[m.ExpenseID] = append(shares[m.ExpenseID], dbt.ExpenseShare{
			UserID:          m.UserID,
			ShareAmountBase: m.ShareAmountBase,
		})
	}
	return shares, nil
}

func createShares(tx *gorm.DB, expenseID uuid.UUID, shares []dbt.ExpenseShare) error {
	if len(shares) == 0 {
		return nil
	}
	models := make([]ExpenseParticipantModel, 0, len(shares))
	for _, share := range shares {
		models = append(models, ExpenseParticipantModel{
			ExpenseID:       expenseID,
			UserID:          share.UserID,
			ShareAmountBase: share.ShareAmountBase,
		})
	}
	if err := tx.Create(&models).Error; err != nil {
		return fmt.Errorf("failed to create shares for expense %s: %w", expenseID, err)
	}
	return nil
}

func expenseToModel(e *dbt.Expense) ExpenseModel {
	return ExpenseModel{
		ID:           e.ID,
		TripID:       e.TripID,
		PayerID:      e.PayerID,
		Date:         e.Date,
		Time:         e.Time,
		Amount:       e.Amount,
		Currency:     e.Currency,
		AmountBase:   e.AmountBase,
		Description:  e.Description,
		Category:     e.Category,
		DisplayOrder: e.DisplayOrder,
	}
}

func expenseFromModel(m *ExpenseModel) *dbt.Expense {
	return &dbt.Expense{
		ID:           m.ID,
		TripID:       m.TripID,
		PayerID:      m.PayerID,
		Date:         m.Date,
		Time:         m.Time,
		Amount:       m.Amount,
		Currency:     m.Currency,
		AmountBase:   m.AmountBase,
		Description:  m.Description,
		Category:     m.Category,
		DisplayOrder: m.DisplayOrder,
	}
}
