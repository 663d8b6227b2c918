package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbt "checkmate/db/db"
	"checkmate/settle"
)

// LoadExpenses implements settle.LedgerStore: the trip's full ledger with
// every amount already in the trip's base currency.
func (s *GORMStore) LoadExpenses(ctx context.Context, tripID uuid.UUID) (*settle.TripLedger, error) {
	trip, err := s.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}

	expenses, err := s.listTripExpenses(ctx, tripID)
	if err != nil {
		return nil, err
	}

	ledger := &settle.TripLedger{
		TripID:       tripID,
		BaseCurrency: trip.BaseCurrency,
		Expenses:     make([]settle.Expense, 0, len(expenses)),
	}
	for _, e := range expenses {
		entry := settle.Expense{
			ID:         e.ID,
			PayerID:    e.PayerID,
			AmountBase: e.AmountBase,
			// amount_base is normalized at write time, so the ledger entry
			// carries the trip's base currency by construction
			Currency: trip.BaseCurrency,
			Shares:   make([]settle.Share, 0, len(e.Shares)),
		}
		for _, share := range e.Shares {
			entry.Shares = append(entry.Shares, settle.Share{
				UserID:     share.UserID,
				AmountBase: share.ShareAmountBase,
			})
		}
		ledger.Expenses = append(ledger.Expenses, entry)
	}
	return ledger, nil
}

// ReplaceSettlementResult implements settle.ResultStore: delete any prior
// result for the trip, insert the new one and mark the trip settled, all in
// one transaction so the two effects are visible together or not at all.
func (s *GORMStore) ReplaceSettlementResult(ctx context.Context, tripID uuid.UUID, result *settle.Result) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("trip_id = ?", tripID).Delete(&SettlementResultModel{}).Error; err != nil {
			return fmt.Errorf("failed to delete prior settlement results for trip %s: %w", tripID, err)
		}

		model := SettlementResultModel{
			ID:                uuid.New(),
			TripID:            tripID,
			BaseCurrency:      result.BaseCurrency,
			NetBalances:       BalanceEntriesJSON(result.NetBalances),
			Transfers:         TransferEntriesJSON(result.Transfers),
			TotalExpensesBase: result.TotalExpensesBase,
			ParticipantCount:  result.ParticipantCount,
			ResidualBase:      result.ResidualBase,
			Summary:           result.Summary,
			CreatedAt:         result.CreatedAt,
		}
		if err := tx.Create(&model).Error; err != nil {
			return fmt.Errorf("failed to store settlement result for trip %s: %w", tripID, err)
		}

		update := tx.Model(&TripModel{}).Where("id = ?", tripID).Updates(map[string]interface{}{
			"is_settled": true,
			"status":     string(dbt.TripStatusSettled),
		})
		if update.Error != nil {
			return fmt.Errorf("failed to mark trip %s settled: %w", tripID, update.Error)
		}
		if update.RowsAffected == 0 {
			return fmt.Errorf("trip %s: %w", tripID, dbt.ErrNotFound)
		}
		return nil
	})
}

// GetSettlementResult returns the trip's latest (and only) stored result.
func (s *GORMStore) GetSettlementResult(ctx context.Context, tripID uuid.UUID) (*settle.Result, error) {
	var model SettlementResultModel
	result := s.db.WithContext(ctx).Where("trip_id = ?", tripID).Order("created_at DESC").First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("settlement result for trip %s: %w", tripID, dbt.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get settlement result for trip %s: %w", tripID, result.Error)
	}

	return &settle.Result{
		TripID:            model.TripID,
		BaseCurrency:      model.BaseCurrency,
		NetBalances:       []settle.BalanceEntry(model.NetBalances),
		Transfers:         []settle.TransferEntry(model.Transfers),
		TotalExpensesBase: model.TotalExpensesBase,
		ParticipantCount:  model.ParticipantCount,
		ResidualBase:      model.ResidualBase,
		Summary:           model.Summary,
		CreatedAt:         model.CreatedAt,
	}, nil
}
