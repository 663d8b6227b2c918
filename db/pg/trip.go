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

// CreateTrip creates a trip and enrolls the creator as its first
// participant in one transaction.
func (s *GORMStore) CreateTrip(ctx context.Context, info *dbt.TripInfo, creatorID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := TripModel{
			ID:           info.ID,
			Name:         info.Name,
			StartDate:    info.StartDate,
			EndDate:      info.EndDate,
			Status:       string(info.Status),
			IsSettled:    info.IsSettled,
			BaseCurrency: info.BaseCurrency,
		}
		if err := tx.Create(&model).Error; err != nil {
			if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
				return fmt.Errorf("trip %s: %w", info.ID, dbt.ErrAlreadyExists)
			}
			return fmt.Errorf("failed to create trip: %w", err)
		}

		participant := TripParticipantModel{
			TripID:    info.ID,
			UserID:    creatorID,
			IsCreator: true,
		}
		if err := tx.Create(&participant).Error; err != nil {
			return fmt.Errorf("failed to enroll trip creator: %w", err)
		}
		return nil
	})
}

// GetTrip retrieves trip information by ID using GORM.
func (s *GORMStore) GetTrip(ctx context.Context, id uuid.UUID) (*dbt.TripInfo, error) {
	var model TripModel
	result := s.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("trip %s: %w", id, dbt.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get trip %s: %w", id, result.Error)
	}
	return tripFromModel(&model), nil
}

// ListTripsForUser retrieves every trip the user participates in.
func (s *GORMStore) ListTripsForUser(ctx context.Context, userID uuid.UUID) ([]dbt.TripInfo, error) {
	var models []TripModel
	result := s.db.WithContext(ctx).
		Joins("JOIN trip_participants ON trip_participants.trip_id = trips.id").
		Where("trip_participants.user_id = ?", userID).
		Order("trips.start_date").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list trips for user %s: %w", userID, result.Error)
	}

	trips := make([]dbt.TripInfo, 0, len(models))
	for i := range models {
		trips = append(trips, *tripFromModel(&models[i]))
	}
	return trips, nil
}

// AddTripParticipant enrolls a user into a trip.
func (s *GORMStore) AddTripParticipant(ctx context.Context, tripID, userID uuid.UUID) error {
	model := TripParticipantModel{
		TripID: tripID,
		UserID: userID,
	}
	result := s.db.WithContext(ctx).Create(&model)
	if result.Error != nil {
		if strings.Contains(result.Error.Error(), "duplicate key value violates unique constraint") {
			return fmt.Errorf("user %s in trip %s: %w", userID, tripID, dbt.ErrAlreadyExists)
		}
		if strings.Contains(result.Error.Error(), "violates foreign key constraint") {
			return fmt.Errorf("trip %s or user %s: %w", tripID, userID, dbt.ErrNotFound)
		}
		return fmt.Errorf("failed to add participant %s to trip %s: %w", userID, tripID, result.Error)
	}
	return nil
}

// ListTripParticipants retrieves a trip's participants with usernames resolved.
func (s *GORMStore) ListTripParticipants(ctx context.Context, tripID uuid.UUID) ([]dbt.TripParticipant, error) {
	var rows []struct {
		TripID    uuid.UUID
		UserID    uuid.UUID
		Username  string
		IsCreator bool
	}
	result := s.db.WithContext(ctx).
		Table("trip_participants").
		Select("trip_participants.trip_id, trip_participants.user_id, users.username, trip_participants.is_creator").
		Joins("JOIN users ON users.id = trip_participants.user_id").
		Where("trip_participants.trip_id = ?", tripID).
		Order("users.username").
		Scan(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list participants for trip %s: %w", tripID, result.Error)
	}

	participants := make([]dbt.TripParticipant, 0, len(rows))
	for _, r := range rows {
		participants = append(participants, dbt.TripParticipant{
			TripID:    r.TripID,
			UserID:    r.UserID,
			Username:  r.Username,
			IsCreator: r.IsCreator,
		})
	}
	return participants, nil
}

// IsTripParticipant reports whether the user is enrolled in the trip.
func (s *GORMStore) IsTripParticipant(ctx context.Context, tripID, userID uuid.UUID) (bool, error) {
	var count int64
	result := s.db.WithContext(ctx).
		Model(&TripParticipantModel{}).
		Where("trip_id = ? AND user_id = ?", tripID, userID).
		Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("failed to check participant %s in trip %s: %w", userID, tripID, result.Error)
	}
	return count > 0, nil
}

// RollTripStatuses advances trip statuses from the calendar: trips past
// their end date become Finished, trips inside their date range become
// Ongoing. Settled trips are terminal and never touched.
func (s *GORMStore) RollTripStatuses(ctx context.Context, today time.Time) (int64, error) {
	var changed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		finished := tx.Model(&TripModel{}).
			Where("status IN ? AND end_date < ?", []string{string(dbt.TripStatusUpcoming), string(dbt.TripStatusOngoing)}, today).
			Update("status", string(dbt.TripStatusFinished))
		if finished.Error != nil {
			return fmt.Errorf("failed to finish past trips: %w", finished.Error)
		}
		changed += finished.RowsAffected

		ongoing := tx.Model(&TripModel{}).
			Where("status = ? AND start_date <= ? AND end_date >= ?", string(dbt.TripStatusUpcoming), today, today)
		result := ongoing.Update("status", string(dbt.TripStatusOngoing))
		if result.Error != nil {
			return fmt.Errorf("failed to start current trips: %w", result.Error)
		}
		changed += result.RowsAffected
		return nil
	})
	return changed, err
}

func tripFromModel(m *TripModel) *dbt.TripInfo {
	return &dbt.TripInfo{
		ID:           m.ID,
		Name:         m.Name,
		StartDate:    m.StartDate,
		EndDate:      m.EndDate,
		Status:       dbt.TripStatus(m.Status),
		IsSettled:    m.IsSettled,
		BaseCurrency: m.BaseCurrency,
	}
}
