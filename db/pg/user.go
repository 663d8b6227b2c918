package pg

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbt "checkmate/db/db"
)

// CreateUser persists a new user using GORM.
func (s *GORMStore) CreateUser(ctx context.Context, user *dbt.User) error {
	model := UserModel{
		ID:             user.ID,
		Username:       user.Username,
		Email:          user.Email,
		HashedPassword: user.HashedPassword,
		IsActive:       user.IsActive,
	}
	result := s.db.WithContext(ctx).Create(&model)
	if result.Error != nil {
		if strings.Contains(result.Error.Error(), "duplicate key value violates unique constraint") {
			return fmt.Errorf("user %s: %w", user.Username, dbt.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create user %s: %w", user.Username, result.Error)
	}
	return nil
}

// GetUser retrieves a user by ID using GORM.
func (s *GORMStore) GetUser(ctx context.Context, id uuid.UUID) (*dbt.User, error) {
	var model UserModel
	result := s.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s: %w", id, dbt.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user %s: %w", id, result.Error)
	}
	return userFromModel(&model), nil
}

// GetUserByUsername retrieves a user by their unique username using GORM.
func (s *GORMStore) GetUserByUsername(ctx context.Context, username string) (*dbt.User, error) {
	var model UserModel
	result := s.db.WithContext(ctx).First(&model, "username = ?", username)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s: %w", username, dbt.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user %s: %w", username, result.Error)
	}
	return userFromModel(&model), nil
}

// ResolveUsernames maps the given ids to usernames in a single query.
// Ids without a matching row are left out of the result map.
func (s *GORMStore) ResolveUsernames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	usernames := make(map[uuid.UUID]string, len(ids))
	if len(ids) == 0 {
		return usernames, nil
	}

	var models []UserModel
	result := s.db.WithContext(ctx).Select("id", "username").Where("id IN ?", ids).Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to resolve usernames: %w", result.Error)
	}
	for _, m := range models {
		usernames[m.ID] = m.Username
	}
	return usernames, nil
}

func userFromModel(m *UserModel) *dbt.User {
	return &dbt.User{
		ID:             m.ID,
		Username:       m.Username,
		Email:          m.Email,
		HashedPassword: m.HashedPassword,
		IsActive:       m.IsActive,
	}
}
