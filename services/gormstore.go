package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aitector/aitector/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore performs the table operations over a direct database
// connection instead of the REST interface.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) UpsertUser(ctx context.Context, user models.User) (*models.User, error) {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email"}),
	}).Create(&user).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", translate(err))
	}
	return &user, nil
}

func (s *GormStore) InsertAPIKey(ctx context.Context, userID, keyHash string) (*models.APIKeyRow, error) {
	key := models.APIKey{UserID: userID, KeyHash: keyHash}
	if err := s.db.WithContext(ctx).Omit("User").Create(&key).Error; err != nil {
		return nil, fmt.Errorf("failed to insert API key: %w", translate(err))
	}
	row := key.Row()
	return &row, nil
}

func (s *GormStore) ListAPIKeys(ctx context.Context, userID string) ([]models.APIKeyRow, error) {
	var keys []models.APIKey
	err := s.db.WithContext(ctx).
		Select("id", "usage_count", "created_at").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&keys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}

	rows := make([]models.APIKeyRow, len(keys))
	for i := range keys {
		rows[i] = keys[i].Row()
	}
	return rows, nil
}

func (s *GormStore) CountAPIKeys(ctx context.Context, userID string) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.APIKey{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count API keys: %w", err)
	}
	return count, nil
}

func (s *GormStore) GetAPIKey(ctx context.Context, id string) (*models.APIKey, error) {
	var key models.APIKey
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get API key: %w", err)
	}
	return &key, nil
}

func (s *GormStore) DeleteAPIKey(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.APIKey{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete API key: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) CountUsage(ctx context.Context, keyID string) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.APIUsage{}).Where("api_key_id = ?", keyID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count usage: %w", err)
	}
	return count, nil
}

func (s *GormStore) LastUsedAt(ctx context.Context, keyID string) (*time.Time, error) {
	var rows []models.APIUsage
	err := s.db.WithContext(ctx).
		Select("created_at").
		Where("api_key_id = ?", keyID).
		Order("created_at DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get last usage: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0].CreatedAt, nil
}

func (s *GormStore) ListUsage(ctx context.Context, keyID string) ([]models.APIUsage, error) {
	rows := []models.APIUsage{}
	if err := s.db.WithContext(ctx).Where("api_key_id = ?", keyID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list usage: %w", err)
	}
	return rows, nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return fmt.Errorf("%w: %v", ErrForeignKey, err)
	}
	return err
}
