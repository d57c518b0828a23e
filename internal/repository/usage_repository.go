package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"chatvault/internal/model"
)

type UsageRepository struct {
	db *gorm.DB
}

func NewUsageRepository(db *gorm.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

func (r *UsageRepository) GetByUserID(userID string) (*model.UsageCounter, error) {
	var counter model.UsageCounter
	if err := r.db.Where("user_id = ?", userID).First(&counter).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get usage counter failed: %w", err)
	}
	return &counter, nil
}

func (r *UsageRepository) Save(counter *model.UsageCounter) error {
	if err := r.db.Save(counter).Error; err != nil {
		return fmt.Errorf("save usage counter failed: %w", err)
	}
	return nil
}
