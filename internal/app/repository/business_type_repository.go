package repository

import (
	"github.com/lgu-bplo/bizpermit-backend/internal/app/model"
	"github.com/lgu-bplo/bizpermit-backend/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BusinessTypeRepository interface {
	FindAll() ([]model.BusinessType, error)
	FindByID(id uint) (*model.BusinessType, error)
	UpsertByName(types []model.BusinessType) error
}

type businessTypeRepository struct {
	db *gorm.DB
}

func NewBusinessTypeRepository(db *gorm.DB) BusinessTypeRepository {
	return &businessTypeRepository{db: db}
}

func (r *businessTypeRepository) FindAll() ([]model.BusinessType, error) {
	var types []model.BusinessType
	if err := r.db.Order("name ASC").Find(&types).Error; err != nil {
		logger.Error("Failed to list business types", err)
		return nil, err
	}
	return types, nil
}

func (r *businessTypeRepository) FindByID(id uint) (*model.BusinessType, error) {
	var bt model.BusinessType
	if err := r.db.First(&bt, id).Error; err != nil {
		return nil, err
	}
	return &bt, nil
}

// UpsertByName inserts new catalog entries and refreshes the description and
// base fee of existing ones.
func (r *businessTypeRepository) UpsertByName(types []model.BusinessType) error {
	if len(types) == 0 {
		return nil
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"description", "base_fee", "updated_at"}),
	}).Create(&types).Error
	if err != nil {
		logger.Error("Failed to upsert business types", err, map[string]interface{}{
			"count": len(types),
		})
		return err
	}
	logger.Info("Business types upserted", map[string]interface{}{
		"count": len(types),
	})
	return nil
}
