package repository

import (
	"github.com/lgu-bplo/bizpermit-backend/internal/app/model"
	"gorm.io/gorm"
)

// ResidentRepository reads the resident directory shared with the barangay
// records system.
type ResidentRepository interface {
	FindByID(id uint) (*model.Resident, error)
}

type residentRepository struct {
	db *gorm.DB
}

func NewResidentRepository(db *gorm.DB) ResidentRepository {
	return &residentRepository{db: db}
}

func (r *residentRepository) FindByID(id uint) (*model.Resident, error) {
	var resident model.Resident
	if err := r.db.First(&resident, id).Error; err != nil {
		return nil, err
	}
	return &resident, nil
}
