package repository

import (
	"github.com/lgu-bplo/bizpermit-backend/internal/app/model"
	"github.com/lgu-bplo/bizpermit-backend/pkg/logger"
	"gorm.io/gorm"
)

// PermitHistoryRepository is append-only. There is deliberately no update or
// delete method.
type PermitHistoryRepository interface {
	WithTx(tx *gorm.DB) PermitHistoryRepository
	Append(record *model.PermitHistory) error
	ListFor(permitID uint) ([]model.PermitHistory, error)
}

type permitHistoryRepository struct {
	db *gorm.DB
}

func NewPermitHistoryRepository(db *gorm.DB) PermitHistoryRepository {
	return &permitHistoryRepository{db: db}
}

func (r *permitHistoryRepository) WithTx(tx *gorm.DB) PermitHistoryRepository {
	return &permitHistoryRepository{db: tx}
}

// Append assigns the next per-permit sequence number and inserts the record.
// Callers hold the permit's version slot, so sequences are gap-free; the
// unique index rejects anything that slips through.
func (r *permitHistoryRepository) Append(record *model.PermitHistory) error {
	var last int64
	if err := r.db.Model(&model.PermitHistory{}).
		Where("permit_id = ?", record.PermitID).
		Select("COALESCE(MAX(sequence), 0)").
		Scan(&last).Error; err != nil {
		logger.Error("Failed to read last history sequence", err, map[string]interface{}{
			"permit_id": record.PermitID,
		})
		return err
	}
	record.Sequence = last + 1

	if err := r.db.Create(record).Error; err != nil {
		logger.Error("Failed to append permit history", err, map[string]interface{}{
			"permit_id": record.PermitID,
			"action":    record.Action,
		})
		return err
	}

	logger.Debug("Permit history appended", map[string]interface{}{
		"permit_id": record.PermitID,
		"sequence":  record.Sequence,
		"action":    record.Action,
	})
	return nil
}

// ListFor returns the permit's history newest first.
func (r *permitHistoryRepository) ListFor(permitID uint) ([]model.PermitHistory, error) {
	var records []model.PermitHistory
	if err := r.db.Where("permit_id = ?", permitID).
		Order("sequence DESC").
		Find(&records).Error; err != nil {
		logger.Error("Failed to list permit history", err, map[string]interface{}{
			"permit_id": permitID,
		})
		return nil, err
	}
	return records, nil
}
