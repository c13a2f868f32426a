package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BusinessType is a catalog entry. The permit engine only reads it.
type BusinessType struct {
	ID          uint            `gorm:"primarykey" json:"id"`
	Name        string          `gorm:"type:varchar(120);uniqueIndex;not null" json:"name"`
	Description string          `gorm:"type:text" json:"description,omitempty"`
	BaseFee     decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"base_fee"` // suggested permit fee
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (BusinessType) TableName() string {
	return "business_types"
}
