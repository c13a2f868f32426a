package model

import (
	"time"

	"gorm.io/datatypes"
)

type HistoryAction string

const (
	HistoryActionSubmitted     HistoryAction = "submitted"
	HistoryActionMarkedReview  HistoryAction = "marked_for_review"
	HistoryActionApproved      HistoryAction = "approved"
	HistoryActionRejected      HistoryAction = "rejected"
	HistoryActionRevoked       HistoryAction = "revoked"
	HistoryActionCancelled     HistoryAction = "cancelled"
	HistoryActionRenewed       HistoryAction = "renewed"
	HistoryActionPaymentPosted HistoryAction = "payment_recorded"
)

// PermitHistory is one entry of the append-only audit ledger. Rows are
// inserted inside the transaction that changes the permit and are never
// updated or deleted, hence no UpdatedAt/DeletedAt.
type PermitHistory struct {
	ID        uint              `gorm:"primarykey" json:"id"`
	PermitID  uint              `gorm:"not null;uniqueIndex:idx_permit_history_seq,priority:1" json:"permit_id"`
	Sequence  int64             `gorm:"not null;uniqueIndex:idx_permit_history_seq,priority:2" json:"sequence"`
	Action    HistoryAction     `gorm:"type:varchar(32);not null" json:"action"`
	OldStatus PermitStatus      `gorm:"type:varchar(20)" json:"old_status,omitempty"`
	NewStatus PermitStatus      `gorm:"type:varchar(20);not null" json:"new_status"`
	Notes     string            `gorm:"type:text" json:"notes,omitempty"`
	ActorID   uint              `gorm:"not null;index" json:"actor_id"`
	ActorRole UserRole          `gorm:"type:varchar(20);not null" json:"actor_role"`
	Metadata  datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null;index" json:"created_at"`
}

func (PermitHistory) TableName() string {
	return "permit_history"
}
