package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type PermitStatus string  // persisted lifecycle status
type PaymentStatus string // settlement state of the assessed fee

const (
	PermitStatusPending   PermitStatus = "pending"    // submitted, awaiting evaluation
	PermitStatusForReview PermitStatus = "for_review" // under evaluation by the licensing office
	PermitStatusApproved  PermitStatus = "approved"   // issued; may be past its expiry date
	PermitStatusRejected  PermitStatus = "rejected"   // denied, may be re-approved
	PermitStatusRevoked   PermitStatus = "revoked"    // terminal
	PermitStatusCancelled PermitStatus = "cancelled"  // terminal, withdrawn before a decision

	PaymentStatusUnpaid  PaymentStatus = "unpaid"
	PaymentStatusPartial PaymentStatus = "partial"
	PaymentStatusPaid    PaymentStatus = "paid"
)

// AllPermitStatuses lists every persisted status in lifecycle order.
var AllPermitStatuses = []PermitStatus{
	PermitStatusPending,
	PermitStatusForReview,
	PermitStatusApproved,
	PermitStatusRejected,
	PermitStatusRevoked,
	PermitStatusCancelled,
}

func (s PermitStatus) Valid() bool {
	for _, st := range AllPermitStatuses {
		if s == st {
			return true
		}
	}
	return false
}

func (s PermitStatus) IsTerminal() bool {
	return s == PermitStatusRevoked || s == PermitStatusCancelled
}

// FeeMap holds named fee components beyond the three standard ones.
type FeeMap map[string]decimal.Decimal

type Permit struct {
	ID           uint    `gorm:"primarykey" json:"id"`
	PermitNumber *string `gorm:"type:varchar(32);uniqueIndex" json:"permit_number,omitempty"` // assigned on first approval

	// Business
	BusinessName      string          `gorm:"type:varchar(255);not null;index" json:"business_name"`
	TradeName         string          `gorm:"type:varchar(255)" json:"trade_name,omitempty"`
	BusinessTypeID    uint            `gorm:"not null;index" json:"business_type_id"`
	BusinessType      *BusinessType   `gorm:"foreignKey:BusinessTypeID" json:"business_type,omitempty"`
	Address           string          `gorm:"type:text;not null" json:"address"`
	TIN               string          `gorm:"type:varchar(20)" json:"tin,omitempty"`
	CapitalInvestment decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"capital_investment"`
	EmployeeCount     int             `gorm:"not null;default:0" json:"employee_count"`
	FloorArea         decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"floor_area"`

	// Owner
	ResidentID   *uint  `gorm:"index" json:"resident_id,omitempty"`
	OwnerName    string `gorm:"type:varchar(255);not null;index" json:"owner_name"`
	OwnerContact string `gorm:"type:varchar(50)" json:"owner_contact,omitempty"`
	OwnerEmail   string `gorm:"type:varchar(255)" json:"owner_email,omitempty"`
	SubmittedBy  uint   `gorm:"not null;index" json:"submitted_by"`

	// Lifecycle
	Status          PermitStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	ApplicationDate time.Time    `gorm:"not null" json:"application_date"`
	IssueDate       *time.Time   `gorm:"index" json:"issue_date,omitempty"`
	ExpiryDate      *time.Time   `gorm:"index" json:"expiry_date,omitempty"`
	RejectionReason string       `gorm:"type:text" json:"rejection_reason,omitempty"`
	RevokeReason    string       `gorm:"type:text" json:"revoke_reason,omitempty"`
	CancelReason    string       `gorm:"type:text" json:"cancel_reason,omitempty"`
	IsRenewal       bool         `gorm:"not null;default:false" json:"is_renewal"`
	RenewalCount    int          `gorm:"not null;default:0" json:"renewal_count"`

	// Fees
	PermitFee      decimal.Decimal            `gorm:"type:decimal(12,2);not null;default:0" json:"permit_fee"`
	SanitaryFee    decimal.Decimal            `gorm:"type:decimal(12,2);not null;default:0" json:"sanitary_fee"`
	GarbageFee     decimal.Decimal            `gorm:"type:decimal(12,2);not null;default:0" json:"garbage_fee"`
	AdditionalFees datatypes.JSONType[FeeMap] `json:"additional_fees"`
	TotalFee       decimal.Decimal            `gorm:"type:decimal(12,2);not null;default:0" json:"total_fee"`
	AmountPaid     decimal.Decimal            `gorm:"type:decimal(12,2);not null;default:0" json:"amount_paid"`
	PaymentStatus  PaymentStatus              `gorm:"type:varchar(20);not null;default:'unpaid'" json:"payment_status"`

	// Version is bumped on every lifecycle write and compared on commit.
	Version   int64     `gorm:"not null" json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Permit) TableName() string {
	return "permits"
}

// Fees returns the permit's itemized fee components.
func (p *Permit) Fees() FeeComponents {
	return FeeComponents{
		PermitFee:   p.PermitFee,
		SanitaryFee: p.SanitaryFee,
		GarbageFee:  p.GarbageFee,
		Additional:  p.AdditionalFees.Data(),
	}
}

// FeeComponents is the itemized input of the fee calculator.
type FeeComponents struct {
	PermitFee   decimal.Decimal `json:"permit_fee"`
	SanitaryFee decimal.Decimal `json:"sanitary_fee"`
	GarbageFee  decimal.Decimal `json:"garbage_fee"`
	Additional  FeeMap          `json:"additional,omitempty"`
}
